// Package postgres implements the store.Repository against PostgreSQL using
// the pgx stdlib driver. Mutating methods run as single read-committed
// transactions with a short lock_timeout so contention surfaces quickly;
// lock-busy, lock-timeout and deadlock failures are classified as transient
// for the caller's retry loop.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/retry"
)

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout overrides the per-transaction lock_timeout (default 5s).
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, lockTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// begin opens a read-committed unit of work with the store's lock_timeout
// applied. SET LOCAL scopes the timeout to this transaction only.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// SQLSTATEs that classify as transient: 55P03 lock_not_available (NOWAIT
// failed or lock_timeout expired), 40P01 deadlock_detected, 40001
// serialization_failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001":
			return retry.Transient(err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// jsonOrNull marshals v for a JSONB column, storing NULL for nil maps.
func jsonOrNull(v map[string]any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func marshalItems[T any](items []T) []byte {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// parseOrderItems parses a JSON item array defensively: invalid or NULL
// payloads become an empty slice, never an error.
func parseOrderItems(raw []byte) []domain.OrderItem {
	if len(raw) == 0 {
		return []domain.OrderItem{}
	}
	var items []domain.OrderItem
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return []domain.OrderItem{}
	}
	return items
}

func parseMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil || meta == nil {
		return map[string]any{}
	}
	return meta
}

func parseCustomizations(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var c map[string]any
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	return c
}

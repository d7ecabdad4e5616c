// Package retry provides a typed transient-error marker and a bounded
// retry-with-backoff combinator. Stores classify lock-busy, lock-wait-timeout
// and deadlock failures as transient; everything else aborts immediately.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// TransientError marks a failure as safe to re-run from the top of its unit
// of work. The wrapped cause is preserved for errors.Is/As.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause == nil {
		return "transient failure"
	}
	return "transient: " + e.Cause.Error()
}

func (e *TransientError) Unwrap() error { return e.Cause }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Policy bounds a retry loop. Backoff before attempt n (n ≥ 2) is
// Base + random jitter up to Jitter, doubling the base each attempt.
type Policy struct {
	Attempts int
	Base     time.Duration
	Jitter   time.Duration
}

// DefaultPolicy mirrors the write-path contract: three attempts with a short
// randomized backoff (50ms base, up to 100ms jitter).
var DefaultPolicy = Policy{Attempts: 3, Base: 50 * time.Millisecond, Jitter: 100 * time.Millisecond}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// exhausted. Each retry re-runs fn from the beginning; fn must be a complete
// unit of work (full re-validation, no resumption). The last error is
// returned once attempts run out, still marked transient so callers can map
// it to a retryable status.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := policy.Base
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := backoff
		if policy.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(policy.Jitter)))
		}
		backoff *= 2

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

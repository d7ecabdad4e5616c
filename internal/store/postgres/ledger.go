package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/store"
)

func (s *Store) ListIncomeExpenses(ctx context.Context, userID string, filter domain.IncomeExpenseFilter) ([]domain.IncomeExpense, error) {
	q := `SELECT id, type, category, description, amount, date, user_id FROM income_expenses`
	where := []string{}
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		where = append(where, "user_id = "+placeholder(len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where = append(where, "date >= "+placeholder(len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where = append(where, "date <= "+placeholder(len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, "type = "+placeholder(len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, "category = "+placeholder(len(args)))
	}
	if len(where) > 0 {
		q += " WHERE " + joinAnd(where)
	}
	q += " ORDER BY date DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.IncomeExpense{}
	for rows.Next() {
		var (
			e      domain.IncomeExpense
			desc   sql.NullString
			userID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &desc, &e.Amount, &e.Date, &userID); err != nil {
			return nil, err
		}
		e.Description = desc.String
		e.UserID = userID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateIncomeExpense(ctx context.Context, entry domain.IncomeExpense) (*domain.IncomeExpense, error) {
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_expenses (id, type, category, description, amount, date, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Type, entry.Category, nullIfEmpty(entry.Description), entry.Amount, entry.Date, nullIfEmpty(entry.UserID))
	if err != nil {
		return nil, classify(err)
	}
	return &entry, nil
}

func (s *Store) UpdateIncomeExpense(ctx context.Context, id string, req domain.IncomeExpenseRequest) error {
	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE income_expenses
		SET type = $1, category = $2, description = $3, amount = $4, date = $5
		WHERE id = $6`,
		req.Type, req.Category, nullIfEmpty(req.Description), req.Amount, date, id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteIncomeExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM income_expenses WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteIncomeExpenses(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM income_expenses WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, name, loyalty_points, member_card, created_at
		FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []domain.Customer{}
	for rows.Next() {
		var c domain.Customer
		var card sql.NullString
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &card, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.MemberCard = card.String
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) SearchCustomer(ctx context.Context, phone string, memberCard string) (*domain.Customer, error) {
	q := `SELECT id, phone, name, loyalty_points, member_card, created_at FROM customers WHERE `
	var arg string
	switch {
	case phone != "":
		q += `phone = $1`
		arg = phone
	case memberCard != "":
		q += `member_card = $1`
		arg = memberCard
	default:
		return nil, store.ErrInvalidInput
	}

	var c domain.Customer
	var card sql.NullString
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &card, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.MemberCard = card.String
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, phone, name, loyalty_points, member_card, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		customer.ID, customer.Phone, customer.Name, customer.LoyaltyPoints,
		nullIfEmpty(customer.MemberCard), customer.CreatedAt)
	if isUniqueViolation(err) {
		return nil, store.ErrInvalidInput
	}
	if err != nil {
		return nil, classify(err)
	}
	return &customer, nil
}

// AdjustCustomerPoints applies a loyalty point delta under a row lock.
// Subtracting never takes the balance below zero.
func (s *Store) AdjustCustomerPoints(ctx context.Context, id string, points int, operation string) (*domain.Customer, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT loyalty_points FROM customers WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	next := current
	switch operation {
	case "add":
		next = current + points
	case "subtract":
		next = current - points
		if next < 0 {
			next = 0
		}
	default:
		return nil, store.ErrInvalidInput
	}

	if _, err := tx.ExecContext(ctx, `UPDATE customers SET loyalty_points = $1 WHERE id = $2`, next, id); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	var c domain.Customer
	var card sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT id, phone, name, loyalty_points, member_card, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &card, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.MemberCard = card.String
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM user_categories WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) AddCategory(ctx context.Context, userID string, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_categories (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id, name) DO NOTHING`, userID, name)
	return classify(err)
}

func (s *Store) DeleteCategory(ctx context.Context, userID string, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_categories WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, name, created_at
		FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.PasswordHash, user.Role, user.Name, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return classify(err)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/store"
	"saaspos/backend/internal/xid"
)

const orderColumns = `id, customer_id, items, total, status, payment_status, payment_method, table_number, notes, metadata, created_at, user_id`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var (
		o        domain.Order
		customer sql.NullString
		items    []byte
		method   sql.NullString
		table    sql.NullString
		notes    sql.NullString
		meta     []byte
		userID   sql.NullString
	)
	err := row.Scan(&o.ID, &customer, &items, &o.Total, &o.Status, &o.PaymentStatus, &method, &table, &notes, &meta, &o.CreatedAt, &userID)
	if err != nil {
		return nil, err
	}
	o.CustomerID = customer.String
	o.Items = parseOrderItems(items)
	o.PaymentMethod = method.String
	o.TableNumber = table.String
	o.Notes = notes.String
	o.Metadata = parseMetadata(meta)
	o.UserID = userID.String
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOrder inserts the order and reserves stock for its tracked items in
// the same transaction. Product rows are locked in id order to keep writer
// lock acquisition deterministic across concurrent sales.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockForItems(ctx, tx, orderItemQuantities(order.Items), -1); err != nil {
		return nil, err
	}

	order.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, items, total, status, payment_status, payment_method, table_number, notes, metadata, created_at, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		order.ID, nullIfEmpty(order.CustomerID), marshalItems(order.Items), order.Total,
		order.Status, order.PaymentStatus, nullIfEmpty(order.PaymentMethod),
		nullIfEmpty(order.TableNumber), nullIfEmpty(order.Notes), jsonOrNull(order.Metadata),
		order.CreatedAt, nullIfEmpty(order.UserID))
	if err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetOrder(ctx, order.ID)
}

// orderItemQuantities collapses line items into per-product quantity deltas.
// Items without a product reference carry no stock and are skipped.
func orderItemQuantities(items []domain.OrderItem) map[string]int {
	byProduct := map[string]int{}
	for _, it := range items {
		if it.ProductID == "" {
			continue
		}
		byProduct[it.ProductID] += it.Quantity
	}
	return byProduct
}

func transactionItemQuantities(items []domain.TransactionItem) map[string]int {
	byProduct := map[string]int{}
	for _, it := range items {
		if it.ProductID == "" {
			continue
		}
		byProduct[it.ProductID] += it.Quantity
	}
	return byProduct
}

// adjustStockForItems locks the referenced products in id order and applies
// sign*quantity to stock-tracked rows. Products that no longer exist are
// skipped so that compensating restores stay best effort.
func adjustStockForItems(ctx context.Context, tx *sql.Tx, quantities map[string]int, sign int) error {
	if len(quantities) == 0 {
		return nil
	}
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows, err := tx.QueryContext(ctx, `
		SELECT id, has_stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return classify(err)
	}
	tracked := []string{}
	for rows.Next() {
		var id string
		var hasStock bool
		if err := rows.Scan(&id, &hasStock); err != nil {
			rows.Close()
			return err
		}
		if hasStock {
			tracked = append(tracked, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(err)
	}

	for _, id := range tracked {
		_, err := tx.ExecContext(ctx, `UPDATE products SET stock = COALESCE(stock, 0) + $1 WHERE id = $2`,
			sign*quantities[id], id)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, req domain.OrderUpdateRequest) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// An item change re-reserves stock: give back the old lines, take the
	// new ones.
	if req.Items != nil {
		if err := adjustStockForItems(ctx, tx, orderItemQuantities(cur.Items), +1); err != nil {
			return nil, err
		}
		if err := adjustStockForItems(ctx, tx, orderItemQuantities(*req.Items), -1); err != nil {
			return nil, err
		}
		cur.Items = *req.Items
	}
	if req.CustomerID != nil {
		cur.CustomerID = *req.CustomerID
	}
	if req.Total != nil {
		cur.Total = *req.Total
	}
	if req.Status != nil {
		cur.Status = *req.Status
	}
	if req.PaymentStatus != nil {
		cur.PaymentStatus = *req.PaymentStatus
	}
	if req.PaymentMethod != nil {
		cur.PaymentMethod = *req.PaymentMethod
	}
	if req.TableNumber != nil {
		cur.TableNumber = *req.TableNumber
	}
	if req.Notes != nil {
		cur.Notes = *req.Notes
	}
	if req.Metadata != nil {
		cur.Metadata = *req.Metadata
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $1, items = $2, total = $3, status = $4, payment_status = $5,
		    payment_method = $6, table_number = $7, notes = $8, metadata = $9
		WHERE id = $10`,
		nullIfEmpty(cur.CustomerID), marshalItems(cur.Items), cur.Total, cur.Status, cur.PaymentStatus,
		nullIfEmpty(cur.PaymentMethod), nullIfEmpty(cur.TableNumber), nullIfEmpty(cur.Notes),
		jsonOrNull(cur.Metadata), id)
	if err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, id)
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

func lockOrder(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return o, nil
}

// MarkOrderPaid updates the order's payment fields and, when the new status
// is paid, synthesizes the sale transaction and posts its ledger entry.
// Stock is not touched here; it was reserved when the order was created.
// The ledger write is keyed on the order's payment description so a retried
// payment never double-posts.
func (s *Store) MarkOrderPaid(ctx context.Context, id string, req domain.OrderPaymentRequest, userID string) (*domain.Order, *domain.Transaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := lockOrder(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	if req.PaymentStatus != "" {
		cur.PaymentStatus = req.PaymentStatus
	}
	if req.PaymentMethod != "" {
		cur.PaymentMethod = req.PaymentMethod
	}
	_, err = tx.ExecContext(ctx, `UPDATE orders SET payment_status = $1, payment_method = $2 WHERE id = $3`,
		cur.PaymentStatus, nullIfEmpty(cur.PaymentMethod), id)
	if err != nil {
		return nil, nil, classify(err)
	}

	var saleTx *domain.Transaction
	if req.PaymentStatus == domain.PayStatusPaid {
		total := domain.Round2(cur.Total - req.Discount)
		sale := domain.Transaction{
			ID:            xid.New("tx"),
			Subtotal:      cur.Total,
			Discount:      req.Discount,
			Total:         total,
			PaymentMethod: cur.PaymentMethod,
			Status:        domain.PayStatusPaid,
			Date:          time.Now().UTC(),
			CustomerID:    cur.CustomerID,
			UserID:        userID,
		}
		if cur.PaymentMethod == domain.PaymentCash && req.CashReceived != nil {
			received := domain.Round2(*req.CashReceived)
			change := domain.Round2(received - total)
			sale.CashReceived = &received
			sale.ChangeBack = &change
		}
		for _, it := range cur.Items {
			sale.Items = append(sale.Items, domain.TransactionItem{
				ProductID:      it.ProductID,
				ProductName:    it.ProductName,
				Quantity:       it.Quantity,
				Price:          it.Price,
				Customizations: it.Customizations,
			})
		}
		if err := insertTransaction(ctx, tx, &sale); err != nil {
			return nil, nil, err
		}
		if err := postOrderLedger(ctx, tx, id, total, userID); err != nil {
			return nil, nil, err
		}
		saleTx = &sale
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, classify(err)
	}
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return order, saleTx, nil
}

// postOrderLedger records the order's payment as income exactly once. The
// description doubles as the de-duplication key.
func postOrderLedger(ctx context.Context, tx *sql.Tx, orderID string, amount float64, userID string) error {
	desc := domain.OrderLedgerDescription(orderID)
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT id FROM income_expenses WHERE description = $1 LIMIT 1`, desc).Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return classify(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO income_expenses (id, type, category, description, amount, date, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		xid.New("ie"), domain.LedgerIncome, domain.LedgerCategorySales, desc, amount, time.Now().UTC(), nullIfEmpty(userID))
	return classify(err)
}

func insertTransaction(ctx context.Context, tx *sql.Tx, sale *domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, subtotal, discount, total, payment_method, cash_received, change_back, status, date, customer_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sale.ID, sale.Subtotal, sale.Discount, sale.Total, sale.PaymentMethod,
		nullFloat(sale.CashReceived), nullFloat(sale.ChangeBack), sale.Status, sale.Date,
		nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.UserID))
	if err != nil {
		return classify(err)
	}
	for _, it := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, price, customizations)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			sale.ID, nullIfEmpty(it.ProductID), it.ProductName, it.Quantity, it.Price, jsonOrNull(it.Customizations))
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := lockOrder(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := deleteOrderTx(ctx, tx, order); err != nil {
		return err
	}
	return classify(tx.Commit())
}

func (s *Store) DeleteOrders(ctx context.Context, ids []string) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for _, id := range ids {
		order, err := lockOrder(ctx, tx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if err := deleteOrderTx(ctx, tx, order); err != nil {
			return 0, err
		}
		deleted++
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return deleted, nil
}

// reconcileWindow bounds the search for a transaction that recorded the
// order's payment. Payments land after order creation, never days later.
const reconcileWindow = 48 * time.Hour

// deleteOrderTx removes an order with its compensations: reserved stock goes
// back, the transaction that recorded the order's payment is removed if one
// can be identified, and ledger entries derived from the order are purged.
//
// The order-to-transaction link is heuristic. Candidates must match the
// order's total as their subtotal and fall inside the reconcile window after
// the order was created; the first candidate whose line items fingerprint the
// same as the order's is taken.
func deleteOrderTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	if err := adjustStockForItems(ctx, tx, orderItemQuantities(order.Items), +1); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM transactions
		WHERE subtotal = $1 AND date >= $2 AND date <= $3
		ORDER BY date`,
		order.Total, order.CreatedAt, order.CreatedAt.Add(reconcileWindow))
	if err != nil {
		return classify(err)
	}
	candidates := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(err)
	}

	want := domain.OrderItemSignature(order.Items)
	for _, candidate := range candidates {
		items, err := loadTransactionItemsTx(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if domain.TransactionItemSignature(items) != want {
			continue
		}
		// Items cascade with the transaction row.
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, candidate); err != nil {
			return classify(err)
		}
		break
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM income_expenses WHERE description = $1 OR description LIKE $2`,
		domain.OrderLedgerDescription(order.ID), likeEscape(domain.OrderLedgerPrefix(order.ID))+"%")
	if err != nil {
		return classify(err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)
	return classify(err)
}

func loadTransactionItemsTx(ctx context.Context, tx *sql.Tx, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, price, customizations
		FROM transaction_items
		WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	items := []domain.TransactionItem{}
	for rows.Next() {
		var (
			it      domain.TransactionItem
			product sql.NullString
			customs []byte
		)
		if err := rows.Scan(&product, &it.ProductName, &it.Quantity, &it.Price, &customs); err != nil {
			return nil, err
		}
		it.ProductID = product.String
		it.Customizations = parseCustomizations(customs)
		items = append(items, it)
	}
	return items, rows.Err()
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	q := `SELECT id, subtotal, discount, total, payment_method, cash_received, change_back, status, date, customer_id, user_id FROM transactions`
	where := []string{}
	args := []any{}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where = append(where, "date >= "+placeholder(len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where = append(where, "date <= "+placeholder(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status = "+placeholder(len(args)))
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

	txs := []domain.Transaction{}
	ids := []string{}
	byID := map[string]int{}
	for rows.Next() {
		var (
			t        domain.Transaction
			cash     sql.NullFloat64
			change   sql.NullFloat64
			customer sql.NullString
			userID   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Subtotal, &t.Discount, &t.Total, &t.PaymentMethod, &cash, &change, &t.Status, &t.Date, &customer, &userID); err != nil {
			return nil, err
		}
		if cash.Valid {
			v := cash.Float64
			t.CashReceived = &v
		}
		if change.Valid {
			v := change.Float64
			t.ChangeBack = &v
		}
		t.CustomerID = customer.String
		t.UserID = userID.String
		t.Items = []domain.TransactionItem{}
		byID[t.ID] = len(txs)
		ids = append(ids, t.ID)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return txs, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_name, quantity, price, customizations
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			txID    string
			it      domain.TransactionItem
			product sql.NullString
			customs []byte
		)
		if err := itemRows.Scan(&txID, &product, &it.ProductName, &it.Quantity, &it.Price, &customs); err != nil {
			return nil, err
		}
		it.ProductID = product.String
		it.Customizations = parseCustomizations(customs)
		if i, ok := byID[txID]; ok {
			txs[i].Items = append(txs[i].Items, it)
		}
	}
	return txs, itemRows.Err()
}

// CreateTransaction records a direct POS sale: the header and its items go
// in, stock is decremented for tracked products, and paid sales post an
// income ledger entry. The caller has already validated payment and computed
// status and change.
func (s *Store) CreateTransaction(ctx context.Context, sale domain.Transaction) (*domain.Transaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockForItems(ctx, tx, transactionItemQuantities(sale.Items), -1); err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, &sale); err != nil {
		return nil, err
	}
	if sale.Status == domain.PayStatusPaid {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO income_expenses (id, type, category, description, amount, date, user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			xid.New("ie"), domain.LedgerIncome, domain.LedgerCategorySales,
			domain.SaleLedgerDescription(sale.ID), sale.Total, sale.Date, nullIfEmpty(sale.UserID))
		if err != nil {
			return nil, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return &sale, nil
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}

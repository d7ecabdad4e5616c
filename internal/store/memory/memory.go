// Package memory implements the store.Repository in process memory. It backs
// the test suite and lets the server run without PostgreSQL; data does not
// survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/retry"
	"saaspos/backend/internal/store"
	"saaspos/backend/internal/xid"
)

type Store struct {
	mu sync.Mutex

	products     map[string]*domain.Product
	orders       map[string]*domain.Order
	transactions map[string]*domain.Transaction
	ledger       map[string]*domain.IncomeExpense
	customers    map[string]*domain.Customer
	users        map[string]*domain.UserAccount
	categories   map[string]map[string]bool

	// held marks product rows whose lock an external holder owns, standing
	// in for a row lock a concurrent writer would be holding. Writers that
	// need the product lock fail transiently instead of blocking.
	held map[string]bool
}

func New() *Store {
	return &Store{
		products:     map[string]*domain.Product{},
		orders:       map[string]*domain.Order{},
		transactions: map[string]*domain.Transaction{},
		ledger:       map[string]*domain.IncomeExpense{},
		customers:    map[string]*domain.Customer{},
		users:        map[string]*domain.UserAccount{},
		categories:   map[string]map[string]bool{},
		held:         map[string]bool{},
	}
}

// NewSeeded returns a store with demo accounts and a small catalog, enough
// to point a client at the server without a database.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	for _, u := range []struct{ username, password, role, name string }{
		{"admin", "admin123", domain.RoleAdmin, "Administrator"},
		{"staff", "staff123", domain.RoleStaff, "Counter Staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			continue
		}
		_ = s.CreateUser(ctx, domain.UserAccount{
			ID:           xid.New("user"),
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			Name:         u.name,
		})
	}

	stock := func(n int) *int { return &n }
	seed := []domain.Product{
		{ID: xid.New("prod"), Name: "Americano", Category: "coffee", Price: 18000, HasStock: false,
			OptionSchema: []domain.OptionGroup{{
				Key: "size", Label: "Size", Type: "single", Required: true,
				Options: []domain.OptionValue{
					{Label: "Small", Value: "S", ValueType: "text"},
					{Label: "Large", Value: "L", ValueType: "text", PriceDelta: 4000},
				},
			}}},
		{ID: xid.New("prod"), Name: "Croissant", Category: "pastry", Price: 15000, HasStock: true, Stock: stock(24), LowStockThreshold: 5},
		{ID: xid.New("prod"), Name: "Bottled Water", Category: "drinks", Price: 6000, HasStock: true, Stock: stock(48), LowStockThreshold: 10},
	}
	for _, p := range seed {
		_, _ = s.CreateProduct(ctx, p)
	}
	return s
}

// HoldProduct simulates another writer holding the product's row lock until
// the returned release function is called.
func (s *Store) HoldProduct(id string) (release func()) {
	s.mu.Lock()
	s.held[id] = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.held, id)
		s.mu.Unlock()
	}
}

func errLockBusy() error {
	return retry.Transient(store.ErrLockBusy)
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Stock = clone(p.Stock)
	c.PriceSecondary = clone(p.PriceSecondary)
	c.OptionSchema = make([]domain.OptionGroup, len(p.OptionSchema))
	for i, g := range p.OptionSchema {
		cg := g
		cg.Options = append([]domain.OptionValue(nil), g.Options...)
		c.OptionSchema[i] = cg
	}
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	c.CashReceived = clone(t.CashReceived)
	c.ChangeBack = clone(t.ChangeBack)
	c.Items = append([]domain.TransactionItem(nil), t.Items...)
	return &c
}

func (s *Store) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Product{}
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Product{}
	for _, p := range s.products {
		if p.HasStock && p.Stock != nil && *p.Stock <= p.LowStockThreshold {
			out = append(out, *cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := 0, 0
		if out[i].Stock != nil {
			si = *out[i].Stock
		}
		if out[j].Stock != nil {
			sj = *out[j].Stock
		}
		if si != sj {
			return si < sj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Metadata == nil {
		product.Metadata = map[string]any{}
	}
	assignSchemaIDs(product.OptionSchema, nil)
	s.products[product.ID] = cloneProduct(&product)
	return cloneProduct(s.products[product.ID]), nil
}

// assignSchemaIDs reconciles the desired schema against the previous one:
// groups matched by key and values matched by (label, value) keep their ids,
// everything else gets a fresh one.
func assignSchemaIDs(schema []domain.OptionGroup, previous []domain.OptionGroup) {
	prevGroups := map[string]*domain.OptionGroup{}
	for i := range previous {
		prevGroups[previous[i].Key] = &previous[i]
	}
	for i := range schema {
		g := &schema[i]
		var prev *domain.OptionGroup
		if p, ok := prevGroups[g.Key]; ok {
			g.ID = p.ID
			prev = p
		} else {
			g.ID = xid.New("grp")
		}
		prevValues := map[string]string{}
		if prev != nil {
			for _, v := range prev.Options {
				prevValues[v.Label+"\x1f"+v.Value] = v.ID
			}
		}
		for j := range g.Options {
			v := &g.Options[j]
			if id, ok := prevValues[v.Label+"\x1f"+v.Value]; ok {
				v.ID = id
			} else {
				v.ID = xid.New("opt")
			}
		}
	}
}

func (s *Store) UpdateProduct(_ context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.held[id] {
		return nil, errLockBusy()
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.PriceSecondary != nil {
		p.PriceSecondary = clone(req.PriceSecondary)
	}
	if req.Stock != nil {
		p.Stock = clone(req.Stock)
	}
	if req.HasStock != nil {
		p.HasStock = *req.HasStock
	}
	if req.LowStockThreshold != nil {
		p.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Metadata != nil {
		p.Metadata = *req.Metadata
	}
	if req.OptionSchema != nil {
		desired := make([]domain.OptionGroup, len(*req.OptionSchema))
		copy(desired, *req.OptionSchema)
		assignSchemaIDs(desired, p.OptionSchema)
		p.OptionSchema = desired
	}
	p.UpdatedAt = time.Now().UTC()
	return cloneProduct(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	if s.held[id] {
		return errLockBusy()
	}

	referenced := false
	for _, t := range s.transactions {
		for _, it := range t.Items {
			if it.ProductID == id {
				referenced = true
			}
		}
	}
	orderRefs := []string{}
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				orderRefs = append(orderRefs, o.ID)
				break
			}
		}
	}
	if !force && (referenced || len(orderRefs) > 0) {
		return store.ErrReferenced
	}
	if force {
		for _, orderID := range orderRefs {
			delete(s.orders, orderID)
		}
		for _, t := range s.transactions {
			kept := t.Items[:0]
			for _, it := range t.Items {
				if it.ProductID != id {
					kept = append(kept, it)
				}
			}
			t.Items = kept
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListOrdersForProduct(_ context.Context, productID string) ([]domain.ProductOrderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := []domain.ProductOrderRef{}
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ProductID == productID {
				refs = append(refs, domain.ProductOrderRef{
					ID: o.ID, TableNumber: o.TableNumber, Status: o.Status,
					CreatedAt: o.CreatedAt, Total: o.Total,
				})
				break
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].CreatedAt.After(refs[j].CreatedAt) })
	return refs, nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for _, o := range s.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

// adjustStock applies sign*quantity to stock-tracked products referenced by
// the quantity map. Missing products are skipped.
func (s *Store) adjustStock(quantities map[string]int, sign int) error {
	for id := range quantities {
		if s.held[id] {
			return errLockBusy()
		}
	}
	for id, qty := range quantities {
		p, ok := s.products[id]
		if !ok || !p.HasStock {
			continue
		}
		cur := 0
		if p.Stock != nil {
			cur = *p.Stock
		}
		next := cur + sign*qty
		p.Stock = &next
	}
	return nil
}

func orderQuantities(items []domain.OrderItem) map[string]int {
	q := map[string]int{}
	for _, it := range items {
		if it.ProductID != "" {
			q[it.ProductID] += it.Quantity
		}
	}
	return q
}

func transactionQuantities(items []domain.TransactionItem) map[string]int {
	q := map[string]int{}
	for _, it := range items {
		if it.ProductID != "" {
			q[it.ProductID] += it.Quantity
		}
	}
	return q
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adjustStock(orderQuantities(order.Items), -1); err != nil {
		return nil, err
	}
	order.CreatedAt = time.Now().UTC()
	if order.Metadata == nil {
		order.Metadata = map[string]any{}
	}
	s.orders[order.ID] = cloneOrder(&order)
	return cloneOrder(s.orders[order.ID]), nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, req domain.OrderUpdateRequest) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Items != nil {
		if err := s.adjustStock(orderQuantities(o.Items), +1); err != nil {
			return nil, err
		}
		if err := s.adjustStock(orderQuantities(*req.Items), -1); err != nil {
			return nil, err
		}
		o.Items = append([]domain.OrderItem(nil), (*req.Items)...)
	}
	if req.CustomerID != nil {
		o.CustomerID = *req.CustomerID
	}
	if req.Total != nil {
		o.Total = *req.Total
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.PaymentStatus != nil {
		o.PaymentStatus = *req.PaymentStatus
	}
	if req.PaymentMethod != nil {
		o.PaymentMethod = *req.PaymentMethod
	}
	if req.TableNumber != nil {
		o.TableNumber = *req.TableNumber
	}
	if req.Notes != nil {
		o.Notes = *req.Notes
	}
	if req.Metadata != nil {
		o.Metadata = *req.Metadata
	}
	return cloneOrder(o), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	return nil
}

func (s *Store) MarkOrderPaid(_ context.Context, id string, req domain.OrderPaymentRequest, userID string) (*domain.Order, *domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if req.PaymentStatus != "" {
		o.PaymentStatus = req.PaymentStatus
	}
	if req.PaymentMethod != "" {
		o.PaymentMethod = req.PaymentMethod
	}

	var sale *domain.Transaction
	if req.PaymentStatus == domain.PayStatusPaid {
		total := domain.Round2(o.Total - req.Discount)
		t := domain.Transaction{
			ID:            xid.New("tx"),
			Subtotal:      o.Total,
			Discount:      req.Discount,
			Total:         total,
			PaymentMethod: o.PaymentMethod,
			Status:        domain.PayStatusPaid,
			Date:          time.Now().UTC(),
			CustomerID:    o.CustomerID,
			UserID:        userID,
		}
		if o.PaymentMethod == domain.PaymentCash && req.CashReceived != nil {
			received := domain.Round2(*req.CashReceived)
			change := domain.Round2(received - total)
			t.CashReceived = &received
			t.ChangeBack = &change
		}
		for _, it := range o.Items {
			t.Items = append(t.Items, domain.TransactionItem{
				ProductID: it.ProductID, ProductName: it.ProductName,
				Quantity: it.Quantity, Price: it.Price, Customizations: it.Customizations,
			})
		}
		s.transactions[t.ID] = cloneTransaction(&t)
		s.postOrderLedger(id, total, userID)
		sale = cloneTransaction(&t)
	}
	return cloneOrder(o), sale, nil
}

// postOrderLedger records the payment as income once; the description is the
// de-duplication key.
func (s *Store) postOrderLedger(orderID string, amount float64, userID string) {
	desc := domain.OrderLedgerDescription(orderID)
	for _, e := range s.ledger {
		if e.Description == desc {
			return
		}
	}
	id := xid.New("ie")
	s.ledger[id] = &domain.IncomeExpense{
		ID: id, Type: domain.LedgerIncome, Category: domain.LedgerCategorySales,
		Description: desc, Amount: amount, Date: time.Now().UTC(), UserID: userID,
	}
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	return s.deleteOrderLocked(o)
}

func (s *Store) DeleteOrders(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		o, ok := s.orders[id]
		if !ok {
			continue
		}
		if err := s.deleteOrderLocked(o); err != nil {
			return 0, err
		}
		deleted++
	}
	return deleted, nil
}

const reconcileWindow = 48 * time.Hour

// deleteOrderLocked removes the order with its compensations: reserved stock
// goes back, the matching sale transaction is removed when one can be
// identified by item fingerprint within the reconcile window, and the
// order's ledger entries are purged.
func (s *Store) deleteOrderLocked(o *domain.Order) error {
	if err := s.adjustStock(orderQuantities(o.Items), +1); err != nil {
		return err
	}

	want := domain.OrderItemSignature(o.Items)
	candidates := []*domain.Transaction{}
	for _, t := range s.transactions {
		if t.Subtotal != o.Total {
			continue
		}
		if t.Date.Before(o.CreatedAt) || t.Date.After(o.CreatedAt.Add(reconcileWindow)) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Date.Before(candidates[j].Date) })
	for _, t := range candidates {
		if domain.TransactionItemSignature(t.Items) == want {
			delete(s.transactions, t.ID)
			break
		}
	}

	exact := domain.OrderLedgerDescription(o.ID)
	prefix := domain.OrderLedgerPrefix(o.ID)
	for id, e := range s.ledger {
		if e.Description == exact || strings.HasPrefix(e.Description, prefix) {
			delete(s.ledger, id)
		}
	}

	delete(s.orders, o.ID)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Transaction{}
	for _, t := range s.transactions {
		if filter.StartDate != nil && t.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && t.Date.After(*filter.EndDate) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, *cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, sale domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adjustStock(transactionQuantities(sale.Items), -1); err != nil {
		return nil, err
	}
	s.transactions[sale.ID] = cloneTransaction(&sale)
	if sale.Status == domain.PayStatusPaid {
		id := xid.New("ie")
		s.ledger[id] = &domain.IncomeExpense{
			ID: id, Type: domain.LedgerIncome, Category: domain.LedgerCategorySales,
			Description: domain.SaleLedgerDescription(sale.ID), Amount: sale.Total,
			Date: sale.Date, UserID: sale.UserID,
		}
	}
	return cloneTransaction(&sale), nil
}

func (s *Store) ListIncomeExpenses(_ context.Context, userID string, filter domain.IncomeExpenseFilter) ([]domain.IncomeExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.IncomeExpense{}
	for _, e := range s.ledger {
		if userID != "" && e.UserID != userID {
			continue
		}
		if filter.StartDate != nil && e.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && e.Date.After(*filter.EndDate) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) CreateIncomeExpense(_ context.Context, entry domain.IncomeExpense) (*domain.IncomeExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	e := entry
	s.ledger[entry.ID] = &e
	return &entry, nil
}

func (s *Store) UpdateIncomeExpense(_ context.Context, id string, req domain.IncomeExpenseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ledger[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Type = req.Type
	e.Category = req.Category
	e.Description = req.Description
	e.Amount = req.Amount
	if req.Date != nil {
		e.Date = *req.Date
	} else {
		e.Date = time.Now().UTC()
	}
	return nil
}

func (s *Store) DeleteIncomeExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.ledger, id)
	return nil
}

func (s *Store) DeleteIncomeExpenses(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := s.ledger[id]; ok {
			delete(s.ledger, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Customer{}
	for _, c := range s.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SearchCustomer(_ context.Context, phone string, memberCard string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phone == "" && memberCard == "" {
		return nil, store.ErrInvalidInput
	}
	for _, c := range s.customers {
		if phone != "" && c.Phone == phone {
			cp := *c
			return &cp, nil
		}
		if phone == "" && memberCard != "" && c.MemberCard == memberCard {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.Phone == customer.Phone {
			return nil, store.ErrInvalidInput
		}
		if customer.MemberCard != "" && c.MemberCard == customer.MemberCard {
			return nil, store.ErrInvalidInput
		}
	}
	customer.CreatedAt = time.Now().UTC()
	c := customer
	s.customers[customer.ID] = &c
	return &customer, nil
}

func (s *Store) AdjustCustomerPoints(_ context.Context, id string, points int, operation string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	switch operation {
	case "add":
		c.LoyaltyPoints += points
	case "subtract":
		c.LoyaltyPoints -= points
		if c.LoyaltyPoints < 0 {
			c.LoyaltyPoints = 0
		}
	default:
		return nil, store.ErrInvalidInput
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for name := range s.categories[userID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) AddCategory(_ context.Context, userID string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categories[userID] == nil {
		s.categories[userID] = map[string]bool{}
	}
	s.categories[userID][name] = true
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.categories[userID][name] {
		return store.ErrNotFound
	}
	delete(s.categories[userID], name)
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u := user
	s.users[user.Username] = &u
	return nil
}

func (s *Store) SalesSummary(_ context.Context, query domain.SalesSummaryQuery) (domain.SalesSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inRange := func(t time.Time) bool {
		if query.StartDate != nil && t.Before(*query.StartDate) {
			return false
		}
		if query.EndDate != nil && t.After(*query.EndDate) {
			return false
		}
		return true
	}

	summary := domain.SalesSummary{
		Period:            query.Period,
		IncomeByCategory:  map[string]float64{},
		ExpenseByCategory: map[string]float64{},
		ItemsSold:         []domain.ItemSales{},
		CategoryBreakdown: []domain.CategorySales{},
		HourlyData:        []domain.HourlySales{},
	}

	type itemAgg struct {
		domain.ItemSales
		priceSum float64
		lines    int
		orders   map[string]bool
	}
	items := map[string]*itemAgg{}
	hourly := map[int]*domain.HourlySales{}

	for _, t := range s.transactions {
		if !inRange(t.Date) {
			continue
		}
		summary.TransactionCount++
		if t.Status == domain.PayStatusPaid {
			summary.PaidTransactionCount++
			summary.TotalRevenue += t.Total
		} else {
			summary.UnpaidTransactionCount++
		}

		hour := t.Date.UTC().Hour()
		h := hourly[hour]
		if h == nil {
			h = &domain.HourlySales{Hour: hour}
			hourly[hour] = h
		}
		h.TransactionCount++
		h.Revenue = domain.Round2(h.Revenue + t.Total)

		for _, it := range t.Items {
			category := ""
			if p, ok := s.products[it.ProductID]; ok {
				category = p.Category
			}
			if query.Category != "" && category != query.Category {
				continue
			}
			key := it.ProductID + "\x1f" + it.ProductName
			agg := items[key]
			if agg == nil {
				agg = &itemAgg{
					ItemSales: domain.ItemSales{ProductName: it.ProductName, ProductID: it.ProductID, Category: category},
					orders:    map[string]bool{},
				}
				items[key] = agg
			}
			agg.Quantity += it.Quantity
			agg.Revenue += float64(it.Quantity) * it.Price
			agg.priceSum += it.Price
			agg.lines++
			agg.orders[t.ID] = true
			h.ItemsSold += it.Quantity
		}
	}

	for _, e := range s.ledger {
		if !inRange(e.Date) {
			continue
		}
		if e.Type == domain.LedgerIncome {
			summary.IncomeByCategory[e.Category] += e.Amount
			if e.Category != domain.LedgerCategorySales {
				summary.AdditionalIncome += e.Amount
			}
		} else {
			summary.ExpenseByCategory[e.Category] += e.Amount
			summary.TotalExpenses += e.Amount
		}
	}

	for _, o := range s.orders {
		if !inRange(o.CreatedAt) {
			continue
		}
		summary.OrderCount++
		summary.OrderTotal += o.Total
	}

	categoryAgg := map[string]*domain.CategorySales{}
	for _, agg := range items {
		agg.Revenue = domain.Round2(agg.Revenue)
		agg.OrderCount = len(agg.orders)
		if agg.lines > 0 {
			agg.AvgPrice = domain.Round2(agg.priceSum / float64(agg.lines))
		}
		summary.ItemsSold = append(summary.ItemsSold, agg.ItemSales)
		summary.TotalItemsSold += agg.Quantity

		key := agg.Category
		if key == "" {
			key = "uncategorized"
		}
		c := categoryAgg[key]
		if c == nil {
			c = &domain.CategorySales{Category: key}
			categoryAgg[key] = c
		}
		c.Quantity += agg.Quantity
		c.Revenue = domain.Round2(c.Revenue + agg.Revenue)
		c.UniqueProducts++
	}
	sort.Slice(summary.ItemsSold, func(i, j int) bool { return summary.ItemsSold[i].Quantity > summary.ItemsSold[j].Quantity })
	for _, c := range categoryAgg {
		summary.CategoryBreakdown = append(summary.CategoryBreakdown, *c)
	}
	sort.Slice(summary.CategoryBreakdown, func(i, j int) bool {
		return summary.CategoryBreakdown[i].Revenue > summary.CategoryBreakdown[j].Revenue
	})

	hours := make([]int, 0, len(hourly))
	for h := range hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		summary.HourlyData = append(summary.HourlyData, *hourly[h])
	}

	summary.TotalRevenue = domain.Round2(summary.TotalRevenue)
	summary.TotalExpenses = domain.Round2(summary.TotalExpenses)
	summary.AdditionalIncome = domain.Round2(summary.AdditionalIncome)
	summary.OrderTotal = domain.Round2(summary.OrderTotal)
	summary.TotalIncome = domain.Round2(summary.TotalRevenue + summary.AdditionalIncome)
	summary.NetProfit = domain.Round2(summary.TotalIncome - summary.TotalExpenses)
	if summary.PaidTransactionCount > 0 {
		summary.AverageOrderValue = domain.Round2(summary.TotalRevenue / float64(summary.PaidTransactionCount))
	}
	return summary, nil
}

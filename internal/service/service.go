// Package service holds the business rules between the HTTP layer and the
// store: input validation, option schema normalization, payment math, the
// retry loop around contended writes, and event broadcasting.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"saaspos/backend/internal/cache"
	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/notify"
	"saaspos/backend/internal/retry"
	"saaspos/backend/internal/store"
	"saaspos/backend/internal/xid"
)

// ErrForbidden signals an authenticated actor without the required role.
var ErrForbidden = errors.New("admin role required")

// ErrBadCredentials signals a failed login. It deliberately does not say
// whether the username or the password was wrong.
var ErrBadCredentials = errors.New("invalid username or password")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	hub     *notify.Hub
	reports cache.ReportCache
	policy  retry.Policy
}

func New(repo store.Repository, hub *notify.Hub, reports cache.ReportCache) *Service {
	if hub == nil {
		hub = notify.NewHub()
	}
	if reports == nil {
		reports = cache.Noop{}
	}
	return &Service{
		repo:    repo,
		hub:     hub,
		reports: reports,
		policy:  retry.DefaultPolicy,
	}
}

// Hub exposes the broadcast hub for transports that want to subscribe.
func (s *Service) Hub() *notify.Hub {
	return s.hub
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func actorID(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.ID
}

func (s *Service) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.UserAccount, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrBadCredentials
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, category)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" || req.Price < 0 {
		return nil, store.ErrInvalidInput
	}

	hasStock := true
	if req.HasStock != nil {
		hasStock = *req.HasStock
	}
	product := domain.Product{
		ID:                xid.New("prod"),
		Name:              req.Name,
		Category:          req.Category,
		Price:             domain.Round2(req.Price),
		PriceSecondary:    req.PriceSecondary,
		Stock:             req.Stock,
		HasStock:          hasStock,
		LowStockThreshold: req.LowStockThreshold,
		Description:       req.Description,
		Metadata:          req.Metadata,
		OptionSchema:      domain.NormalizeOptionSchema(req.OptionSchema),
	}
	return s.repo.CreateProduct(ctx, product)
}

// UpdateProduct normalizes any supplied option schema and runs the store's
// reconciling update under the retry loop; lock conflicts with a concurrent
// writer re-run the whole unit of work.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	if req.OptionSchema != nil {
		normalized := domain.NormalizeOptionSchema(*req.OptionSchema)
		req.OptionSchema = &normalized
	}

	var updated *domain.Product
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.UpdateProduct(ctx, id, req)
		return err
	})
	if err != nil {
		s.logConflict("product update", err)
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string, force bool) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.DeleteProduct(ctx, id, force)
	})
}

func (s *Service) ListOrdersForProduct(ctx context.Context, productID string) ([]domain.ProductOrderRef, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListOrdersForProduct(ctx, productID)
}

// ListOrders returns the acting user's orders only.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, actorID(ctx))
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductName) == "" || it.Quantity <= 0 || it.Price < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	total := req.Total
	if total == 0 {
		for _, it := range req.Items {
			total += float64(it.Quantity) * it.Price
		}
	}
	order := domain.Order{
		ID:            xid.New("ord"),
		CustomerID:    req.CustomerID,
		Items:         req.Items,
		Total:         domain.Round2(total),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PayStatusUnpaid,
		TableNumber:   req.TableNumber,
		Notes:         req.Notes,
		Metadata:      req.Metadata,
		UserID:        actorID(ctx),
	}

	// Subscribers see the order before the durable write is acknowledged;
	// a failed write is followed by a deletion event.
	s.hub.Publish(notify.EventOrderCreated, order)

	var created *domain.Order
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		s.hub.Publish(notify.EventOrderDeleted, map[string]string{"id": order.ID})
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateOrder(ctx context.Context, id string, req domain.OrderUpdateRequest) (*domain.Order, error) {
	if req.Items != nil {
		for _, it := range *req.Items {
			if strings.TrimSpace(it.ProductName) == "" || it.Quantity <= 0 || it.Price < 0 {
				return nil, store.ErrInvalidInput
			}
		}
	}
	if req.Status != nil && !validOrderStatus(*req.Status) {
		return nil, store.ErrInvalidInput
	}

	var updated *domain.Order
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.UpdateOrder(ctx, id, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hub.Publish(notify.EventOrderUpdated, *updated)
	return updated, nil
}

func validOrderStatus(status string) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusCompleted, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status string) error {
	if !validOrderStatus(status) {
		return store.ErrInvalidInput
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, status); err != nil {
		return err
	}
	s.hub.Publish(notify.EventOrderUpdated, map[string]string{"id": id, "status": status})
	return nil
}

// PayOrder validates the payment request and marks the order paid. For cash
// payments the tendered amount must cover total minus discount; change is
// rounded to two decimals. QR payments settle externally, so paid status is
// accepted as asserted.
func (s *Service) PayOrder(ctx context.Context, id string, req domain.OrderPaymentRequest) (*domain.Order, *domain.Transaction, error) {
	if req.PaymentStatus == "" && req.PaymentMethod == "" {
		return nil, nil, store.ErrInvalidInput
	}
	if req.PaymentStatus != "" && !validPaymentStatus(req.PaymentStatus) {
		return nil, nil, store.ErrInvalidInput
	}
	if req.PaymentMethod != "" && !validPaymentMethod(req.PaymentMethod) {
		return nil, nil, store.ErrInvalidInput
	}
	if req.Discount < 0 {
		return nil, nil, store.ErrInvalidInput
	}

	if req.PaymentStatus == domain.PayStatusPaid {
		order, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		method := req.PaymentMethod
		if method == "" {
			method = order.PaymentMethod
		}
		if method == "" {
			return nil, nil, store.ErrInvalidInput
		}
		if method == domain.PaymentCash {
			if req.CashReceived == nil {
				return nil, nil, store.ErrInvalidInput
			}
			due := domain.Round2(order.Total - req.Discount)
			if domain.Round2(*req.CashReceived) < due {
				return nil, nil, store.ErrInsufficientPayment
			}
		}
	}

	var (
		order *domain.Order
		sale  *domain.Transaction
	)
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		order, sale, err = s.repo.MarkOrderPaid(ctx, id, req, actorID(ctx))
		return err
	})
	if err != nil {
		s.logConflict("order payment", err)
		return nil, nil, err
	}
	s.hub.Publish(notify.EventOrderPaid, *order)
	if sale != nil {
		s.hub.Publish(notify.EventTransactionCreated, *sale)
	}
	return order, sale, nil
}

func validPaymentStatus(status string) bool {
	switch status {
	case domain.PayStatusUnpaid, domain.PayStatusPaid, domain.PayStatusPartial:
		return true
	}
	return false
}

func validPaymentMethod(method string) bool {
	return method == domain.PaymentCash || method == domain.PaymentQR
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(notify.EventOrderDeleted, map[string]string{"id": id})
	return nil
}

func (s *Service) DeleteOrders(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, store.ErrInvalidInput
	}
	var deleted int
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.DeleteOrders(ctx, ids)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.hub.Publish(notify.EventOrderDeleted, map[string]string{"id": id})
	}
	return deleted, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// CreateTransaction records a direct POS sale. Cash sales must tender at
// least the total and settle immediately as paid with computed change; QR
// sales default to unpaid until the caller asserts otherwise.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (*domain.Transaction, error) {
	if len(req.Items) == 0 || !validPaymentMethod(req.PaymentMethod) {
		return nil, store.ErrInvalidInput
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductName) == "" || it.Quantity <= 0 || it.Price < 0 {
			return nil, store.ErrInvalidInput
		}
	}
	if req.Total < 0 || req.Discount < 0 {
		return nil, store.ErrInvalidInput
	}

	sale := domain.Transaction{
		ID:            xid.New("tx"),
		Subtotal:      domain.Round2(req.Subtotal),
		Discount:      domain.Round2(req.Discount),
		Total:         domain.Round2(req.Total),
		PaymentMethod: req.PaymentMethod,
		Date:          time.Now().UTC(),
		CustomerID:    req.CustomerID,
		UserID:        actorID(ctx),
		Items:         req.Items,
	}

	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashReceived == nil {
			return nil, store.ErrInvalidInput
		}
		received := domain.Round2(*req.CashReceived)
		if received < sale.Total {
			return nil, store.ErrInsufficientPayment
		}
		change := domain.Round2(received - sale.Total)
		sale.CashReceived = &received
		sale.ChangeBack = &change
		sale.Status = domain.PayStatusPaid
	case domain.PaymentQR:
		sale.Status = domain.PayStatusUnpaid
		if req.Status == domain.PayStatusPaid {
			sale.Status = domain.PayStatusPaid
		}
	}

	var created *domain.Transaction
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateTransaction(ctx, sale)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hub.Publish(notify.EventTransactionCreated, *created)
	return created, nil
}

// ListIncomeExpenses returns the acting user's ledger entries only.
func (s *Service) ListIncomeExpenses(ctx context.Context, filter domain.IncomeExpenseFilter) ([]domain.IncomeExpense, error) {
	return s.repo.ListIncomeExpenses(ctx, actorID(ctx), filter)
}

func (s *Service) CreateIncomeExpense(ctx context.Context, req domain.IncomeExpenseRequest) (*domain.IncomeExpense, error) {
	if err := validateLedgerRequest(req); err != nil {
		return nil, err
	}
	entry := domain.IncomeExpense{
		ID:          xid.New("ie"),
		Type:        req.Type,
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
		Amount:      domain.Round2(req.Amount),
		UserID:      actorID(ctx),
	}
	if req.Date != nil {
		entry.Date = *req.Date
	}
	return s.repo.CreateIncomeExpense(ctx, entry)
}

func (s *Service) UpdateIncomeExpense(ctx context.Context, id string, req domain.IncomeExpenseRequest) error {
	if err := validateLedgerRequest(req); err != nil {
		return err
	}
	return s.repo.UpdateIncomeExpense(ctx, id, req)
}

func validateLedgerRequest(req domain.IncomeExpenseRequest) error {
	if req.Type != domain.LedgerIncome && req.Type != domain.LedgerExpense {
		return store.ErrInvalidInput
	}
	if strings.TrimSpace(req.Category) == "" || req.Amount <= 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Service) DeleteIncomeExpense(ctx context.Context, id string) error {
	return s.repo.DeleteIncomeExpense(ctx, id)
}

func (s *Service) DeleteIncomeExpenses(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, store.ErrInvalidInput
	}
	return s.repo.DeleteIncomeExpenses(ctx, ids)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SearchCustomer(ctx context.Context, phone string, memberCard string) (*domain.Customer, error) {
	return s.repo.SearchCustomer(ctx, strings.TrimSpace(phone), strings.TrimSpace(memberCard))
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	if req.Phone == "" || req.Name == "" || req.LoyaltyPoints < 0 {
		return nil, store.ErrInvalidInput
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		ID:            xid.New("cust"),
		Phone:         req.Phone,
		Name:          req.Name,
		LoyaltyPoints: req.LoyaltyPoints,
		MemberCard:    strings.TrimSpace(req.MemberCard),
	})
}

func (s *Service) AdjustCustomerPoints(ctx context.Context, id string, req domain.CustomerPointsRequest) (*domain.Customer, error) {
	if req.Points <= 0 {
		return nil, store.ErrInvalidInput
	}
	if req.Operation != "add" && req.Operation != "subtract" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.AdjustCustomerPoints(ctx, id, req.Points, req.Operation)
}

func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx, actorID(ctx))
}

func (s *Service) AddCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.ErrInvalidInput
	}
	return s.repo.AddCategory(ctx, actorID(ctx), name)
}

func (s *Service) DeleteCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCategory(ctx, actorID(ctx), name)
}

// SalesSummary resolves the requested period to a concrete date range,
// serves from the report cache when possible and aggregates otherwise.
func (s *Service) SalesSummary(ctx context.Context, query domain.SalesSummaryQuery) (domain.SalesSummary, error) {
	resolved, err := resolvePeriod(query, time.Now().UTC())
	if err != nil {
		return domain.SalesSummary{}, err
	}

	key := summaryCacheKey(resolved)
	if cached, ok := s.reports.GetSalesSummary(ctx, key); ok {
		return *cached, nil
	}

	summary, err := s.repo.SalesSummary(ctx, resolved)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	s.reports.SetSalesSummary(ctx, key, summary)
	return summary, nil
}

// resolvePeriod turns "daily"/"monthly" into concrete bounds; an explicit
// range passes through. Both empty means all time.
func resolvePeriod(query domain.SalesSummaryQuery, now time.Time) (domain.SalesSummaryQuery, error) {
	switch query.Period {
	case "":
		// explicit range or unbounded
	case "daily":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end := start.Add(24*time.Hour - time.Nanosecond)
		query.StartDate = &start
		query.EndDate = &end
	case "monthly":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		query.StartDate = &start
		query.EndDate = &end
	default:
		return query, store.ErrInvalidInput
	}
	if query.StartDate != nil && query.EndDate != nil && query.EndDate.Before(*query.StartDate) {
		return query, store.ErrInvalidInput
	}
	return query, nil
}

func summaryCacheKey(query domain.SalesSummaryQuery) string {
	start, end := "", ""
	if query.StartDate != nil {
		start = query.StartDate.Format(time.RFC3339)
	}
	if query.EndDate != nil {
		end = query.EndDate.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%s|%s", query.Period, start, end, query.Category)
}

func (s *Service) logConflict(op string, err error) {
	if retry.IsTransient(err) {
		log.Printf("[service] WARN: %s still contended after retries: %v", op, err)
	}
}

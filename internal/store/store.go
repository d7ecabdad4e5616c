package store

import (
	"context"
	"errors"

	"saaspos/backend/internal/domain"
)

var (
	// ErrNotFound signals a missing order/product/customer/entry.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals malformed or out-of-range caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientPayment signals cash tendered below the sale total.
	ErrInsufficientPayment = errors.New("insufficient cash received")
	// ErrReferenced signals a delete blocked by sale history; callers may
	// retry with force to cascade.
	ErrReferenced = errors.New("referenced by transaction history")
	// ErrLockBusy signals that a required row lock is held elsewhere. It is
	// always surfaced wrapped as transient so retry loops pick it up.
	ErrLockBusy = errors.New("row lock busy")
)

// Repository is the persistence contract shared by the postgres and memory
// implementations. Every mutating method is one unit of work: all of its
// writes commit together or not at all. Methods that take row locks return
// retry.Transient-wrapped errors on lock contention so callers can re-run
// the whole call.
type Repository interface {
	// Products. Create/Update expect the option schema already normalized
	// via domain.NormalizeOptionSchema; Update reconciles the normalized
	// schema against the option tables under a non-blocking product lock.
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string, force bool) error
	ListOrdersForProduct(ctx context.Context, productID string) ([]domain.ProductOrderRef, error)

	// Orders. CreateOrder reserves stock at creation time; DeleteOrder and
	// DeleteOrders restore it and best-effort remove the paired transaction
	// and ledger entries.
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id string, req domain.OrderUpdateRequest) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) error
	MarkOrderPaid(ctx context.Context, id string, req domain.OrderPaymentRequest, userID string) (*domain.Order, *domain.Transaction, error)
	DeleteOrder(ctx context.Context, id string) error
	DeleteOrders(ctx context.Context, ids []string) (int, error)

	// Transactions are immutable once written. CreateTransaction expects a
	// fully validated sale (status, changeBack computed) and atomically
	// inserts the header and items, adjusts stock, and posts the ledger
	// entry for paid sales.
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	ListIncomeExpenses(ctx context.Context, userID string, filter domain.IncomeExpenseFilter) ([]domain.IncomeExpense, error)
	CreateIncomeExpense(ctx context.Context, entry domain.IncomeExpense) (*domain.IncomeExpense, error)
	UpdateIncomeExpense(ctx context.Context, id string, req domain.IncomeExpenseRequest) error
	DeleteIncomeExpense(ctx context.Context, id string) error
	DeleteIncomeExpenses(ctx context.Context, ids []string) (int, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	SearchCustomer(ctx context.Context, phone string, memberCard string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	AdjustCustomerPoints(ctx context.Context, id string, points int, operation string) (*domain.Customer, error)

	ListCategories(ctx context.Context, userID string) ([]string, error)
	AddCategory(ctx context.Context, userID string, name string) error
	DeleteCategory(ctx context.Context, userID string, name string) error

	SalesSummary(ctx context.Context, query domain.SalesSummaryQuery) (domain.SalesSummary, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type Product struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Category          string         `json:"category"`
	Price             float64        `json:"price"`
	PriceSecondary    *float64       `json:"priceSecondary,omitempty"`
	Stock             *int           `json:"stock"`
	HasStock          bool           `json:"hasStock"`
	LowStockThreshold int            `json:"lowStockThreshold"`
	Description       string         `json:"description,omitempty"`
	Metadata          map[string]any `json:"metadata"`
	OptionSchema      []OptionGroup  `json:"optionSchema"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Name              string         `json:"name"`
	Category          string         `json:"category"`
	Price             float64        `json:"price"`
	PriceSecondary    *float64       `json:"priceSecondary,omitempty"`
	Stock             *int           `json:"stock"`
	HasStock          *bool          `json:"hasStock,omitempty"`
	LowStockThreshold int            `json:"lowStockThreshold"`
	Description       string         `json:"description,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	OptionSchema      []OptionGroup  `json:"optionSchema,omitempty"`
}

type ProductUpdateRequest struct {
	Name              *string         `json:"name,omitempty"`
	Category          *string         `json:"category,omitempty"`
	Price             *float64        `json:"price,omitempty"`
	PriceSecondary    *float64        `json:"priceSecondary,omitempty"`
	Stock             *int            `json:"stock,omitempty"`
	HasStock          *bool           `json:"hasStock,omitempty"`
	LowStockThreshold *int            `json:"lowStockThreshold,omitempty"`
	Description       *string         `json:"description,omitempty"`
	Metadata          *map[string]any `json:"metadata,omitempty"`
	// OptionSchema nil means "leave the stored schema alone"; an empty,
	// non-nil slice means "remove every group".
	OptionSchema *[]OptionGroup `json:"optionSchema,omitempty"`
}

// OptionGroup is one selectable variant axis of a product (e.g. "Size").
// Groups are replaced wholesale when a product update supplies a schema.
type OptionGroup struct {
	ID       string        `json:"-"`
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Type     string        `json:"type"`
	Required bool          `json:"required"`
	Options  []OptionValue `json:"options"`
}

// OptionValue is a single selectable option. Value holds the canonical
// string form of the typed value and, together with Label, is the option's
// identity within its group.
type OptionValue struct {
	ID          string   `json:"-"`
	Label       string   `json:"label"`
	Value       string   `json:"value"`
	ValueType   string   `json:"valueType"`
	TextValue   *string  `json:"textValue,omitempty"`
	NumberValue *float64 `json:"numberValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	DateValue   *string  `json:"dateValue,omitempty"`
	PriceDelta  float64  `json:"priceDelta"`
}

type OrderItem struct {
	ProductID      string         `json:"productId,omitempty"`
	ProductName    string         `json:"productName"`
	Quantity       int            `json:"quantity"`
	Price          float64        `json:"price"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customerId,omitempty"`
	Items         []OrderItem    `json:"items"`
	Total         float64        `json:"total"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"paymentStatus"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	TableNumber   string         `json:"tableNumber,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
	UserID        string         `json:"-"`
}

type OrderCreateRequest struct {
	Items       []OrderItem    `json:"items"`
	CustomerID  string         `json:"customerId,omitempty"`
	TableNumber string         `json:"tableNumber,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Total       float64        `json:"total"`
}

type OrderUpdateRequest struct {
	CustomerID    *string         `json:"customerId,omitempty"`
	Items         *[]OrderItem    `json:"items,omitempty"`
	Total         *float64        `json:"total,omitempty"`
	Status        *string         `json:"status,omitempty"`
	PaymentStatus *string         `json:"paymentStatus,omitempty"`
	PaymentMethod *string         `json:"paymentMethod,omitempty"`
	TableNumber   *string         `json:"tableNumber,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	Metadata      *map[string]any `json:"metadata,omitempty"`
}

type OrderPaymentRequest struct {
	PaymentStatus string   `json:"paymentStatus"`
	PaymentMethod string   `json:"paymentMethod"`
	Discount      float64  `json:"discount,omitempty"`
	CashReceived  *float64 `json:"cashReceived,omitempty"`
}

type TransactionItem struct {
	ProductID      string         `json:"productId,omitempty"`
	ProductName    string         `json:"productName"`
	Quantity       int            `json:"quantity"`
	Price          float64        `json:"price"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

// Transaction is an immutable record of a completed sale. Rows are never
// mutated after insert; they are only deleted as part of the compensating
// cleanup when an order is removed.
type Transaction struct {
	ID            string            `json:"id"`
	Subtotal      float64           `json:"subtotal"`
	Discount      float64           `json:"discount"`
	Total         float64           `json:"total"`
	PaymentMethod string            `json:"paymentMethod"`
	CashReceived  *float64          `json:"cashReceived,omitempty"`
	ChangeBack    *float64          `json:"changeBack,omitempty"`
	Status        string            `json:"status"`
	Date          time.Time         `json:"date"`
	CustomerID    string            `json:"customerId,omitempty"`
	UserID        string            `json:"-"`
	Items         []TransactionItem `json:"items"`
}

type TransactionCreateRequest struct {
	Items         []TransactionItem `json:"items"`
	PaymentMethod string            `json:"paymentMethod"`
	Subtotal      float64           `json:"subtotal"`
	Discount      float64           `json:"discount"`
	Total         float64           `json:"total"`
	CashReceived  *float64          `json:"cashReceived,omitempty"`
	Status        string            `json:"status,omitempty"`
	CustomerID    string            `json:"customerId,omitempty"`
}

type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    string
}

type IncomeExpense struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	UserID      string    `json:"-"`
}

type IncomeExpenseRequest struct {
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount"`
	Date        *time.Time `json:"date,omitempty"`
}

type IncomeExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Type      string
	Category  string
}

type Customer struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone"`
	Name          string    `json:"name"`
	LoyaltyPoints int       `json:"loyaltyPoints"`
	MemberCard    string    `json:"memberCard,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CustomerCreateRequest struct {
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	LoyaltyPoints int    `json:"loyaltyPoints,omitempty"`
	MemberCard    string `json:"memberCard,omitempty"`
}

type CustomerPointsRequest struct {
	Points    int    `json:"points"`
	Operation string `json:"operation"`
}

type UserAccount struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	Name         string
	CreatedAt    time.Time
}

type Actor struct {
	ID       string
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

type LoginUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type ProductOrderRef struct {
	ID          string    `json:"id"`
	TableNumber string    `json:"tableNumber,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	Total       float64   `json:"total"`
}

type SalesSummaryQuery struct {
	Period    string
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
}

type ItemSales struct {
	ProductName string  `json:"productName"`
	ProductID   string  `json:"productId,omitempty"`
	Category    string  `json:"category,omitempty"`
	Quantity    int     `json:"quantity"`
	Revenue     float64 `json:"revenue"`
	AvgPrice    float64 `json:"avgPrice"`
	OrderCount  int     `json:"orderCount"`
}

type CategorySales struct {
	Category       string  `json:"category"`
	Quantity       int     `json:"quantity"`
	Revenue        float64 `json:"revenue"`
	UniqueProducts int     `json:"uniqueProducts"`
}

type HourlySales struct {
	Hour             int     `json:"hour"`
	TransactionCount int     `json:"transactionCount"`
	Revenue          float64 `json:"revenue"`
	ItemsSold        int     `json:"itemsSold"`
}

type SalesSummary struct {
	Period                 string             `json:"period,omitempty"`
	TotalRevenue           float64            `json:"totalRevenue"`
	TotalExpenses          float64            `json:"totalExpenses"`
	AdditionalIncome       float64            `json:"additionalIncome"`
	TotalIncome            float64            `json:"totalIncome"`
	NetProfit              float64            `json:"netProfit"`
	TransactionCount       int                `json:"transactionCount"`
	PaidTransactionCount   int                `json:"paidTransactionCount"`
	UnpaidTransactionCount int                `json:"unpaidTransactionCount"`
	OrderCount             int                `json:"orderCount"`
	OrderTotal             float64            `json:"orderTotal"`
	TotalItemsSold         int                `json:"totalItemsSold"`
	AverageOrderValue      float64            `json:"averageOrderValue"`
	IncomeByCategory       map[string]float64 `json:"incomeByCategory"`
	ExpenseByCategory      map[string]float64 `json:"expenseByCategory"`
	ItemsSold              []ItemSales        `json:"itemsSold"`
	CategoryBreakdown      []CategorySales    `json:"categoryBreakdown"`
	HourlyData             []HourlySales      `json:"hourlyData"`
}

const (
	PaymentCash = "cash"
	PaymentQR   = "qr"
)

const (
	PayStatusUnpaid  = "unpaid"
	PayStatusPaid    = "paid"
	PayStatusPartial = "partial"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	LedgerIncome  = "income"
	LedgerExpense = "expense"
)

// LedgerCategorySales is the category of auto-posted sale entries.
const LedgerCategorySales = "Sales"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Round2 rounds a monetary amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SaleLedgerDescription is the description of the ledger entry posted for a
// direct POS sale.
func SaleLedgerDescription(transactionID string) string {
	return fmt.Sprintf("POS Sale #%s", transactionID)
}

// OrderLedgerDescription is the description of the ledger entry posted when
// an order is marked paid. It doubles as the de-duplication key for repeated
// payment attempts and as the cleanup pattern when the order is deleted.
func OrderLedgerDescription(orderID string) string {
	return fmt.Sprintf("Order #%s Payment", orderID)
}

// OrderLedgerPrefix matches every ledger entry derived from the given order.
func OrderLedgerPrefix(orderID string) string {
	return fmt.Sprintf("Order #%s ", orderID)
}

// OrderItemSignature builds an order-independent fingerprint of a line-item
// set: lines sorted by productId, name, price, quantity. Two sales with the
// same items produce the same signature regardless of item order, which is
// the basis of the heuristic order-to-transaction reconciliation on delete.
func OrderItemSignature(items []OrderItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s\x1f%s\x1f%.2f\x1f%d", it.ProductID, it.ProductName, it.Price, it.Quantity))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\x1e")
}

// TransactionItemSignature is OrderItemSignature over transaction lines.
func TransactionItemSignature(items []TransactionItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s\x1f%s\x1f%.2f\x1f%d", it.ProductID, it.ProductName, it.Price, it.Quantity))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\x1e")
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/retry"
	"saaspos/backend/internal/store"
	"saaspos/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, context.Context) {
	t.Helper()
	mem := memory.New()
	svc := New(mem, nil, nil)
	ctx := WithActor(context.Background(), domain.Actor{ID: "user-admin", Username: "admin", Role: domain.RoleAdmin})
	return svc, mem, ctx
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func schemaPtr(g []domain.OptionGroup) *[]domain.OptionGroup { return &g }

func createProduct(t *testing.T, svc *Service, ctx context.Context, req domain.ProductCreateRequest) *domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(ctx, req)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	staffCtx := WithActor(context.Background(), domain.Actor{ID: "user-staff", Role: domain.RoleStaff})

	_, err := svc.CreateProduct(staffCtx, domain.ProductCreateRequest{Name: "Latte", Category: "coffee", Price: 20000})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCreateProductNormalizesOptionSchema(t *testing.T) {
	svc, _, ctx := newTestService(t)

	num := 1.5
	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Latte", Category: "coffee", Price: 20000,
		OptionSchema: []domain.OptionGroup{
			{Label: "Extra Shots", Options: []domain.OptionValue{
				{Label: "Shots", ValueType: domain.ValueTypeNumber, NumberValue: &num},
			}},
			{Key: "  ", Label: "", Options: nil}, // no key derivable, dropped
		},
	})

	if len(p.OptionSchema) != 1 {
		t.Fatalf("schema groups = %d, want 1", len(p.OptionSchema))
	}
	g := p.OptionSchema[0]
	if g.Key != "Extra Shots" {
		t.Fatalf("group key = %q, want label fallback", g.Key)
	}
	if g.Type != domain.GroupTypeSingle {
		t.Fatalf("group type = %q, want single default", g.Type)
	}
	if got := g.Options[0].Value; got != "1.5" {
		t.Fatalf("canonical value = %q, want \"1.5\"", got)
	}
}

func TestUpdateProductSchemaReplacementIsIdempotent(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Latte", Category: "coffee", Price: 20000})
	schema := []domain.OptionGroup{{
		Key: "size", Label: "Size", Type: domain.GroupTypeSingle,
		Options: []domain.OptionValue{
			{Label: "Small", Value: "S", ValueType: domain.ValueTypeText},
			{Label: "Large", Value: "L", ValueType: domain.ValueTypeText, PriceDelta: 5000},
		},
	}}

	first, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{OptionSchema: schemaPtr(schema)})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	second, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{OptionSchema: schemaPtr(schema)})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	if len(first.OptionSchema) != 1 || len(second.OptionSchema) != 1 {
		t.Fatalf("group counts = %d, %d, want 1 each", len(first.OptionSchema), len(second.OptionSchema))
	}
	// Re-applying the same schema keeps stored identities stable.
	if first.OptionSchema[0].ID != second.OptionSchema[0].ID {
		t.Fatal("group id changed across identical replacements")
	}
	for i := range first.OptionSchema[0].Options {
		if first.OptionSchema[0].Options[i].ID != second.OptionSchema[0].Options[i].ID {
			t.Fatalf("option %d id changed across identical replacements", i)
		}
	}
}

func TestUpdateProductSchemaPrunesRemovedOptions(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Latte", Category: "coffee", Price: 20000,
		OptionSchema: []domain.OptionGroup{{
			Key: "size", Label: "Size",
			Options: []domain.OptionValue{
				{Label: "Small", Value: "S"},
				{Label: "Large", Value: "L"},
			},
		}},
	})

	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{
		OptionSchema: schemaPtr([]domain.OptionGroup{{
			Key: "size", Label: "Size",
			Options: []domain.OptionValue{{Label: "Small", Value: "S"}},
		}}),
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if len(updated.OptionSchema[0].Options) != 1 {
		t.Fatalf("options = %d, want removed value pruned", len(updated.OptionSchema[0].Options))
	}
	if updated.OptionSchema[0].Options[0].Value != "S" {
		t.Fatalf("surviving option = %q, want S", updated.OptionSchema[0].Options[0].Value)
	}
}

func TestUpdateProductEmptySchemaRemovesAllGroups(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Latte", Category: "coffee", Price: 20000,
		OptionSchema: []domain.OptionGroup{{Key: "size", Label: "Size"}},
	})

	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{
		OptionSchema: schemaPtr([]domain.OptionGroup{}),
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if len(updated.OptionSchema) != 0 {
		t.Fatalf("schema groups = %d, want 0", len(updated.OptionSchema))
	}
}

func TestUpdateProductNilSchemaLeavesGroupsAlone(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Latte", Category: "coffee", Price: 20000,
		OptionSchema: []domain.OptionGroup{{Key: "size", Label: "Size"}},
	})

	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: floatPtr(22000)})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Price != 22000 {
		t.Fatalf("price = %v, want 22000", updated.Price)
	}
	if len(updated.OptionSchema) != 1 {
		t.Fatalf("schema groups = %d, want untouched", len(updated.OptionSchema))
	}
}

func TestUpdateProductLockConflictIsTransient(t *testing.T) {
	svc, mem, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Latte", Category: "coffee", Price: 20000})
	release := mem.HoldProduct(p.ID)

	_, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: floatPtr(21000)})
	if err == nil {
		t.Fatal("update succeeded despite held row lock")
	}
	if !retry.IsTransient(err) {
		t.Fatalf("err = %v, want transient classification", err)
	}

	release()
	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: floatPtr(21000)}); err != nil {
		t.Fatalf("update after release: %v", err)
	}
}

func TestConcurrentOrdersKeepStockConsistent(t *testing.T) {
	svc, mem, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Water", Category: "drinks", Price: 6000, Stock: intPtr(100),
	})

	// Hold the product's row lock while the writers start, then release it
	// mid-run so early attempts fail transiently and retry.
	release := mem.HoldProduct(p.ID)
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, _ = svc.CreateOrder(ctx, domain.OrderCreateRequest{
					Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: 6000}},
				})
			}
		}()
	}
	wg.Wait()

	orders, err := svc.ListOrders(ctx)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	reserved := 0
	for _, o := range orders {
		for _, it := range o.Items {
			reserved += it.Quantity
		}
	}
	if reserved == 0 {
		t.Fatal("no orders committed after the lock was released")
	}

	after, err := svc.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.Stock == nil || *after.Stock != 100-reserved {
		t.Fatalf("stock = %v, want %d (100 minus %d reserved across committed orders)", after.Stock, 100-reserved, reserved)
	}
}

func TestCreateOrderReservesStock(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Croissant", Category: "pastry", Price: 15000, Stock: intPtr(10),
	})

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 3, Price: p.Price}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	after, err := svc.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.Stock == nil || *after.Stock != 7 {
		t.Fatalf("stock = %v, want 7 after reservation", after.Stock)
	}
}

func TestCreateOrderIgnoresUntrackedStock(t *testing.T) {
	svc, _, ctx := newTestService(t)

	hasStock := false
	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{
		Name: "Americano", Category: "coffee", Price: 18000, HasStock: &hasStock,
	})

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: p.Price}},
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	after, _ := svc.GetProduct(ctx, p.ID)
	if after.Stock != nil {
		t.Fatalf("stock = %v, want untouched nil", after.Stock)
	}
}

func TestPayOrderCashComputesChange(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Latte", Category: "coffee", Price: 90, Stock: intPtr(10)})
	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: 90}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Total != 180 {
		t.Fatalf("order total = %v, want 180", order.Total)
	}

	paid, sale, err := svc.PayOrder(ctx, order.ID, domain.OrderPaymentRequest{
		PaymentStatus: domain.PayStatusPaid,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  floatPtr(250),
	})
	if err != nil {
		t.Fatalf("PayOrder: %v", err)
	}
	if paid.PaymentStatus != domain.PayStatusPaid {
		t.Fatalf("payment status = %q", paid.PaymentStatus)
	}
	if sale == nil {
		t.Fatal("no transaction synthesized")
	}
	if sale.ChangeBack == nil || *sale.ChangeBack != 70 {
		t.Fatalf("changeBack = %v, want 70.00", sale.ChangeBack)
	}
	if sale.Total != 180 || sale.Subtotal != 180 {
		t.Fatalf("sale total/subtotal = %v/%v, want 180/180", sale.Total, sale.Subtotal)
	}

	entries, err := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	if err != nil {
		t.Fatalf("ListIncomeExpenses: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want exactly 1", len(entries))
	}
	e := entries[0]
	if e.Type != domain.LedgerIncome || e.Category != domain.LedgerCategorySales {
		t.Fatalf("ledger entry = %s/%s, want income/Sales", e.Type, e.Category)
	}
	if e.Description != domain.OrderLedgerDescription(order.ID) {
		t.Fatalf("ledger description = %q", e.Description)
	}
	if e.Amount != 180 {
		t.Fatalf("ledger amount = %v, want 180", e.Amount)
	}
}

func TestPayOrderInsufficientCash(t *testing.T) {
	svc, _, ctx := newTestService(t)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	_, _, err = svc.PayOrder(ctx, order.ID, domain.OrderPaymentRequest{
		PaymentStatus: domain.PayStatusPaid,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  floatPtr(15000),
	})
	if !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("err = %v, want ErrInsufficientPayment", err)
	}
}

func TestPayOrderTwicePostsOneLedgerEntry(t *testing.T) {
	svc, _, ctx := newTestService(t)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	pay := domain.OrderPaymentRequest{
		PaymentStatus: domain.PayStatusPaid,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  floatPtr(20000),
	}
	if _, _, err := svc.PayOrder(ctx, order.ID, pay); err != nil {
		t.Fatalf("first PayOrder: %v", err)
	}
	if _, _, err := svc.PayOrder(ctx, order.ID, pay); err != nil {
		t.Fatalf("second PayOrder: %v", err)
	}

	entries, _ := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	count := 0
	for _, e := range entries {
		if e.Description == domain.OrderLedgerDescription(order.ID) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("order ledger entries = %d, want exactly 1 after repeat payment", count)
	}
}

func TestDeleteOrderRestoresStockAndCleansUp(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Croissant", Category: "pastry", Price: 100, Stock: intPtr(10)})
	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 4, Price: 100}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, _, err := svc.PayOrder(ctx, order.ID, domain.OrderPaymentRequest{
		PaymentStatus: domain.PayStatusPaid,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  floatPtr(400),
	}); err != nil {
		t.Fatalf("PayOrder: %v", err)
	}

	if err := svc.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}

	after, _ := svc.GetProduct(ctx, p.ID)
	if after.Stock == nil || *after.Stock != 10 {
		t.Fatalf("stock = %v, want full restore to 10", after.Stock)
	}
	if _, err := svc.GetOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("order lookup = %v, want ErrNotFound", err)
	}
	txs, _ := svc.ListTransactions(ctx, domain.TransactionFilter{})
	if len(txs) != 0 {
		t.Fatalf("transactions = %d, want matched sale removed", len(txs))
	}
	entries, _ := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	if len(entries) != 0 {
		t.Fatalf("ledger entries = %d, want order entries purged", len(entries))
	}
}

func TestDeleteOrdersBulkRestoresStockForEveryOrder(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Water", Category: "drinks", Price: 6000, Stock: intPtr(20)})
	ids := []string{}
	for i := 0; i < 3; i++ {
		o, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
			Items: []domain.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: 6000}},
		})
		if err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
		ids = append(ids, o.ID)
	}

	mid, _ := svc.GetProduct(ctx, p.ID)
	if *mid.Stock != 14 {
		t.Fatalf("stock = %d, want 14 after three reservations", *mid.Stock)
	}

	deleted, err := svc.DeleteOrders(ctx, append(ids, "ord-missing"))
	if err != nil {
		t.Fatalf("DeleteOrders: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted = %d, want 3 with missing id skipped", deleted)
	}
	after, _ := svc.GetProduct(ctx, p.ID)
	if *after.Stock != 20 {
		t.Fatalf("stock = %d, want 20 restored", *after.Stock)
	}
}

func TestCreateTransactionCash(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Croissant", Category: "pastry", Price: 15000, Stock: intPtr(5)})
	sale, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: 15000}},
		PaymentMethod: domain.PaymentCash,
		Subtotal:      30000,
		Total:         30000,
		CashReceived:  floatPtr(50000),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if sale.Status != domain.PayStatusPaid {
		t.Fatalf("status = %q, want paid", sale.Status)
	}
	if sale.ChangeBack == nil || *sale.ChangeBack != 20000 {
		t.Fatalf("changeBack = %v, want 20000", sale.ChangeBack)
	}

	after, _ := svc.GetProduct(ctx, p.ID)
	if *after.Stock != 3 {
		t.Fatalf("stock = %d, want 3", *after.Stock)
	}

	entries, _ := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	if len(entries) != 1 || entries[0].Description != domain.SaleLedgerDescription(sale.ID) {
		t.Fatalf("ledger = %+v, want one POS sale entry", entries)
	}
}

func TestCreateTransactionCashInsufficient(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
		PaymentMethod: domain.PaymentCash,
		Subtotal:      20000,
		Total:         20000,
		CashReceived:  floatPtr(10000),
	})
	if !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("err = %v, want ErrInsufficientPayment", err)
	}
}

func TestCreateTransactionQRDefaultsUnpaid(t *testing.T) {
	svc, _, ctx := newTestService(t)

	sale, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
		PaymentMethod: domain.PaymentQR,
		Subtotal:      20000,
		Total:         20000,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if sale.Status != domain.PayStatusUnpaid {
		t.Fatalf("status = %q, want unpaid", sale.Status)
	}
	entries, _ := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	if len(entries) != 0 {
		t.Fatalf("ledger entries = %d, want none for unpaid sale", len(entries))
	}
}

func TestCreateTransactionRejectsUnknownMethod(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
		PaymentMethod: "card",
		Total:         20000,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteProductReferencedBySales(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Croissant", Category: "pastry", Price: 15000, Stock: intPtr(5)})
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 1, Price: 15000}},
		PaymentMethod: domain.PaymentCash,
		Subtotal:      15000,
		Total:         15000,
		CashReceived:  floatPtr(15000),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := svc.DeleteProduct(ctx, p.ID, false); !errors.Is(err, store.ErrReferenced) {
		t.Fatalf("err = %v, want ErrReferenced", err)
	}
	if err := svc.DeleteProduct(ctx, p.ID, true); err != nil {
		t.Fatalf("force delete: %v", err)
	}
	if _, err := svc.GetProduct(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("product lookup = %v, want ErrNotFound", err)
	}
}

func TestAdjustCustomerPointsFloorsAtZero(t *testing.T) {
	svc, _, ctx := newTestService(t)

	c, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "0812000111", Name: "Ana", LoyaltyPoints: 5})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	after, err := svc.AdjustCustomerPoints(ctx, c.ID, domain.CustomerPointsRequest{Points: 20, Operation: "subtract"})
	if err != nil {
		t.Fatalf("AdjustCustomerPoints: %v", err)
	}
	if after.LoyaltyPoints != 0 {
		t.Fatalf("points = %d, want floor at 0", after.LoyaltyPoints)
	}
}

func TestSalesSummaryTotals(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := createProduct(t, svc, ctx, domain.ProductCreateRequest{Name: "Latte", Category: "coffee", Price: 20000, Stock: intPtr(50)})
	if _, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items:         []domain.TransactionItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, Price: 20000}},
		PaymentMethod: domain.PaymentCash,
		Subtotal:      40000,
		Total:         40000,
		CashReceived:  floatPtr(40000),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := svc.CreateIncomeExpense(ctx, domain.IncomeExpenseRequest{
		Type: domain.LedgerExpense, Category: "Supplies", Amount: 15000,
	}); err != nil {
		t.Fatalf("CreateIncomeExpense: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, domain.SalesSummaryQuery{Period: "daily"})
	if err != nil {
		t.Fatalf("SalesSummary: %v", err)
	}
	if summary.TotalRevenue != 40000 {
		t.Fatalf("revenue = %v, want 40000", summary.TotalRevenue)
	}
	if summary.TotalExpenses != 15000 {
		t.Fatalf("expenses = %v, want 15000", summary.TotalExpenses)
	}
	if summary.NetProfit != 25000 {
		t.Fatalf("net profit = %v, want 25000", summary.NetProfit)
	}
	if summary.TotalItemsSold != 2 {
		t.Fatalf("items sold = %d, want 2", summary.TotalItemsSold)
	}
	// Auto-posted sale income restates revenue and must not double count.
	if summary.AdditionalIncome != 0 {
		t.Fatalf("additional income = %v, want 0", summary.AdditionalIncome)
	}
}

func TestListsAreScopedToActor(t *testing.T) {
	svc, _, ctx := newTestService(t)
	staffCtx := WithActor(context.Background(), domain.Actor{ID: "user-staff", Username: "staff", Role: domain.RoleStaff})

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItem{{ProductName: "Latte", Quantity: 1, Price: 20000}},
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := svc.CreateIncomeExpense(ctx, domain.IncomeExpenseRequest{
		Type: domain.LedgerExpense, Category: "Supplies", Amount: 5000,
	}); err != nil {
		t.Fatalf("CreateIncomeExpense: %v", err)
	}

	orders, err := svc.ListOrders(staffCtx)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("staff sees %d of another user's orders, want 0", len(orders))
	}
	entries, err := svc.ListIncomeExpenses(staffCtx, domain.IncomeExpenseFilter{})
	if err != nil {
		t.Fatalf("ListIncomeExpenses: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staff sees %d of another user's ledger entries, want 0", len(entries))
	}

	own, _ := svc.ListOrders(ctx)
	if len(own) != 1 {
		t.Fatalf("owner sees %d orders, want 1", len(own))
	}
	ownEntries, _ := svc.ListIncomeExpenses(ctx, domain.IncomeExpenseFilter{})
	if len(ownEntries) != 1 {
		t.Fatalf("owner sees %d ledger entries, want 1", len(ownEntries))
	}
}

func TestSalesSummaryRejectsUnknownPeriod(t *testing.T) {
	svc, _, ctx := newTestService(t)
	if _, err := svc.SalesSummary(ctx, domain.SalesSummaryQuery{Period: "yearly"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, mem, _ := newTestService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := mem.CreateUser(context.Background(), domain.UserAccount{
		ID: "user-1", Username: "admin", PasswordHash: string(hash), Role: domain.RoleAdmin, Name: "Admin",
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), domain.LoginRequest{Username: "admin", Password: "secret123"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("role = %q", user.Role)
	}

	if _, err := svc.Authenticate(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), domain.LoginRequest{Username: "ghost", Password: "secret123"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

package memory

import (
	"context"
	"errors"
	"testing"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/retry"
	"saaspos/backend/internal/store"
)

func TestHoldProductMakesWritesTransient(t *testing.T) {
	s := New()
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.Product{ID: "prod-1", Name: "Latte", Category: "coffee", Price: 20000})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	release := s.HoldProduct(p.ID)
	price := 21000.0
	_, err = s.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: &price})
	if !retry.IsTransient(err) {
		t.Fatalf("err = %v, want transient while held", err)
	}
	if !errors.Is(err, store.ErrLockBusy) {
		t.Fatalf("err = %v, want ErrLockBusy cause", err)
	}

	release()
	if _, err := s.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: &price}); err != nil {
		t.Fatalf("update after release: %v", err)
	}
}

func TestDeleteOrderSkipsMismatchedTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		ID: "ord-1", Total: 100, Status: domain.OrderStatusPending, PaymentStatus: domain.PayStatusUnpaid,
		Items: []domain.OrderItem{{ProductName: "Latte", Quantity: 1, Price: 100}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Same subtotal and recent date, but a different line-item set; it must
	// survive the order's deletion.
	received := 100.0
	if _, err := s.CreateTransaction(ctx, domain.Transaction{
		ID: "tx-other", Subtotal: 100, Total: 100, PaymentMethod: domain.PaymentCash,
		CashReceived: &received, Status: domain.PayStatusPaid, Date: order.CreatedAt.Add(1),
		Items: []domain.TransactionItem{{ProductName: "Mocha", Quantity: 1, Price: 100}},
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := s.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, domain.TransactionFilter{})
	if len(txs) != 1 || txs[0].ID != "tx-other" {
		t.Fatalf("transactions = %+v, want mismatched sale kept", txs)
	}
}

func TestDeleteOrderIgnoresTransactionOutsideWindow(t *testing.T) {
	s := New()
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		ID: "ord-1", Total: 100, Status: domain.OrderStatusPending, PaymentStatus: domain.PayStatusUnpaid,
		Items: []domain.OrderItem{{ProductName: "Latte", Quantity: 1, Price: 100}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := s.CreateTransaction(ctx, domain.Transaction{
		ID: "tx-old", Subtotal: 100, Total: 100, PaymentMethod: domain.PaymentQR,
		Status: domain.PayStatusPaid, Date: order.CreatedAt.Add(reconcileWindow + 1),
		Items: []domain.TransactionItem{{ProductName: "Latte", Quantity: 1, Price: 100}},
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := s.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, domain.TransactionFilter{})
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want out-of-window sale kept", len(txs))
	}
}

func TestDeleteOrderRemovesEarliestMatchingTransactionOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	items := []domain.OrderItem{{ProductName: "Latte", Quantity: 2, Price: 50}}
	order, err := s.CreateOrder(ctx, domain.Order{
		ID: "ord-1", Total: 100, Status: domain.OrderStatusPending, PaymentStatus: domain.PayStatusUnpaid, Items: items,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	txItems := []domain.TransactionItem{{ProductName: "Latte", Quantity: 2, Price: 50}}
	for _, id := range []string{"tx-a", "tx-b"} {
		if _, err := s.CreateTransaction(ctx, domain.Transaction{
			ID: id, Subtotal: 100, Total: 100, PaymentMethod: domain.PaymentQR,
			Status: domain.PayStatusPaid, Date: order.CreatedAt.Add(1), Items: txItems,
		}); err != nil {
			t.Fatalf("CreateTransaction %s: %v", id, err)
		}
	}

	if err := s.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, domain.TransactionFilter{})
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want exactly one candidate removed", len(txs))
	}
}

func TestNewSeededHasWorkingLogins(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for _, username := range []string{"admin", "staff"} {
		if _, err := s.GetUserByUsername(ctx, username); err != nil {
			t.Fatalf("seeded user %q missing: %v", username, err)
		}
	}
	products, err := s.ListProducts(ctx, "")
	if err != nil || len(products) == 0 {
		t.Fatalf("seeded catalog empty (err=%v)", err)
	}
}

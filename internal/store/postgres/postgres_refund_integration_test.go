package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/store"
)

func TestRefundRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("BUILDSMART_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BUILDSMART_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-refund-it-%d", stamp)
	txID := fmt.Sprintf("tx-refund-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_side_effects WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refunds WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales_items WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	_, err = s.CreateProduct(ctx, domain.Product{
		ID:       productID,
		Name:     "Refund IT Cement",
		Category: "cement",
		Unit:     "bag",
		Price:    decimal.RequireFromString("1850.00"),
		Stock:    decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	committed, err := s.CommitSale(ctx, domain.Transaction{
		ID:            txID,
		PaymentMethod: "cash",
		CreatedAt:     time.Now().UTC(),
		Items: []domain.LineItem{
			{ProductID: productID, Qty: decimal.NewFromInt(3)},
		},
	}, []domain.SideEffect{{Kind: domain.SideEffectInvoice}})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if !committed.Total.Equal(decimal.RequireFromString("5550.00")) {
		t.Fatalf("expected total 5550.00, got %s", committed.Total)
	}

	after, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !after.Stock.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected stock 7 after sale, got %s", after.Stock)
	}

	if _, err := s.CreateRefund(ctx, domain.Refund{
		TransactionID: txID,
		Amount:        committed.Total,
		Reason:        "integration test refund",
	}, true); err != nil {
		t.Fatalf("create refund: %v", err)
	}

	restored, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product after refund: %v", err)
	}
	if !restored.Stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected stock 10 after restock, got %s", restored.Stock)
	}

	tx, err := s.GetTransactionByID(ctx, txID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.Status != domain.TransactionRefunded {
		t.Fatalf("expected status refunded, got %s", tx.Status)
	}

	_, err = s.CreateRefund(ctx, domain.Refund{
		TransactionID: txID,
		Amount:        committed.Total,
		Reason:        "second refund must fail",
	}, false)
	if !errors.Is(err, store.ErrAlreadyRefunded) {
		t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
	}
}

func TestCommitSaleInsufficientStockRollsBack(t *testing.T) {
	databaseURL := os.Getenv("BUILDSMART_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BUILDSMART_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-oversell-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	_, err = s.CreateProduct(ctx, domain.Product{
		ID:       productID,
		Name:     "Oversell IT Paint",
		Category: "paint",
		Unit:     "can",
		Price:    decimal.RequireFromString("4500.00"),
		Stock:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = s.CommitSale(ctx, domain.Transaction{
		ID:            fmt.Sprintf("tx-oversell-it-%d", stamp),
		PaymentMethod: "cash",
		CreatedAt:     time.Now().UTC(),
		Items: []domain.LineItem{
			{ProductID: productID, Qty: decimal.NewFromInt(5)},
		},
	}, nil)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	untouched, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !untouched.Stock.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected stock unchanged at 2, got %s", untouched.Stock)
	}
}

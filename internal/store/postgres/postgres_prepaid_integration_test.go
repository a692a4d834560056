package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

func TestUsePrepaidFirstFitAndGuardsBalance(t *testing.T) {
	databaseURL := os.Getenv("SALONKITA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALONKITA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-prepaid-it-%d", stamp)
	customerID := fmt.Sprintf("cust-prepaid-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM prepaid_usages WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM prepaid_sales WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
	})

	if _, err := s.CreateStore(ctx, domain.Store{ID: storeID, Name: "Prepaid IT"}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, domain.Customer{ID: customerID, StoreID: storeID, Name: "Integration Customer"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	soldAt := time.Now().UTC().Add(-2 * time.Hour)
	first, err := s.CreatePrepaidSale(ctx, domain.PrepaidSale{
		StoreID:     storeID,
		CustomerID:  customerID,
		AmountPaid:  50000,
		ValueAmount: 50000,
		SoldAt:      soldAt,
	})
	if err != nil {
		t.Fatalf("create first sale: %v", err)
	}
	second, err := s.CreatePrepaidSale(ctx, domain.PrepaidSale{
		StoreID:     storeID,
		CustomerID:  customerID,
		AmountPaid:  100000,
		ValueAmount: 100000,
		SoldAt:      soldAt.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}

	// 80000 exceeds the older 50000 account, so the draw must land whole
	// on the second.
	usage, err := s.UsePrepaid(ctx, storeID, customerID, 80000, "", "", "")
	if err != nil {
		t.Fatalf("use prepaid: %v", err)
	}
	if usage.PrepaidSaleID != second.ID {
		t.Fatalf("expected draw from %s, got %s", second.ID, usage.PrepaidSaleID)
	}
	if usage.AmountUsed != 80000 {
		t.Fatalf("expected full amount from one account, got %d", usage.AmountUsed)
	}

	balance, err := s.PrepaidBalance(ctx, storeID, customerID)
	if err != nil {
		t.Fatalf("prepaid balance: %v", err)
	}
	if balance != 70000 {
		t.Fatalf("expected balance 70000, got %d", balance)
	}

	// Remaining balances are 50000 and 20000: aggregate covers 70000 but
	// no single account does, so auto-selection must find nothing.
	if _, err := s.UsePrepaid(ctx, storeID, customerID, 70000, "", "", ""); !errors.Is(err, store.ErrNoAccountAvailable) {
		t.Fatalf("expected ErrNoAccountAvailable, got %v", err)
	}

	// An earmarked draw must not fall through to another account.
	if _, err := s.UsePrepaid(ctx, storeID, customerID, 50001, "", "", first.ID); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected earmarked short account to reject the draw, got %v", err)
	}
	usage, err = s.UsePrepaid(ctx, storeID, customerID, 50000, "", "", first.ID)
	if err != nil {
		t.Fatalf("earmarked draw: %v", err)
	}
	if usage.PrepaidSaleID != first.ID {
		t.Fatalf("expected draw from earmarked account %s, got %s", first.ID, usage.PrepaidSaleID)
	}
}

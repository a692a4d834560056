package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

func sellPlan(t *testing.T, svc *Service, customerID string, price int64, value int64) domain.PrepaidSale {
	t.Helper()
	ctx := adminCtx()

	plan, err := svc.CreatePrepaidPlan(ctx, domain.PrepaidPlanCreateRequest{
		Name:        "Test Plan",
		PricePaid:   price,
		ValueAmount: value,
	})
	if err != nil {
		t.Fatalf("create plan failed: %v", err)
	}
	sale, err := svc.SellPrepaid(ctx, domain.PrepaidSellRequest{
		CustomerID: customerID,
		PlanID:     plan.ID,
	})
	if err != nil {
		t.Fatalf("sell prepaid failed: %v", err)
	}
	return sale
}

func TestUsePrepaidAutoSelectsAccount(t *testing.T) {
	svc := newTestService()
	sale := sellPlan(t, svc, "cust-dewi", 100000, 100000)

	usage, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-dewi",
		Amount:     40000,
	})
	if err != nil {
		t.Fatalf("use prepaid failed: %v", err)
	}
	if usage.PrepaidSaleID != sale.ID {
		t.Fatalf("expected draw from %s, got %s", sale.ID, usage.PrepaidSaleID)
	}
	if usage.AmountUsed != 40000 {
		t.Fatalf("expected amount 40000, got %d", usage.AmountUsed)
	}

	accounts, err := svc.PrepaidAccounts(context.Background(), "main-salon", "cust-dewi")
	if err != nil {
		t.Fatalf("prepaid accounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].RemainingBalance != 60000 {
		t.Fatalf("expected remaining 60000, got %d", accounts[0].RemainingBalance)
	}
}

// A draw skips accounts that cannot cover the full amount and lands on the
// first one that can, in sold_at order.
func TestUsePrepaidFirstFitSkipsShortAccounts(t *testing.T) {
	svc := newTestService()
	first := sellPlan(t, svc, "cust-rina", 50000, 50000)
	second := sellPlan(t, svc, "cust-rina", 100000, 100000)

	usage, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-rina",
		Amount:     80000,
	})
	if err != nil {
		t.Fatalf("use prepaid failed: %v", err)
	}
	if usage.PrepaidSaleID != second.ID {
		t.Fatalf("expected draw from %s, got %s", second.ID, usage.PrepaidSaleID)
	}
	if usage.AmountUsed != 80000 {
		t.Fatalf("expected full amount from one account, got %d", usage.AmountUsed)
	}

	balance, err := svc.CustomerBalance(context.Background(), "main-salon", "cust-rina")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.PrepaidBalance != 70000 {
		t.Fatalf("expected balance 70000, got %d", balance.PrepaidBalance)
	}

	// The short first account is untouched and still eligible on its own.
	usage, err = svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-rina",
		Amount:     50000,
	})
	if err != nil {
		t.Fatalf("use prepaid failed: %v", err)
	}
	if usage.PrepaidSaleID != first.ID {
		t.Fatalf("expected draw from %s, got %s", first.ID, usage.PrepaidSaleID)
	}
}

func TestUsePrepaidEarmarkedAccountNeverFallsBack(t *testing.T) {
	svc := newTestService()
	small := sellPlan(t, svc, "cust-sari", 30000, 30000)
	sellPlan(t, svc, "cust-sari", 100000, 100000)

	_, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-sari",
		Amount:     50000,
		AccountID:  small.ID,
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for earmarked short account, got %v", err)
	}

	usage, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-sari",
		Amount:     20000,
		AccountID:  small.ID,
	})
	if err != nil {
		t.Fatalf("earmarked draw failed: %v", err)
	}
	if usage.PrepaidSaleID != small.ID {
		t.Fatalf("expected draw from earmarked account %s, got %s", small.ID, usage.PrepaidSaleID)
	}
}

func TestUsePrepaidNoAccounts(t *testing.T) {
	svc := newTestService()

	_, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-dewi",
		Amount:     10000,
	})
	if !errors.Is(err, store.ErrNoAccountAvailable) {
		t.Fatalf("expected ErrNoAccountAvailable, got %v", err)
	}
}

// When no single account covers the amount the auto-select path reports
// NoAccountAvailable, even if the accounts would cover it in aggregate.
func TestUsePrepaidNoSingleAccountCovers(t *testing.T) {
	svc := newTestService()
	sellPlan(t, svc, "cust-dewi", 40000, 40000)
	sellPlan(t, svc, "cust-dewi", 40000, 40000)

	_, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-dewi",
		Amount:     50000,
	})
	if !errors.Is(err, store.ErrNoAccountAvailable) {
		t.Fatalf("expected ErrNoAccountAvailable, got %v", err)
	}

	balance, err := svc.CustomerBalance(context.Background(), "main-salon", "cust-dewi")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.PrepaidBalance != 80000 {
		t.Fatalf("failed draw must not touch the accounts, balance is %d", balance.PrepaidBalance)
	}
}

func TestUsePrepaidUnknownEarmarkedAccount(t *testing.T) {
	svc := newTestService()
	sellPlan(t, svc, "cust-dewi", 50000, 50000)

	_, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
		CustomerID: "cust-dewi",
		Amount:     10000,
		AccountID:  "psale-missing",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}
}

// Concurrent draws against one account must never overspend it: the
// balance check and the usage append share the store's critical section.
func TestUsePrepaidConcurrentDrawsNeverOverspend(t *testing.T) {
	svc := newTestService()
	sellPlan(t, svc, "cust-dewi", 100000, 100000)

	const workers = 10
	var wg sync.WaitGroup
	succeeded := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UsePrepaid(context.Background(), domain.PrepaidUseRequest{
				CustomerID: "cust-dewi",
				Amount:     30000,
			})
			if err == nil {
				succeeded <- 30000
			} else if !errors.Is(err, store.ErrNoAccountAvailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	var drawn int64
	for amount := range succeeded {
		drawn += amount
	}
	if drawn > 100000 {
		t.Fatalf("overspent account: drew %d from 100000", drawn)
	}

	balance, err := svc.CustomerBalance(context.Background(), "main-salon", "cust-dewi")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.PrepaidBalance != 100000-drawn {
		t.Fatalf("ledger out of sync: drew %d but balance is %d", drawn, balance.PrepaidBalance)
	}
	if balance.PrepaidBalance < 0 {
		t.Fatalf("balance went negative: %d", balance.PrepaidBalance)
	}
}

func TestSellPrepaidUnknownPlan(t *testing.T) {
	svc := newTestService()

	_, err := svc.SellPrepaid(adminCtx(), domain.PrepaidSellRequest{
		CustomerID: "cust-dewi",
		PlanID:     "plan-missing",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown plan, got %v", err)
	}
}

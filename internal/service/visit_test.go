package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salonkita/backend/internal/cache"
	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/pricing"
	"salonkita/backend/internal/store"
	"salonkita/backend/internal/store/memory"
)

func TestCreateVisitServiceAndProductFullyPaid(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	treatment, err := svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "Hair Spa", ListPrice: 30000})
	if err != nil {
		t.Fatalf("create service failed: %v", err)
	}
	tonic, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Hair Tonic", Kind: domain.ProductKindRetail, DefaultRetailUnitPrice: 15000})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	visit, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: treatment.ID, Qty: 1},
			{ItemType: domain.ItemTypeProduct, ProductID: tonic.ID, Qty: 1},
		},
		Payments: []domain.PaymentRequest{
			{Method: domain.PaymentMethodCard, Amount: 45000},
		},
	})
	if err != nil {
		t.Fatalf("create visit failed: %v", err)
	}

	if visit.Status != domain.VisitStatusFinalized {
		t.Fatalf("expected default status finalized, got %s", visit.Status)
	}
	if visit.Subtotal != 45000 {
		t.Fatalf("expected subtotal 45000, got %d", visit.Subtotal)
	}
	if visit.Total != 45000 {
		t.Fatalf("expected total 45000, got %d", visit.Total)
	}
	if visit.PaidAmount() != 45000 {
		t.Fatalf("expected paid 45000, got %d", visit.PaidAmount())
	}
	if visit.RemainingAmount() != 0 {
		t.Fatalf("expected remaining 0, got %d", visit.RemainingAmount())
	}
	if !visit.FullyPaid() {
		t.Fatalf("expected visit to be fully paid")
	}
}

func TestCreateVisitAppliesAutoRule(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	rule, err := svc.CreateDiscountRule(ctx, domain.DiscountRuleCreateRequest{
		Name:     "Diskon Layanan",
		RuleType: domain.RuleTypeAmount,
		Value:    3000,
		Applies:  domain.AppliesAllServices,
	})
	if err != nil {
		t.Fatalf("create rule failed: %v", err)
	}

	visit, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-rina",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-creambath", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create visit failed: %v", err)
	}

	line := visit.LineItems[0]
	if line.DiscountAmount != 3000 {
		t.Fatalf("expected discount 3000, got %d", line.DiscountAmount)
	}
	if line.NetUnitPrice != 117000 {
		t.Fatalf("expected net unit price 117000, got %d", line.NetUnitPrice)
	}
	if line.AppliedRuleID != rule.ID {
		t.Fatalf("expected applied rule %s, got %s", rule.ID, line.AppliedRuleID)
	}
	if visit.Total != 117000 {
		t.Fatalf("expected total 117000, got %d", visit.Total)
	}
}

func TestCreateVisitJoinsValidationProblems(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-haircut", Qty: 0},
		},
		Payments: []domain.PaymentRequest{
			{Method: "", Amount: 0},
		},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "qty") || !strings.Contains(msg, "method") {
		t.Fatalf("expected joined problem list, got %q", msg)
	}
}

func TestCreateVisitRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-haircut", Qty: 1},
		},
		Payments: []domain.PaymentRequest{
			{Method: "barter", Amount: 150000},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), `unsupported method "barter"`) {
		t.Fatalf("expected problem to name the method, got %q", err.Error())
	}
}

func TestCreateVisitRejectsAmbiguousItemRef(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-haircut", ProductID: "prod-shampoo", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for both refs set, got %v", err)
	}
}

func TestCreateVisitRejectsConsumableOnlyProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeProduct, ProductID: "prod-color-tube", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for consumable-only product, got %v", err)
	}
}

func TestCreateVisitMissingRefPricesAtZeroWhenLenient(t *testing.T) {
	svc := newTestService()

	visit, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-deleted", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("expected lenient pricing to accept missing ref, got %v", err)
	}
	if visit.Total != 0 || visit.Subtotal != 0 {
		t.Fatalf("expected zero totals for missing ref, got subtotal=%d total=%d", visit.Subtotal, visit.Total)
	}
}

func TestCreateVisitMissingRefRejectedWhenStrict(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(true), cache.NoopBalanceCache{}, 5*time.Second, "main-salon")

	_, err := svc.CreateVisit(context.Background(), domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-deleted", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation under strict refs, got %v", err)
	}
}

func TestFinalizeThenVoidLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	visit, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-sari",
		Status:     domain.VisitStatusDraft,
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-manicure", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create visit failed: %v", err)
	}

	finalized, err := svc.FinalizeVisit(ctx, "main-salon", visit.ID)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if finalized.Status != domain.VisitStatusFinalized {
		t.Fatalf("expected finalized status, got %s", finalized.Status)
	}

	if _, err := svc.FinalizeVisit(ctx, "main-salon", visit.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected second finalize to fail with ErrValidation, got %v", err)
	}

	voided, err := svc.VoidVisit(ctx, "main-salon", visit.ID)
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if !voided.Voided() {
		t.Fatalf("expected visit to be voided")
	}
	if voided.Status != domain.VisitStatusFinalized {
		t.Fatalf("void must not change status, got %s", voided.Status)
	}

	if _, err := svc.VoidVisit(ctx, "main-salon", visit.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected second void to fail with ErrValidation, got %v", err)
	}
}

func TestVoidDraftVisit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	visit, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-sari",
		Status:     domain.VisitStatusDraft,
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-facial", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create visit failed: %v", err)
	}

	voided, err := svc.VoidVisit(ctx, "main-salon", visit.ID)
	if err != nil {
		t.Fatalf("void of draft failed: %v", err)
	}
	if voided.Status != domain.VisitStatusDraft {
		t.Fatalf("expected draft status preserved, got %s", voided.Status)
	}
}

func TestListVisitsFiltersByCustomerAndWindow(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	past := time.Now().UTC().AddDate(0, 0, -10)
	if _, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		VisitedAt:  &past,
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-haircut", Qty: 1},
		},
	}); err != nil {
		t.Fatalf("create old visit failed: %v", err)
	}
	if _, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-dewi",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-coloring", Qty: 1},
		},
	}); err != nil {
		t.Fatalf("create recent visit failed: %v", err)
	}
	if _, err := svc.CreateVisit(ctx, domain.CreateVisitRequest{
		CustomerID: "cust-rina",
		LineItems: []domain.LineItemRequest{
			{ItemType: domain.ItemTypeService, ServiceID: "svc-haircut", Qty: 1},
		},
	}); err != nil {
		t.Fatalf("create other-customer visit failed: %v", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -1)
	visits, err := svc.ListVisits(ctx, "main-salon", "cust-dewi", cutoff, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list visits failed: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit in window, got %d", len(visits))
	}
	if visits[0].CustomerID != "cust-dewi" {
		t.Fatalf("expected cust-dewi visit, got %s", visits[0].CustomerID)
	}
}

package pricing

import (
	"errors"
	"testing"
	"time"

	"salonkita/backend/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testCatalog() Catalog {
	return Catalog{
		Services: map[string]domain.Service{
			"svc-cut":   {ID: "svc-cut", CategoryID: "cat-hair", ListPrice: 150000},
			"svc-spa":   {ID: "svc-spa", CategoryID: "cat-body", ListPrice: 300000},
			"svc-color": {ID: "svc-color", CategoryID: "cat-hair", ListPrice: 450000},
		},
		Products: map[string]domain.Product{
			"prod-shampoo": {ID: "prod-shampoo", Kind: domain.ProductKindRetail, DefaultRetailUnitPrice: 85000},
			"prod-serum":   {ID: "prod-serum", Kind: domain.ProductKindBoth, DefaultRetailUnitPrice: 120000},
		},
	}
}

func serviceLine(id string, qty int) LineInput {
	return LineInput{Item: domain.ServiceRef(id), Qty: qty}
}

func TestPriceLineDiscountPrecedence(t *testing.T) {
	eng := NewEngine(false)
	cat := testCatalog()
	rules := []domain.DiscountRule{
		{ID: "rule-10", RuleType: domain.RuleTypePercent, Value: 10, Applies: domain.AppliesAllServices, Seq: 1},
		{ID: "rule-flat", RuleType: domain.RuleTypeAmount, Value: 20000, Applies: domain.AppliesAllServices, Seq: 2},
	}

	cases := []struct {
		name       string
		in         LineInput
		wantRate   int64
		wantAmount int64
		wantRuleID string
	}{
		{
			name:       "explicit rate beats everything",
			in:         LineInput{Item: domain.ServiceRef("svc-cut"), Qty: 1, DiscountRate: 25, DiscountAmount: 999, RuleID: "rule-flat"},
			wantRate:   25,
			wantAmount: 37500,
		},
		{
			name:       "explicit amount beats rules",
			in:         LineInput{Item: domain.ServiceRef("svc-cut"), Qty: 1, DiscountAmount: 5000, RuleID: "rule-flat"},
			wantAmount: 5000,
		},
		{
			name:       "explicit rule id beats auto match",
			in:         LineInput{Item: domain.ServiceRef("svc-cut"), Qty: 1, RuleID: "rule-flat"},
			wantAmount: 20000,
			wantRuleID: "rule-flat",
		},
		{
			name:       "auto match picks first rule in listing order",
			in:         serviceLine("svc-cut", 1),
			wantRate:   10,
			wantAmount: 15000,
			wantRuleID: "rule-10",
		},
		{
			name: "unknown explicit rule id means no discount, no fallthrough",
			in:   LineInput{Item: domain.ServiceRef("svc-cut"), Qty: 1, RuleID: "rule-gone"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eng.PriceLine(tc.in, cat, rules, testNow)
			if err != nil {
				t.Fatalf("PriceLine: %v", err)
			}
			if got.DiscountRate != tc.wantRate {
				t.Fatalf("rate = %d, want %d", got.DiscountRate, tc.wantRate)
			}
			if got.DiscountAmount != tc.wantAmount {
				t.Fatalf("amount = %d, want %d", got.DiscountAmount, tc.wantAmount)
			}
			if got.AppliedRuleID != tc.wantRuleID {
				t.Fatalf("applied rule = %q, want %q", got.AppliedRuleID, tc.wantRuleID)
			}
			if got.NetUnitPrice != got.ListUnitPrice-got.DiscountAmount {
				t.Fatalf("net unit %d != list %d - discount %d", got.NetUnitPrice, got.ListUnitPrice, got.DiscountAmount)
			}
		})
	}
}

func TestPriceLinePercentRounding(t *testing.T) {
	eng := NewEngine(false)
	cat := Catalog{Services: map[string]domain.Service{
		"svc-odd": {ID: "svc-odd", ListPrice: 99999},
	}}

	got, err := eng.PriceLine(LineInput{Item: domain.ServiceRef("svc-odd"), Qty: 1, DiscountRate: 15}, cat, nil, testNow)
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}
	// 99999 * 15% = 14999.85, rounds to 15000.
	if got.DiscountAmount != 15000 {
		t.Fatalf("rounded amount = %d, want 15000", got.DiscountAmount)
	}
}

func TestPriceLineAmountRuleCappedAtListPrice(t *testing.T) {
	eng := NewEngine(false)
	cat := testCatalog()
	rules := []domain.DiscountRule{
		{ID: "rule-huge", RuleType: domain.RuleTypeAmount, Value: 9000000, Applies: domain.AppliesAllProducts, Seq: 1},
	}

	got, err := eng.PriceLine(LineInput{Item: domain.ProductRef("prod-shampoo"), Qty: 2}, cat, rules, testNow)
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}
	if got.DiscountAmount != 85000 {
		t.Fatalf("amount = %d, want capped 85000", got.DiscountAmount)
	}
	if got.NetUnitPrice != 0 || got.NetTotal != 0 {
		t.Fatalf("net unit %d / net total %d, want 0 / 0", got.NetUnitPrice, got.NetTotal)
	}
}

func TestPriceLineNetTotalFloorsAtZero(t *testing.T) {
	eng := NewEngine(false)
	cat := testCatalog()

	got, err := eng.PriceLine(LineInput{Item: domain.ServiceRef("svc-cut"), Qty: 1, PrepaidUsed: 200000}, cat, nil, testNow)
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}
	if got.NetTotal != 0 {
		t.Fatalf("net total = %d, want 0 when prepaid exceeds line value", got.NetTotal)
	}
}

func TestPriceLineUnknownRef(t *testing.T) {
	cat := testCatalog()

	lenient := NewEngine(false)
	got, err := lenient.PriceLine(serviceLine("svc-missing", 1), cat, nil, testNow)
	if err != nil {
		t.Fatalf("lenient PriceLine: %v", err)
	}
	if got.ListUnitPrice != 0 || got.NetTotal != 0 {
		t.Fatalf("lenient missing ref priced at list %d total %d, want zero", got.ListUnitPrice, got.NetTotal)
	}

	strict := NewEngine(true)
	if _, err := strict.PriceLine(serviceLine("svc-missing", 1), cat, nil, testNow); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("strict PriceLine err = %v, want ErrUnknownItem", err)
	}
}

func TestRuleMatches(t *testing.T) {
	cut := domain.ServiceRef("svc-cut")
	shampoo := domain.ProductRef("prod-shampoo")

	cases := []struct {
		name string
		rule domain.DiscountRule
		item domain.ItemRef
		cat  string
		want bool
	}{
		{"all services hits service", domain.DiscountRule{Applies: domain.AppliesAllServices}, cut, "cat-hair", true},
		{"all services skips product", domain.DiscountRule{Applies: domain.AppliesAllServices}, shampoo, "", false},
		{"category match", domain.DiscountRule{Applies: domain.AppliesServiceCategory, TargetID: "cat-hair"}, cut, "cat-hair", true},
		{"category mismatch", domain.DiscountRule{Applies: domain.AppliesServiceCategory, TargetID: "cat-body"}, cut, "cat-hair", false},
		{"category rule needs a category", domain.DiscountRule{Applies: domain.AppliesServiceCategory, TargetID: ""}, cut, "", false},
		{"specific service", domain.DiscountRule{Applies: domain.AppliesSpecificService, TargetID: "svc-cut"}, cut, "cat-hair", true},
		{"specific service other id", domain.DiscountRule{Applies: domain.AppliesSpecificService, TargetID: "svc-spa"}, cut, "cat-hair", false},
		{"all products hits product", domain.DiscountRule{Applies: domain.AppliesAllProducts}, shampoo, "", true},
		{"all products skips service", domain.DiscountRule{Applies: domain.AppliesAllProducts}, cut, "cat-hair", false},
		{"specific product", domain.DiscountRule{Applies: domain.AppliesSpecificProduct, TargetID: "prod-shampoo"}, shampoo, "", true},
		{"unknown applies never matches", domain.DiscountRule{Applies: "everything"}, cut, "cat-hair", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RuleMatches(tc.rule, tc.item, tc.cat); got != tc.want {
				t.Fatalf("RuleMatches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRuleActiveAt(t *testing.T) {
	past := testNow.Add(-24 * time.Hour)
	future := testNow.Add(24 * time.Hour)

	open := domain.DiscountRule{}
	if !RuleActiveAt(open, testNow) {
		t.Fatal("rule with no window should always be active")
	}

	windowed := domain.DiscountRule{StartsAt: &past, EndsAt: &future}
	if !RuleActiveAt(windowed, testNow) {
		t.Fatal("rule inside window should be active")
	}

	notYet := domain.DiscountRule{StartsAt: &future}
	if RuleActiveAt(notYet, testNow) {
		t.Fatal("rule before starts_at should be inactive")
	}

	expired := domain.DiscountRule{EndsAt: &past}
	if RuleActiveAt(expired, testNow) {
		t.Fatal("rule past ends_at should be inactive")
	}
}

func TestPriceLineInactiveRuleSkippedInAutoMatch(t *testing.T) {
	eng := NewEngine(false)
	cat := testCatalog()
	future := testNow.Add(time.Hour)
	rules := []domain.DiscountRule{
		{ID: "rule-later", RuleType: domain.RuleTypePercent, Value: 50, Applies: domain.AppliesAllServices, StartsAt: &future, Seq: 1},
		{ID: "rule-now", RuleType: domain.RuleTypePercent, Value: 10, Applies: domain.AppliesAllServices, Seq: 2},
	}

	got, err := eng.PriceLine(serviceLine("svc-spa", 1), cat, rules, testNow)
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}
	if got.AppliedRuleID != "rule-now" {
		t.Fatalf("applied rule = %q, want rule-now (inactive rule skipped)", got.AppliedRuleID)
	}
}

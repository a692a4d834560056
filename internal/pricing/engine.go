package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"salonkita/backend/internal/domain"
)

// ErrUnknownItem is returned in strict mode when a line references a
// catalog id that does not resolve. In lenient mode the line prices at 0.
var ErrUnknownItem = errors.New("unknown catalog item")

// Catalog is the slice of master data a pricing call needs, pre-fetched by
// the caller. The engine never touches storage.
type Catalog struct {
	Services map[string]domain.Service
	Products map[string]domain.Product
}

type LineInput struct {
	Item           domain.ItemRef
	Qty            int
	DiscountRate   int64
	DiscountAmount int64
	RuleID         string
	PrepaidUsed    int64
}

type PricedLine struct {
	ListUnitPrice  int64
	DiscountRate   int64
	DiscountAmount int64
	NetUnitPrice   int64
	NetTotal       int64
	AppliedRuleID  string
}

type Engine struct {
	strictRefs bool
}

// NewEngine builds a pricing engine. strictRefs controls whether a missing
// catalog reference fails the line or silently prices it at 0.
func NewEngine(strictRefs bool) *Engine {
	return &Engine{strictRefs: strictRefs}
}

// PriceLine computes list price, discount and net figures for one line.
// Discount resolution is strict precedence: explicit rate, then explicit
// amount, then explicit rule id, then the first active matching rule in
// listing order, then zero. Later branches never run once one is taken.
func (e *Engine) PriceLine(in LineInput, cat Catalog, rules []domain.DiscountRule, now time.Time) (PricedLine, error) {
	listPrice, categoryID, err := e.resolveListPrice(in.Item, cat)
	if err != nil {
		return PricedLine{}, err
	}

	priced := PricedLine{ListUnitPrice: listPrice}

	switch {
	case in.DiscountRate > 0:
		priced.DiscountRate = in.DiscountRate
		priced.DiscountAmount = percentOf(listPrice, in.DiscountRate)
	case in.DiscountAmount > 0:
		// Already resolved upstream, used as-is.
		priced.DiscountAmount = in.DiscountAmount
	case in.RuleID != "":
		if rule, ok := findRule(rules, in.RuleID); ok {
			applyRule(&priced, rule, listPrice)
		}
	default:
		for _, rule := range rules {
			if !RuleActiveAt(rule, now) {
				continue
			}
			if !RuleMatches(rule, in.Item, categoryID) {
				continue
			}
			applyRule(&priced, rule, listPrice)
			break
		}
	}

	priced.NetUnitPrice = listPrice - priced.DiscountAmount
	netTotal := priced.NetUnitPrice*int64(in.Qty) - in.PrepaidUsed
	if netTotal < 0 {
		// Over-applied prepaid is absorbed, never reported as credit.
		netTotal = 0
	}
	priced.NetTotal = netTotal

	return priced, nil
}

func (e *Engine) resolveListPrice(item domain.ItemRef, cat Catalog) (int64, string, error) {
	switch {
	case item.IsService():
		svc, ok := cat.Services[item.ID]
		if !ok {
			if e.strictRefs {
				return 0, "", fmt.Errorf("%w: service %s", ErrUnknownItem, item.ID)
			}
			return 0, "", nil
		}
		return svc.ListPrice, svc.CategoryID, nil
	case item.IsProduct():
		prod, ok := cat.Products[item.ID]
		if !ok {
			if e.strictRefs {
				return 0, "", fmt.Errorf("%w: product %s", ErrUnknownItem, item.ID)
			}
			return 0, "", nil
		}
		return prod.DefaultRetailUnitPrice, "", nil
	default:
		return 0, "", fmt.Errorf("%w: item type %q", ErrUnknownItem, item.Type)
	}
}

// applyRule writes the rule's discount into the line. For a percent rule the
// rate is recorded for audit and the rounded amount is binding; for an
// amount rule the rate field stays zero and the amount is capped at the list
// price so a rule can never discount below zero.
func applyRule(priced *PricedLine, rule domain.DiscountRule, listPrice int64) {
	switch rule.RuleType {
	case domain.RuleTypePercent:
		priced.DiscountRate = rule.Value
		priced.DiscountAmount = percentOf(listPrice, rule.Value)
	case domain.RuleTypeAmount:
		amount := rule.Value
		if amount > listPrice {
			amount = listPrice
		}
		priced.DiscountAmount = amount
	default:
		return
	}
	priced.AppliedRuleID = rule.ID
}

// RuleMatches is the applies_to predicate. categoryID is the line's service
// category, empty for product lines.
func RuleMatches(rule domain.DiscountRule, item domain.ItemRef, categoryID string) bool {
	switch rule.Applies {
	case domain.AppliesAllServices:
		return item.IsService()
	case domain.AppliesServiceCategory:
		return item.IsService() && categoryID != "" && categoryID == rule.TargetID
	case domain.AppliesSpecificService:
		return item.IsService() && item.ID == rule.TargetID
	case domain.AppliesAllProducts:
		return item.IsProduct()
	case domain.AppliesSpecificProduct:
		return item.IsProduct() && item.ID == rule.TargetID
	default:
		return false
	}
}

// RuleActiveAt checks the optional validity window; a nil bound is open.
func RuleActiveAt(rule domain.DiscountRule, now time.Time) bool {
	if rule.StartsAt != nil && now.Before(*rule.StartsAt) {
		return false
	}
	if rule.EndsAt != nil && now.After(*rule.EndsAt) {
		return false
	}
	return true
}

func findRule(rules []domain.DiscountRule, id string) (domain.DiscountRule, bool) {
	for _, rule := range rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return domain.DiscountRule{}, false
}

func percentOf(amount int64, rate int64) int64 {
	return int64(math.Round(float64(amount) * float64(rate) / 100))
}

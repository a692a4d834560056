package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/pricing"
	"salonkita/backend/internal/store"
)

// CreateVisit prices every line through the discount engine and persists
// the visit in one store call. Prepaid amounts on the lines are taken as
// already drawn by the caller; this path never touches the prepaid, point,
// or inventory ledgers.
func (s *Service) CreateVisit(ctx context.Context, req domain.CreateVisitRequest) (domain.Visit, error) {
	storeID := s.storeID(req.StoreID)

	status := req.Status
	if status == "" {
		status = domain.VisitStatusFinalized
	}
	if status != domain.VisitStatusDraft && status != domain.VisitStatusFinalized {
		return domain.Visit{}, fmt.Errorf("%w: status must be draft or finalized", store.ErrValidation)
	}

	visitedAt := time.Now().UTC()
	if req.VisitedAt != nil {
		visitedAt = req.VisitedAt.UTC()
	}

	var problems []string
	if req.CustomerID == "" {
		problems = append(problems, "customer_id is required")
	}
	if len(req.LineItems) == 0 {
		problems = append(problems, "at least one line item is required")
	}

	lines := make([]domain.SaleLineItem, 0, len(req.LineItems))
	refs := make([]domain.ItemRef, 0, len(req.LineItems))
	for i, lineReq := range req.LineItems {
		item, err := domain.NewItemRef(lineReq.ItemType, lineReq.ServiceID, lineReq.ProductID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}
		if lineReq.Qty < 1 {
			problems = append(problems, fmt.Sprintf("line %d: qty must be at least 1", i+1))
		}
		if lineReq.DiscountRate < 0 || lineReq.DiscountRate > 100 {
			problems = append(problems, fmt.Sprintf("line %d: discount_rate must be between 0 and 100", i+1))
		}
		if lineReq.DiscountAmount < 0 {
			problems = append(problems, fmt.Sprintf("line %d: discount_amount must not be negative", i+1))
		}
		if lineReq.PrepaidUsed < 0 {
			problems = append(problems, fmt.Sprintf("line %d: prepaid_used must not be negative", i+1))
		}
		refs = append(refs, item)
		lines = append(lines, domain.SaleLineItem{
			Item:    item,
			StaffID: strings.TrimSpace(lineReq.StaffID),
			Qty:     lineReq.Qty,
		})
	}

	payments := make([]domain.Payment, 0, len(req.Payments))
	for i, payReq := range req.Payments {
		if payReq.Amount < 1 {
			problems = append(problems, fmt.Sprintf("payment %d: amount must be positive", i+1))
		}
		method := strings.TrimSpace(payReq.Method)
		switch {
		case method == "":
			problems = append(problems, fmt.Sprintf("payment %d: method is required", i+1))
		case !domain.ValidPaymentMethod(method):
			problems = append(problems, fmt.Sprintf("payment %d: unsupported method %q", i+1, method))
		}
		payments = append(payments, domain.Payment{
			Method: method,
			Amount: payReq.Amount,
		})
	}
	if len(problems) > 0 {
		return domain.Visit{}, fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(problems, "; "))
	}

	catalog, err := s.loadCatalog(ctx, storeID, refs)
	if err != nil {
		return domain.Visit{}, err
	}
	rules, err := s.repo.ListDiscountRules(ctx, storeID)
	if err != nil {
		return domain.Visit{}, err
	}

	for i := range lines {
		lineReq := req.LineItems[i]
		if lines[i].Item.IsProduct() {
			if product, ok := catalog.Products[lines[i].Item.ID]; ok && !product.Sellable() {
				return domain.Visit{}, fmt.Errorf("%w: product %s is not sellable", store.ErrValidation, product.ID)
			}
		}

		priced, err := s.pricer.PriceLine(pricing.LineInput{
			Item:           lines[i].Item,
			Qty:            lines[i].Qty,
			DiscountRate:   lineReq.DiscountRate,
			DiscountAmount: lineReq.DiscountAmount,
			RuleID:         lineReq.RuleID,
			PrepaidUsed:    lineReq.PrepaidUsed,
		}, catalog, rules, visitedAt)
		if err != nil {
			if errors.Is(err, pricing.ErrUnknownItem) {
				return domain.Visit{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
			}
			return domain.Visit{}, err
		}

		lines[i].ListUnitPrice = priced.ListUnitPrice
		lines[i].DiscountRate = priced.DiscountRate
		lines[i].DiscountAmount = priced.DiscountAmount
		lines[i].NetUnitPrice = priced.NetUnitPrice
		lines[i].PrepaidUsed = lineReq.PrepaidUsed
		lines[i].NetTotal = priced.NetTotal
		lines[i].AppliedRuleID = priced.AppliedRuleID
	}

	created, err := s.repo.CreateVisit(ctx, domain.Visit{
		StoreID:    storeID,
		CustomerID: req.CustomerID,
		Status:     status,
		VisitedAt:  visitedAt,
		LineItems:  lines,
		Payments:   payments,
	})
	if err != nil {
		return domain.Visit{}, err
	}

	s.logAudit(ctx, storeID, "visit_create", "visit", created.ID, fmt.Sprintf("customer=%s,status=%s,total=%d", created.CustomerID, created.Status, created.Total))
	return *created, nil
}

func (s *Service) loadCatalog(ctx context.Context, storeID string, refs []domain.ItemRef) (pricing.Catalog, error) {
	serviceIDs := make([]string, 0, len(refs))
	productIDs := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.IsService() {
			serviceIDs = append(serviceIDs, ref.ID)
		} else {
			productIDs = append(productIDs, ref.ID)
		}
	}

	services, err := s.repo.GetServicesByIDs(ctx, storeID, serviceIDs)
	if err != nil {
		return pricing.Catalog{}, err
	}
	products, err := s.repo.GetProductsByIDs(ctx, storeID, productIDs)
	if err != nil {
		return pricing.Catalog{}, err
	}
	return pricing.Catalog{Services: services, Products: products}, nil
}

func (s *Service) GetVisit(ctx context.Context, storeID string, visitID string) (domain.Visit, error) {
	visit, err := s.repo.GetVisit(ctx, s.storeID(storeID), visitID)
	if err != nil {
		return domain.Visit{}, err
	}
	return *visit, nil
}

func (s *Service) ListVisits(ctx context.Context, storeID string, customerID string, from time.Time, to time.Time, limit int) ([]domain.Visit, error) {
	return s.repo.ListVisits(ctx, s.storeID(storeID), customerID, from, to, limit)
}

func (s *Service) FinalizeVisit(ctx context.Context, storeID string, visitID string) (domain.Visit, error) {
	storeID = s.storeID(storeID)
	visit, err := s.repo.FinalizeVisit(ctx, storeID, visitID, time.Now().UTC())
	if err != nil {
		return domain.Visit{}, err
	}
	s.logAudit(ctx, storeID, "visit_finalize", "visit", visit.ID, fmt.Sprintf("customer=%s,total=%d", visit.CustomerID, visit.Total))
	return *visit, nil
}

// VoidVisit marks the visit void without touching the ledgers. Prepaid
// draws, accrued points, and inventory writes tied to the visit stay on
// their ledgers; reversals are explicit adjust entries made by the
// operator.
func (s *Service) VoidVisit(ctx context.Context, storeID string, visitID string) (domain.Visit, error) {
	storeID = s.storeID(storeID)
	visit, err := s.repo.VoidVisit(ctx, storeID, visitID, time.Now().UTC())
	if err != nil {
		return domain.Visit{}, err
	}
	s.logAudit(ctx, storeID, "visit_void", "visit", visit.ID, fmt.Sprintf("customer=%s,total=%d", visit.CustomerID, visit.Total))
	return *visit, nil
}

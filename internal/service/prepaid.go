package service

import (
	"context"
	"fmt"
	"time"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

// SellPrepaid opens a new prepaid account for the customer from an active
// plan. Each sale is its own account; balances never merge across sales.
func (s *Service) SellPrepaid(ctx context.Context, req domain.PrepaidSellRequest) (domain.PrepaidSale, error) {
	storeID := s.storeID(req.StoreID)
	if req.CustomerID == "" || req.PlanID == "" {
		return domain.PrepaidSale{}, fmt.Errorf("%w: customer_id and plan_id are required", store.ErrValidation)
	}

	plans, err := s.repo.ListPrepaidPlans(ctx, storeID, true)
	if err != nil {
		return domain.PrepaidSale{}, err
	}
	var plan *domain.PrepaidPlan
	for i := range plans {
		if plans[i].ID == req.PlanID {
			plan = &plans[i]
			break
		}
	}
	if plan == nil {
		return domain.PrepaidSale{}, store.ErrNotFound
	}

	soldAt := time.Now().UTC()
	if req.SoldAt != nil {
		soldAt = req.SoldAt.UTC()
	}

	created, err := s.repo.CreatePrepaidSale(ctx, domain.PrepaidSale{
		StoreID:     storeID,
		CustomerID:  req.CustomerID,
		PlanID:      plan.ID,
		StaffID:     req.StaffID,
		AmountPaid:  plan.PricePaid,
		ValueAmount: plan.ValueAmount,
		SoldAt:      soldAt,
	})
	if err != nil {
		return domain.PrepaidSale{}, err
	}

	s.invalidateBalance(ctx, storeID, req.CustomerID)
	s.logAudit(ctx, storeID, "prepaid_sell", "prepaid_sale", created.ID, fmt.Sprintf("customer=%s,plan=%s,value=%d", created.CustomerID, created.PlanID, created.ValueAmount))
	return *created, nil
}

// UsePrepaid draws stored value from exactly one account. With no earmarked
// account the earliest-sold account whose remaining balance covers the full
// amount is selected; the draw is never split across accounts.
func (s *Service) UsePrepaid(ctx context.Context, req domain.PrepaidUseRequest) (domain.PrepaidUsage, error) {
	storeID := s.storeID(req.StoreID)
	if req.CustomerID == "" {
		return domain.PrepaidUsage{}, fmt.Errorf("%w: customer_id is required", store.ErrValidation)
	}
	if req.Amount < 1 {
		return domain.PrepaidUsage{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	usage, err := s.repo.UsePrepaid(ctx, storeID, req.CustomerID, req.Amount, req.VisitID, req.LineItemID, req.AccountID)
	if err != nil {
		return domain.PrepaidUsage{}, err
	}

	s.invalidateBalance(ctx, storeID, req.CustomerID)
	s.logAudit(ctx, storeID, "prepaid_use", "prepaid_sale", usage.PrepaidSaleID, fmt.Sprintf("customer=%s,amount=%d,visit=%s", req.CustomerID, req.Amount, req.VisitID))
	return *usage, nil
}

// PrepaidAccounts returns every account the customer holds with its
// remaining balance and full usage trail, oldest sale first.
func (s *Service) PrepaidAccounts(ctx context.Context, storeID string, customerID string) ([]domain.PrepaidAccountDetail, error) {
	storeID = s.storeID(storeID)
	if _, err := s.repo.GetCustomer(ctx, storeID, customerID); err != nil {
		return nil, err
	}
	return s.repo.PrepaidAccounts(ctx, storeID, customerID)
}

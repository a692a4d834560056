package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

// EarnFromVisit accrues loyalty points for a finalized visit. Draft and
// voided visits accrue nothing, as does a visit whose computed points come
// to zero or less. The accrual is idempotent per visit: a second call finds
// the existing earn entry and returns it unchanged.
func (s *Service) EarnFromVisit(ctx context.Context, storeID string, visitID string) (*domain.PointTransaction, error) {
	storeID = s.storeID(storeID)

	visit, err := s.repo.GetVisit(ctx, storeID, visitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != domain.VisitStatusFinalized || visit.Voided() {
		return nil, nil
	}

	existing, err := s.repo.FindEarnByVisit(ctx, storeID, visitID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rules, err := s.repo.ListPointRules(ctx, storeID)
	if err != nil {
		return nil, err
	}
	var rule *domain.PointRule
	for i := range rules {
		if pointRuleActiveAt(rules[i], visit.VisitedAt) {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return nil, nil
	}

	points := rule.Calculate(visit.Total)
	if points < 1 {
		return nil, nil
	}

	txn, err := s.repo.AppendPointTransaction(ctx, domain.PointTransaction{
		StoreID:     storeID,
		CustomerID:  visit.CustomerID,
		TxnType:     domain.PointTxnEarn,
		PointsDelta: points,
		VisitID:     visit.ID,
		RuleID:      rule.ID,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, storeID, visit.CustomerID)
	s.logAudit(ctx, storeID, "points_earn", "customer", visit.CustomerID, fmt.Sprintf("visit=%s,points=%d,rule=%s", visit.ID, points, rule.ID))
	return txn, nil
}

func (s *Service) RedeemPoints(ctx context.Context, req domain.PointRedeemRequest) (domain.PointTransaction, error) {
	storeID := s.storeID(req.StoreID)
	if req.CustomerID == "" {
		return domain.PointTransaction{}, fmt.Errorf("%w: customer_id is required", store.ErrValidation)
	}
	if req.Points < 1 {
		return domain.PointTransaction{}, fmt.Errorf("%w: points must be positive", store.ErrValidation)
	}

	txn, err := s.repo.AppendPointTransaction(ctx, domain.PointTransaction{
		StoreID:     storeID,
		CustomerID:  req.CustomerID,
		TxnType:     domain.PointTxnRedeem,
		PointsDelta: -req.Points,
		VisitID:     req.VisitID,
		PaymentID:   req.PaymentID,
	})
	if err != nil {
		return domain.PointTransaction{}, err
	}

	s.invalidateBalance(ctx, storeID, req.CustomerID)
	s.logAudit(ctx, storeID, "points_redeem", "customer", req.CustomerID, fmt.Sprintf("points=%d,visit=%s", req.Points, req.VisitID))
	return *txn, nil
}

// AdjustPoints applies a manual correction in either direction. The store
// still refuses any delta that would leave the balance negative.
func (s *Service) AdjustPoints(ctx context.Context, req domain.PointAdjustRequest) (domain.PointTransaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PointTransaction{}, err
	}

	storeID := s.storeID(req.StoreID)
	if req.CustomerID == "" {
		return domain.PointTransaction{}, fmt.Errorf("%w: customer_id is required", store.ErrValidation)
	}
	if req.PointsDelta == 0 {
		return domain.PointTransaction{}, fmt.Errorf("%w: points_delta must not be zero", store.ErrValidation)
	}
	if strings.TrimSpace(req.Memo) == "" {
		return domain.PointTransaction{}, fmt.Errorf("%w: memo is required", store.ErrValidation)
	}

	txn, err := s.repo.AppendPointTransaction(ctx, domain.PointTransaction{
		StoreID:     storeID,
		CustomerID:  req.CustomerID,
		TxnType:     domain.PointTxnAdjust,
		PointsDelta: req.PointsDelta,
		Memo:        req.Memo,
	})
	if err != nil {
		return domain.PointTransaction{}, err
	}

	s.invalidateBalance(ctx, storeID, req.CustomerID)
	s.logAudit(ctx, storeID, "points_adjust", "customer", req.CustomerID, fmt.Sprintf("delta=%d,memo=%s", req.PointsDelta, req.Memo))
	return *txn, nil
}

func (s *Service) PointHistory(ctx context.Context, storeID string, customerID string, limit int) ([]domain.PointTransaction, error) {
	storeID = s.storeID(storeID)
	if _, err := s.repo.GetCustomer(ctx, storeID, customerID); err != nil {
		return nil, err
	}
	return s.repo.PointHistory(ctx, storeID, customerID, limit)
}

func pointRuleActiveAt(rule domain.PointRule, at time.Time) bool {
	if rule.StartsAt != nil && at.Before(*rule.StartsAt) {
		return false
	}
	if rule.EndsAt != nil && at.After(*rule.EndsAt) {
		return false
	}
	return true
}

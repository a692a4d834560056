package service

import (
	"context"
	"fmt"
	"strings"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Service{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ListPrice < 0 {
		return domain.Service{}, store.ErrValidation
	}

	created, err := s.repo.CreateService(ctx, domain.Service{
		StoreID:    s.storeID(req.StoreID),
		Name:       req.Name,
		CategoryID: strings.TrimSpace(req.CategoryID),
		ListPrice:  req.ListPrice,
	})
	if err != nil {
		return domain.Service{}, err
	}
	s.logAudit(ctx, created.StoreID, "service_create", "service", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.ListPrice))
	return *created, nil
}

func (s *Service) ListServices(ctx context.Context, storeID string, activeOnly bool) ([]domain.Service, error) {
	return s.repo.ListServices(ctx, s.storeID(storeID), activeOnly)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DefaultRetailUnitPrice < 0 {
		return domain.Product{}, store.ErrValidation
	}
	switch req.Kind {
	case domain.ProductKindRetail, domain.ProductKindConsumable, domain.ProductKindBoth:
	default:
		return domain.Product{}, fmt.Errorf("%w: product kind must be retail, consumable, or both", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		StoreID:                s.storeID(req.StoreID),
		Name:                   req.Name,
		Kind:                   req.Kind,
		DefaultRetailUnitPrice: req.DefaultRetailUnitPrice,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, created.StoreID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,kind=%s", created.Name, created.Kind))
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.storeID(storeID), activeOnly)
}

func (s *Service) CreateDiscountRule(ctx context.Context, req domain.DiscountRuleCreateRequest) (domain.DiscountRule, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DiscountRule{}, err
	}

	created, err := s.repo.CreateDiscountRule(ctx, domain.DiscountRule{
		StoreID:  s.storeID(req.StoreID),
		Name:     strings.TrimSpace(req.Name),
		RuleType: req.RuleType,
		Value:    req.Value,
		Applies:  req.Applies,
		TargetID: strings.TrimSpace(req.TargetID),
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		return domain.DiscountRule{}, err
	}
	s.logAudit(ctx, created.StoreID, "discount_rule_create", "discount_rule", created.ID, fmt.Sprintf("type=%s,value=%d,applies=%s,seq=%d", created.RuleType, created.Value, created.Applies, created.Seq))
	return *created, nil
}

func (s *Service) ListDiscountRules(ctx context.Context, storeID string) ([]domain.DiscountRule, error) {
	return s.repo.ListDiscountRules(ctx, s.storeID(storeID))
}

func (s *Service) CreatePointRule(ctx context.Context, req domain.PointRuleCreateRequest) (domain.PointRule, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PointRule{}, err
	}

	created, err := s.repo.CreatePointRule(ctx, domain.PointRule{
		StoreID:  s.storeID(req.StoreID),
		Name:     strings.TrimSpace(req.Name),
		RuleType: req.RuleType,
		Value:    req.Value,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		return domain.PointRule{}, err
	}
	s.logAudit(ctx, created.StoreID, "point_rule_create", "point_rule", created.ID, fmt.Sprintf("type=%s,value=%d,seq=%d", created.RuleType, created.Value, created.Seq))
	return *created, nil
}

func (s *Service) ListPointRules(ctx context.Context, storeID string) ([]domain.PointRule, error) {
	return s.repo.ListPointRules(ctx, s.storeID(storeID))
}

func (s *Service) CreatePrepaidPlan(ctx context.Context, req domain.PrepaidPlanCreateRequest) (domain.PrepaidPlan, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PrepaidPlan{}, err
	}
	if req.PricePaid < 1 || req.ValueAmount < 1 {
		return domain.PrepaidPlan{}, fmt.Errorf("%w: plan price and value must be positive", store.ErrValidation)
	}

	created, err := s.repo.CreatePrepaidPlan(ctx, domain.PrepaidPlan{
		StoreID:     s.storeID(req.StoreID),
		Name:        strings.TrimSpace(req.Name),
		PricePaid:   req.PricePaid,
		ValueAmount: req.ValueAmount,
	})
	if err != nil {
		return domain.PrepaidPlan{}, err
	}
	s.logAudit(ctx, created.StoreID, "prepaid_plan_create", "prepaid_plan", created.ID, fmt.Sprintf("name=%s,price=%d,value=%d", created.Name, created.PricePaid, created.ValueAmount))
	return *created, nil
}

func (s *Service) ListPrepaidPlans(ctx context.Context, storeID string, activeOnly bool) ([]domain.PrepaidPlan, error) {
	return s.repo.ListPrepaidPlans(ctx, s.storeID(storeID), activeOnly)
}

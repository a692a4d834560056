package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"salonkita/backend/internal/cache"
	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/pricing"
	"salonkita/backend/internal/store"
	"salonkita/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	pricer         *pricing.Engine
	balances       cache.BalanceCache
	balanceTTL     time.Duration
	defaultStoreID string
}

func New(repo store.Repository, pricer *pricing.Engine, balances cache.BalanceCache, balanceTTL time.Duration, defaultStoreID string) *Service {
	if pricer == nil {
		pricer = pricing.NewEngine(false)
	}
	if balances == nil {
		balances = cache.NoopBalanceCache{}
	}
	if balanceTTL < 1 {
		balanceTTL = 30 * time.Second
	}
	if defaultStoreID == "" {
		defaultStoreID = "main-salon"
	}

	return &Service{
		repo:           repo,
		pricer:         pricer,
		balances:       balances,
		balanceTTL:     balanceTTL,
		defaultStoreID: defaultStoreID,
	}
}

func (s *Service) storeID(id string) string {
	if id == "" {
		return s.defaultStoreID
	}
	return id
}

// ErrForbidden rejects admin-only operations invoked by other roles.
var ErrForbidden = errors.New("admin role required")

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Store{}, store.ErrValidation
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{Name: req.Name})
	if err != nil {
		return domain.Store{}, err
	}
	s.logAudit(ctx, created.ID, "store_create", "store", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetStore(ctx context.Context, storeID string) (domain.Store, error) {
	st, err := s.repo.GetStore(ctx, s.storeID(storeID))
	if err != nil {
		return domain.Store{}, err
	}
	return *st, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		StoreID: s.storeID(req.StoreID),
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Memo:    strings.TrimSpace(req.Memo),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, created.StoreID, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, storeID string, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, s.storeID(storeID), customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, storeID string, query string, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, s.storeID(storeID), query, limit)
}

// CustomerBalance returns the prepaid and point balances in one snapshot,
// served from cache when a fresh entry exists. Ledger writers invalidate on
// append, so a hit is at worst one TTL stale after an unrelated writer.
func (s *Service) CustomerBalance(ctx context.Context, storeID string, customerID string) (domain.CustomerBalance, error) {
	storeID = s.storeID(storeID)

	if cached, ok, err := s.balances.Get(ctx, storeID, customerID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: balance cache get customer=%s: %v", customerID, err)
	}

	if _, err := s.repo.GetCustomer(ctx, storeID, customerID); err != nil {
		return domain.CustomerBalance{}, err
	}
	prepaid, err := s.repo.PrepaidBalance(ctx, storeID, customerID)
	if err != nil {
		return domain.CustomerBalance{}, err
	}
	points, err := s.repo.PointBalance(ctx, storeID, customerID)
	if err != nil {
		return domain.CustomerBalance{}, err
	}

	balance := domain.CustomerBalance{
		CustomerID:     customerID,
		PointBalance:   points,
		PrepaidBalance: prepaid,
	}
	if err := s.balances.Set(ctx, storeID, customerID, &balance, s.balanceTTL); err != nil {
		log.Printf("[service] WARN: balance cache set customer=%s: %v", customerID, err)
	}
	return balance, nil
}

func (s *Service) invalidateBalance(ctx context.Context, storeID string, customerID string) {
	if err := s.balances.Invalidate(ctx, storeID, customerID); err != nil {
		log.Printf("[service] WARN: balance cache invalidate customer=%s: %v", customerID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, -1, 0)
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, s.storeID(storeID), from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}

package cache

import (
	"context"
	"time"

	"salonkita/backend/internal/domain"
)

// BalanceCache holds read-side snapshots of a customer's prepaid and point
// balances. Writers to either ledger must invalidate; stale entries are
// otherwise served until TTL expiry.
type BalanceCache interface {
	Get(ctx context.Context, storeID string, customerID string) (*domain.CustomerBalance, bool, error)
	Set(ctx context.Context, storeID string, customerID string, value *domain.CustomerBalance, ttl time.Duration) error
	Invalidate(ctx context.Context, storeID string, customerID string) error
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(_ context.Context, _ string, _ string) (*domain.CustomerBalance, bool, error) {
	return nil, false, nil
}

func (NoopBalanceCache) Set(_ context.Context, _ string, _ string, _ *domain.CustomerBalance, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(_ context.Context, _ string, _ string) error {
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salonkita/backend/internal/domain"
)

type RedisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(addr string, password string, db int) *RedisBalanceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBalanceCache{client: client}
}

func (c *RedisBalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

func balanceKey(storeID string, customerID string) string {
	return "balance:" + storeID + ":" + customerID
}

func (c *RedisBalanceCache) Get(ctx context.Context, storeID string, customerID string) (*domain.CustomerBalance, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(storeID, customerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var balance domain.CustomerBalance
	if err := json.Unmarshal([]byte(val), &balance); err != nil {
		return nil, false, err
	}
	return &balance, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, storeID string, customerID string, value *domain.CustomerBalance, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, balanceKey(storeID, customerID), payload, ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, storeID string, customerID string) error {
	return c.client.Del(ctx, balanceKey(storeID, customerID)).Err()
}

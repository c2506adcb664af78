// Package redis caches account balances for admission control. Cached values
// are non-transactional snapshots: two concurrent requests may both pass
// admission against the same stale balance, which the ledger's own
// idempotency makes safe.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
)

const balanceKeyPrefix = "balance:"

// BalanceCache is a read-through cache over the ledger store's balance.
type BalanceCache struct {
	client *redis.Client
	store  domain.LedgerStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewBalanceCache creates a new Redis-backed balance cache.
func NewBalanceCache(
	client *redis.Client,
	store domain.LedgerStore,
	ttl time.Duration,
	logger *zap.Logger,
) *BalanceCache {
	return &BalanceCache{
		client: client,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Balance returns the cached balance, filling from the ledger store on miss.
// Cache errors degrade to a direct store read.
func (c *BalanceCache) Balance(ctx context.Context, billingAccountID string) (int64, error) {
	key := balanceKeyPrefix + billingAccountID

	val, err := c.client.Get(ctx, key).Int64()
	if err == nil {
		return val, nil
	}

	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("balance cache read failed, falling back to store",
			zap.String("billing_account_id", billingAccountID),
			zap.Error(err),
		)
	}

	balance, err := c.store.GetBalance(ctx, billingAccountID)
	if err != nil {
		return 0, err
	}

	if setErr := c.client.Set(ctx, key, balance, c.ttl).Err(); setErr != nil {
		c.logger.Warn("balance cache write failed",
			zap.String("billing_account_id", billingAccountID),
			zap.Error(setErr),
		)
	}

	return balance, nil
}

// Invalidate drops the cached balance for an account.
func (c *BalanceCache) Invalidate(ctx context.Context, billingAccountID string) {
	if err := c.client.Del(ctx, balanceKeyPrefix+billingAccountID).Err(); err != nil {
		c.logger.Warn("balance cache invalidation failed",
			zap.String("billing_account_id", billingAccountID),
			zap.Error(err),
		)
	}
}

// Package admission rejects under-funded callers before any provider call is
// made. The check is advisory: it reads a cached balance snapshot and holds
// no reservation, so concurrent requests can both pass against the same
// stale balance. The ledger stays correct regardless.
package admission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/pricing"
)

const tokensPerK = 1000.0

// Controller performs pre-flight cost estimation.
type Controller struct {
	cfg      *config.AdmissionConfig
	balances domain.BalanceSource
	policy   *pricing.Policy
	logger   *zap.Logger
}

// NewController creates a new admission controller (DI constructor).
func NewController(
	cfg *config.AdmissionConfig,
	balances domain.BalanceSource,
	policy *pricing.Policy,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		cfg:      cfg,
		balances: balances,
		policy:   policy,
		logger:   logger,
	}
}

// Check estimates the cost of a run and rejects it when the caller's cached
// balance cannot cover it. Returns *domain.InsufficientCreditsError on
// rejection.
func (c *Controller) Check(
	ctx context.Context,
	caller domain.CallerIdentity,
	messages []domain.Message,
) error {
	required := c.EstimateCredits(messages)

	available, err := c.balances.Balance(ctx, caller.BillingAccountID)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	if required > available {
		c.logger.Info("request rejected by admission control",
			zap.String("billing_account_id", caller.BillingAccountID),
			zap.Int64("required_credits", required),
			zap.Int64("available_credits", available),
		)
		return &domain.InsufficientCreditsError{
			Required:  required,
			Available: available,
		}
	}

	c.logger.Debug("request admitted",
		zap.String("billing_account_id", caller.BillingAccountID),
		zap.Int64("required_credits", required),
		zap.Int64("available_credits", available),
	)

	return nil
}

// EstimateCredits converts the prompt's character count plus a fixed
// completion-token ceiling into credits at a conservative flat rate. The
// pricing policy's markup is included so the estimate matches what would
// actually be charged.
func (c *Controller) EstimateCredits(messages []domain.Message) int64 {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}

	promptTokens := chars / c.cfg.CharsPerToken
	totalTokens := promptTokens + c.cfg.CompletionTokenCeiling

	estimatedUSD := float64(totalTokens) / tokensPerK * c.cfg.FlatUSDPer1KTokens

	return c.policy.Charge(estimatedUSD).ChargedCredits
}

// StoreBalanceSource adapts a ledger store into a BalanceSource for
// deployments running without the Redis cache.
type StoreBalanceSource struct {
	store domain.LedgerStore
}

// NewStoreBalanceSource creates a direct, uncached balance source.
func NewStoreBalanceSource(store domain.LedgerStore) *StoreBalanceSource {
	return &StoreBalanceSource{store: store}
}

// Balance reads the balance straight from the ledger store.
func (s *StoreBalanceSource) Balance(ctx context.Context, billingAccountID string) (int64, error) {
	return s.store.GetBalance(ctx, billingAccountID)
}

// Package ledger converts usage facts into durable charge receipts. Every
// billable unit gets exactly one receipt, zero-credit units included; the
// store's unique constraint on (source_system, source_reference) absorbs
// retries and duplicate delivery.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/pricing"
)

// FreeModelCatalog answers whether a model is billed at zero credits.
// Implemented by the pricing registry.
type FreeModelCatalog interface {
	IsFree(ctx context.Context, model string) bool
}

// Service is the idempotent charge-receipt writer.
type Service struct {
	store   domain.LedgerStore
	policy  *pricing.Policy
	catalog FreeModelCatalog
	strict  bool
	logger  *zap.Logger
}

// NewService creates a billing ledger service. With strict enabled, write
// failures are returned instead of swallowed; production runs with strict
// off so billing breakage never blocks an already-delivered model response.
func NewService(
	store domain.LedgerStore,
	policy *pricing.Policy,
	catalog FreeModelCatalog,
	strict bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:   store,
		policy:  policy,
		catalog: catalog,
		strict:  strict,
		logger:  logger,
	}
}

// CommitUsageFact prices one billable unit of a run and writes its receipt.
// ordinal is the unit's position within the run, used only to derive a
// deterministic fallback when the adapter omitted a usage unit id.
func (s *Service) CommitUsageFact(ctx context.Context, fact *domain.UsageFact, ordinal int) error {
	if fact == nil {
		return errors.New("usage fact cannot be nil")
	}

	logger := s.logger.With(
		zap.String("run_id", fact.RunID),
		zap.Int("attempt", fact.Attempt),
		zap.Int("ordinal", ordinal),
		zap.String("model", fact.Model),
	)

	unitID := fact.UsageUnitID
	if unitID == "" {
		unitID = fmt.Sprintf("MISSING:%s/%d", fact.RunID, ordinal)
		logger.Error("usage fact missing unit id, substituting deterministic fallback",
			zap.String("fallback_unit_id", unitID),
		)
	}

	charge := s.price(ctx, fact.Model, fact.CostUSD, logger)

	receipt := &domain.ChargeReceipt{
		BillingAccountID: fact.BillingAccountID,
		VirtualKeyID:     fact.VirtualKeyID,
		RunID:            fact.RunID,
		Attempt:          fact.Attempt,
		IngressRequestID: fact.IngressRequestID,
		ChargedCredits:   charge.ChargedCredits,
		ResponseCostUSD:  fact.CostUSD,
		ProviderCallID:   fact.UsageUnitID,
		Provenance:       domain.ProvenanceStreamed,
		ChargeReason:     domain.ChargeReasonLLMUsage,
		SourceSystem:     domain.SourceSystemGraphRun,
		SourceReference:  fmt.Sprintf("%s/%d/%s", fact.RunID, fact.Attempt, unitID),
	}

	return s.write(ctx, receipt, logger)
}

// CompletionBilling carries the billing context of one single-shot completion.
type CompletionBilling struct {
	Caller         domain.CallerIdentity
	Model          string
	ProviderCallID string
	CostUSD        *float64
}

// RecordBilling writes the receipt for a single-shot completion. The provider
// call id is the idempotency reference; when the provider omitted it, the
// ingress request id substitutes and the defect is logged.
func (s *Service) RecordBilling(ctx context.Context, billing *CompletionBilling) error {
	if billing == nil {
		return errors.New("completion billing cannot be nil")
	}

	logger := s.logger.With(
		zap.String("request_id", billing.Caller.RequestID),
		zap.String("model", billing.Model),
	)

	ref := billing.ProviderCallID
	if ref == "" {
		ref = billing.Caller.RequestID
		logger.Error("provider omitted call id, falling back to request id",
			zap.String("fallback_reference", ref),
		)
	}

	charge := s.price(ctx, billing.Model, billing.CostUSD, logger)

	receipt := &domain.ChargeReceipt{
		BillingAccountID: billing.Caller.BillingAccountID,
		VirtualKeyID:     billing.Caller.VirtualKeyID,
		IngressRequestID: billing.Caller.RequestID,
		ChargedCredits:   charge.ChargedCredits,
		ResponseCostUSD:  billing.CostUSD,
		ProviderCallID:   billing.ProviderCallID,
		Provenance:       domain.ProvenanceSingleShot,
		ChargeReason:     domain.ChargeReasonLLMUsage,
		SourceSystem:     domain.SourceSystemCompletion,
		SourceReference:  ref,
	}

	return s.write(ctx, receipt, logger)
}

// price derives the credit charge for one unit. Free models and missing cost
// data charge zero; the latter is degraded billing, flagged for offline
// reconciliation but never an error.
func (s *Service) price(
	ctx context.Context,
	model string,
	costUSD *float64,
	logger *zap.Logger,
) pricing.Charge {
	switch {
	case s.catalog.IsFree(ctx, model):
		return pricing.Charge{}
	case costUSD == nil:
		logger.Error("CRITICAL: provider cost missing for paid model, charging zero (degraded billing)")
		return pricing.Charge{}
	default:
		return s.policy.Charge(*costUSD)
	}
}

// write records the receipt. Failures are logged at the highest severity and
// swallowed unless strict mode is on.
func (s *Service) write(ctx context.Context, receipt *domain.ChargeReceipt, logger *zap.Logger) error {
	err := s.store.RecordChargeReceipt(ctx, receipt)
	if err == nil {
		logger.Info("charge receipt recorded",
			zap.String("source_reference", receipt.SourceReference),
			zap.Int64("charged_credits", receipt.ChargedCredits),
		)
		return nil
	}

	logger.Error("CRITICAL: charge receipt write failed",
		zap.String("source_system", receipt.SourceSystem),
		zap.String("source_reference", receipt.SourceReference),
		zap.Int64("charged_credits", receipt.ChargedCredits),
		zap.Error(err),
	)

	if s.strict {
		return fmt.Errorf("record charge receipt: %w", err)
	}
	return nil
}

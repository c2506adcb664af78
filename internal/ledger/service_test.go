package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/ledger"
	"github.com/davidbz/hearth/internal/ledger/memory"
	"github.com/davidbz/hearth/internal/pricing"
)

func newTestPolicy(t *testing.T) *pricing.Policy {
	t.Helper()

	policy, err := pricing.NewPolicy(100, 1.5)
	require.NoError(t, err)
	return policy
}

func newTestRegistry(t *testing.T) *pricing.Registry {
	t.Helper()

	registry := pricing.NewRegistry()
	require.NoError(t, registry.Register(context.Background(), "echo4", pricing.ModelPricing{Free: true}))
	require.NoError(t, registry.Register(context.Background(), "gpt-4", pricing.ModelPricing{
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	}))
	return registry
}

func usageFact(unitID string, costUSD *float64) *domain.UsageFact {
	return &domain.UsageFact{
		RunID:            "run-1",
		Attempt:          0,
		BillingAccountID: "acct-1",
		VirtualKeyID:     "vk-1",
		IngressRequestID: "req-1",
		Source:           "openai",
		Model:            "gpt-4",
		CostUSD:          costUSD,
		UsageUnitID:      unitID,
	}
}

func TestService_CommitUsageFact(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.01
	err := svc.CommitUsageFact(context.Background(), usageFact("call-1", &cost), 0)
	require.NoError(t, err)

	receipts := store.Receipts()
	require.Len(t, receipts, 1)

	r := receipts[0]
	require.Equal(t, "acct-1", r.BillingAccountID)
	require.Equal(t, int64(2), r.ChargedCredits) // 0.01 * 1.5 * 100 rounded up
	require.Equal(t, domain.ProvenanceStreamed, r.Provenance)
	require.Equal(t, domain.SourceSystemGraphRun, r.SourceSystem)
	require.Equal(t, "run-1/0/call-1", r.SourceReference)
	require.Equal(t, domain.ChargeReasonLLMUsage, r.ChargeReason)
}

func TestService_CommitUsageFactIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.01
	require.NoError(t, svc.CommitUsageFact(context.Background(), usageFact("call-1", &cost), 0))
	require.NoError(t, svc.CommitUsageFact(context.Background(), usageFact("call-1", &cost), 0))

	require.Len(t, store.Receipts(), 1)

	balance, err := store.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Equal(t, int64(-2), balance)
}

func TestService_CommitUsageFactMissingUnitID(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.01
	require.NoError(t, svc.CommitUsageFact(context.Background(), usageFact("", &cost), 3))

	receipts := store.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, "run-1/0/MISSING:run-1/3", receipts[0].SourceReference)
}

func TestService_CommitUsageFactDegradedBilling(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	// Paid model without cost data: the receipt is still written, at zero
	// credits, so the unit remains visible for reconciliation.
	require.NoError(t, svc.CommitUsageFact(context.Background(), usageFact("call-1", nil), 0))

	receipts := store.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, int64(0), receipts[0].ChargedCredits)
	require.Nil(t, receipts[0].ResponseCostUSD)
}

func TestService_CommitUsageFactFreeModel(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.5
	fact := usageFact("call-1", &cost)
	fact.Model = "echo4"

	require.NoError(t, svc.CommitUsageFact(context.Background(), fact, 0))

	receipts := store.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, int64(0), receipts[0].ChargedCredits)
}

func TestService_CommitUsageFactNil(t *testing.T) {
	svc := ledger.NewService(memory.NewStore(), newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	require.Error(t, svc.CommitUsageFact(context.Background(), nil, 0))
}

// failingStore rejects every write.
type failingStore struct {
	memory.Store
}

func (f *failingStore) RecordChargeReceipt(context.Context, *domain.ChargeReceipt) error {
	return errors.New("database unavailable")
}

func TestService_WriteFailureSwallowedUnlessStrict(t *testing.T) {
	cost := 0.01

	relaxed := ledger.NewService(&failingStore{}, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())
	require.NoError(t, relaxed.CommitUsageFact(context.Background(), usageFact("call-1", &cost), 0))

	strict := ledger.NewService(&failingStore{}, newTestPolicy(t), newTestRegistry(t), true, zap.NewNop())
	err := strict.CommitUsageFact(context.Background(), usageFact("call-1", &cost), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "database unavailable")
}

func TestService_RecordBilling(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.02
	err := svc.RecordBilling(context.Background(), &ledger.CompletionBilling{
		Caller: domain.CallerIdentity{
			BillingAccountID: "acct-1",
			RequestID:        "req-1",
		},
		Model:          "gpt-4",
		ProviderCallID: "chatcmpl-abc",
		CostUSD:        &cost,
	})
	require.NoError(t, err)

	receipts := store.Receipts()
	require.Len(t, receipts, 1)

	r := receipts[0]
	require.Equal(t, domain.ProvenanceSingleShot, r.Provenance)
	require.Equal(t, domain.SourceSystemCompletion, r.SourceSystem)
	require.Equal(t, "chatcmpl-abc", r.SourceReference)
	require.Equal(t, int64(3), r.ChargedCredits) // 0.02 * 1.5 * 100 = 3
}

func TestService_RecordBillingFallsBackToRequestID(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	cost := 0.02
	err := svc.RecordBilling(context.Background(), &ledger.CompletionBilling{
		Caller: domain.CallerIdentity{
			BillingAccountID: "acct-1",
			RequestID:        "req-1",
		},
		Model:   "gpt-4",
		CostUSD: &cost,
	})
	require.NoError(t, err)

	receipts := store.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, "req-1", receipts[0].SourceReference)
}

func TestService_RecordBillingNil(t *testing.T) {
	svc := ledger.NewService(memory.NewStore(), newTestPolicy(t), newTestRegistry(t), false, zap.NewNop())

	require.Error(t, svc.RecordBilling(context.Background(), nil))
}

package domain

import "context"

// Provider executes namespaced graphs and single-shot completions. Every
// provider implements this interface uniformly; the router dispatches on
// Provider.ID rather than probing capabilities.
type Provider interface {
	// ID returns the namespace prefix this provider owns.
	ID() string

	// Graphs returns descriptors for the graphs this provider can run.
	// Descriptor IDs are not yet namespaced; the router adds the prefix.
	Graphs(ctx context.Context) []GraphDescriptor

	// RunGraph starts one graph execution and returns its event stream and
	// future final result. Failure is expressed through the handle, never as
	// a synchronous error.
	RunGraph(ctx context.Context, req *RunRequest) *RunHandle

	// Complete executes a single-shot (non-streamed) completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// LedgerStore persists charge receipts and balances. A second insert with an
// already-stored (SourceSystem, SourceReference) pair must succeed as a no-op.
type LedgerStore interface {
	// RecordChargeReceipt writes one receipt. Duplicate idempotency keys are
	// silently absorbed by the storage layer's unique constraint.
	RecordChargeReceipt(ctx context.Context, receipt *ChargeReceipt) error

	// GetBalance returns the account's current credit balance.
	GetBalance(ctx context.Context, billingAccountID string) (int64, error)

	// ListReceiptsByRun returns the receipts recorded for one run attempt,
	// ordered by source reference. Used for reconciliation.
	ListReceiptsByRun(ctx context.Context, runID string, attempt int) ([]*ChargeReceipt, error)
}

// BalanceSource reads account balances for admission control. Implementations
// may serve cached, non-transactional snapshots; staleness is an accepted
// tradeoff of the advisory admission check.
type BalanceSource interface {
	Balance(ctx context.Context, billingAccountID string) (int64, error)
}

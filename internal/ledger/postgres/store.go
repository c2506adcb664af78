// Package postgres persists charge receipts and balances in PostgreSQL.
// Idempotency is delegated entirely to the unique index on
// (source_system, source_reference): concurrent or repeated writers of the
// same unit need no locking.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/davidbz/hearth/internal/domain"
)

// Store implements domain.LedgerStore on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// NewStore creates a new PostgreSQL ledger store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type receiptRow struct {
	BillingAccountID string   `db:"billing_account_id"`
	VirtualKeyID     string   `db:"virtual_key_id"`
	RunID            string   `db:"run_id"`
	Attempt          int      `db:"attempt"`
	IngressRequestID string   `db:"ingress_request_id"`
	ChargedCredits   int64    `db:"charged_credits"`
	ResponseCostUSD  *float64 `db:"response_cost_usd"`
	ProviderCallID   string   `db:"provider_call_id"`
	Provenance       string   `db:"provenance"`
	ChargeReason     string   `db:"charge_reason"`
	SourceSystem     string   `db:"source_system"`
	SourceReference  string   `db:"source_reference"`
}

const insertReceiptQuery = `
	INSERT INTO charge_receipts (
		billing_account_id, virtual_key_id, run_id, attempt, ingress_request_id,
		charged_credits, response_cost_usd, provider_call_id, provenance,
		charge_reason, source_system, source_reference
	) VALUES (
		:billing_account_id, :virtual_key_id, :run_id, :attempt, :ingress_request_id,
		:charged_credits, :response_cost_usd, :provider_call_id, :provenance,
		:charge_reason, :source_system, :source_reference
	)
	ON CONFLICT (source_system, source_reference) DO NOTHING
`

// RecordChargeReceipt inserts one receipt. A duplicate idempotency key is a
// no-op, not an error.
func (s *Store) RecordChargeReceipt(ctx context.Context, receipt *domain.ChargeReceipt) error {
	row := receiptRow{
		BillingAccountID: receipt.BillingAccountID,
		VirtualKeyID:     receipt.VirtualKeyID,
		RunID:            receipt.RunID,
		Attempt:          receipt.Attempt,
		IngressRequestID: receipt.IngressRequestID,
		ChargedCredits:   receipt.ChargedCredits,
		ResponseCostUSD:  receipt.ResponseCostUSD,
		ProviderCallID:   receipt.ProviderCallID,
		Provenance:       string(receipt.Provenance),
		ChargeReason:     receipt.ChargeReason,
		SourceSystem:     receipt.SourceSystem,
		SourceReference:  receipt.SourceReference,
	}

	if _, err := s.db.NamedExecContext(ctx, insertReceiptQuery, row); err != nil {
		return fmt.Errorf("failed to insert charge receipt: %w", err)
	}

	return nil
}

// GetBalance returns granted credits minus charged credits for the account.
func (s *Store) GetBalance(ctx context.Context, billingAccountID string) (int64, error) {
	query := `
		SELECT COALESCE((
			SELECT SUM(amount_credits) FROM credit_grants
			WHERE billing_account_id = $1
		), 0) - COALESCE((
			SELECT SUM(charged_credits) FROM charge_receipts
			WHERE billing_account_id = $1
		), 0)
	`

	var balance int64
	if err := s.db.GetContext(ctx, &balance, query, billingAccountID); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// ListReceiptsByRun returns the receipts recorded for one run attempt,
// served by the secondary index on (run_id, attempt).
func (s *Store) ListReceiptsByRun(ctx context.Context, runID string, attempt int) ([]*domain.ChargeReceipt, error) {
	query := `
		SELECT billing_account_id, virtual_key_id, run_id, attempt, ingress_request_id,
		       charged_credits, response_cost_usd, provider_call_id, provenance,
		       charge_reason, source_system, source_reference
		FROM charge_receipts
		WHERE run_id = $1 AND attempt = $2
		ORDER BY source_reference
	`

	var rows []receiptRow
	if err := s.db.SelectContext(ctx, &rows, query, runID, attempt); err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	receipts := make([]*domain.ChargeReceipt, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, &domain.ChargeReceipt{
			BillingAccountID: row.BillingAccountID,
			VirtualKeyID:     row.VirtualKeyID,
			RunID:            row.RunID,
			Attempt:          row.Attempt,
			IngressRequestID: row.IngressRequestID,
			ChargedCredits:   row.ChargedCredits,
			ResponseCostUSD:  row.ResponseCostUSD,
			ProviderCallID:   row.ProviderCallID,
			Provenance:       domain.Provenance(row.Provenance),
			ChargeReason:     row.ChargeReason,
			SourceSystem:     row.SourceSystem,
			SourceReference:  row.SourceReference,
		})
	}

	return receipts, nil
}

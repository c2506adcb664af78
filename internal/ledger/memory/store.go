// Package memory provides an in-memory ledger store for tests and
// standalone deployments without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
)

// Store implements domain.LedgerStore in memory. Duplicate idempotency keys
// are absorbed the same way the database's unique constraint would.
type Store struct {
	mu       sync.Mutex
	receipts map[string]*domain.ChargeReceipt // key: source_system + "\x00" + source_reference
	grants   map[string]int64
}

// NewStore creates a new in-memory ledger store.
func NewStore() *Store {
	return &Store{
		receipts: make(map[string]*domain.ChargeReceipt),
		grants:   make(map[string]int64),
	}
}

func receiptKey(sourceSystem, sourceReference string) string {
	return sourceSystem + "\x00" + sourceReference
}

// Grant adds credits to an account. Used to seed balances.
func (s *Store) Grant(billingAccountID string, credits int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[billingAccountID] += credits
}

// RecordChargeReceipt stores one receipt; a duplicate key is a no-op.
func (s *Store) RecordChargeReceipt(_ context.Context, receipt *domain.ChargeReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := receiptKey(receipt.SourceSystem, receipt.SourceReference)
	if _, exists := s.receipts[key]; exists {
		return nil
	}

	stored := *receipt
	s.receipts[key] = &stored
	return nil
}

// GetBalance returns granted credits minus charged credits.
func (s *Store) GetBalance(_ context.Context, billingAccountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.grants[billingAccountID]
	for _, r := range s.receipts {
		if r.BillingAccountID == billingAccountID {
			balance -= r.ChargedCredits
		}
	}

	return balance, nil
}

// ListReceiptsByRun returns receipts for one run attempt ordered by source
// reference.
func (s *Store) ListReceiptsByRun(_ context.Context, runID string, attempt int) ([]*domain.ChargeReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var receipts []*domain.ChargeReceipt
	for _, r := range s.receipts {
		if r.RunID == runID && r.Attempt == attempt {
			stored := *r
			receipts = append(receipts, &stored)
		}
	}

	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].SourceReference < receipts[j].SourceReference
	})

	return receipts, nil
}

// Receipts returns a copy of every stored receipt.
func (s *Store) Receipts() []*domain.ChargeReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts := make([]*domain.ChargeReceipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		stored := *r
		receipts = append(receipts, &stored)
	}
	return receipts
}

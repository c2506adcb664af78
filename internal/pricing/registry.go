package pricing

import (
	"context"
	"errors"
	"sync"
)

// ModelPricing contains per-model pricing information.
type ModelPricing struct {
	InputCostPer1K  float64 // USD per 1K input tokens
	OutputCostPer1K float64 // USD per 1K output tokens
	Free            bool    // free models always charge zero credits
}

// Registry maintains pricing information for models. Providers register their
// models at composition time; the billing ledger consults it for the
// free-model check.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelPricing
}

// NewRegistry creates a new in-memory pricing registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:     sync.RWMutex{},
		models: make(map[string]ModelPricing),
	}
}

// Register adds pricing for a model.
func (r *Registry) Register(_ context.Context, model string, p ModelPricing) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[model] = p
	return nil
}

// Get retrieves pricing for a model.
func (r *Registry) Get(_ context.Context, model string) (ModelPricing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.models[model]
	return p, exists
}

// IsFree reports whether the model is registered as free. Unknown models are
// not free: a paid model missing cost data must take the degraded-billing
// path, not be silently treated as gratis.
func (r *Registry) IsFree(ctx context.Context, model string) bool {
	p, exists := r.Get(ctx, model)
	return exists && p.Free
}

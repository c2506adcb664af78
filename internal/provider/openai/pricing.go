package openai

import (
	"context"
	"fmt"

	"github.com/davidbz/hearth/internal/pricing"
)

// RegisterPricing registers OpenAI model pricing with the registry.
func RegisterPricing(ctx context.Context, registry *pricing.Registry) error {
	for model, cost := range modelCosts() {
		err := registry.Register(ctx, model, pricing.ModelPricing{
			InputCostPer1K:  cost.inputCostPer1K,
			OutputCostPer1K: cost.outputCostPer1K,
		})
		if err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}

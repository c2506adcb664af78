package echograph

import (
	"context"
	"fmt"

	"github.com/davidbz/hearth/internal/pricing"
)

// RegisterPricing registers echo model pricing with the registry. Echo
// models are free; their receipts always carry zero credits.
func RegisterPricing(ctx context.Context, registry *pricing.Registry) error {
	if err := registry.Register(ctx, modelName, pricing.ModelPricing{
		InputCostPer1K:  0,
		OutputCostPer1K: 0,
		Free:            true,
	}); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}
	return nil
}

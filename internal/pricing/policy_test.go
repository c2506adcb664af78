package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/pricing"
)

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name          string
		creditsPerUSD int64
		markup        float64
		wantErr       bool
	}{
		{
			name:          "valid policy",
			creditsPerUSD: 100,
			markup:        1.5,
			wantErr:       false,
		},
		{
			name:          "markup of exactly one is allowed",
			creditsPerUSD: 100,
			markup:        1.0,
			wantErr:       false,
		},
		{
			name:          "markup below one is rejected",
			creditsPerUSD: 100,
			markup:        0.9,
			wantErr:       true,
		},
		{
			name:          "zero credits per USD is rejected",
			creditsPerUSD: 0,
			markup:        1.5,
			wantErr:       true,
		},
		{
			name:          "negative credits per USD is rejected",
			creditsPerUSD: -10,
			markup:        1.5,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := pricing.NewPolicy(tt.creditsPerUSD, tt.markup)

			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, policy)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, policy)
		})
	}
}

func TestPolicy_Charge(t *testing.T) {
	tests := []struct {
		name            string
		creditsPerUSD   int64
		markup          float64
		providerCostUSD float64
		wantCredits     int64
	}{
		{
			name:            "one cent with default markup rounds up",
			creditsPerUSD:   100,
			markup:          1.5,
			providerCostUSD: 0.01,
			wantCredits:     2, // 0.01 * 1.5 * 100 = 1.5, rounded up
		},
		{
			name:            "exact credit amount is not inflated",
			creditsPerUSD:   100,
			markup:          1.0,
			providerCostUSD: 0.02,
			wantCredits:     2,
		},
		{
			name:            "tiny cost still charges one credit",
			creditsPerUSD:   100,
			markup:          1.0,
			providerCostUSD: 0.0001,
			wantCredits:     1,
		},
		{
			name:            "zero cost charges nothing",
			creditsPerUSD:   100,
			markup:          1.5,
			providerCostUSD: 0,
			wantCredits:     0,
		},
		{
			name:            "negative cost charges nothing",
			creditsPerUSD:   100,
			markup:          1.5,
			providerCostUSD: -0.5,
			wantCredits:     0,
		},
		{
			name:            "large cost scales linearly",
			creditsPerUSD:   100,
			markup:          2.0,
			providerCostUSD: 10.0,
			wantCredits:     2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := pricing.NewPolicy(tt.creditsPerUSD, tt.markup)
			require.NoError(t, err)

			charge := policy.Charge(tt.providerCostUSD)

			require.Equal(t, tt.wantCredits, charge.ChargedCredits)
		})
	}
}

func TestPolicy_ChargeNeverUndersells(t *testing.T) {
	policy, err := pricing.NewPolicy(100, 1.5)
	require.NoError(t, err)

	// Credits, converted back into USD, must always cover the provider cost.
	for _, cost := range []float64{0.0001, 0.0033, 0.01, 0.07, 1.23, 99.99} {
		charge := policy.Charge(cost)

		credited := float64(charge.ChargedCredits) / float64(policy.CreditsPerUSD())
		require.GreaterOrEqual(t, credited, cost, "cost %f", cost)
	}
}

func TestPolicy_CreditsPerUSD(t *testing.T) {
	policy, err := pricing.NewPolicy(250, 1.0)
	require.NoError(t, err)

	require.Equal(t, int64(250), policy.CreditsPerUSD())
}

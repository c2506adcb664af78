// Package pricing converts provider-reported cost into the credits charged to
// callers. Charge amounts are fixed-point integers; floating point never
// touches a ledger value.
package pricing

import (
	"errors"
	"math"
)

// Charge is the outcome of pricing one unit of provider usage.
type Charge struct {
	ChargedCredits int64
	UserCostUSD    float64
}

// Policy converts provider cost (USD) into charged credits. The markup factor
// must be at least 1.0 so the platform never sells usage below its own cost.
type Policy struct {
	creditsPerUSD int64
	markup        float64
}

// NewPolicy creates a pricing policy.
func NewPolicy(creditsPerUSD int64, markup float64) (*Policy, error) {
	if creditsPerUSD <= 0 {
		return nil, errors.New("credits per USD must be positive")
	}

	if markup < 1.0 {
		return nil, errors.New("markup factor must be at least 1.0")
	}

	return &Policy{
		creditsPerUSD: creditsPerUSD,
		markup:        markup,
	}, nil
}

// Charge prices one unit of provider usage. Credits are rounded up, so
// together with markup >= 1.0 the user price in credits always covers the
// provider cost. Zero or negative input yields a zero charge.
func (p *Policy) Charge(providerCostUSD float64) Charge {
	if providerCostUSD <= 0 {
		return Charge{ChargedCredits: 0, UserCostUSD: 0}
	}

	userCostUSD := providerCostUSD * p.markup
	credits := int64(math.Ceil(userCostUSD * float64(p.creditsPerUSD)))

	return Charge{
		ChargedCredits: credits,
		UserCostUSD:    userCostUSD,
	}
}

// CreditsPerUSD returns the configured conversion rate.
func (p *Policy) CreditsPerUSD() int64 {
	return p.creditsPerUSD
}

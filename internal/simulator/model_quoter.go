package simulator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
	"dexradar/internal/pricing"
)

const defaultModelGasPerLeg = 150_000

var one = decimal.NewFromInt(1)

// ModelQuoter answers quote requests from the in-memory price cache instead
// of an on-chain quoter contract. It applies the venue's swap fee to the
// cached spot price, so the pipeline can simulate end to end without RPC
// access (serve mode, tests, backtesting against recorded prices).
type ModelQuoter struct {
	cache     *pricing.Cache
	venues    map[string]domain.Venue
	gasPerLeg uint64
}

func NewModelQuoter(cache *pricing.Cache, venues map[string]domain.Venue, gasPerLeg uint64) *ModelQuoter {
	if gasPerLeg == 0 {
		gasPerLeg = defaultModelGasPerLeg
	}
	return &ModelQuoter{cache: cache, venues: venues, gasPerLeg: gasPerLeg}
}

func (m *ModelQuoter) QuoteExactInput(_ context.Context, venue, tokenIn, tokenOut string, feeTier int, amountIn decimal.Decimal) (domain.Quote, error) {
	price, ok := m.spotPrice(venue, tokenIn, tokenOut, feeTier)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s %s/%s tier=%d", domain.ErrNoPool, venue, tokenIn, tokenOut, feeTier)
	}
	if price.IsZero() || price.IsNegative() {
		return domain.Quote{}, fmt.Errorf("%w: %s %s/%s", domain.ErrZeroPrice, venue, tokenIn, tokenOut)
	}

	feeRate := m.feeRate(venue, feeTier)
	amountOut := amountIn.Mul(price).Mul(one.Sub(feeRate))
	return domain.Quote{AmountOut: amountOut, GasEstimate: m.gasPerLeg}, nil
}

// spotPrice returns tokenOut per tokenIn, checking both cache orientations.
// Synthetic fallback observations are not quotable: simulating against a
// substituted price would report fills no pool offers.
func (m *ModelQuoter) spotPrice(venue, tokenIn, tokenOut string, feeTier int) (decimal.Decimal, bool) {
	var tier *int
	if feeTier > 0 {
		tier = &feeTier
	}
	if obs, ok := m.cache.Get(venue, tokenIn, tokenOut, tier); ok && !obs.Synthetic() {
		return obs.Price, true
	}
	if obs, ok := m.cache.Get(venue, tokenOut, tokenIn, tier); ok && !obs.Synthetic() && !obs.Price.IsZero() {
		return one.Div(obs.Price), true
	}
	return decimal.Decimal{}, false
}

func (m *ModelQuoter) feeRate(venue string, feeTier int) decimal.Decimal {
	v, ok := m.venues[venue]
	if !ok {
		return decimal.Decimal{}
	}
	return v.TierFeeRate(feeTier)
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PoolStateSource is the price-source collaborator. PoolState returns
// (nil, nil) when the pool does not exist: absence of a pool is a normal,
// non-exceptional result.
type PoolStateSource interface {
	PoolState(ctx context.Context, venue, tokenA, tokenB string, feeTier int) (*PoolState, error)
	Reserves(ctx context.Context, venue, tokenA, tokenB string) (*ReserveSnapshot, error)
}

// GasPriceSource is the gas-price collaborator. Failures must never
// propagate into profit math; the calculator degrades to a cached or
// default value.
type GasPriceSource interface {
	GasPrice(ctx context.Context) (GasQuote, error)
}

// Quoter is the quoting collaborator used by the trade simulator. amountIn
// is in tokenIn units.
type Quoter interface {
	QuoteExactInput(ctx context.Context, venue, tokenIn, tokenOut string, feeTier int, amountIn decimal.Decimal) (Quote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

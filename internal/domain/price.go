package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one normalized price quote from one pool. It is
// immutable once created; a newer observation for the same key supersedes it
// in the price cache.
type PriceObservation struct {
	Venue  string
	TokenA string
	TokenB string
	// FeeTier is zero for constant-fee venues.
	FeeTier int
	// Price is tokenB per tokenA.
	Price decimal.Decimal
	// Mode records how the normalizer produced Price. Fallback-mode
	// observations are synthetic reference substitutions, not market data.
	Mode        NormalizationMode
	BlockHeight uint64
	ObservedAt  time.Time
}

// Age returns how old the observation is relative to now.
func (o PriceObservation) Age(now time.Time) time.Duration {
	return now.Sub(o.ObservedAt)
}

// Synthetic reports whether the price is a fallback substitution rather than
// an observed market quote.
func (o PriceObservation) Synthetic() bool {
	return o.Mode == NormalizationFallback
}

// SamePool reports whether two observations refer to the same underlying
// pool (venue + pair + fee tier).
func (o PriceObservation) SamePool(other PriceObservation) bool {
	return o.Venue == other.Venue &&
		o.TokenA == other.TokenA &&
		o.TokenB == other.TokenB &&
		o.FeeTier == other.FeeTier
}

// NormalizationMode tags how a normalized price was produced, so callers can
// distinguish genuine observed data from corrected or synthetic values.
type NormalizationMode string

const (
	// NormalizationDirect: the scaled on-chain quote was used as-is.
	NormalizationDirect NormalizationMode = "direct"
	// NormalizationInverted: the quote was detected as inverted and the
	// reciprocal was used.
	NormalizationInverted NormalizationMode = "inverted"
	// NormalizationFallback: the quote deviated too far from the reference
	// ratio and a jittered reference value was substituted. This is a
	// degraded-data condition, not a real observation.
	NormalizationFallback NormalizationMode = "fallback"
)

// NormalizedPrice is the output of the price normalizer: a decimal price
// comparable across venues, plus its reciprocal and implied USD prices.
type NormalizedPrice struct {
	TokenA string
	TokenB string
	// Forward is tokenB per tokenA; Reverse is its reciprocal.
	Forward decimal.Decimal
	Reverse decimal.Decimal
	// ImpliedUSDA and ImpliedUSDB are the USD prices implied by the quote
	// and the reference price of the opposite token.
	ImpliedUSDA decimal.Decimal
	ImpliedUSDB decimal.Decimal
	Mode        NormalizationMode
	// FallbackReason is set only when Mode is NormalizationFallback.
	FallbackReason string
}

// PairSpread is the result of comparing two normalized prices for the same
// pair across two sources.
type PairSpread struct {
	BuyVenue   string
	SellVenue  string
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	SpreadPct  decimal.Decimal
	// GrossProfitUSD is the pre-fee profit estimate for the notional the
	// spread was evaluated at.
	GrossProfitUSD decimal.Decimal
	Profitable     bool
	// Reason explains a non-profitable verdict ("spread below minimum",
	// "spread implausibly wide", ...).
	Reason string
}

// PoolState is the raw pricing state returned by the pool collaborator.
type PoolState struct {
	// RawPriceRatio is the venue's native price representation converted to
	// a plain ratio: (sqrtPriceX96/2^96)^2 for concentrated pools,
	// reserve1/reserve0 for constant-product pools. It is NOT decimal-scaled.
	RawPriceRatio decimal.Decimal
	Liquidity     decimal.Decimal
	BlockHeight   uint64
}

// ReserveSnapshot holds raw constant-product pool reserves.
type ReserveSnapshot struct {
	Reserve0    decimal.Decimal
	Reserve1    decimal.Decimal
	BlockHeight uint64
}

// GasQuote is a point-in-time gas price reading. All values are in wei.
type GasQuote struct {
	GasPrice             decimal.Decimal
	MaxFeePerGas         decimal.Decimal
	MaxPriorityFeePerGas decimal.Decimal
}

// Quote is the result of a quoting-collaborator call for one swap leg.
type Quote struct {
	// AmountOut is in tokenOut units.
	AmountOut   decimal.Decimal
	GasEstimate uint64
}

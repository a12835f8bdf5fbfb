// Package pricing implements price normalization and the in-process price
// cache that the arbitrage scanner reads from.
package pricing

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// NormalizerConfig holds the correction thresholds for the normalizer.
type NormalizerConfig struct {
	// MaxDeviationPct: above this deviation from the reference ratio the
	// on-chain quote is treated as unreliable and substituted.
	MaxDeviationPct float64
	// FallbackJitterPct bounds the jitter applied to substituted values so
	// synthetic prices do not collapse to a single constant.
	FallbackJitterPct float64
	// MinSpreadPct / MaxSpreadPct bound CompareSources: a spread below the
	// minimum cannot cover fees, one above the maximum is bad data rather
	// than opportunity.
	MinSpreadPct float64
	MaxSpreadPct float64
}

// Normalizer converts raw on-chain price ratios into decimal prices
// comparable across venues. It is a pure function of its inputs and the
// reference token table; the only side effect is a WARN log on the
// degraded fallback path.
type Normalizer struct {
	tokens       map[string]domain.Token
	maxDeviation decimal.Decimal // fraction, e.g. 0.5
	jitter       float64         // fraction, e.g. 0.02
	minSpreadPct decimal.Decimal
	maxSpreadPct decimal.Decimal
	logger       *slog.Logger
}

// NewNormalizer creates a Normalizer over the given reference token table.
func NewNormalizer(tokens map[string]domain.Token, cfg NormalizerConfig, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		tokens:       tokens,
		maxDeviation: decimal.NewFromFloat(cfg.MaxDeviationPct).Div(hundred),
		jitter:       cfg.FallbackJitterPct / 100,
		minSpreadPct: decimal.NewFromFloat(cfg.MinSpreadPct),
		maxSpreadPct: decimal.NewFromFloat(cfg.MaxSpreadPct),
		logger:       logger.With(slog.String("component", "normalizer")),
	}
}

// Normalize converts a raw venue quote (tokenB per tokenA in on-chain
// integer representation) into a normalized decimal price.
//
// Steps, in order:
//  1. decimal-scaling correction: the raw ratio carries a factor of
//     10^(decimalsB - decimalsA) relative to the human price (reserve
//     quotients and sqrt-price squares are ratios of raw integer amounts),
//     so divide it out;
//  2. inversion heuristic: if the reciprocal of the scaled price is closer
//     to the reference ratio than the scaled price itself, the quote is
//     inverted and the reciprocal is used;
//  3. sanity clamp: if the corrected price still deviates from the
//     reference ratio by more than the configured maximum, a jittered
//     reference value is substituted and the result is tagged
//     NormalizationFallback so callers can tell synthetic data from real.
func (n *Normalizer) Normalize(tokenA, tokenB string, raw decimal.Decimal) (domain.NormalizedPrice, error) {
	ta, ok := n.tokens[tokenA]
	if !ok {
		return domain.NormalizedPrice{}, fmt.Errorf("normalize %s/%s: %w: %s", tokenA, tokenB, domain.ErrUnsupportedToken, tokenA)
	}
	tb, ok := n.tokens[tokenB]
	if !ok {
		return domain.NormalizedPrice{}, fmt.Errorf("normalize %s/%s: %w: %s", tokenA, tokenB, domain.ErrUnsupportedToken, tokenB)
	}
	if !raw.IsPositive() {
		return domain.NormalizedPrice{}, fmt.Errorf("normalize %s/%s: %w", tokenA, tokenB, domain.ErrZeroPrice)
	}

	// Decimal-scaling correction. Omitting this produces prices wrong by
	// orders of magnitude, so it is unconditional.
	scaled := raw.Div(decimal.New(1, int32(tb.Decimals-ta.Decimals)))

	expected := ta.USDPrice.Div(tb.USDPrice)
	reciprocal := one.Div(scaled)

	price := scaled
	mode := domain.NormalizationDirect
	if scaled.Sub(expected).Abs().GreaterThan(reciprocal.Sub(expected).Abs()) {
		price = reciprocal
		mode = domain.NormalizationInverted
	}

	var reason string
	deviation := price.Sub(expected).Abs().Div(expected)
	if deviation.GreaterThan(n.maxDeviation) {
		reason = fmt.Sprintf("quote deviates %s%% from reference ratio %s",
			deviation.Mul(hundred).Truncate(2), expected.Truncate(8))
		jitter := decimal.NewFromFloat(1 + (rand.Float64()*2-1)*n.jitter)
		price = expected.Mul(jitter)
		mode = domain.NormalizationFallback
		n.logger.Warn("substituting reference price for unreliable on-chain quote",
			slog.String("pair", tokenA+"/"+tokenB),
			slog.String("scaled", scaled.String()),
			slog.String("expected", expected.String()),
			slog.String("reason", reason),
		)
	}

	reverse := one.Div(price)
	return domain.NormalizedPrice{
		TokenA:         tokenA,
		TokenB:         tokenB,
		Forward:        price,
		Reverse:        reverse,
		ImpliedUSDA:    price.Mul(tb.USDPrice),
		ImpliedUSDB:    reverse.Mul(ta.USDPrice),
		Mode:           mode,
		FallbackReason: reason,
	}, nil
}

// SourceQuote is one venue's normalized forward price for a pair, used by
// CompareSources.
type SourceQuote struct {
	Venue string
	Price decimal.Decimal
}

// CompareSources takes two normalized prices for the same pair and a trade
// notional and determines the buy side (cheaper), the sell side (dearer),
// the percentage spread, and whether the spread sits inside the plausible
// profitability band. Spreads outside [MinSpreadPct, MaxSpreadPct] are
// rejected with a reason: real cross-venue spreads on liquid pairs rarely
// exceed low single digits, so a wider one indicates bad data.
func (n *Normalizer) CompareSources(a, b SourceQuote, notionalUSD decimal.Decimal) domain.PairSpread {
	buy, sell := a, b
	if b.Price.LessThan(a.Price) {
		buy, sell = b, a
	}

	out := domain.PairSpread{
		BuyVenue:  buy.Venue,
		SellVenue: sell.Venue,
		BuyPrice:  buy.Price,
		SellPrice: sell.Price,
	}
	if !buy.Price.IsPositive() {
		out.Reason = "buy price is zero or negative"
		return out
	}

	out.SpreadPct = sell.Price.Sub(buy.Price).Div(buy.Price).Mul(hundred)
	out.GrossProfitUSD = notionalUSD.Mul(out.SpreadPct).Div(hundred)

	switch {
	case out.SpreadPct.LessThan(n.minSpreadPct):
		out.Reason = fmt.Sprintf("spread %s%% below minimum %s%%", out.SpreadPct.Truncate(4), n.minSpreadPct)
	case out.SpreadPct.GreaterThan(n.maxSpreadPct):
		out.Reason = fmt.Sprintf("spread %s%% above plausible maximum %s%%, likely bad data", out.SpreadPct.Truncate(4), n.maxSpreadPct)
	default:
		out.Profitable = true
	}
	return out
}

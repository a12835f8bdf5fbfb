package pricing

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func testTokens() map[string]domain.Token {
	return map[string]domain.Token{
		"WETH": {Symbol: "WETH", Decimals: 18, USDPrice: decimal.NewFromInt(2650)},
		"USDT": {Symbol: "USDT", Decimals: 6, USDPrice: decimal.NewFromInt(1)},
	}
}

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cfg := NormalizerConfig{
		MaxDeviationPct:   50,
		FallbackJitterPct: 2,
		MinSpreadPct:      0.01,
		MaxSpreadPct:      2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNormalizer(testTokens(), cfg, logger)
}

func TestNormalizeDirect(t *testing.T) {
	n := testNormalizer(t)

	// A WETH/USDT reserve ratio carries 10^(6-18): 2650 human is 2.65e-9 raw.
	raw := decimal.New(265, -11)
	got, err := n.Normalize("WETH", "USDT", raw)
	require.NoError(t, err)

	assert.Equal(t, domain.NormalizationDirect, got.Mode)
	assert.True(t, got.Forward.Equal(decimal.NewFromInt(2650)), "forward = %s", got.Forward)
	assert.Empty(t, got.FallbackReason)

	roundTrip := got.Forward.Mul(got.Reverse)
	assert.True(t, roundTrip.Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.New(1, -8)),
		"forward*reverse = %s", roundTrip)

	assert.True(t, got.ImpliedUSDA.Equal(decimal.NewFromInt(2650)), "implied USD A = %s", got.ImpliedUSDA)
}

func TestNormalizeInverted(t *testing.T) {
	n := testNormalizer(t)

	// Raw quote delivered USDT-per-WETH... upside down: scaled lands at
	// 1/2650, whose reciprocal is far closer to the reference ratio.
	raw := decimal.NewFromInt(1).Div(decimal.NewFromInt(2650)).Mul(decimal.New(1, -12))
	got, err := n.Normalize("WETH", "USDT", raw)
	require.NoError(t, err)

	assert.Equal(t, domain.NormalizationInverted, got.Mode)
	deviation := got.Forward.Sub(decimal.NewFromInt(2650)).Abs().Div(decimal.NewFromInt(2650))
	assert.True(t, deviation.LessThan(decimal.NewFromFloat(0.01)), "forward = %s", got.Forward)
}

func TestNormalizeFallback(t *testing.T) {
	n := testNormalizer(t)

	// Scales to 10, hopeless in either orientation against 2650.
	raw := decimal.New(1, -11)
	got, err := n.Normalize("WETH", "USDT", raw)
	require.NoError(t, err)

	assert.Equal(t, domain.NormalizationFallback, got.Mode)
	assert.NotEmpty(t, got.FallbackReason)

	// Substituted value is the reference ratio with at most 2% jitter.
	lo := decimal.NewFromFloat(2650 * 0.98)
	hi := decimal.NewFromFloat(2650 * 1.02)
	assert.True(t, got.Forward.GreaterThanOrEqual(lo) && got.Forward.LessThanOrEqual(hi),
		"forward = %s", got.Forward)
}

func TestNormalizeErrors(t *testing.T) {
	n := testNormalizer(t)

	t.Run("unknown token", func(t *testing.T) {
		_, err := n.Normalize("WETH", "SHIB", decimal.NewFromInt(1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnsupportedToken))

		_, err = n.Normalize("SHIB", "USDT", decimal.NewFromInt(1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnsupportedToken))
	})

	t.Run("non-positive raw price", func(t *testing.T) {
		_, err := n.Normalize("WETH", "USDT", decimal.Zero)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrZeroPrice))

		_, err = n.Normalize("WETH", "USDT", decimal.NewFromInt(-1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrZeroPrice))
	})
}

func TestCompareSources(t *testing.T) {
	n := testNormalizer(t)
	notional := decimal.NewFromInt(1000)

	t.Run("profitable spread inside band", func(t *testing.T) {
		got := n.CompareSources(
			SourceQuote{Venue: "uniswap", Price: decimal.NewFromInt(2660)},
			SourceQuote{Venue: "sushiswap", Price: decimal.NewFromInt(2645)},
			notional,
		)
		assert.Equal(t, "sushiswap", got.BuyVenue)
		assert.Equal(t, "uniswap", got.SellVenue)
		assert.True(t, got.Profitable)
		assert.Empty(t, got.Reason)

		// spread = 15/2645*100 ~= 0.5671%, gross ~= $5.67 on $1000.
		assert.True(t, got.SpreadPct.Sub(decimal.NewFromFloat(0.5671)).Abs().LessThan(decimal.NewFromFloat(0.001)),
			"spread = %s", got.SpreadPct)
		assert.True(t, got.GrossProfitUSD.Sub(decimal.NewFromFloat(5.67)).Abs().LessThan(decimal.NewFromFloat(0.01)),
			"gross = %s", got.GrossProfitUSD)
	})

	t.Run("spread below minimum", func(t *testing.T) {
		got := n.CompareSources(
			SourceQuote{Venue: "uniswap", Price: decimal.NewFromInt(2650)},
			SourceQuote{Venue: "sushiswap", Price: decimal.NewFromFloat(2650.1)},
			notional,
		)
		assert.False(t, got.Profitable)
		assert.NotEmpty(t, got.Reason)
	})

	t.Run("spread above plausible maximum", func(t *testing.T) {
		got := n.CompareSources(
			SourceQuote{Venue: "uniswap", Price: decimal.NewFromInt(2000)},
			SourceQuote{Venue: "sushiswap", Price: decimal.NewFromInt(2650)},
			notional,
		)
		assert.False(t, got.Profitable)
		assert.NotEmpty(t, got.Reason)
	})

	t.Run("zero buy price", func(t *testing.T) {
		got := n.CompareSources(
			SourceQuote{Venue: "uniswap", Price: decimal.Zero},
			SourceQuote{Venue: "sushiswap", Price: decimal.NewFromInt(2650)},
			notional,
		)
		assert.False(t, got.Profitable)
		assert.NotEmpty(t, got.Reason)
	})
}

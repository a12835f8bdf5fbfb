// Package profit turns raw price spreads into fee- and gas-adjusted profit
// figures. All monetary math is arbitrary-precision decimal; nothing in this
// package uses floating point beyond initial configuration conversion.
package profit

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	three    = decimal.NewFromInt(3)
	hundred  = decimal.NewFromInt(100)
	tenK     = decimal.NewFromInt(10_000)
	weiInEth = decimal.New(1, 18)
)

// Config holds the fee/gas model parameters for the calculator.
type Config struct {
	// SwapFeeRate is the per-leg swap fee fraction (0.003 = 0.3%).
	SwapFeeRate decimal.Decimal
	// GasBufferPct inflates the gas estimate as a safety margin.
	GasBufferPct decimal.Decimal
	// GasLimitSwap covers a two-leg simple trade's single-swap gas; the
	// simple trade spends it twice. GasLimitTriangular covers the whole
	// 3-leg route.
	GasLimitSwap       uint64
	GasLimitTriangular uint64
	// NativeUSDPrice converts wei-denominated gas costs to USD.
	NativeUSDPrice decimal.Decimal
	// Coarse price-impact model: impact = base + notional/10k * slope. This
	// is deliberately not a liquidity-curve integration; pool depth is not
	// modeled precisely enough to justify one.
	ImpactBasePct      decimal.Decimal
	ImpactPctPer10kUSD decimal.Decimal
	// TradeSizeLadder is the USD grid searched by OptimalTradeSize.
	TradeSizeLadder []decimal.Decimal
	MaxTradeSizeUSD decimal.Decimal
}

// Result is a fee-adjusted profit evaluation. NetProfitUSD always equals
// GrossProfitUSD - TotalFeesUSD, and TotalFeesUSD always equals
// SwapFeesUSD + GasCostUSD; both are computed that way, never independently.
type Result struct {
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	GrossProfitUSD decimal.Decimal `json:"gross_profit_usd"`
	SwapFeesUSD    decimal.Decimal `json:"swap_fees_usd"`
	GasCostUSD     decimal.Decimal `json:"gas_cost_usd"`
	TotalFeesUSD   decimal.Decimal `json:"total_fees_usd"`
	NetProfitUSD   decimal.Decimal `json:"net_profit_usd"`
	ROIPct         decimal.Decimal `json:"roi_pct"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
}

// FeeBreakdown converts the result's itemized fees to domain form.
func (r Result) FeeBreakdown() domain.FeeBreakdown {
	return domain.FeeBreakdown{
		SwapFeesUSD: r.SwapFeesUSD,
		GasCostUSD:  r.GasCostUSD,
		TotalUSD:    r.TotalFeesUSD,
	}
}

// TruncateDisplay truncates every monetary figure to cents. Truncation
// (never rounding up) biases the displayed estimate toward understating
// profit.
func (r Result) TruncateDisplay() Result {
	return Result{
		NotionalUSD:    r.NotionalUSD.Truncate(2),
		GrossProfitUSD: r.GrossProfitUSD.Truncate(2),
		SwapFeesUSD:    r.SwapFeesUSD.Truncate(2),
		GasCostUSD:     r.GasCostUSD.Truncate(2),
		TotalFeesUSD:   r.TotalFeesUSD.Truncate(2),
		NetProfitUSD:   r.NetProfitUSD.Truncate(2),
		ROIPct:         r.ROIPct.Truncate(4),
		PriceImpactPct: r.PriceImpactPct.Truncate(4),
	}
}

// Calculator computes fee- and gas-adjusted profit for candidates.
type Calculator struct {
	cfg    Config
	gas    *GasTracker
	logger *slog.Logger
}

// NewCalculator creates a Calculator using the given gas tracker.
func NewCalculator(cfg Config, gas *GasTracker, logger *slog.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg,
		gas:    gas,
		logger: logger.With(slog.String("component", "profit_calculator")),
	}
}

// CalculateSimple evaluates a two-leg (buy + sell) trade at the given
// notional and spread percentage. Swap fees are charged on both legs; gas
// covers two single swaps, inflated by the safety buffer.
func (c *Calculator) CalculateSimple(notionalUSD, spreadPct decimal.Decimal) Result {
	gross := notionalUSD.Mul(spreadPct).Div(hundred)
	swapFees := notionalUSD.Mul(c.cfg.SwapFeeRate).Mul(two)
	gasCost := c.gasCostUSD(2 * c.cfg.GasLimitSwap)
	return c.assemble(notionalUSD, gross, swapFees, gasCost)
}

// CalculateTriangular evaluates a 3-leg cycle at the given notional and
// profit-rate percentage (compounded rate minus one, in percent).
func (c *Calculator) CalculateTriangular(notionalUSD, profitRatePct decimal.Decimal) Result {
	gross := notionalUSD.Mul(profitRatePct).Div(hundred)
	swapFees := notionalUSD.Mul(c.cfg.SwapFeeRate).Mul(three)
	gasCost := c.gasCostUSD(c.cfg.GasLimitTriangular)
	return c.assemble(notionalUSD, gross, swapFees, gasCost)
}

func (c *Calculator) assemble(notional, gross, swapFees, gasCost decimal.Decimal) Result {
	totalFees := swapFees.Add(gasCost)
	net := gross.Sub(totalFees)

	roi := decimal.Zero
	if notional.IsPositive() {
		roi = net.Div(notional).Mul(hundred)
	}

	impact := c.cfg.ImpactBasePct.Add(notional.Div(tenK).Mul(c.cfg.ImpactPctPer10kUSD))

	return Result{
		NotionalUSD:    notional,
		GrossProfitUSD: gross,
		SwapFeesUSD:    swapFees,
		GasCostUSD:     gasCost,
		TotalFeesUSD:   totalFees,
		NetProfitUSD:   net,
		ROIPct:         roi,
		PriceImpactPct: impact,
	}
}

// gasCostUSD converts a gas limit to USD at the tracker's current price,
// inflated by the configured buffer.
func (c *Calculator) gasCostUSD(gasLimit uint64) decimal.Decimal {
	wei := c.gas.GasPriceWei().Mul(decimal.NewFromUint64(gasLimit))
	usd := wei.Div(weiInEth).Mul(c.cfg.NativeUSDPrice)
	buffer := one.Add(c.cfg.GasBufferPct.Div(hundred))
	return usd.Mul(buffer)
}

// OptimalTradeSize evaluates the given profit function at every ladder size
// (plus the configured maximum) and returns the size with the highest net
// profit. This is a coarse grid search, not a continuous optimizer: pool
// liquidity is not modeled precisely enough to justify one.
func (c *Calculator) OptimalTradeSize(evaluate func(notionalUSD decimal.Decimal) Result) (decimal.Decimal, Result) {
	sizes := make([]decimal.Decimal, 0, len(c.cfg.TradeSizeLadder)+1)
	sizes = append(sizes, c.cfg.TradeSizeLadder...)
	if c.cfg.MaxTradeSizeUSD.IsPositive() {
		last := decimal.Zero
		if len(sizes) > 0 {
			last = sizes[len(sizes)-1]
		}
		if c.cfg.MaxTradeSizeUSD.GreaterThan(last) {
			sizes = append(sizes, c.cfg.MaxTradeSizeUSD)
		}
	}
	if len(sizes) == 0 {
		return decimal.Zero, Result{}
	}

	bestSize := sizes[0]
	bestResult := evaluate(sizes[0])
	for _, size := range sizes[1:] {
		r := evaluate(size)
		if r.NetProfitUSD.GreaterThan(bestResult.NetProfitUSD) {
			bestSize = size
			bestResult = r
		}
	}
	return bestSize, bestResult
}

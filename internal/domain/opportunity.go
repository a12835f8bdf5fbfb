package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityType tags the candidate variant.
type OpportunityType string

const (
	OpportunitySimple     OpportunityType = "simple"
	OpportunityTriangular OpportunityType = "triangular"
)

// OpportunityStatus is the candidate lifecycle state.
type OpportunityStatus string

const (
	StatusDetected     OpportunityStatus = "detected"
	StatusSimulated    OpportunityStatus = "simulated"
	StatusProfitable   OpportunityStatus = "profitable"
	StatusUnprofitable OpportunityStatus = "unprofitable"
	StatusExpired      OpportunityStatus = "expired"
	StatusExecuted     OpportunityStatus = "executed"
	StatusFailed       OpportunityStatus = "failed"
)

// Terminal reports whether the status is final and the candidate is eligible
// for retention purge.
func (s OpportunityStatus) Terminal() bool {
	switch s {
	case StatusExpired, StatusExecuted, StatusFailed:
		return true
	default:
		return false
	}
}

// TradeLeg is one swap in a candidate's execution path.
type TradeLeg struct {
	Venue    string `json:"venue"`
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	FeeTier  int    `json:"fee_tier"`
	// Price is tokenOut per tokenIn at detection time.
	Price       decimal.Decimal `json:"price"`
	NotionalUSD decimal.Decimal `json:"notional_usd"`
}

// FeeBreakdown itemizes the costs of a candidate. Each component is computed
// independently; TotalUSD is always their sum, never inferred by subtraction.
type FeeBreakdown struct {
	SwapFeesUSD decimal.Decimal `json:"swap_fees_usd"`
	GasCostUSD  decimal.Decimal `json:"gas_cost_usd"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
}

// OpportunityCandidate is a detected arbitrage opportunity moving through
// the detect -> calculate -> simulate pipeline. The Simple variant carries
// buy/sell venue fields; the Triangular variant carries per-leg prices in
// Legs. Both variants always satisfy NetProfitUSD = GrossProfitUSD -
// Fees.TotalUSD.
type OpportunityCandidate struct {
	ID   string          `json:"id"`
	Type OpportunityType `json:"type"`
	// Path is the ordered token symbols; triangular paths cycle back to the
	// origin token (e.g. USDC, WETH, WBTC, USDC).
	Path []string   `json:"path"`
	Legs []TradeLeg `json:"legs"`

	// Simple-variant fields.
	BuyVenue    string          `json:"buy_venue,omitempty"`
	SellVenue   string          `json:"sell_venue,omitempty"`
	BuyFeeTier  int             `json:"buy_fee_tier,omitempty"`
	SellFeeTier int             `json:"sell_fee_tier,omitempty"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`

	SpreadPct      decimal.Decimal `json:"spread_pct"`
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	GrossProfitUSD decimal.Decimal `json:"gross_profit_usd"`
	Fees           FeeBreakdown    `json:"fees"`
	NetProfitUSD   decimal.Decimal `json:"net_profit_usd"`
	ROIPct         decimal.Decimal `json:"roi_pct"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`

	Status     OpportunityStatus `json:"status"`
	Simulation *SimulationResult `json:"simulation,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ExpiresAt returns the instant the candidate goes stale.
func (c OpportunityCandidate) ExpiresAt(maxAge time.Duration) time.Time {
	return c.CreatedAt.Add(maxAge)
}

// LegResult is the simulated outcome of one swap leg.
type LegResult struct {
	Venue      string          `json:"venue"`
	TokenIn    string          `json:"token_in"`
	TokenOut   string          `json:"token_out"`
	AmountIn   decimal.Decimal `json:"amount_in"`
	AmountOut  decimal.Decimal `json:"amount_out"`
	GasUsed    uint64          `json:"gas_used"`
	GasCostUSD decimal.Decimal `json:"gas_cost_usd"`
}

// SimulationResult captures a full leg-chained simulation of a candidate.
// It is owned by the candidate it was computed for.
type SimulationResult struct {
	Success bool        `json:"success"`
	Legs    []LegResult `json:"legs"`
	// FinalAmountUSD is the USD value of the output of the last leg.
	FinalAmountUSD decimal.Decimal `json:"final_amount_usd"`
	TotalGasUSD    decimal.Decimal `json:"total_gas_usd"`
	NetProfitUSD   decimal.Decimal `json:"net_profit_usd"`
	Profitable     bool            `json:"profitable"`
	// SlippagePct is set when the result is a slippage-adjusted variant.
	SlippagePct decimal.Decimal `json:"slippage_pct"`
	Error       string          `json:"error,omitempty"`
	SimulatedAt time.Time       `json:"simulated_at"`
}

// SlippageReport pairs a base simulation with its slippage-adjusted variant
// so callers can compare the two.
type SlippageReport struct {
	Base        SimulationResult `json:"base"`
	Adjusted    SimulationResult `json:"adjusted"`
	SlippagePct decimal.Decimal  `json:"slippage_pct"`
}

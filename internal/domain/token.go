package domain

import "github.com/shopspring/decimal"

// Token describes a supported ERC-20 token: its on-chain decimal precision
// and a reference USD price used to sanity-check on-chain quotes.
type Token struct {
	Symbol   string
	Address  string
	Decimals int
	// USDPrice is the reference price used by the normalizer to detect
	// inverted or implausible on-chain quotes. It is configuration data,
	// not a live feed.
	USDPrice decimal.Decimal
}

// VenueKind distinguishes pool pricing models.
type VenueKind string

const (
	// VenueKindConstantProduct covers Uniswap-V2-style reserve-ratio pools.
	VenueKindConstantProduct VenueKind = "constant_product"
	// VenueKindConcentrated covers Uniswap-V3-style sqrt-price pools with
	// per-pool fee tiers.
	VenueKindConcentrated VenueKind = "concentrated"
)

// Venue is a decentralized exchange quoting prices for token pairs.
type Venue struct {
	Name string
	Kind VenueKind
	// Priority breaks ties deterministically when two venues quote the same
	// price; lower wins.
	Priority int
	// SwapFeeRate is the per-leg swap fee as a fraction (0.003 = 0.3%).
	// Concentrated venues override this per fee tier.
	SwapFeeRate decimal.Decimal
	// FeeTiers lists supported fee tiers in hundredths of a bip (500 =
	// 0.05%). Empty for constant-fee venues.
	FeeTiers []int
	// Contract addresses for the chain collaborator. Unused in offline mode.
	FactoryAddress string
	QuoterAddress  string
}

// TierFeeRate returns the swap fee fraction for a fee tier, falling back to
// the venue's flat rate when the tier is zero (constant-fee venues).
func (v Venue) TierFeeRate(feeTier int) decimal.Decimal {
	if feeTier <= 0 {
		return v.SwapFeeRate
	}
	// Fee tiers are expressed in hundredths of a bip: 3000 -> 0.003.
	return decimal.New(int64(feeTier), -6)
}

// Pair is an ordered token pair; prices for the pair are quoted as "Quote
// per Base" (tokenB per tokenA).
type Pair struct {
	Base  string
	Quote string
}

// String renders the pair as "BASE/QUOTE".
func (p Pair) String() string { return p.Base + "/" + p.Quote }

// TrianglePath is a 3-token cycle evaluated for triangular arbitrage. The
// cycle runs A -> B -> C -> A.
type TrianglePath struct {
	A string
	B string
	C string
}

// Legs returns the ordered (tokenIn, tokenOut) hops of the cycle.
func (t TrianglePath) Legs() [3]Pair {
	return [3]Pair{
		{Base: t.A, Quote: t.B},
		{Base: t.B, Quote: t.C},
		{Base: t.C, Quote: t.A},
	}
}

// String renders the cycle as "A->B->C->A".
func (t TrianglePath) String() string {
	return t.A + "->" + t.B + "->" + t.C + "->" + t.A
}

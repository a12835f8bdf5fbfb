package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
	"dexradar/internal/profit"
)

var (
	hundred  = decimal.NewFromInt(100)
	weiInEth = decimal.New(1, 18)
)

// Config carries the tunables for the trade simulator.
type Config struct {
	CacheTTL       time.Duration
	CacheSize      int
	QuoteTimeout   time.Duration
	NativeUSDPrice decimal.Decimal
}

// Deps wires the simulator's collaborators.
type Deps struct {
	Quoter domain.Quoter
	Gas    *profit.GasTracker
	Tokens map[string]domain.Token
	Logger *slog.Logger
}

// Simulator replays an opportunity's legs through the quoting collaborator,
// chaining each leg's output into the next leg's input, and prices the gas
// spent along the way. Successful results are cached for a short TTL so a
// repeated simulate call for the same candidate and notional is idempotent.
type Simulator struct {
	quoter    domain.Quoter
	gas       *profit.GasTracker
	tokens    map[string]domain.Token
	nativeUSD decimal.Decimal
	timeout   time.Duration
	cache     *resultCache
	logger    *slog.Logger
}

func New(cfg Config, deps Deps) (*Simulator, error) {
	if deps.Quoter == nil {
		return nil, fmt.Errorf("simulator: quoter is required")
	}
	if deps.Gas == nil {
		return nil, fmt.Errorf("simulator: gas tracker is required")
	}
	if len(deps.Tokens) == 0 {
		return nil, fmt.Errorf("simulator: token table is required")
	}
	if cfg.NativeUSDPrice.IsZero() || cfg.NativeUSDPrice.IsNegative() {
		return nil, fmt.Errorf("simulator: native token USD price must be positive")
	}
	timeout := cfg.QuoteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		quoter:    deps.Quoter,
		gas:       deps.Gas,
		tokens:    deps.Tokens,
		nativeUSD: cfg.NativeUSDPrice,
		timeout:   timeout,
		cache:     newResultCache(cfg.CacheSize, cfg.CacheTTL),
		logger:    logger.With(slog.String("component", "simulator")),
	}, nil
}

// SimulateSimple dry-runs a two-leg cross-venue candidate at the given
// notional and reports the net outcome in USD.
func (s *Simulator) SimulateSimple(ctx context.Context, cand domain.OpportunityCandidate, notionalUSD decimal.Decimal) (domain.SimulationResult, error) {
	if cand.Type != domain.OpportunitySimple {
		return domain.SimulationResult{}, fmt.Errorf("simulator: expected %s candidate, got %s", domain.OpportunitySimple, cand.Type)
	}
	return s.simulate(ctx, cand, notionalUSD)
}

// SimulateTriangular dry-runs a three-leg cycle candidate at the given
// notional and reports the net outcome in USD.
func (s *Simulator) SimulateTriangular(ctx context.Context, cand domain.OpportunityCandidate, notionalUSD decimal.Decimal) (domain.SimulationResult, error) {
	if cand.Type != domain.OpportunityTriangular {
		return domain.SimulationResult{}, fmt.Errorf("simulator: expected %s candidate, got %s", domain.OpportunityTriangular, cand.Type)
	}
	return s.simulate(ctx, cand, notionalUSD)
}

// SimulateWithSlippage runs the base simulation and then applies a flat
// percentage haircut to the final output, recomputing net profit on the
// reduced amount. Both the optimistic and the haircut results are returned.
func (s *Simulator) SimulateWithSlippage(ctx context.Context, cand domain.OpportunityCandidate, notionalUSD, slippagePct decimal.Decimal) (domain.SlippageReport, error) {
	base, err := s.simulate(ctx, cand, notionalUSD)
	if err != nil {
		return domain.SlippageReport{Base: base, SlippagePct: slippagePct}, err
	}

	factor := hundred.Sub(slippagePct).Div(hundred)
	adjusted := base
	adjusted.Legs = append([]domain.LegResult(nil), base.Legs...)
	if n := len(adjusted.Legs); n > 0 {
		adjusted.Legs[n-1].AmountOut = adjusted.Legs[n-1].AmountOut.Mul(factor)
	}
	adjusted.FinalAmountUSD = base.FinalAmountUSD.Mul(factor)
	adjusted.NetProfitUSD = adjusted.FinalAmountUSD.Sub(notionalUSD).Sub(adjusted.TotalGasUSD)
	adjusted.Profitable = adjusted.NetProfitUSD.IsPositive()
	adjusted.SlippagePct = slippagePct

	return domain.SlippageReport{
		Base:        base,
		Adjusted:    adjusted,
		SlippagePct: slippagePct,
	}, nil
}

// CacheStats exposes hit and miss counters for the result cache.
func (s *Simulator) CacheStats() CacheStats {
	return s.cache.stats()
}

func (s *Simulator) simulate(ctx context.Context, cand domain.OpportunityCandidate, notionalUSD decimal.Decimal) (domain.SimulationResult, error) {
	if notionalUSD.IsZero() || notionalUSD.IsNegative() {
		return domain.SimulationResult{}, fmt.Errorf("simulator: notional must be positive")
	}
	if len(cand.Legs) == 0 {
		return domain.SimulationResult{}, fmt.Errorf("simulator: candidate %s has no legs", cand.ID)
	}

	key := cacheKey(cand.Type, cand.ID, notionalUSD)
	if res, ok := s.cache.get(key); ok {
		return res, nil
	}

	first, ok := s.tokens[cand.Legs[0].TokenIn]
	if !ok {
		return domain.SimulationResult{}, fmt.Errorf("simulator: %w: %s", domain.ErrUnsupportedToken, cand.Legs[0].TokenIn)
	}
	amountIn := notionalUSD.Div(first.USDPrice)

	gasPrice := s.gas.GasPriceWei()
	var (
		legs        = make([]domain.LegResult, 0, len(cand.Legs))
		totalGasUSD decimal.Decimal
	)
	for i, leg := range cand.Legs {
		quote, err := s.quoteLeg(ctx, leg, amountIn)
		if err != nil {
			reason := fmt.Sprintf("leg %d %s->%s on %s: %v", i+1, leg.TokenIn, leg.TokenOut, leg.Venue, err)
			res := domain.SimulationResult{
				Success:     false,
				Legs:        legs,
				TotalGasUSD: totalGasUSD,
				Error:       reason,
				SimulatedAt: time.Now().UTC(),
			}
			return res, fmt.Errorf("simulator: %w: %s", domain.ErrSimulationFailed, reason)
		}
		gasUSD := s.gasCostUSD(gasPrice, quote.GasEstimate)
		totalGasUSD = totalGasUSD.Add(gasUSD)
		legs = append(legs, domain.LegResult{
			Venue:      leg.Venue,
			TokenIn:    leg.TokenIn,
			TokenOut:   leg.TokenOut,
			AmountIn:   amountIn,
			AmountOut:  quote.AmountOut,
			GasUsed:    quote.GasEstimate,
			GasCostUSD: gasUSD,
		})
		amountIn = quote.AmountOut
	}

	last := cand.Legs[len(cand.Legs)-1]
	out, ok := s.tokens[last.TokenOut]
	if !ok {
		return domain.SimulationResult{}, fmt.Errorf("simulator: %w: %s", domain.ErrUnsupportedToken, last.TokenOut)
	}
	finalUSD := amountIn.Mul(out.USDPrice)
	net := finalUSD.Sub(notionalUSD).Sub(totalGasUSD)

	res := domain.SimulationResult{
		Success:        true,
		Legs:           legs,
		FinalAmountUSD: finalUSD,
		TotalGasUSD:    totalGasUSD,
		NetProfitUSD:   net,
		Profitable:     net.IsPositive(),
		SimulatedAt:    time.Now().UTC(),
	}
	s.cache.set(key, res)

	s.logger.Debug("simulation complete",
		slog.String("candidate", cand.ID),
		slog.String("type", string(cand.Type)),
		slog.String("net_usd", net.StringFixed(2)),
		slog.Bool("profitable", res.Profitable),
	)
	return res, nil
}

func (s *Simulator) quoteLeg(ctx context.Context, leg domain.TradeLeg, amountIn decimal.Decimal) (domain.Quote, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.quoter.QuoteExactInput(qctx, leg.Venue, leg.TokenIn, leg.TokenOut, leg.FeeTier, amountIn)
}

func (s *Simulator) gasCostUSD(gasPriceWei decimal.Decimal, gasUsed uint64) decimal.Decimal {
	return gasPriceWei.Mul(decimal.NewFromUint64(gasUsed)).Div(weiInEth).Mul(s.nativeUSD)
}

// Package arbitrage implements the opportunity scanner: on every scan tick
// it evaluates all configured token pairs for simple arbitrage and all
// configured 3-token cycles for triangular arbitrage against the current
// price-cache snapshot.
package arbitrage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
	"dexradar/internal/pricing"
	"dexradar/internal/profit"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Config holds the scanner's detection thresholds.
type Config struct {
	ScanInterval time.Duration
	// MinSpreadPct gates simple candidates; it must exceed the round-trip
	// fee cost or no candidate can be net-profitable.
	MinSpreadPct decimal.Decimal
	// MinTriProfitPct gates triangular candidates on (compounded rate - 1).
	MinTriProfitPct decimal.Decimal
	// MinProfitUSD is the fee-adjusted net profit floor.
	MinProfitUSD decimal.Decimal
	// TradeNotionalUSD is the reference trade size used during detection.
	TradeNotionalUSD decimal.Decimal
	// MaxPriceAge excludes stale observations from scans.
	MaxPriceAge time.Duration
}

// Deps bundles the scanner's collaborators. Store and Bus are optional:
// their absence (or failure) never stops a scan cycle.
type Deps struct {
	Cache      *pricing.Cache
	Calculator *profit.Calculator
	Venues     map[string]domain.Venue
	Pairs      []domain.Pair
	Triangles  []domain.TrianglePath
	Out        chan<- domain.OpportunityCandidate
	Store      domain.OpportunityStore
	Bus        domain.SignalBus
	Logger     *slog.Logger
}

// Scanner detects arbitrage candidates from the price cache.
type Scanner struct {
	cfg       Config
	cache     *pricing.Cache
	calc      *profit.Calculator
	venues    map[string]domain.Venue
	pairs     []domain.Pair
	triangles []domain.TrianglePath
	out       chan<- domain.OpportunityCandidate
	store     domain.OpportunityStore
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(cfg Config, deps Deps) *Scanner {
	return &Scanner{
		cfg:       cfg,
		cache:     deps.Cache,
		calc:      deps.Calculator,
		venues:    deps.Venues,
		pairs:     deps.Pairs,
		triangles: deps.Triangles,
		out:       deps.Out,
		store:     deps.Store,
		bus:       deps.Bus,
		logger:    deps.Logger.With(slog.String("component", "scanner")),
	}
}

// Run executes a scan tick on the configured interval until ctx is
// cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner started",
		slog.Duration("interval", s.cfg.ScanInterval),
		slog.Int("pairs", len(s.pairs)),
		slog.Int("triangles", len(s.triangles)),
	)
	defer s.logger.Info("scanner stopped")

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every configured pair and triangle once. A missing or
// stale price aborts only that candidate's evaluation.
func (s *Scanner) Tick(ctx context.Context) {
	for _, pair := range s.pairs {
		if cand, ok := s.ScanSimple(ctx, pair); ok {
			s.emit(ctx, cand)
		}
	}
	for _, tri := range s.triangles {
		if cand, ok := s.ScanTriangular(ctx, tri); ok {
			s.emit(ctx, cand)
		}
	}
}

// ScanSimple evaluates one pair for cross-venue arbitrage. It returns
// (candidate, true) only when every gate passes; absence of data or a
// below-threshold spread is a normal no-opportunity result, not an error.
func (s *Scanner) ScanSimple(ctx context.Context, pair domain.Pair) (domain.OpportunityCandidate, bool) {
	quotes := s.freshQuotes(pair.Base, pair.Quote)
	if len(quotes) < 2 {
		s.logger.DebugContext(ctx, "not enough quotes for pair",
			slog.String("pair", pair.String()),
			slog.Int("quotes", len(quotes)),
		)
		return domain.OpportunityCandidate{}, false
	}

	buy, sell := s.selectSides(quotes)
	// The cheapest and dearest quote resolving to the same pool means the
	// market is flat; there is nothing to arbitrage.
	if buy.SamePool(sell) {
		return domain.OpportunityCandidate{}, false
	}
	if !buy.Price.IsPositive() {
		return domain.OpportunityCandidate{}, false
	}

	spreadPct := sell.Price.Sub(buy.Price).Div(buy.Price).Mul(hundred)
	if spreadPct.LessThan(s.cfg.MinSpreadPct) {
		return domain.OpportunityCandidate{}, false
	}

	result := s.calc.CalculateSimple(s.cfg.TradeNotionalUSD, spreadPct)
	if result.NetProfitUSD.LessThan(s.cfg.MinProfitUSD) {
		s.logger.DebugContext(ctx, "spread found but net profit below threshold",
			slog.String("pair", pair.String()),
			slog.String("spread_pct", spreadPct.Truncate(4).String()),
			slog.String("net_usd", result.NetProfitUSD.Truncate(2).String()),
			slog.String("min_usd", s.cfg.MinProfitUSD.String()),
		)
		return domain.OpportunityCandidate{}, false
	}

	now := time.Now().UTC()
	cand := domain.OpportunityCandidate{
		ID:          uuid.NewString(),
		Type:        domain.OpportunitySimple,
		Path:        []string{pair.Base, pair.Quote},
		BuyVenue:    buy.Venue,
		SellVenue:   sell.Venue,
		BuyFeeTier:  buy.FeeTier,
		SellFeeTier: sell.FeeTier,
		BuyPrice:    buy.Price,
		SellPrice:   sell.Price,
		Legs: []domain.TradeLeg{
			{
				Venue:       buy.Venue,
				TokenIn:     pair.Quote,
				TokenOut:    pair.Base,
				FeeTier:     buy.FeeTier,
				Price:       one.Div(buy.Price),
				NotionalUSD: s.cfg.TradeNotionalUSD,
			},
			{
				Venue:       sell.Venue,
				TokenIn:     pair.Base,
				TokenOut:    pair.Quote,
				FeeTier:     sell.FeeTier,
				Price:       sell.Price,
				NotionalUSD: s.cfg.TradeNotionalUSD,
			},
		},
		SpreadPct:      spreadPct,
		NotionalUSD:    result.NotionalUSD,
		GrossProfitUSD: result.GrossProfitUSD,
		Fees:           result.FeeBreakdown(),
		NetProfitUSD:   result.NetProfitUSD,
		ROIPct:         result.ROIPct,
		PriceImpactPct: result.PriceImpactPct,
		Status:         domain.StatusDetected,
		CreatedAt:      now,
	}
	return cand, true
}

// ScanTriangular evaluates one 3-token cycle. The compounded rate is the
// product of the best available per-leg prices; a rate above one returns
// more of the origin token than was put in.
func (s *Scanner) ScanTriangular(ctx context.Context, tri domain.TrianglePath) (domain.OpportunityCandidate, bool) {
	legs := tri.Legs()
	compounded := one
	tradeLegs := make([]domain.TradeLeg, 0, len(legs))

	for _, leg := range legs {
		obs, ok := s.bestLeg(leg.Base, leg.Quote)
		if !ok {
			s.logger.DebugContext(ctx, "no usable leg price, skipping cycle",
				slog.String("cycle", tri.String()),
				slog.String("leg", leg.String()),
			)
			return domain.OpportunityCandidate{}, false
		}
		if !obs.Price.IsPositive() {
			return domain.OpportunityCandidate{}, false
		}
		compounded = compounded.Mul(obs.Price)
		tradeLegs = append(tradeLegs, domain.TradeLeg{
			Venue:       obs.Venue,
			TokenIn:     leg.Base,
			TokenOut:    leg.Quote,
			FeeTier:     obs.FeeTier,
			Price:       obs.Price,
			NotionalUSD: s.cfg.TradeNotionalUSD,
		})
	}

	profitRatePct := compounded.Sub(one).Mul(hundred)
	if profitRatePct.LessThan(s.cfg.MinTriProfitPct) {
		return domain.OpportunityCandidate{}, false
	}

	result := s.calc.CalculateTriangular(s.cfg.TradeNotionalUSD, profitRatePct)
	if result.NetProfitUSD.LessThan(s.cfg.MinProfitUSD) {
		s.logger.DebugContext(ctx, "cycle found but net profit below threshold",
			slog.String("cycle", tri.String()),
			slog.String("profit_rate_pct", profitRatePct.Truncate(4).String()),
			slog.String("net_usd", result.NetProfitUSD.Truncate(2).String()),
		)
		return domain.OpportunityCandidate{}, false
	}

	now := time.Now().UTC()
	cand := domain.OpportunityCandidate{
		ID:             uuid.NewString(),
		Type:           domain.OpportunityTriangular,
		Path:           []string{tri.A, tri.B, tri.C, tri.A},
		Legs:           tradeLegs,
		SpreadPct:      profitRatePct,
		NotionalUSD:    result.NotionalUSD,
		GrossProfitUSD: result.GrossProfitUSD,
		Fees:           result.FeeBreakdown(),
		NetProfitUSD:   result.NetProfitUSD,
		ROIPct:         result.ROIPct,
		PriceImpactPct: result.PriceImpactPct,
		Status:         domain.StatusDetected,
		CreatedAt:      now,
	}
	return cand, true
}

// freshQuotes returns the pair's usable observations, all oriented as
// quote-per-base. Stale quotes are dropped, and so are synthetic fallback
// substitutions: they carry independent jitter, so comparing two of them
// manufactures spreads that were never on chain.
func (s *Scanner) freshQuotes(tokenA, tokenB string) []domain.PriceObservation {
	all := s.cache.ListPair(tokenA, tokenB)
	fresh := all[:0]
	for _, obs := range all {
		if obs.Synthetic() || s.cache.IsStale(obs, s.cfg.MaxPriceAge) {
			continue
		}
		fresh = append(fresh, obs)
	}
	return fresh
}

// bestLeg returns the highest usable quote for a cycle leg. Filtering happens
// before the max is taken, so a stale or synthetic quote never shadows a
// usable lower one.
func (s *Scanner) bestLeg(tokenA, tokenB string) (domain.PriceObservation, bool) {
	quotes := s.freshQuotes(tokenA, tokenB)
	if len(quotes) == 0 {
		return domain.PriceObservation{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Price.GreaterThan(best.Price) {
			best = q
		}
	}
	return best, true
}

// selectSides picks the minimum-price observation as the buy side and the
// maximum-price observation as the sell side. On equal prices the venue
// with the lower priority index wins, so the choice is stable across ticks.
func (s *Scanner) selectSides(quotes []domain.PriceObservation) (buy, sell domain.PriceObservation) {
	buy, sell = quotes[0], quotes[0]
	for _, q := range quotes[1:] {
		if q.Price.LessThan(buy.Price) || (q.Price.Equal(buy.Price) && s.priority(q.Venue) < s.priority(buy.Venue)) {
			buy = q
		}
		if q.Price.GreaterThan(sell.Price) || (q.Price.Equal(sell.Price) && s.priority(q.Venue) < s.priority(sell.Venue)) {
			sell = q
		}
	}
	return buy, sell
}

func (s *Scanner) priority(venue string) int {
	if v, ok := s.venues[venue]; ok {
		return v.Priority
	}
	return int(^uint(0) >> 1)
}

// emit hands a detected candidate to the simulation worker, persists it,
// and publishes a detection event. Store and bus failures are logged and
// otherwise ignored; the pipeline keeps running without them.
func (s *Scanner) emit(ctx context.Context, cand domain.OpportunityCandidate) {
	s.logger.InfoContext(ctx, "opportunity detected",
		slog.String("id", cand.ID),
		slog.String("type", string(cand.Type)),
		slog.Any("path", cand.Path),
		slog.String("spread_pct", cand.SpreadPct.Truncate(4).String()),
		slog.String("net_usd", cand.NetProfitUSD.Truncate(2).String()),
	)

	if s.store != nil {
		if err := s.store.Upsert(ctx, cand); err != nil {
			s.logger.WarnContext(ctx, "candidate upsert failed",
				slog.String("id", cand.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(cand)
		if err == nil {
			if pubErr := s.bus.Publish(ctx, "opportunities", payload); pubErr != nil {
				s.logger.WarnContext(ctx, "candidate publish failed",
					slog.String("id", cand.ID),
					slog.String("error", pubErr.Error()),
				)
			}
		}
	}

	if s.out != nil {
		select {
		case s.out <- cand:
		case <-ctx.Done():
		}
	}
}

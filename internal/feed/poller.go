package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"dexradar/internal/domain"
	"dexradar/internal/pricing"
)

// PriceChannel is the signal-bus channel price observations are published on.
const PriceChannel = "prices"

// priceEvent is the JSON shape published to the price channel after each
// successful pool read.
type priceEvent struct {
	Venue       string `json:"venue"`
	Pair        string `json:"pair"`
	FeeTier     int    `json:"fee_tier,omitempty"`
	Price       string `json:"price"`
	Mode        string `json:"mode"`
	BlockHeight uint64 `json:"block_height,omitempty"`
	ObservedAt  string `json:"observed_at"`
}

// Config carries the poller's timing knobs.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Deps wires the poller's collaborators. Bus is optional.
type Deps struct {
	Source     domain.PoolStateSource
	Normalizer *pricing.Normalizer
	Cache      *pricing.Cache
	Venues     []domain.Venue
	Pairs      []domain.Pair
	Bus        domain.SignalBus
	Logger     *slog.Logger
}

// Poller walks every (venue, pair, fee tier) combination on a fixed
// interval, normalizes the raw pool ratio, and writes the observation into
// the price cache. Pools that do not exist on a venue are skipped quietly;
// transient read errors are logged and retried on the next sweep.
type Poller struct {
	source   domain.PoolStateSource
	norm     *pricing.Normalizer
	cache    *pricing.Cache
	venues   []domain.Venue
	pairs    []domain.Pair
	bus      domain.SignalBus
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewPoller(cfg Config, deps Deps) (*Poller, error) {
	if deps.Source == nil {
		return nil, errors.New("feed: pool state source is required")
	}
	if deps.Normalizer == nil || deps.Cache == nil {
		return nil, errors.New("feed: normalizer and cache are required")
	}
	if len(deps.Venues) == 0 || len(deps.Pairs) == 0 {
		return nil, errors.New("feed: at least one venue and one pair are required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   deps.Source,
		norm:     deps.Normalizer,
		cache:    deps.Cache,
		venues:   deps.Venues,
		pairs:    deps.Pairs,
		bus:      deps.Bus,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "feed_poller")),
	}, nil
}

func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("feed poller started",
		slog.Duration("interval", p.interval),
		slog.Int("venues", len(p.venues)),
		slog.Int("pairs", len(p.pairs)),
	)
	defer p.logger.Info("feed poller stopped")

	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce sweeps every venue, pair and fee tier once.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, venue := range p.venues {
		tiers := venue.FeeTiers
		if len(tiers) == 0 {
			tiers = []int{0}
		}
		for _, pair := range p.pairs {
			for _, tier := range tiers {
				if ctx.Err() != nil {
					return
				}
				p.pollPool(ctx, venue, pair, tier)
			}
		}
	}
}

func (p *Poller) pollPool(ctx context.Context, venue domain.Venue, pair domain.Pair, feeTier int) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	state, err := p.source.PoolState(rctx, venue.Name, pair.Base, pair.Quote, feeTier)
	cancel()
	if err != nil {
		p.logger.Warn("pool read failed",
			slog.String("venue", venue.Name),
			slog.String("pair", pair.String()),
			slog.Int("fee_tier", feeTier),
			slog.String("error", err.Error()),
		)
		return
	}
	if state == nil {
		p.logger.Debug("pool not deployed",
			slog.String("venue", venue.Name),
			slog.String("pair", pair.String()),
			slog.Int("fee_tier", feeTier),
		)
		return
	}

	np, err := p.norm.Normalize(pair.Base, pair.Quote, state.RawPriceRatio)
	if err != nil {
		p.logger.Warn("normalization failed",
			slog.String("venue", venue.Name),
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	obs := domain.PriceObservation{
		Venue:       venue.Name,
		TokenA:      pair.Base,
		TokenB:      pair.Quote,
		FeeTier:     feeTier,
		Price:       np.Forward,
		Mode:        np.Mode,
		BlockHeight: state.BlockHeight,
		ObservedAt:  time.Now().UTC(),
	}
	p.cache.Update(obs)
	p.publish(ctx, obs)
}

func (p *Poller) publish(ctx context.Context, obs domain.PriceObservation) {
	if p.bus == nil {
		return
	}
	ev := priceEvent{
		Venue:       obs.Venue,
		Pair:        obs.TokenA + "/" + obs.TokenB,
		FeeTier:     obs.FeeTier,
		Price:       obs.Price.String(),
		Mode:        string(obs.Mode),
		BlockHeight: obs.BlockHeight,
		ObservedAt:  obs.ObservedAt.Format(time.RFC3339),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, PriceChannel, data); err != nil {
		p.logger.Warn("publish price event failed", slog.String("error", err.Error()))
	}
}

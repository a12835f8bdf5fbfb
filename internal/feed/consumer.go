package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
	"dexradar/internal/pricing"
)

// Consumer hydrates a price cache from observations published on the price
// channel by a poller running in another process. API-only processes use it
// so on-demand simulation quotes against live prices without a chain
// connection of their own.
type Consumer struct {
	bus    domain.SignalBus
	cache  *pricing.Cache
	logger *slog.Logger
}

func NewConsumer(bus domain.SignalBus, cache *pricing.Cache, logger *slog.Logger) (*Consumer, error) {
	if bus == nil {
		return nil, errors.New("feed: signal bus is required")
	}
	if cache == nil {
		return nil, errors.New("feed: cache is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		bus:    bus,
		cache:  cache,
		logger: logger.With(slog.String("component", "feed_consumer")),
	}, nil
}

// Run subscribes to the price channel and replays every event into the cache
// until ctx is cancelled. Malformed events are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.bus.Subscribe(ctx, PriceChannel)
	if err != nil {
		return err
	}
	c.logger.Info("feed consumer started", slog.String("channel", PriceChannel))
	defer c.logger.Info("feed consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.apply(msg)
		}
	}
}

func (c *Consumer) apply(msg []byte) {
	var ev priceEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		c.logger.Warn("price event decode failed", slog.String("error", err.Error()))
		return
	}
	obs, err := ev.observation()
	if err != nil {
		c.logger.Warn("price event invalid",
			slog.String("pair", ev.Pair),
			slog.String("error", err.Error()),
		)
		return
	}
	c.cache.Update(obs)
}

func (e priceEvent) observation() (domain.PriceObservation, error) {
	tokenA, tokenB, found := strings.Cut(e.Pair, "/")
	if !found || tokenA == "" || tokenB == "" {
		return domain.PriceObservation{}, errors.New("malformed pair")
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return domain.PriceObservation{}, err
	}
	observedAt, err := time.Parse(time.RFC3339, e.ObservedAt)
	if err != nil {
		observedAt = time.Now().UTC()
	}
	return domain.PriceObservation{
		Venue:       e.Venue,
		TokenA:      tokenA,
		TokenB:      tokenB,
		FeeTier:     e.FeeTier,
		Price:       price,
		Mode:        domain.NormalizationMode(e.Mode),
		BlockHeight: e.BlockHeight,
		ObservedAt:  observedAt,
	}, nil
}

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
	"dexradar/internal/pricing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned pool states per (venue, base, quote, tier).
type fakeSource struct {
	mu     sync.Mutex
	states map[string]*domain.PoolState
	errs   map[string]error
	calls  int
}

func poolKey(venue, a, b string, tier int) string {
	return venue + ":" + a + "/" + b + ":" + strconv.Itoa(tier)
}

func (f *fakeSource) set(venue, a, b string, tier int, ratio decimal.Decimal) {
	if f.states == nil {
		f.states = make(map[string]*domain.PoolState)
	}
	f.states[poolKey(venue, a, b, tier)] = &domain.PoolState{RawPriceRatio: ratio, BlockHeight: 123}
}

func (f *fakeSource) PoolState(_ context.Context, venue, tokenA, tokenB string, feeTier int) (*domain.PoolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := poolKey(venue, tokenA, tokenB, feeTier)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.states[key], nil
}

func (f *fakeSource) Reserves(context.Context, string, string, string) (*domain.ReserveSnapshot, error) {
	return nil, errors.New("not implemented")
}

type captureBus struct {
	mu     sync.Mutex
	events [][]byte
	sub    chan []byte
}

func (b *captureBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
	if b.sub != nil {
		b.sub <- payload
	}
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.sub, nil
}

func pollerFixture(t *testing.T, src domain.PoolStateSource, bus domain.SignalBus) (*Poller, *pricing.Cache) {
	t.Helper()

	tokens := map[string]domain.Token{
		"WETH": {Symbol: "WETH", Decimals: 18, USDPrice: decimal.NewFromInt(2650)},
		"USDT": {Symbol: "USDT", Decimals: 6, USDPrice: decimal.NewFromInt(1)},
	}
	norm := pricing.NewNormalizer(tokens, pricing.NormalizerConfig{
		MaxDeviationPct:   50,
		FallbackJitterPct: 2,
		MinSpreadPct:      0.01,
		MaxSpreadPct:      2,
	}, discardLogger())
	cache := pricing.NewCache(10)

	p, err := NewPoller(Config{PollInterval: time.Hour, RequestTimeout: time.Second}, Deps{
		Source:     src,
		Normalizer: norm,
		Cache:      cache,
		Venues: []domain.Venue{
			{Name: "uniswap", Kind: domain.VenueKindConcentrated, FeeTiers: []int{3000}},
			{Name: "sushiswap", Kind: domain.VenueKindConstantProduct},
		},
		Pairs:  []domain.Pair{{Base: "WETH", Quote: "USDT"}},
		Bus:    bus,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	return p, cache
}

func TestPollOnce(t *testing.T) {
	// Raw reserve-style ratio for a human price of 2650 on an 18/6 pair.
	raw := decimal.New(265, -11)

	t.Run("populates cache and publishes", func(t *testing.T) {
		src := &fakeSource{}
		src.set("uniswap", "WETH", "USDT", 3000, raw)
		src.set("sushiswap", "WETH", "USDT", 0, raw)
		bus := &captureBus{}

		p, cache := pollerFixture(t, src, bus)
		p.PollOnce(context.Background())

		tier := 3000
		obs, ok := cache.Get("uniswap", "WETH", "USDT", &tier)
		require.True(t, ok)
		assert.True(t, obs.Price.Equal(decimal.NewFromInt(2650)), "price = %s", obs.Price)
		assert.Equal(t, domain.NormalizationDirect, obs.Mode)
		assert.Equal(t, uint64(123), obs.BlockHeight)

		tier = 0
		_, ok = cache.Get("sushiswap", "WETH", "USDT", &tier)
		assert.True(t, ok)

		require.Len(t, bus.events, 2)
		var ev priceEvent
		require.NoError(t, json.Unmarshal(bus.events[0], &ev))
		assert.Equal(t, "WETH/USDT", ev.Pair)
		assert.Equal(t, "2650", ev.Price)
		assert.Equal(t, string(domain.NormalizationDirect), ev.Mode)
	})

	t.Run("fallback substitution is tagged", func(t *testing.T) {
		src := &fakeSource{}
		// Scales to a price of 10, far outside the deviation band around
		// the 2650 reference, so the normalizer substitutes.
		src.set("uniswap", "WETH", "USDT", 3000, decimal.New(1, -11))

		p, cache := pollerFixture(t, src, nil)
		p.PollOnce(context.Background())

		tier := 3000
		obs, ok := cache.Get("uniswap", "WETH", "USDT", &tier)
		require.True(t, ok)
		assert.True(t, obs.Synthetic(), "mode = %s", obs.Mode)
	})

	t.Run("missing pool is skipped quietly", func(t *testing.T) {
		src := &fakeSource{}
		src.set("uniswap", "WETH", "USDT", 3000, raw)
		// sushiswap has no pool: PoolState returns (nil, nil).

		p, cache := pollerFixture(t, src, nil)
		p.PollOnce(context.Background())

		assert.Len(t, cache.ListAll(), 1)
	})

	t.Run("read error does not abort the sweep", func(t *testing.T) {
		src := &fakeSource{
			errs: map[string]error{
				poolKey("uniswap", "WETH", "USDT", 3000): errors.New("rpc timeout"),
			},
		}
		src.set("sushiswap", "WETH", "USDT", 0, raw)

		p, cache := pollerFixture(t, src, nil)
		p.PollOnce(context.Background())

		list := cache.ListAll()
		require.Len(t, list, 1)
		assert.Equal(t, "sushiswap", list[0].Venue)
	})
}

func TestNewPollerValidation(t *testing.T) {
	_, err := NewPoller(Config{}, Deps{})
	assert.Error(t, err)

	_, err = NewPoller(Config{}, Deps{Source: &fakeSource{}})
	assert.Error(t, err)
}

func TestConsumerRun(t *testing.T) {
	sub := make(chan []byte, 8)
	bus := &captureBus{sub: sub}
	cache := pricing.NewCache(10)

	c, err := NewConsumer(bus, cache, discardLogger())
	require.NoError(t, err)

	ev := priceEvent{
		Venue:      "uniswap",
		Pair:       "WETH/USDT",
		FeeTier:    3000,
		Price:      "2650",
		Mode:       "direct",
		ObservedAt: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	ev.Venue = "sushiswap"
	ev.FeeTier = 0
	ev.Mode = "fallback"
	degraded, err := json.Marshal(ev)
	require.NoError(t, err)

	sub <- payload
	sub <- degraded
	sub <- []byte("{not json")                             // decode failure, skipped
	sub <- []byte(`{"pair":"WETHUSDT","price":"1"}`)       // malformed pair, skipped
	sub <- []byte(`{"pair":"WETH/USDT","price":"banana"}`) // bad price, skipped
	close(sub)

	require.NoError(t, c.Run(context.Background()))

	tier := 3000
	obs, ok := cache.Get("uniswap", "WETH", "USDT", &tier)
	require.True(t, ok)
	assert.True(t, obs.Price.Equal(decimal.NewFromInt(2650)))
	assert.Equal(t, domain.NormalizationDirect, obs.Mode)

	// The degraded-data tag survives the wire round trip.
	tier = 0
	obs, ok = cache.Get("sushiswap", "WETH", "USDT", &tier)
	require.True(t, ok)
	assert.True(t, obs.Synthetic())

	assert.Len(t, cache.ListAll(), 2)
}

func TestConsumerValidation(t *testing.T) {
	_, err := NewConsumer(nil, pricing.NewCache(10), discardLogger())
	assert.Error(t, err)

	_, err = NewConsumer(&captureBus{}, nil, discardLogger())
	assert.Error(t, err)
}

package pricing

import (
	"sort"
	"sync"
	"time"

	"dexradar/internal/domain"
)

// defaultTierOrder is the fee-tier preference used when Get is called
// without an explicit tier: the 0.3% tier is the most liquid on major
// venues, then 0.05%, 1%, 0.01%.
var defaultTierOrder = []int{3000, 500, 10000, 100, 0}

// Key identifies one pool's price slot in the cache.
type Key struct {
	Venue   string
	TokenA  string
	TokenB  string
	FeeTier int
}

type entry struct {
	current domain.PriceObservation
	history []domain.PriceObservation // ring buffer, oldest overwritten
	next    int
	full    bool
}

// Cache holds the most recent PriceObservation per (venue, pair, fee tier)
// key plus a bounded history ring. Writes from the poll loop and reads from
// the scan loop may interleave; all access is serialized through an RWMutex
// and observations are copied out, so a reader never sees a torn value.
type Cache struct {
	mu        sync.RWMutex
	entries   map[Key]*entry
	histDepth int
	tierOrder []int
}

// NewCache creates a Cache with the given per-key history depth (<=0 means
// the default of 100).
func NewCache(histDepth int) *Cache {
	if histDepth <= 0 {
		histDepth = 100
	}
	return &Cache{
		entries:   make(map[Key]*entry),
		histDepth: histDepth,
		tierOrder: defaultTierOrder,
	}
}

func keyOf(obs domain.PriceObservation) Key {
	return Key{Venue: obs.Venue, TokenA: obs.TokenA, TokenB: obs.TokenB, FeeTier: obs.FeeTier}
}

// Update upserts the observation under its key, superseding the previous
// one, and appends it to the key's history ring (dropping the oldest when
// the ring is full). Last write wins.
func (c *Cache) Update(obs domain.PriceObservation) {
	k := keyOf(obs)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		e = &entry{history: make([]domain.PriceObservation, c.histDepth)}
		c.entries[k] = e
	}
	e.current = obs
	e.history[e.next] = obs
	e.next++
	if e.next == len(e.history) {
		e.next = 0
		e.full = true
	}
}

// Get returns the current observation for the key. When feeTier is nil, the
// fee-tier preference order is scanned and the first populated tier wins.
func (c *Cache) Get(venue, tokenA, tokenB string, feeTier *int) (domain.PriceObservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if feeTier != nil {
		e, ok := c.entries[Key{Venue: venue, TokenA: tokenA, TokenB: tokenB, FeeTier: *feeTier}]
		if !ok {
			return domain.PriceObservation{}, false
		}
		return e.current, true
	}
	for _, tier := range c.tierOrder {
		if e, ok := c.entries[Key{Venue: venue, TokenA: tokenA, TokenB: tokenB, FeeTier: tier}]; ok {
			return e.current, true
		}
	}
	return domain.PriceObservation{}, false
}

// ListPair returns every observation for the pair across all venues and fee
// tiers, with quote direction normalized so every price is "tokenB per
// tokenA". Quotes stored in the opposite direction are inverted. The result
// is sorted by (venue, fee tier) for deterministic downstream selection.
func (c *Cache) ListPair(tokenA, tokenB string) []domain.PriceObservation {
	c.mu.RLock()
	var out []domain.PriceObservation
	for k, e := range c.entries {
		switch {
		case k.TokenA == tokenA && k.TokenB == tokenB:
			out = append(out, e.current)
		case k.TokenA == tokenB && k.TokenB == tokenA:
			obs := e.current
			if !obs.Price.IsPositive() {
				continue
			}
			inverted := obs
			inverted.TokenA = tokenA
			inverted.TokenB = tokenB
			inverted.Price = one.Div(obs.Price)
			out = append(out, inverted)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].FeeTier < out[j].FeeTier
	})
	return out
}

// BestPrice returns the highest quoted "tokenB per tokenA" price across all
// venues for the pair — i.e. the best sell-side reference. Ties resolve to
// the first observation in ListPair's deterministic order.
func (c *Cache) BestPrice(tokenA, tokenB string) (domain.PriceObservation, bool) {
	obs := c.ListPair(tokenA, tokenB)
	if len(obs) == 0 {
		return domain.PriceObservation{}, false
	}
	best := obs[0]
	for _, o := range obs[1:] {
		if o.Price.GreaterThan(best.Price) {
			best = o
		}
	}
	return best, true
}

// History returns the stored observations for a key, oldest first.
func (c *Cache) History(venue, tokenA, tokenB string, feeTier int) []domain.PriceObservation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[Key{Venue: venue, TokenA: tokenA, TokenB: tokenB, FeeTier: feeTier}]
	if !ok {
		return nil
	}
	var out []domain.PriceObservation
	if e.full {
		out = append(out, e.history[e.next:]...)
	}
	out = append(out, e.history[:e.next]...)
	return out
}

// ListAll returns a snapshot of every current observation, sorted for
// stable display.
func (c *Cache) ListAll() []domain.PriceObservation {
	c.mu.RLock()
	out := make([]domain.PriceObservation, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.current)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		if a.TokenA != b.TokenA {
			return a.TokenA < b.TokenA
		}
		if a.TokenB != b.TokenB {
			return a.TokenB < b.TokenB
		}
		return a.FeeTier < b.FeeTier
	})
	return out
}

// IsStale reports whether the observation is older than maxAge.
func (c *Cache) IsStale(obs domain.PriceObservation, maxAge time.Duration) bool {
	return obs.Age(time.Now()) > maxAge
}

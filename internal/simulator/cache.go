package simulator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// resultCache memoizes simulation results by (type, candidate id, notional)
// for a short TTL, so overlapping simulate calls within the window return
// the identical cached result instead of re-quoting.
type resultCache struct {
	lru    *expirable.LRU[string, domain.SimulationResult]
	hits   atomic.Int64
	misses atomic.Int64
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = 2048
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &resultCache{
		lru: expirable.NewLRU[string, domain.SimulationResult](size, nil, ttl),
	}
}

func cacheKey(typ domain.OpportunityType, id string, notionalUSD decimal.Decimal) string {
	return fmt.Sprintf("%s:%s:%s", typ, id, notionalUSD.String())
}

func (c *resultCache) get(key string) (domain.SimulationResult, bool) {
	res, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return res, ok
}

func (c *resultCache) set(key string, res domain.SimulationResult) {
	c.lru.Add(key, res)
}

// CacheStats reports cache effectiveness for observability endpoints.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

func (c *resultCache) stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
}

package profit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

var gweiInWei = decimal.New(1, 9)

// GasTracker keeps a cached gas price refreshed on a fixed interval from the
// gas collaborator. It never blocks or errors into profit math: until the
// first successful refresh, and whenever refreshes keep failing, the
// configured default is served.
type GasTracker struct {
	src      domain.GasPriceSource // nil disables refreshing entirely
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	current  decimal.Decimal // wei
	lastGood time.Time
}

// NewGasTracker creates a GasTracker seeded with defaultGwei. src may be nil
// for offline use; the tracker then always serves the default.
func NewGasTracker(src domain.GasPriceSource, interval, timeout time.Duration, defaultGwei float64, logger *slog.Logger) *GasTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GasTracker{
		src:      src,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "gas_tracker")),
		current:  decimal.NewFromFloat(defaultGwei).Mul(gweiInWei),
	}
}

// GasPriceWei returns the last known gas price in wei. It never fails.
func (g *GasTracker) GasPriceWei() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Run refreshes the cached gas price on the configured interval until ctx
// is cancelled. Refresh failures are logged and the previous value is kept.
func (g *GasTracker) Run(ctx context.Context) error {
	if g.src == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	g.refresh(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.refresh(ctx)
		}
	}
}

func (g *GasTracker) refresh(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	quote, err := g.src.GasPrice(callCtx)
	if err != nil {
		g.logger.WarnContext(ctx, "gas price refresh failed, keeping cached value",
			slog.String("error", err.Error()),
		)
		return
	}
	if !quote.GasPrice.IsPositive() {
		g.logger.WarnContext(ctx, "gas price refresh returned non-positive value, keeping cached value")
		return
	}

	g.mu.Lock()
	g.current = quote.GasPrice
	g.lastGood = time.Now()
	g.mu.Unlock()

	g.logger.DebugContext(ctx, "gas price refreshed",
		slog.String("gas_price_gwei", quote.GasPrice.Div(gweiInWei).Truncate(2).String()),
	)
}

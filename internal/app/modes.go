package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dexradar/internal/arbitrage"
	"dexradar/internal/domain"
	"dexradar/internal/feed"
	"dexradar/internal/pipeline"
	"dexradar/internal/server"
	"dexradar/internal/server/handler"
	"dexradar/internal/simulator"
)

// ScanMode runs the detection pipeline: gas tracking, pool polling,
// scanning, auto-simulation, and the retention janitor. The HTTP server is
// started only when enabled in config.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startPipeline(ctx, g, deps); err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// ServeMode runs the HTTP API over the store without touching the chain.
// When the signal bus is wired it also hydrates the price cache from events
// published by a scanning process, so on-demand simulation stays live.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	if deps.Bus != nil {
		consumer, err := feed.NewConsumer(deps.Bus, deps.PriceCache, a.logger)
		if err != nil {
			return fmt.Errorf("serve mode: %w", err)
		}
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	if err := a.startJanitor(ctx, g, deps); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the detection pipeline and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startPipeline(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startPipeline adds the detection goroutines to the errgroup: gas tracker,
// pool poller, scanner, simulation worker, and the retention janitor.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	g.Go(func() error {
		return deps.GasTracker.Run(ctx)
	})

	poller, err := feed.NewPoller(feed.Config{
		PollInterval:   a.cfg.Feed.PollInterval.Duration,
		RequestTimeout: a.cfg.Chain.RequestTimeout.Duration,
	}, feed.Deps{
		Source:     deps.PoolReader,
		Normalizer: deps.Normalizer,
		Cache:      deps.PriceCache,
		Venues:     a.venueList(deps),
		Pairs:      a.cfg.DomainPairs(),
		Bus:        deps.Bus,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	g.Go(func() error {
		return poller.Run(ctx)
	})

	candidates := make(chan domain.OpportunityCandidate, 64)

	scanner := arbitrage.NewScanner(arbitrage.Config{
		ScanInterval:     a.cfg.Scanner.ScanInterval.Duration,
		MinSpreadPct:     decimal.NewFromFloat(a.cfg.Scanner.MinSpreadPct),
		MinTriProfitPct:  decimal.NewFromFloat(a.cfg.Scanner.MinTriProfitPct),
		MinProfitUSD:     decimal.NewFromFloat(a.cfg.Scanner.MinProfitUSD),
		TradeNotionalUSD: decimal.NewFromFloat(a.cfg.Scanner.TradeNotionalUSD),
		MaxPriceAge:      a.cfg.Feed.MaxPriceAge.Duration,
	}, arbitrage.Deps{
		Cache:      deps.PriceCache,
		Calculator: deps.Calculator,
		Venues:     deps.Venues,
		Pairs:      a.cfg.DomainPairs(),
		Triangles:  a.cfg.DomainTriangles(),
		Out:        candidates,
		Store:      deps.Store,
		Bus:        deps.Bus,
		Logger:     a.logger,
	})
	g.Go(func() error {
		return scanner.Run(ctx)
	})

	worker, err := simulator.NewWorker(
		decimal.NewFromFloat(a.cfg.Simulator.DefaultSlippagePct),
		simulator.WorkerDeps{
			Simulator: deps.Simulator,
			Store:     deps.Store,
			Alerter:   deps.Notifier,
			In:        candidates,
			Logger:    a.logger,
		},
	)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return worker.Run(ctx)
	})

	return a.startJanitor(ctx, g, deps)
}

// startJanitor adds the retention sweep goroutine to the errgroup.
func (a *App) startJanitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	janitor, err := pipeline.NewJanitor(deps.Store, deps.Archiver, pipeline.RetentionConfig{
		ExpireAfter:   a.cfg.Retention.ExpireAfter.Duration,
		PurgeAfter:    a.cfg.Retention.PurgeAfter.Duration,
		SweepInterval: a.cfg.Retention.SweepInterval.Duration,
	}, a.logger)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return janitor.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the API server and its graceful-shutdown watcher to
// the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	pingers := map[string]handler.Pinger{
		"postgres": deps.PG,
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		Limiter:         deps.Limiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(pingers, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.Store, a.logger),
		Prices:        handler.NewPriceHandler(deps.PriceCache, a.logger),
		Simulate: handler.NewSimulateHandler(
			deps.Simulator,
			deps.Store,
			decimal.NewFromFloat(a.cfg.Simulator.DefaultSlippagePct),
			a.logger,
		),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// venueList returns the configured venues in declaration order.
func (a *App) venueList(deps *Dependencies) []domain.Venue {
	out := make([]domain.Venue, 0, len(a.cfg.Venues))
	for _, v := range a.cfg.Venues {
		out = append(out, deps.Venues[v.Name])
	}
	return out
}

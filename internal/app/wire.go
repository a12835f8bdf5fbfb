package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "dexradar/internal/blob/s3"
	redisbus "dexradar/internal/bus/redis"
	"dexradar/internal/chain"
	"dexradar/internal/config"
	"dexradar/internal/domain"
	"dexradar/internal/notify"
	"dexradar/internal/pipeline"
	"dexradar/internal/pricing"
	"dexradar/internal/profit"
	"dexradar/internal/simulator"
	"dexradar/internal/store/postgres"
)

// Dependencies bundles every concrete collaborator the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Persistence. Store is always wired; candidates are the system of
	// record regardless of mode.
	PG    *postgres.Client
	Store domain.OpportunityStore

	// Signal bus and rate limiter, nil unless Redis is enabled.
	Redis   *redisbus.Client
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Archival, nil unless retention archiving is enabled.
	Archiver pipeline.CandidateArchiver

	// Chain access, nil in API-only processes.
	Chain      *chain.Client
	PoolReader *chain.PoolReader

	// Quoter is chain-backed when a chain client is wired and model-backed
	// (spot price plus fee) otherwise.
	Quoter domain.Quoter

	// Reference tables from config.
	Tokens map[string]domain.Token
	Venues map[string]domain.Venue

	// Core pipeline components.
	PriceCache *pricing.Cache
	Normalizer *pricing.Normalizer
	GasTracker *profit.GasTracker
	Calculator *profit.Calculator
	Simulator  *simulator.Simulator
	Notifier   *notify.Notifier
}

// needsChain returns true for modes that read pools and gas from JSON-RPC.
func needsChain(mode string) bool {
	switch mode {
	case "scan", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Tokens:     cfg.TokenTable(),
		Venues:     cfg.VenueTable(),
		PriceCache: pricing.NewCache(cfg.Feed.HistoryDepth),
	}
	deps.Normalizer = pricing.NewNormalizer(deps.Tokens, pricing.NormalizerConfig{
		MaxDeviationPct:   cfg.Normalizer.MaxDeviationPct,
		FallbackJitterPct: cfg.Normalizer.FallbackJitterPct,
		MinSpreadPct:      cfg.Normalizer.MinSpreadPct,
		MaxSpreadPct:      cfg.Normalizer.MaxSpreadPct,
	}, logger)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.PG = pgClient
	deps.Store = postgres.NewOpportunityStore(pgClient)

	// --- Redis signal bus (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redisbus.New(ctx, redisbus.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient
		deps.Bus = redisbus.NewSignalBus(redisClient)
		deps.Limiter = redisbus.NewRateLimiter(redisClient)
	}

	// --- S3 archival (optional) ---
	if cfg.Retention.ArchiveEnabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Chain access ---
	var gasSource domain.GasPriceSource
	if needsChain(cfg.Mode) {
		chainClient, err := chain.Dial(ctx, chain.Config{
			Endpoints:        cfg.Chain.Endpoints,
			ChainID:          cfg.Chain.ChainID,
			EndpointCooldown: cfg.Chain.EndpointCooldown.Duration,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient
		gasSource = chain.NewGasSource(chainClient)

		reader, err := chain.NewPoolReader(chainClient, deps.Tokens, deps.Venues, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: pool reader: %w", err)
		}
		deps.PoolReader = reader

		quoter, err := chain.NewQuoter(chainClient, reader, deps.Tokens, deps.Venues)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: quoter: %w", err)
		}
		deps.Quoter = quoter
	} else {
		deps.Quoter = simulator.NewModelQuoter(deps.PriceCache, deps.Venues, cfg.Profit.GasLimitSwap)
	}

	// --- Profit model ---
	deps.GasTracker = profit.NewGasTracker(
		gasSource,
		cfg.Profit.GasRefreshInterval.Duration,
		cfg.Chain.RequestTimeout.Duration,
		cfg.Profit.DefaultGasPriceGwei,
		logger,
	)

	nativeUSD := deps.Tokens[cfg.Chain.NativeToken].USDPrice
	ladder := make([]decimal.Decimal, 0, len(cfg.Profit.TradeSizeLadder))
	for _, size := range cfg.Profit.TradeSizeLadder {
		ladder = append(ladder, decimal.NewFromFloat(size))
	}
	deps.Calculator = profit.NewCalculator(profit.Config{
		SwapFeeRate:        decimal.NewFromFloat(cfg.Profit.SwapFeeRate),
		GasBufferPct:       decimal.NewFromFloat(cfg.Profit.GasBufferPct),
		GasLimitSwap:       cfg.Profit.GasLimitSwap,
		GasLimitTriangular: cfg.Profit.GasLimitTriangular,
		NativeUSDPrice:     nativeUSD,
		ImpactBasePct:      decimal.NewFromFloat(cfg.Profit.ImpactBasePct),
		ImpactPctPer10kUSD: decimal.NewFromFloat(cfg.Profit.ImpactPctPer10kUSD),
		TradeSizeLadder:    ladder,
		MaxTradeSizeUSD:    decimal.NewFromFloat(cfg.Profit.MaxTradeSizeUSD),
	}, deps.GasTracker, logger)

	// --- Simulator ---
	sim, err := simulator.New(simulator.Config{
		CacheTTL:       cfg.Simulator.CacheTTL.Duration,
		CacheSize:      cfg.Simulator.CacheSize,
		QuoteTimeout:   cfg.Simulator.QuoteTimeout.Duration,
		NativeUSDPrice: nativeUSD,
	}, simulator.Deps{
		Quoter: deps.Quoter,
		Gas:    deps.GasTracker,
		Tokens: deps.Tokens,
		Logger: logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: simulator: %w", err)
	}
	deps.Simulator = sim

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

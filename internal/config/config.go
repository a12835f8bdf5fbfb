// Package config defines the top-level configuration for the dexradar
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXRADAR_* environment
// variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Feed       FeedConfig       `toml:"feed"`
	Normalizer NormalizerConfig `toml:"normalizer"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Profit     ProfitConfig     `toml:"profit"`
	Simulator  SimulatorConfig  `toml:"simulator"`
	Retention  RetentionConfig  `toml:"retention"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`

	Tokens    []TokenConfig    `toml:"tokens"`
	Venues    []VenueConfig    `toml:"venues"`
	Pairs     []PairConfig     `toml:"pairs"`
	Triangles []TriangleConfig `toml:"triangles"`

	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
}

// ChainConfig holds JSON-RPC endpoints and per-call limits for the chain
// collaborator.
type ChainConfig struct {
	// Endpoints are tried in order; an endpoint that errors is marked
	// unhealthy and skipped until its cooldown elapses.
	Endpoints        []string `toml:"endpoints"`
	ChainID          int64    `toml:"chain_id"`
	RequestTimeout   duration `toml:"request_timeout"`
	EndpointCooldown duration `toml:"endpoint_cooldown"`
	// NativeToken is the symbol whose reference USD price converts gas costs
	// to USD (e.g. "WETH").
	NativeToken string `toml:"native_token"`
}

// FeedConfig holds the price polling loop parameters.
type FeedConfig struct {
	PollInterval duration `toml:"poll_interval"`
	// MaxPriceAge marks observations stale for trading decisions.
	MaxPriceAge duration `toml:"max_price_age"`
	// HistoryDepth bounds the per-key observation ring buffer.
	HistoryDepth int `toml:"history_depth"`
}

// NormalizerConfig holds the price-correction thresholds.
type NormalizerConfig struct {
	// MaxDeviationPct: above this deviation from the reference ratio the
	// quote is replaced by a jittered reference value (degraded mode).
	MaxDeviationPct float64 `toml:"max_deviation_pct"`
	// FallbackJitterPct bounds the jitter applied to substituted values.
	FallbackJitterPct float64 `toml:"fallback_jitter_pct"`
	// MinSpreadPct / MaxSpreadPct bound the pair-spread helper: below the
	// minimum a spread cannot cover fees, above the maximum it is bad data.
	MinSpreadPct float64 `toml:"min_spread_pct"`
	MaxSpreadPct float64 `toml:"max_spread_pct"`
}

// ScannerConfig holds the opportunity detection thresholds.
type ScannerConfig struct {
	ScanInterval duration `toml:"scan_interval"`
	// MinSpreadPct gates simple candidates (percent, 0.5 = 0.5%).
	MinSpreadPct float64 `toml:"min_spread_pct"`
	// MinTriProfitPct gates triangular candidates on compounded rate - 1.
	MinTriProfitPct float64 `toml:"min_tri_profit_pct"`
	// MinProfitUSD is the net-profit floor for emitting a candidate.
	MinProfitUSD float64 `toml:"min_profit_usd"`
	// TradeNotionalUSD is the reference trade size used for detection.
	TradeNotionalUSD float64 `toml:"trade_notional_usd"`
}

// ProfitConfig holds the fee/gas model parameters.
type ProfitConfig struct {
	// SwapFeeRate is the default per-leg swap fee fraction (0.003 = 0.3%).
	SwapFeeRate float64 `toml:"swap_fee_rate"`
	// GasBufferPct inflates gas estimates as a safety margin.
	GasBufferPct float64 `toml:"gas_buffer_pct"`
	// Gas limits per trade shape.
	GasLimitSwap       uint64 `toml:"gas_limit_swap"`
	GasLimitTriangular uint64 `toml:"gas_limit_triangular"`
	// GasRefreshInterval controls how often the gas tracker polls the chain.
	GasRefreshInterval duration `toml:"gas_refresh_interval"`
	// DefaultGasPriceGwei is used until the first refresh succeeds and
	// whenever refreshes keep failing.
	DefaultGasPriceGwei float64 `toml:"default_gas_price_gwei"`
	// TradeSizeLadder is the USD grid searched by OptimalTradeSize.
	TradeSizeLadder []float64 `toml:"trade_size_ladder"`
	MaxTradeSizeUSD float64   `toml:"max_trade_size_usd"`
	// Coarse price-impact model: impact = base + notional/10k * slope.
	ImpactBasePct      float64 `toml:"impact_base_pct"`
	ImpactPctPer10kUSD float64 `toml:"impact_pct_per_10k_usd"`
}

// SimulatorConfig holds trade-simulation parameters.
type SimulatorConfig struct {
	// CacheTTL bounds how long a simulation result is reused for the same
	// (type, candidate, notional) key.
	CacheTTL  duration `toml:"cache_ttl"`
	CacheSize int      `toml:"cache_size"`
	// DefaultSlippagePct is the haircut applied by the auto-simulation loop.
	DefaultSlippagePct float64  `toml:"default_slippage_pct"`
	QuoteTimeout       duration `toml:"quote_timeout"`
}

// RetentionConfig holds candidate lifecycle windows.
type RetentionConfig struct {
	// ExpireAfter ages out non-terminal candidates.
	ExpireAfter duration `toml:"expire_after"`
	// PurgeAfter removes terminal candidates from the store.
	PurgeAfter    duration `toml:"purge_after"`
	SweepInterval duration `toml:"sweep_interval"`
	// ArchiveEnabled uploads purged candidates to S3 first.
	ArchiveEnabled bool `toml:"archive_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerMin caps per-client requests per minute when Redis is
	// enabled. Zero disables rate limiting.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// TokenConfig declares a supported token.
type TokenConfig struct {
	Symbol   string  `toml:"symbol"`
	Address  string  `toml:"address"`
	Decimals int     `toml:"decimals"`
	USDPrice float64 `toml:"usd_price"`
}

// VenueConfig declares a supported venue.
type VenueConfig struct {
	Name        string  `toml:"name"`
	Kind        string  `toml:"kind"`
	Priority    int     `toml:"priority"`
	SwapFeeRate float64 `toml:"swap_fee_rate"`
	FeeTiers    []int   `toml:"fee_tiers"`
	Factory     string  `toml:"factory"`
	Quoter      string  `toml:"quoter"`
}

// PairConfig declares a monitored pair; prices are quoted as quote-per-base.
type PairConfig struct {
	Base  string `toml:"base"`
	Quote string `toml:"quote"`
}

// TriangleConfig declares a 3-token cycle scanned for triangular arbitrage.
type TriangleConfig struct {
	Path []string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:          1,
			RequestTimeout:   duration{5 * time.Second},
			EndpointCooldown: duration{30 * time.Second},
			NativeToken:      "WETH",
		},
		Feed: FeedConfig{
			PollInterval: duration{10 * time.Second},
			MaxPriceAge:  duration{30 * time.Second},
			HistoryDepth: 100,
		},
		Normalizer: NormalizerConfig{
			MaxDeviationPct:   50,
			FallbackJitterPct: 2,
			MinSpreadPct:      0.01,
			MaxSpreadPct:      2,
		},
		Scanner: ScannerConfig{
			ScanInterval:     duration{15 * time.Second},
			MinSpreadPct:     0.5,
			MinTriProfitPct:  0.5,
			MinProfitUSD:     50,
			TradeNotionalUSD: 1000,
		},
		Profit: ProfitConfig{
			SwapFeeRate:         0.003,
			GasBufferPct:        20,
			GasLimitSwap:        150_000,
			GasLimitTriangular:  350_000,
			GasRefreshInterval:  duration{30 * time.Second},
			DefaultGasPriceGwei: 20,
			TradeSizeLadder:     []float64{100, 500, 1000, 2500, 5000},
			MaxTradeSizeUSD:     10_000,
			ImpactBasePct:       0.1,
			ImpactPctPer10kUSD:  0.05,
		},
		Simulator: SimulatorConfig{
			CacheTTL:           duration{30 * time.Second},
			CacheSize:          2048,
			DefaultSlippagePct: 0.5,
			QuoteTimeout:       duration{5 * time.Second},
		},
		Retention: RetentionConfig{
			ExpireAfter:   duration{5 * time.Minute},
			PurgeAfter:    duration{24 * time.Hour},
			SweepInterval: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexradar",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexradar-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8080,
			RateLimitPerMin: 300,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// Validate checks Config for obviously invalid or missing values and returns
// a descriptive error for the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "scan", "serve", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if len(c.Tokens) == 0 {
		return fmt.Errorf("config: at least one token must be configured")
	}
	tokens := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("config: token with empty symbol")
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("config: token %s: decimals %d out of range", t.Symbol, t.Decimals)
		}
		if t.USDPrice <= 0 {
			return fmt.Errorf("config: token %s: usd_price must be positive", t.Symbol)
		}
		if tokens[t.Symbol] {
			return fmt.Errorf("config: duplicate token %s", t.Symbol)
		}
		tokens[t.Symbol] = true
	}

	if len(c.Venues) == 0 {
		return fmt.Errorf("config: at least one venue must be configured")
	}
	venues := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venue with empty name")
		}
		switch domain.VenueKind(v.Kind) {
		case domain.VenueKindConstantProduct, domain.VenueKindConcentrated:
		default:
			return fmt.Errorf("config: venue %s: unsupported kind %q", v.Name, v.Kind)
		}
		if v.SwapFeeRate < 0 || v.SwapFeeRate >= 1 {
			return fmt.Errorf("config: venue %s: swap_fee_rate %v out of range", v.Name, v.SwapFeeRate)
		}
		if venues[v.Name] {
			return fmt.Errorf("config: duplicate venue %s", v.Name)
		}
		venues[v.Name] = true
	}

	for _, p := range c.Pairs {
		if !tokens[p.Base] || !tokens[p.Quote] {
			return fmt.Errorf("config: pair %s/%s references unknown token", p.Base, p.Quote)
		}
		if p.Base == p.Quote {
			return fmt.Errorf("config: pair %s/%s is degenerate", p.Base, p.Quote)
		}
	}
	for _, t := range c.Triangles {
		if len(t.Path) != 3 {
			return fmt.Errorf("config: triangle path must have exactly 3 tokens, got %d", len(t.Path))
		}
		for _, sym := range t.Path {
			if !tokens[sym] {
				return fmt.Errorf("config: triangle references unknown token %s", sym)
			}
		}
		if t.Path[0] == t.Path[1] || t.Path[1] == t.Path[2] || t.Path[0] == t.Path[2] {
			return fmt.Errorf("config: triangle %v repeats a token", t.Path)
		}
	}

	if !tokens[c.Chain.NativeToken] {
		return fmt.Errorf("config: chain.native_token %q is not a configured token", c.Chain.NativeToken)
	}

	if c.Scanner.MinSpreadPct <= 0 {
		return fmt.Errorf("config: scanner.min_spread_pct must be positive")
	}
	if c.Scanner.TradeNotionalUSD <= 0 {
		return fmt.Errorf("config: scanner.trade_notional_usd must be positive")
	}
	if c.Profit.GasBufferPct < 0 {
		return fmt.Errorf("config: profit.gas_buffer_pct cannot be negative")
	}
	if c.Simulator.DefaultSlippagePct < 0 || c.Simulator.DefaultSlippagePct >= 100 {
		return fmt.Errorf("config: simulator.default_slippage_pct %v out of range", c.Simulator.DefaultSlippagePct)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// TokenTable converts the configured tokens into domain form keyed by symbol.
func (c *Config) TokenTable() map[string]domain.Token {
	out := make(map[string]domain.Token, len(c.Tokens))
	for _, t := range c.Tokens {
		out[t.Symbol] = domain.Token{
			Symbol:   t.Symbol,
			Address:  t.Address,
			Decimals: t.Decimals,
			USDPrice: decimal.NewFromFloat(t.USDPrice),
		}
	}
	return out
}

// VenueTable converts the configured venues into domain form keyed by name.
func (c *Config) VenueTable() map[string]domain.Venue {
	out := make(map[string]domain.Venue, len(c.Venues))
	for _, v := range c.Venues {
		out[v.Name] = domain.Venue{
			Name:           v.Name,
			Kind:           domain.VenueKind(v.Kind),
			Priority:       v.Priority,
			SwapFeeRate:    decimal.NewFromFloat(v.SwapFeeRate),
			FeeTiers:       v.FeeTiers,
			FactoryAddress: v.Factory,
			QuoterAddress:  v.Quoter,
		}
	}
	return out
}

// DomainPairs converts the configured pairs into domain form.
func (c *Config) DomainPairs() []domain.Pair {
	out := make([]domain.Pair, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, domain.Pair{Base: p.Base, Quote: p.Quote})
	}
	return out
}

// DomainTriangles converts the configured triangles into domain form.
func (c *Config) DomainTriangles() []domain.TrianglePath {
	out := make([]domain.TrianglePath, 0, len(c.Triangles))
	for _, t := range c.Triangles {
		out = append(out, domain.TrianglePath{A: t.Path[0], B: t.Path[1], C: t.Path[2]})
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXRADAR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXRADAR_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStringSlice(&cfg.Chain.Endpoints, "DEXRADAR_CHAIN_ENDPOINTS")
	setInt64(&cfg.Chain.ChainID, "DEXRADAR_CHAIN_ID")
	setDuration(&cfg.Chain.RequestTimeout, "DEXRADAR_CHAIN_REQUEST_TIMEOUT")
	setStr(&cfg.Chain.NativeToken, "DEXRADAR_CHAIN_NATIVE_TOKEN")

	// ── Feed / scanner ──
	setDuration(&cfg.Feed.PollInterval, "DEXRADAR_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.MaxPriceAge, "DEXRADAR_FEED_MAX_PRICE_AGE")
	setDuration(&cfg.Scanner.ScanInterval, "DEXRADAR_SCANNER_SCAN_INTERVAL")
	setFloat64(&cfg.Scanner.MinSpreadPct, "DEXRADAR_SCANNER_MIN_SPREAD_PCT")
	setFloat64(&cfg.Scanner.MinProfitUSD, "DEXRADAR_SCANNER_MIN_PROFIT_USD")
	setFloat64(&cfg.Scanner.TradeNotionalUSD, "DEXRADAR_SCANNER_TRADE_NOTIONAL_USD")

	// ── Profit / simulator ──
	setFloat64(&cfg.Profit.GasBufferPct, "DEXRADAR_PROFIT_GAS_BUFFER_PCT")
	setFloat64(&cfg.Profit.DefaultGasPriceGwei, "DEXRADAR_PROFIT_DEFAULT_GAS_PRICE_GWEI")
	setFloat64(&cfg.Simulator.DefaultSlippagePct, "DEXRADAR_SIMULATOR_DEFAULT_SLIPPAGE_PCT")
	setDuration(&cfg.Simulator.CacheTTL, "DEXRADAR_SIMULATOR_CACHE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXRADAR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXRADAR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXRADAR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXRADAR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXRADAR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXRADAR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXRADAR_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "DEXRADAR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEXRADAR_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEXRADAR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXRADAR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXRADAR_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "DEXRADAR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DEXRADAR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXRADAR_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXRADAR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXRADAR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXRADAR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXRADAR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXRADAR_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXRADAR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXRADAR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXRADAR_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXRADAR_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXRADAR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXRADAR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXRADAR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXRADAR_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXRADAR_MODE")
	setStr(&cfg.LogLevel, "DEXRADAR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

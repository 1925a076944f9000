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
// built-in defaults, applies STRIKEBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known STRIKEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "STRIKEBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STRIKEBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STRIKEBOT_WALLET_KEY_PASSWORD")

	// Polymarket
	setStr(&cfg.Polymarket.ClobHost, "STRIKEBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "STRIKEBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "STRIKEBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "STRIKEBOT_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.ApiKey, "STRIKEBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "STRIKEBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "STRIKEBOT_POLYMARKET_API_PASSPHRASE")

	// Binance
	setStr(&cfg.Binance.WsHost, "STRIKEBOT_BINANCE_WS_HOST")

	// Postgres
	setStr(&cfg.Postgres.DSN, "STRIKEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STRIKEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STRIKEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STRIKEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STRIKEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STRIKEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STRIKEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STRIKEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STRIKEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STRIKEBOT_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "STRIKEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STRIKEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STRIKEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STRIKEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STRIKEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STRIKEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STRIKEBOT_REDIS_TLS_ENABLED")

	// S3
	setBool(&cfg.S3.Enabled, "STRIKEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STRIKEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STRIKEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "STRIKEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STRIKEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STRIKEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STRIKEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STRIKEBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "STRIKEBOT_S3_ARCHIVE_INTERVAL")
	setDuration(&cfg.S3.ArchiveRetention, "STRIKEBOT_S3_ARCHIVE_RETENTION")

	// Strategy
	setStringSlice(&cfg.Strategy.Assets, "STRIKEBOT_STRATEGY_ASSETS")
	setDuration(&cfg.Strategy.EntryWindow, "STRIKEBOT_STRATEGY_ENTRY_WINDOW")
	setDuration(&cfg.Strategy.ExecutionWindow, "STRIKEBOT_STRATEGY_EXECUTION_WINDOW")
	setFloat64(&cfg.Strategy.MinUnderdogAsk, "STRIKEBOT_STRATEGY_MIN_UNDERDOG_ASK")
	setFloat64(&cfg.Strategy.MaxUnderdogAsk, "STRIKEBOT_STRATEGY_MAX_UNDERDOG_ASK")
	setFloat64(&cfg.Strategy.TightnessThreshold, "STRIKEBOT_STRATEGY_TIGHTNESS_THRESHOLD")
	setFloat64(&cfg.Strategy.TightnessCeiling, "STRIKEBOT_STRATEGY_TIGHTNESS_CEILING")
	setFloat64(&cfg.Strategy.MomentumThreshold, "STRIKEBOT_STRATEGY_MOMENTUM_THRESHOLD")
	setDuration(&cfg.Strategy.MomentumHorizon, "STRIKEBOT_STRATEGY_MOMENTUM_HORIZON")
	setDuration(&cfg.Strategy.OddsTrendHorizon, "STRIKEBOT_STRATEGY_ODDS_TREND_HORIZON")
	setFloat64(&cfg.Strategy.OddsTrendEpsilon, "STRIKEBOT_STRATEGY_ODDS_TREND_EPSILON")
	setDuration(&cfg.Strategy.VolatilityWindow, "STRIKEBOT_STRATEGY_VOLATILITY_WINDOW")
	setFloat64(&cfg.Strategy.VolatilityMultiplier, "STRIKEBOT_STRATEGY_VOLATILITY_MULTIPLIER")
	setFloat64(&cfg.Strategy.MinVolatility, "STRIKEBOT_STRATEGY_MIN_VOLATILITY")
	setDuration(&cfg.Strategy.StalenessThreshold, "STRIKEBOT_STRATEGY_STALENESS_THRESHOLD")
	setFloat64(&cfg.Strategy.NotionalPerSide, "STRIKEBOT_STRATEGY_NOTIONAL_PER_SIDE")
	setFloat64(&cfg.Strategy.MaxDailyLoss, "STRIKEBOT_STRATEGY_MAX_DAILY_LOSS")
	setDuration(&cfg.Strategy.OrderTimeout, "STRIKEBOT_STRATEGY_ORDER_TIMEOUT")
	setBool(&cfg.Strategy.DryRun, "STRIKEBOT_STRATEGY_DRY_RUN")
	setDuration(&cfg.Strategy.TickInterval, "STRIKEBOT_STRATEGY_TICK_INTERVAL")
	setDuration(&cfg.Strategy.DiscoveryInterval, "STRIKEBOT_STRATEGY_DISCOVERY_INTERVAL")
	setInt(&cfg.Strategy.PriceHistorySize, "STRIKEBOT_STRATEGY_PRICE_HISTORY_SIZE")
	setInt(&cfg.Strategy.OddsHistorySize, "STRIKEBOT_STRATEGY_ODDS_HISTORY_SIZE")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "STRIKEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STRIKEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STRIKEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STRIKEBOT_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.LogLevel, "STRIKEBOT_LOG_LEVEL")
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

// Package config defines the top-level configuration for strikebot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STRIKEBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials for live order signing.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and
// optional pre-derived L2 API credentials. When the credentials are empty
// the order client derives them at startup via the L1 auth flow.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// BinanceConfig holds the market data stream endpoint.
type BinanceConfig struct {
	WsHost string `toml:"ws_host"`
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

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled the engine runs without the event bus and the instance lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the shadow log
// archiver. Optional.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveInterval  duration `toml:"archive_interval"`
	ArchiveRetention duration `toml:"archive_retention"`
}

// StrategyConfig holds the signal and execution parameters.
type StrategyConfig struct {
	Assets []string `toml:"assets"`

	EntryWindow     duration `toml:"entry_window"`
	ExecutionWindow duration `toml:"execution_window"`

	MinUnderdogAsk float64 `toml:"min_underdog_ask"`
	MaxUnderdogAsk float64 `toml:"max_underdog_ask"`

	TightnessThreshold float64 `toml:"tightness_threshold"`
	TightnessCeiling   float64 `toml:"tightness_ceiling"`

	MomentumThreshold float64  `toml:"momentum_threshold"`
	MomentumHorizon   duration `toml:"momentum_horizon"`
	OddsTrendHorizon  duration `toml:"odds_trend_horizon"`
	OddsTrendEpsilon  float64  `toml:"odds_trend_epsilon"`

	VolatilityWindow     duration `toml:"volatility_window"`
	VolatilityMultiplier float64  `toml:"volatility_multiplier"`
	MinVolatility        float64  `toml:"min_volatility"`

	StalenessThreshold duration `toml:"staleness_threshold"`

	NotionalPerSide float64  `toml:"notional_per_side"`
	MaxDailyLoss    float64  `toml:"max_daily_loss"`
	OrderTimeout    duration `toml:"order_timeout"`
	DryRun          bool     `toml:"dry_run"`

	TickInterval      duration `toml:"tick_interval"`
	DiscoveryInterval duration `toml:"discovery_interval"`

	PriceHistorySize int `toml:"price_history_size"`
	OddsHistorySize  int `toml:"odds_history_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "90s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "90s" or "5m".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
		},
		Binance: BinanceConfig{
			WsHost: "wss://stream.binance.com:9443",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "strikebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "strikebot-data",
			ForcePathStyle:   true,
			ArchiveInterval:  duration{24 * time.Hour},
			ArchiveRetention: duration{30 * 24 * time.Hour},
		},
		Strategy: StrategyConfig{
			Assets: []string{"BTC", "ETH", "SOL", "XRP"},

			EntryWindow:     duration{90 * time.Second},
			ExecutionWindow: duration{45 * time.Second},

			MinUnderdogAsk: 0.05,
			MaxUnderdogAsk: 0.30,

			TightnessThreshold: 0.10,
			TightnessCeiling:   0.40,

			MomentumThreshold: 5.0,
			MomentumHorizon:   duration{3 * time.Second},
			OddsTrendHorizon:  duration{10 * time.Second},
			OddsTrendEpsilon:  0.01,

			VolatilityWindow:     duration{300 * time.Second},
			VolatilityMultiplier: 2.0,
			MinVolatility:        0.00007,

			StalenessThreshold: duration{10 * time.Second},

			NotionalPerSide: 1.0,
			MaxDailyLoss:    20.0,
			OrderTimeout:    duration{10 * time.Second},
			DryRun:          true,

			TickInterval:      duration{500 * time.Millisecond},
			DiscoveryInterval: duration{30 * time.Second},

			PriceHistorySize: 900,
			OddsHistorySize:  900,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_fired", "trade_resolved"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: a credential source is required only for live trading.
	if !c.Strategy.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set when dry_run is false")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket endpoints.
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// L2 credentials must be set together, or all empty.
	pk := c.Polymarket.ApiKey != ""
	ps := c.Polymarket.ApiSecret != ""
	pp := c.Polymarket.ApiPassphrase != ""
	if (pk || ps || pp) && !(pk && ps && pp) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	if c.Binance.WsHost == "" {
		errs = append(errs, "binance: ws_host must not be empty")
	}

	// Postgres.
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis.
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Strategy.
	s := &c.Strategy
	if len(s.Assets) == 0 {
		errs = append(errs, "strategy: assets must not be empty")
	}
	if s.EntryWindow.Duration <= 0 {
		errs = append(errs, "strategy: entry_window must be > 0")
	}
	if s.ExecutionWindow.Duration <= 0 || s.ExecutionWindow.Duration > s.EntryWindow.Duration {
		errs = append(errs, "strategy: execution_window must be > 0 and within entry_window")
	}
	if s.MinUnderdogAsk <= 0 || s.MinUnderdogAsk >= s.MaxUnderdogAsk {
		errs = append(errs, "strategy: require 0 < min_underdog_ask < max_underdog_ask")
	}
	if s.MaxUnderdogAsk > 0.5 {
		errs = append(errs, "strategy: max_underdog_ask must be <= 0.5 (the underdog side)")
	}
	if s.TightnessThreshold <= 0 || s.TightnessThreshold >= s.TightnessCeiling {
		errs = append(errs, "strategy: require 0 < tightness_threshold < tightness_ceiling")
	}
	if s.VolatilityMultiplier <= 0 {
		errs = append(errs, "strategy: volatility_multiplier must be > 0")
	}
	if s.MinVolatility <= 0 {
		errs = append(errs, "strategy: min_volatility must be > 0")
	}
	if s.NotionalPerSide <= 0 {
		errs = append(errs, "strategy: notional_per_side must be > 0")
	}
	if s.MaxDailyLoss <= 0 {
		errs = append(errs, "strategy: max_daily_loss must be > 0")
	}
	if s.TickInterval.Duration <= 0 {
		errs = append(errs, "strategy: tick_interval must be > 0")
	}
	if s.DiscoveryInterval.Duration < s.TickInterval.Duration {
		errs = append(errs, "strategy: discovery_interval must be >= tick_interval")
	}
	if s.PriceHistorySize < 1 || s.OddsHistorySize < 1 {
		errs = append(errs, "strategy: history sizes must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Strategy.DryRun, "defaults must never trade live")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[strategy]
assets = ["BTC"]
entry_window = "2m"
notional_per_side = 2.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"BTC"}, cfg.Strategy.Assets)
	assert.Equal(t, 2*time.Minute, cfg.Strategy.EntryWindow.Duration)
	assert.Equal(t, 2.5, cfg.Strategy.NotionalPerSide)

	// Untouched fields keep their defaults.
	assert.Equal(t, 0.05, cfg.Strategy.MinUnderdogAsk)
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("STRIKEBOT_STRATEGY_ASSETS", "ETH, SOL")
	t.Setenv("STRIKEBOT_STRATEGY_DRY_RUN", "false")
	t.Setenv("STRIKEBOT_STRATEGY_EXECUTION_WINDOW", "30s")
	t.Setenv("STRIKEBOT_POSTGRES_PASSWORD", "sekret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH", "SOL"}, cfg.Strategy.Assets)
	assert.False(t, cfg.Strategy.DryRun)
	assert.Equal(t, 30*time.Second, cfg.Strategy.ExecutionWindow.Duration)
	assert.Equal(t, "sekret", cfg.Postgres.Password)
}

func TestValidateCatchesBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "log_level",
		},
		{
			name:   "live mode without wallet",
			mutate: func(c *Config) { c.Strategy.DryRun = false },
			want:   "wallet",
		},
		{
			name:   "execution window exceeds entry window",
			mutate: func(c *Config) { c.Strategy.ExecutionWindow = duration{5 * time.Minute} },
			want:   "execution_window",
		},
		{
			name:   "inverted ask band",
			mutate: func(c *Config) { c.Strategy.MinUnderdogAsk = 0.4 },
			want:   "min_underdog_ask",
		},
		{
			name:   "underdog ask above half",
			mutate: func(c *Config) { c.Strategy.MaxUnderdogAsk = 0.6 },
			want:   "max_underdog_ask",
		},
		{
			name:   "no assets",
			mutate: func(c *Config) { c.Strategy.Assets = nil },
			want:   "assets",
		},
		{
			name:   "partial L2 credentials",
			mutate: func(c *Config) { c.Polymarket.ApiKey = "k" },
			want:   "api_key",
		},
		{
			name:   "s3 enabled without bucket",
			mutate: func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" },
			want:   "bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	// Empty secrets stay empty.
	assert.Empty(t, red.Redis.Password)
}

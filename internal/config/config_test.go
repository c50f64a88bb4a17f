package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"ETH", "SOL"}, cfg.Tracked.Coins)
	assert.Equal(t, 50_000.0, cfg.Tracked.LargeTradeThreshold["ETH"])
	assert.Equal(t, []int{300, 900, 3600, 14400}, cfg.OrderFlow.Windows)
	assert.InDelta(t, 1.0, cfg.Weights.OrderFlow+cfg.Weights.Whales+cfg.Weights.HLP+cfg.Weights.Funding, 1e-9)
	assert.Equal(t, "full", cfg.Mode)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Hyperliquid.RestURL = ""
	cfg.OrderFlow.Windows = nil
	cfg.Weights.HLP = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "rest_url must not be empty")
	assert.Contains(t, err.Error(), "windows must not be empty")
	assert.Contains(t, err.Error(), "weights: components must be >= 0")
}

func TestValidateEmptyCoinsAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Tracked.Coins = nil
	assert.NoError(t, cfg.Validate())
}

func TestValidateRedisOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Hyperliquid.RestURL, cfg.Hyperliquid.RestURL)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "monitor"

[hyperliquid]
max_rps = 5.0
reconnect_delay = "10s"

[tracked]
coins = ["BTC"]

[tracked.large_trade_threshold]
BTC = 100000.0

[monitor]
refresh_interval = "1m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 5.0, cfg.Hyperliquid.MaxRPS)
	assert.Equal(t, 10*time.Second, cfg.Hyperliquid.ReconnectDelay.Duration)
	assert.Equal(t, []string{"BTC"}, cfg.Tracked.Coins)
	assert.Equal(t, 100_000.0, cfg.Tracked.LargeTradeThreshold["BTC"])
	assert.Equal(t, time.Minute, cfg.Monitor.RefreshInterval.Duration)
	// Untouched sections keep defaults.
	assert.Equal(t, Defaults().Hyperliquid.RestURL, cfg.Hyperliquid.RestURL)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYPERSIG_MODE", "serve")
	t.Setenv("HYPERSIG_TRACKED_COINS", "ETH, BTC ,SOL")
	t.Setenv("HYPERSIG_HYPERLIQUID_MAX_RPS", "2.5")
	t.Setenv("HYPERSIG_REDIS_ENABLED", "true")
	t.Setenv("HYPERSIG_MONITOR_REFRESH_INTERVAL", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, []string{"ETH", "BTC", "SOL"}, cfg.Tracked.Coins)
	assert.Equal(t, 2.5, cfg.Hyperliquid.MaxRPS)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Monitor.RefreshInterval.Duration)
}

func TestMaxWindow(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 14400, cfg.MaxWindow())

	cfg.OrderFlow.Windows = nil
	assert.Equal(t, 0, cfg.MaxWindow())
}

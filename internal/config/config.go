// Package config defines the top-level configuration for the signal
// aggregator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HYPERSIG_* environment variables.
type Config struct {
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Tracked     TrackedConfig     `toml:"tracked"`
	Poll        PollConfig        `toml:"poll"`
	OrderFlow   OrderFlowConfig   `toml:"orderflow"`
	Whales      WhalesConfig      `toml:"whales"`
	HLP         HLPConfig         `toml:"hlp"`
	Weights     WeightsConfig     `toml:"weights"`
	Redis       RedisConfig       `toml:"redis"`
	Notify      NotifyConfig      `toml:"notify"`
	Server      ServerConfig      `toml:"server"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// HyperliquidConfig holds upstream venue endpoints and transport parameters.
type HyperliquidConfig struct {
	RestURL        string   `toml:"rest_url"`
	WsURL          string   `toml:"ws_url"`
	MaxRPS         float64  `toml:"max_rps"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// TrackedConfig lists the instruments the detectors follow and the
// per-instrument USD notional above which a trade counts as large.
type TrackedConfig struct {
	Coins               []string           `toml:"coins"`
	LargeTradeThreshold map[string]float64 `toml:"large_trade_threshold"`
}

// PollConfig holds the periodic poller intervals.
type PollConfig struct {
	Positions duration `toml:"positions"`
	Funding   duration `toml:"funding"`
	HLP       duration `toml:"hlp"`
}

// OrderFlowConfig holds the imbalance window list, in seconds.
type OrderFlowConfig struct {
	Windows []int `toml:"windows"`
}

// WhalesConfig holds the statically tracked address list and whether the
// leaderboard bootstrap should run.
type WhalesConfig struct {
	Seed      []string `toml:"seed"`
	Bootstrap bool     `toml:"bootstrap"`
}

// HLPConfig identifies the house liquidity-provider vault.
type HLPConfig struct {
	Vault string `toml:"vault"`
}

// WeightsConfig holds the composite-score component weights.
type WeightsConfig struct {
	OrderFlow float64 `toml:"orderflow"`
	Whales    float64 `toml:"whales"`
	HLP       float64 `toml:"hlp"`
	Funding   float64 `toml:"funding"`
}

// RedisConfig holds Redis connection parameters for the optional signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP read-API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// MonitorConfig holds the monitor-mode refresh interval.
type MonitorConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
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

// Defaults returns a Config populated with reasonable default values. The
// endpoints and thresholds match the public Hyperliquid mainnet deployment.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			RestURL:        "https://api.hyperliquid.xyz/info",
			WsURL:          "wss://api.hyperliquid.xyz/ws",
			MaxRPS:         10,
			ReconnectDelay: duration{3 * time.Second},
		},
		Tracked: TrackedConfig{
			Coins: []string{"ETH", "SOL"},
			LargeTradeThreshold: map[string]float64{
				"ETH": 50_000,
				"SOL": 25_000,
			},
		},
		Poll: PollConfig{
			Positions: duration{60 * time.Second},
			Funding:   duration{5 * time.Minute},
			HLP:       duration{5 * time.Minute},
		},
		OrderFlow: OrderFlowConfig{
			Windows: []int{300, 900, 3600, 14400}, // 5m, 15m, 1h, 4h
		},
		Whales: WhalesConfig{
			Seed:      []string{},
			Bootstrap: true,
		},
		HLP: HLPConfig{
			Vault: "0xdfc24b077bc1425ad1dea75bcb6f8158e10df303",
		},
		Weights: WeightsConfig{
			OrderFlow: 0.30,
			Whales:    0.25,
			HLP:       0.25,
			Funding:   0.20,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events: []string{"strong_signal", "funding_anomaly", "hlp_extreme", "whale_change"},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{},
		},
		Monitor: MonitorConfig{
			RefreshInterval: duration{30 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. An empty tracked-coin list is
// deliberately not an error: detectors simply emit empty signal lists.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Hyperliquid endpoints
	if c.Hyperliquid.RestURL == "" {
		errs = append(errs, "hyperliquid: rest_url must not be empty")
	}
	if c.Hyperliquid.WsURL == "" {
		errs = append(errs, "hyperliquid: ws_url must not be empty")
	}
	if c.Hyperliquid.MaxRPS <= 0 {
		errs = append(errs, "hyperliquid: max_rps must be > 0")
	}
	if c.Hyperliquid.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "hyperliquid: reconnect_delay must be > 0")
	}

	// Thresholds
	for coin, threshold := range c.Tracked.LargeTradeThreshold {
		if threshold < 0 {
			errs = append(errs, fmt.Sprintf("tracked: large_trade_threshold[%s] must be >= 0", coin))
		}
	}

	// Poll intervals
	if c.Poll.Positions.Duration <= 0 {
		errs = append(errs, "poll: positions must be > 0")
	}
	if c.Poll.Funding.Duration <= 0 {
		errs = append(errs, "poll: funding must be > 0")
	}
	if c.Poll.HLP.Duration <= 0 {
		errs = append(errs, "poll: hlp must be > 0")
	}

	// Order flow windows
	if len(c.OrderFlow.Windows) == 0 {
		errs = append(errs, "orderflow: windows must not be empty")
	}
	for _, w := range c.OrderFlow.Windows {
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("orderflow: window %d must be > 0", w))
		}
	}

	// HLP vault
	if c.HLP.Vault == "" {
		errs = append(errs, "hlp: vault must not be empty")
	}

	// Weights
	if c.Weights.OrderFlow < 0 || c.Weights.Whales < 0 || c.Weights.HLP < 0 || c.Weights.Funding < 0 {
		errs = append(errs, "weights: components must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Monitor
	if c.Monitor.RefreshInterval.Duration <= 0 {
		errs = append(errs, "monitor: refresh_interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MaxWindow returns the largest configured order-flow window in seconds, or 0
// when no windows are configured.
func (c *Config) MaxWindow() int {
	max := 0
	for _, w := range c.OrderFlow.Windows {
		if w > max {
			max = w
		}
	}
	return max
}

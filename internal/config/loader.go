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
// built-in defaults, applies HYPERSIG_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus env
// overrides apply. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HYPERSIG_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators tune the deployment without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// --- Hyperliquid ---
	setStr(&cfg.Hyperliquid.RestURL, "HYPERSIG_HYPERLIQUID_REST_URL")
	setStr(&cfg.Hyperliquid.WsURL, "HYPERSIG_HYPERLIQUID_WS_URL")
	setFloat64(&cfg.Hyperliquid.MaxRPS, "HYPERSIG_HYPERLIQUID_MAX_RPS")
	setDuration(&cfg.Hyperliquid.ReconnectDelay, "HYPERSIG_HYPERLIQUID_RECONNECT_DELAY")

	// --- Tracked instruments ---
	setStringSlice(&cfg.Tracked.Coins, "HYPERSIG_TRACKED_COINS")

	// --- Poll intervals ---
	setDuration(&cfg.Poll.Positions, "HYPERSIG_POLL_POSITIONS")
	setDuration(&cfg.Poll.Funding, "HYPERSIG_POLL_FUNDING")
	setDuration(&cfg.Poll.HLP, "HYPERSIG_POLL_HLP")

	// --- Whales ---
	setStringSlice(&cfg.Whales.Seed, "HYPERSIG_WHALES_SEED")
	setBool(&cfg.Whales.Bootstrap, "HYPERSIG_WHALES_BOOTSTRAP")

	// --- HLP ---
	setStr(&cfg.HLP.Vault, "HYPERSIG_HLP_VAULT")

	// --- Weights ---
	setFloat64(&cfg.Weights.OrderFlow, "HYPERSIG_WEIGHTS_ORDERFLOW")
	setFloat64(&cfg.Weights.Whales, "HYPERSIG_WEIGHTS_WHALES")
	setFloat64(&cfg.Weights.HLP, "HYPERSIG_WEIGHTS_HLP")
	setFloat64(&cfg.Weights.Funding, "HYPERSIG_WEIGHTS_FUNDING")

	// --- Redis ---
	setBool(&cfg.Redis.Enabled, "HYPERSIG_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HYPERSIG_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HYPERSIG_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HYPERSIG_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HYPERSIG_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HYPERSIG_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HYPERSIG_REDIS_TLS_ENABLED")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "HYPERSIG_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HYPERSIG_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HYPERSIG_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HYPERSIG_NOTIFY_EVENTS")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "HYPERSIG_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HYPERSIG_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HYPERSIG_SERVER_CORS_ORIGINS")

	// --- Monitor ---
	setDuration(&cfg.Monitor.RefreshInterval, "HYPERSIG_MONITOR_REFRESH_INTERVAL")

	// --- Top-level ---
	setStr(&cfg.Mode, "HYPERSIG_MODE")
	setStr(&cfg.LogLevel, "HYPERSIG_LOG_LEVEL")
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

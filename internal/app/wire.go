package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hypersig/hypersig/internal/aggregator"
	"github.com/hypersig/hypersig/internal/cache/redis"
	"github.com/hypersig/hypersig/internal/config"
	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/notify"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Rest       *hyperliquid.InfoClient
	Aggregator *aggregator.Aggregator

	// SignalBus is nil when Redis is disabled; publishing is then skipped.
	SignalBus domain.SignalBus

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Upstream clients and detectors ---
	deps.Rest = hyperliquid.NewInfoClient(cfg.Hyperliquid.RestURL, cfg.Hyperliquid.MaxRPS, logger)
	deps.Aggregator = aggregator.New(cfg, deps.Rest, aggregator.Detectors{}, logger)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
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

		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

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

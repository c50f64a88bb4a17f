package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/jsonx"
	"github.com/hypersig/hypersig/internal/server"
	"github.com/hypersig/hypersig/internal/server/handler"
)

const (
	// busChannel carries live composite snapshots over Pub/Sub.
	busChannel = "hypersig:composite"

	// busStream holds the bounded replayable snapshot history.
	busStream = "hypersig:stream:composite"

	serverShutdownTimeout = 10 * time.Second
)

// MonitorMode runs the detectors and the periodic snapshot loop: per-coin
// summary logging, bus publishing, and alerting. No HTTP server.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Aggregator.Start()
	defer deps.Aggregator.Stop()

	g.Go(func() error {
		return a.runSnapshots(ctx, deps)
	})

	return g.Wait()
}

// ServeMode runs the detectors and the HTTP read API without the snapshot
// loop; consumers poll the API instead.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Aggregator.Start()
	defer deps.Aggregator.Stop()

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: detectors, snapshot loop, and the HTTP read API
// when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Aggregator.Start()
	defer deps.Aggregator.Stop()

	g.Go(func() error {
		return a.runSnapshots(ctx, deps)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startHTTPServer registers the read-API routes and runs the server in the
// group, shutting it down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Signals: handler.NewSignalHandler(deps.Aggregator, a.logger),
		},
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// alertState tracks what has already been alerted so each condition fires on
// the transition into it, not on every refresh it persists.
type alertState struct {
	recommendation map[string]domain.Recommendation
	fundingAnomaly map[string]bool
	hlpExtreme     map[string]bool
	lastChangeTS   float64
}

// runSnapshots periodically reads the composite snapshot, logs a per-coin
// summary, publishes to the bus, and emits alerts. The first snapshot waits a
// full refresh interval so detectors have data to report.
func (a *App) runSnapshots(ctx context.Context, deps *Dependencies) error {
	state := &alertState{
		recommendation: make(map[string]domain.Recommendation),
		fundingAnomaly: make(map[string]bool),
		hlpExtreme:     make(map[string]bool),
		lastChangeTS:   domain.NowUnix(),
	}

	ticker := time.NewTicker(a.cfg.Monitor.RefreshInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		a.snapshotOnce(ctx, deps, state)
	}
}

// snapshotOnce performs a single refresh cycle.
func (a *App) snapshotOnce(ctx context.Context, deps *Dependencies, state *alertState) {
	composites := deps.Aggregator.CompositeSignals()
	mids := a.fetchMids(ctx, deps)

	for _, c := range composites {
		a.logger.InfoContext(ctx, "composite signal",
			slog.String("coin", c.Coin),
			slog.Float64("mid", mids[c.Coin]),
			slog.Float64("score", c.Score),
			slog.String("recommendation", string(c.Recommendation)),
			slog.Float64("orderflow", c.Components["orderflow"]),
			slog.Float64("whales", c.Components["whales"]),
			slog.Float64("hlp", c.Components["hlp"]),
			slog.Float64("funding", c.Components["funding"]),
		)
	}

	a.publishComposites(ctx, deps, composites)
	a.emitAlerts(ctx, deps, composites, state)
}

// fetchMids grabs the current mid prices for the summary lines. Best effort:
// a failed fetch just leaves the mids at zero.
func (a *App) fetchMids(ctx context.Context, deps *Dependencies) map[string]float64 {
	resp, err := deps.Rest.AllMids(ctx)
	if err != nil {
		a.logger.DebugContext(ctx, "all-mids fetch failed", slog.String("error", err.Error()))
		return nil
	}
	m := jsonx.Map(resp)
	if inner := jsonx.Map(m["mids"]); inner != nil {
		m = inner
	}
	mids := make(map[string]float64, len(m))
	for coin, price := range m {
		mids[coin] = jsonx.Coerce(price)
	}
	return mids
}

// publishComposites sends the snapshot to the Redis bus when one is wired.
// Publish failures are logged, never fatal.
func (a *App) publishComposites(ctx context.Context, deps *Dependencies, composites []domain.CompositeSignal) {
	if deps.SignalBus == nil || len(composites) == 0 {
		return
	}
	payload, err := json.Marshal(composites)
	if err != nil {
		a.logger.ErrorContext(ctx, "marshal composites failed", slog.String("error", err.Error()))
		return
	}
	if err := deps.SignalBus.Publish(ctx, busChannel, payload); err != nil {
		a.logger.WarnContext(ctx, "bus publish failed", slog.String("error", err.Error()))
	}
	if err := deps.SignalBus.StreamAppend(ctx, busStream, payload); err != nil {
		a.logger.WarnContext(ctx, "bus stream append failed", slog.String("error", err.Error()))
	}
}

// emitAlerts notifies on newly entered alert conditions: strong composite
// recommendations, funding anomalies, extreme vault exposure, and fresh whale
// position changes.
func (a *App) emitAlerts(ctx context.Context, deps *Dependencies, composites []domain.CompositeSignal, state *alertState) {
	for _, c := range composites {
		strong := c.Recommendation == domain.StrongLong || c.Recommendation == domain.StrongShort
		if strong && state.recommendation[c.Coin] != c.Recommendation {
			title := fmt.Sprintf("%s: %s", c.Coin, c.Recommendation)
			msg := fmt.Sprintf("composite score %.2f (orderflow %.2f, whales %.2f, hlp %.2f, funding %.2f)",
				c.Score,
				c.Components["orderflow"],
				c.Components["whales"],
				c.Components["hlp"],
				c.Components["funding"],
			)
			a.notify(ctx, deps, "strong_signal", title, msg)
		}
		state.recommendation[c.Coin] = c.Recommendation
	}

	for _, f := range deps.Aggregator.FundingSignals() {
		if f.IsAnomaly && !state.fundingAnomaly[f.Coin] {
			title := fmt.Sprintf("%s: funding anomaly", f.Coin)
			msg := fmt.Sprintf("rate %.6f (z=%.2f), open interest %.0f (%+.1f%%)",
				f.FundingRate, f.FundingZScore, f.OpenInterest, f.OIChangePct)
			a.notify(ctx, deps, "funding_anomaly", title, msg)
		}
		state.fundingAnomaly[f.Coin] = f.IsAnomaly
	}

	for _, h := range deps.Aggregator.HLPSignals() {
		if h.IsExtreme && !state.hlpExtreme[h.Coin] {
			title := fmt.Sprintf("%s: extreme vault exposure", h.Coin)
			msg := fmt.Sprintf("exposure %.0f USD (z=%.2f, %s)", h.HLPExposure, h.ZScore, h.Direction)
			a.notify(ctx, deps, "hlp_extreme", title, msg)
		}
		state.hlpExtreme[h.Coin] = h.IsExtreme
	}

	maxTS := state.lastChangeTS
	var fresh []domain.WhaleChange
	for _, w := range deps.Aggregator.WhaleSignals() {
		for _, ch := range w.RecentChanges {
			if ch.Timestamp > state.lastChangeTS {
				fresh = append(fresh, ch)
				if ch.Timestamp > maxTS {
					maxTS = ch.Timestamp
				}
			}
		}
		// Changes are global, identical on every per-coin signal.
		break
	}
	state.lastChangeTS = maxTS
	for _, ch := range fresh {
		title := fmt.Sprintf("whale moved on %s", ch.Coin)
		msg := fmt.Sprintf("%s: %s %.4f -> %.4f", shortAddr(ch.Address), ch.Coin, ch.PrevSize, ch.NewSize)
		a.notify(ctx, deps, "whale_change", title, msg)
	}
}

func (a *App) notify(ctx context.Context, deps *Dependencies, event, title, message string) {
	if err := deps.Notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// shortAddr abbreviates a hex address for alert text.
func shortAddr(addr string) string {
	if len(addr) <= 10 || !strings.HasPrefix(addr, "0x") {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

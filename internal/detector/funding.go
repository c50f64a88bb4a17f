package detector

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/jsonx"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

const (
	// anomalyZScore is the funding |z| at or above which a signal is anomalous.
	anomalyZScore = 2.0

	// anomalyOIChangePct is the absolute open-interest change percentage at or
	// above which a signal is anomalous.
	anomalyOIChangePct = 20.0
)

// assetContext is the per-instrument slice of a meta-and-asset-contexts
// response after permissive extraction.
type assetContext struct {
	coin         string
	fundingRate  float64
	openInterest float64
}

// FundingAnomalyDetector polls market metadata and flags instruments whose
// funding rate deviates from its 7-day history or whose open interest moved
// sharply since the previous cycle.
type FundingAnomalyDetector struct {
	coins        []string
	tracked      map[string]bool
	rest         *hyperliquid.InfoClient
	pollInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	history map[string]*rollingHistory
	lastOI  map[string]float64
	latest  map[string]domain.FundingSignal

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFundingAnomalyDetector creates the detector.
func NewFundingAnomalyDetector(rest *hyperliquid.InfoClient, coins []string, pollInterval time.Duration, logger *slog.Logger) *FundingAnomalyDetector {
	tracked := make(map[string]bool, len(coins))
	history := make(map[string]*rollingHistory, len(coins))
	for _, coin := range coins {
		tracked[coin] = true
		history[coin] = &rollingHistory{}
	}
	return &FundingAnomalyDetector{
		coins:        coins,
		tracked:      tracked,
		rest:         rest,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "funding")),
		history:      history,
		lastOI:       make(map[string]float64, len(coins)),
		latest:       make(map[string]domain.FundingSignal, len(coins)),
	}
}

// Start launches the polling loop. Idempotent.
func (d *FundingAnomalyDetector) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			d.pollOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
		}
	}()
}

// Stop signals the loop to cease and waits up to five seconds. Idempotent.
func (d *FundingAnomalyDetector) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	waitTimeout(&d.wg, stopTimeout)
}

// Signals returns the latest FundingSignal per tracked coin, in tracked
// order. Coins that have not completed a poll yet are omitted.
func (d *FundingAnomalyDetector) Signals() []domain.FundingSignal {
	d.mu.Lock()
	defer d.mu.Unlock()

	signals := make([]domain.FundingSignal, 0, len(d.latest))
	for _, coin := range d.coins {
		if sig, ok := d.latest[coin]; ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// pollOnce fetches meta-and-asset-contexts and records funding and open
// interest for every tracked instrument. A failed fetch abandons the cycle.
func (d *FundingAnomalyDetector) pollOnce(ctx context.Context) {
	now := domain.NowUnix()

	resp, err := d.rest.MetaAndAssetCtxs(ctx)
	if err != nil {
		d.logger.Debug("meta-and-asset-contexts fetch failed", slog.String("error", err.Error()))
		return
	}

	for _, actx := range parseAssetContexts(resp) {
		if !d.tracked[actx.coin] {
			continue
		}
		d.record(actx, now)
	}
}

// record appends the funding observation to the coin's rolling history and
// derives the z-score, open-interest change, and anomaly flag.
func (d *FundingAnomalyDetector) record(actx assetContext, now float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history[actx.coin]
	hist.append(now, actx.fundingRate)
	z := zscore(hist.values(), actx.fundingRate)

	oiChangePct := 0.0
	if prevOI, ok := d.lastOI[actx.coin]; ok && prevOI != 0 {
		oiChangePct = (actx.openInterest - prevOI) / prevOI * 100
	}
	d.lastOI[actx.coin] = actx.openInterest

	d.latest[actx.coin] = domain.FundingSignal{
		Coin:          actx.coin,
		FundingRate:   actx.fundingRate,
		FundingZScore: z,
		OpenInterest:  actx.openInterest,
		OIChangePct:   oiChangePct,
		IsAnomaly:     math.Abs(z) >= anomalyZScore || math.Abs(oiChangePct) >= anomalyOIChangePct,
		Timestamp:     now,
	}
}

// parseAssetContexts flattens a meta-and-asset-contexts response. The
// response is a two-element sequence [metadata, [assetCtx, ...]] where
// metadata.universe names instruments in the same index order as the
// contexts. Funding and open interest appear under several aliases and are
// coerced permissively.
func parseAssetContexts(resp any) []assetContext {
	top := jsonx.Slice(resp)
	if len(top) < 2 {
		return nil
	}
	meta := jsonx.Map(top[0])
	ctxs := jsonx.Slice(top[1])
	if meta == nil || ctxs == nil {
		return nil
	}

	universe := jsonx.Slice(meta["universe"])
	names := make([]string, len(universe))
	for i, u := range universe {
		names[i] = jsonx.Str(u, "name")
	}

	out := make([]assetContext, 0, len(ctxs))
	for i, raw := range ctxs {
		if i >= len(names) || names[i] == "" {
			continue
		}
		actx := jsonx.Map(raw)
		if actx == nil {
			continue
		}
		out = append(out, assetContext{
			coin:         names[i],
			fundingRate:  jsonx.Num(actx, "funding", "fundingRate", "fundingRateHourly"),
			openInterest: jsonx.Num(actx, "openInterest", "openInterestUsd", "oi"),
		})
	}
	return out
}

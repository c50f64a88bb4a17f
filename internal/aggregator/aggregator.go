// Package aggregator combines the four detector outputs into one weighted
// composite score per tracked instrument.
package aggregator

import (
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hypersig/hypersig/internal/config"
	"github.com/hypersig/hypersig/internal/detector"
	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

// Detectors bundles the four signal sources. Fields left nil in New are
// constructed from the configuration.
type Detectors struct {
	OrderFlow *detector.OrderFlowImbalance
	Whales    *detector.WhaleTracker
	HLP       *detector.HLPSentiment
	Funding   *detector.FundingAnomalyDetector
}

// Aggregator owns the detectors and produces composite signals on demand.
// The composite read API is total: it always returns one CompositeSignal per
// tracked coin regardless of upstream health, with missing detector outputs
// contributing zero.
type Aggregator struct {
	coins   []string
	weights config.WeightsConfig
	det     Detectors
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
}

// New creates an Aggregator, constructing any detector not injected through
// det. Injection exists for tests and for callers that share detectors.
func New(cfg *config.Config, rest *hyperliquid.InfoClient, det Detectors, logger *slog.Logger) *Aggregator {
	coins := cfg.Tracked.Coins

	if det.OrderFlow == nil {
		det.OrderFlow = detector.NewOrderFlowImbalance(
			cfg.Hyperliquid.WsURL,
			coins,
			cfg.OrderFlow.Windows,
			cfg.Tracked.LargeTradeThreshold,
			cfg.Hyperliquid.ReconnectDelay.Duration,
			logger,
		)
	}
	if det.Whales == nil {
		det.Whales = detector.NewWhaleTracker(
			rest,
			coins,
			cfg.Whales.Seed,
			cfg.Whales.Bootstrap,
			cfg.Poll.Positions.Duration,
			logger,
		)
	}
	if det.HLP == nil {
		det.HLP = detector.NewHLPSentiment(
			rest,
			coins,
			cfg.HLP.Vault,
			cfg.Poll.HLP.Duration,
			logger,
		)
	}
	if det.Funding == nil {
		det.Funding = detector.NewFundingAnomalyDetector(
			rest,
			coins,
			cfg.Poll.Funding.Duration,
			logger,
		)
	}

	return &Aggregator{
		coins:   coins,
		weights: cfg.Weights,
		det:     det,
		logger:  logger.With(slog.String("component", "aggregator")),
	}
}

// Start starts all four detectors. Idempotent: a second call does not spawn
// a second set of background workers.
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	a.det.OrderFlow.Start()
	a.det.Whales.Start()
	a.det.HLP.Start()
	a.det.Funding.Start()
	a.logger.Info("detectors started", slog.Int("coins", len(a.coins)))
}

// Stop stops all four detectors concurrently; each join is bounded, so Stop
// returns within the per-detector timeout. Idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { a.det.OrderFlow.Stop(); return nil })
	g.Go(func() error { a.det.Whales.Stop(); return nil })
	g.Go(func() error { a.det.HLP.Stop(); return nil })
	g.Go(func() error { a.det.Funding.Stop(); return nil })
	_ = g.Wait()
	a.logger.Info("detectors stopped")
}

// OrderFlowSignals returns the order-flow detector's latest output.
func (a *Aggregator) OrderFlowSignals() []domain.OrderFlowSignal {
	return a.det.OrderFlow.Signals()
}

// WhaleSignals returns the whale tracker's latest output.
func (a *Aggregator) WhaleSignals() []domain.WhaleSignal {
	return a.det.Whales.Signals()
}

// HLPSignals returns the house-vault detector's latest output.
func (a *Aggregator) HLPSignals() []domain.HLPSignal {
	return a.det.HLP.Signals()
}

// FundingSignals returns the funding detector's latest output.
func (a *Aggregator) FundingSignals() []domain.FundingSignal {
	return a.det.Funding.Signals()
}

// CompositeSignals reads each detector's latest output and produces one
// weighted CompositeSignal per tracked coin. The snapshot is not atomic
// across detectors: it may combine outputs produced at different times.
func (a *Aggregator) CompositeSignals() []domain.CompositeSignal {
	now := domain.NowUnix()

	orderflow := a.det.OrderFlow.Signals()
	whales := make(map[string]domain.WhaleSignal)
	for _, s := range a.det.Whales.Signals() {
		whales[s.Coin] = s
	}
	hlp := make(map[string]domain.HLPSignal)
	for _, s := range a.det.HLP.Signals() {
		hlp[s.Coin] = s
	}
	funding := make(map[string]domain.FundingSignal)
	for _, s := range a.det.Funding.Signals() {
		funding[s.Coin] = s
	}

	composites := make([]domain.CompositeSignal, 0, len(a.coins))
	for _, coin := range a.coins {
		var coinFlow []domain.OrderFlowSignal
		for _, s := range orderflow {
			if s.Coin == coin {
				coinFlow = append(coinFlow, s)
			}
		}

		components := map[string]float64{
			"orderflow": orderflowScore(coinFlow),
			"whales":    whaleScore(whales, coin),
			"hlp":       hlpScore(hlp, coin),
			"funding":   fundingScore(funding, coin),
		}
		score := components["orderflow"]*a.weights.OrderFlow +
			components["whales"]*a.weights.Whales +
			components["hlp"]*a.weights.HLP +
			components["funding"]*a.weights.Funding

		composites = append(composites, domain.CompositeSignal{
			Coin:           coin,
			Score:          score,
			Components:     components,
			Recommendation: recommend(score),
			Timestamp:      now,
		})
	}
	return composites
}

// --------------------------------------------------------------------------
// Component normalization, each to roughly [-1, 1]
// --------------------------------------------------------------------------

// orderflowScore is the mean imbalance across all windows, 0 when no windows
// reported.
func orderflowScore(signals []domain.OrderFlowSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range signals {
		sum += s.Imbalance
	}
	return sum / float64(len(signals))
}

func whaleScore(signals map[string]domain.WhaleSignal, coin string) float64 {
	s, ok := signals[coin]
	if !ok {
		return 0
	}
	return (s.WhaleLongPct - s.WhaleShortPct) / 100
}

// hlpScore reads vault exposure contrarily: the vault fades retail flow, so
// heavy vault long exposure is a bearish signal.
func hlpScore(signals map[string]domain.HLPSignal, coin string) float64 {
	s, ok := signals[coin]
	if !ok {
		return 0
	}
	magnitude := math.Min(1, math.Abs(s.ZScore)/2)
	switch s.Direction {
	case domain.DirectionLong:
		return -magnitude
	case domain.DirectionShort:
		return magnitude
	default:
		return 0
	}
}

// fundingScore is contrarian: high positive funding means crowded longs.
func fundingScore(signals map[string]domain.FundingSignal, coin string) float64 {
	s, ok := signals[coin]
	if !ok {
		return 0
	}
	magnitude := math.Min(1, math.Abs(s.FundingZScore)/2)
	switch {
	case s.FundingZScore > 0:
		return -magnitude
	case s.FundingZScore < 0:
		return magnitude
	default:
		return 0
	}
}

// recommend maps a composite score to its band. Lower bounds are inclusive
// for positive bands and upper bounds inclusive for negative bands, so
// exactly one band matches any score.
func recommend(score float64) domain.Recommendation {
	switch {
	case score >= 0.6:
		return domain.StrongLong
	case score >= 0.2:
		return domain.LeanLong
	case score <= -0.6:
		return domain.StrongShort
	case score <= -0.2:
		return domain.LeanShort
	default:
		return domain.Neutral
	}
}

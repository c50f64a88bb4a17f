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

// extremeZScore is the |z| at or above which an HLP exposure is flagged.
const extremeZScore = 2.0

// HLPSentiment polls the house liquidity-provider vault's clearinghouse
// state, converts each tracked coin's position to USD notional at the current
// mid, and scores it against a 7-day rolling history. The vault
// systematically takes the other side of user flow, so its exposure is read
// contrarily by the aggregator.
type HLPSentiment struct {
	coins        []string
	rest         *hyperliquid.InfoClient
	vault        string
	pollInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	history map[string]*rollingHistory
	latest  map[string]domain.HLPSignal

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHLPSentiment creates the detector for the given vault address.
func NewHLPSentiment(rest *hyperliquid.InfoClient, coins []string, vault string, pollInterval time.Duration, logger *slog.Logger) *HLPSentiment {
	history := make(map[string]*rollingHistory, len(coins))
	for _, coin := range coins {
		history[coin] = &rollingHistory{}
	}
	return &HLPSentiment{
		coins:        coins,
		rest:         rest,
		vault:        vault,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "hlp_sentiment")),
		history:      history,
		latest:       make(map[string]domain.HLPSignal, len(coins)),
	}
}

// Start launches the polling loop. Idempotent.
func (s *HLPSentiment) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.pollOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pollInterval):
			}
		}
	}()
}

// Stop signals the loop to cease and waits up to five seconds. Idempotent.
func (s *HLPSentiment) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	waitTimeout(&s.wg, stopTimeout)
}

// Signals returns the latest HLPSignal per tracked coin, in tracked order.
// Coins that have not completed a poll yet are omitted.
func (s *HLPSentiment) Signals() []domain.HLPSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := make([]domain.HLPSignal, 0, len(s.latest))
	for _, coin := range s.coins {
		if sig, ok := s.latest[coin]; ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// pollOnce fetches the vault's clearinghouse state and the all-mids map, then
// records the per-coin USD exposure. A failed fetch abandons the cycle.
func (s *HLPSentiment) pollOnce(ctx context.Context) {
	now := domain.NowUnix()

	state, err := s.rest.ClearinghouseState(ctx, s.vault)
	if err != nil {
		s.logger.Debug("vault clearinghouse fetch failed", slog.String("error", err.Error()))
		return
	}
	midsResp, err := s.rest.AllMids(ctx)
	if err != nil {
		s.logger.Debug("all-mids fetch failed", slog.String("error", err.Error()))
		return
	}

	exposures := computeExposures(state, parseMids(midsResp), s.coins)

	s.mu.Lock()
	for _, coin := range s.coins {
		exposure := exposures[coin]
		hist := s.history[coin]
		hist.append(now, exposure)
		z := zscore(hist.values(), exposure)

		direction := domain.DirectionFlat
		switch {
		case exposure > 0:
			direction = domain.DirectionLong
		case exposure < 0:
			direction = domain.DirectionShort
		}

		s.latest[coin] = domain.HLPSignal{
			Coin:        coin,
			HLPExposure: exposure,
			ZScore:      z,
			Direction:   direction,
			IsExtreme:   math.Abs(z) >= extremeZScore,
			Timestamp:   now,
		}
	}
	s.mu.Unlock()
}

// parseMids extracts {coin: mid} from an all-mids response, which is either a
// flat mapping of coin to price string or the same mapping wrapped under a
// "mids" key.
func parseMids(resp any) map[string]float64 {
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

// computeExposures returns signed USD notional per tracked coin: position
// size times mid price, 0 when either is absent.
func computeExposures(state any, mids map[string]float64, coins []string) map[string]float64 {
	exposures := make(map[string]float64, len(coins))
	for _, coin := range coins {
		exposures[coin] = 0
	}
	m := jsonx.Map(state)
	if m == nil {
		return exposures
	}
	for _, item := range jsonx.Slice(m["assetPositions"]) {
		pos := jsonx.Unwrap(item, "position")
		coin := jsonx.Str(pos, "coin")
		if _, tracked := exposures[coin]; !tracked {
			continue
		}
		exposures[coin] = jsonx.Num(pos, "szi") * mids[coin]
	}
	return exposures
}

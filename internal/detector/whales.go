package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/jsonx"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

const (
	// maxWhales caps the tracked address list after leaderboard bootstrap.
	maxWhales = 50

	// maxRecentChanges caps the global change log.
	maxRecentChanges = 200

	// changesPerSignal is how many recent changes each WhaleSignal carries.
	changesPerSignal = 20
)

// leaderboardKinds are the payload kinds probed during bootstrap; the venue
// has shipped the leaderboard under different names over time.
var leaderboardKinds = []string{"leaderboard", "traderLeaderboard", "topTraders"}

// WhaleTracker polls clearinghouse state for a curated address set and emits
// position-change events plus per-coin long/short ratios. Addresses come from
// a configured seed list and a best-effort leaderboard bootstrap that runs in
// the background so Start never blocks on the network.
type WhaleTracker struct {
	coins        []string
	rest         *hyperliquid.InfoClient
	pollInterval time.Duration
	seed         []string
	bootstrap    bool
	logger       *slog.Logger

	mu            sync.Mutex
	whales        []string
	lastPositions map[string]map[string]float64
	recentChanges []domain.WhaleChange

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWhaleTracker creates the tracker. The seed addresses are tracked from
// the first poll; the leaderboard bootstrap tops the list up to maxWhales
// when enabled.
func NewWhaleTracker(rest *hyperliquid.InfoClient, coins, seed []string, bootstrap bool, pollInterval time.Duration, logger *slog.Logger) *WhaleTracker {
	return &WhaleTracker{
		coins:         coins,
		rest:          rest,
		pollInterval:  pollInterval,
		seed:          seed,
		bootstrap:     bootstrap,
		logger:        logger.With(slog.String("component", "whale_tracker")),
		whales:        append([]string(nil), seed...),
		lastPositions: make(map[string]map[string]float64),
	}
}

// Start launches the polling loop and the background bootstrap. Idempotent.
func (t *WhaleTracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.bootstrapWhales(ctx)
	}()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pollLoop(ctx)
	}()
}

// Stop signals the loops to cease and waits up to five seconds. Idempotent.
func (t *WhaleTracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	waitTimeout(&t.wg, stopTimeout)
}

// AddWhale adds an address to the tracked set if not already present.
func (t *WhaleTracker) AddWhale(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addWhaleLocked(address)
}

// Whales returns a copy of the currently tracked address list.
func (t *WhaleTracker) Whales() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.whales...)
}

// Signals returns one WhaleSignal per tracked coin, counting addresses with a
// nonzero last-known position. The most recent global change events are
// attached to every signal.
func (t *WhaleTracker) Signals() []domain.WhaleSignal {
	now := domain.NowUnix()

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.recentChanges
	if len(recent) > changesPerSignal {
		recent = recent[len(recent)-changesPerSignal:]
	}

	signals := make([]domain.WhaleSignal, 0, len(t.coins))
	for _, coin := range t.coins {
		longCount, shortCount := 0, 0
		for _, addr := range t.whales {
			size := t.lastPositions[addr][coin]
			switch {
			case size > 0:
				longCount++
			case size < 0:
				shortCount++
			}
		}
		longPct, shortPct := 0.0, 0.0
		if total := longCount + shortCount; total > 0 {
			longPct = float64(longCount) / float64(total) * 100
			shortPct = float64(shortCount) / float64(total) * 100
		}
		signals = append(signals, domain.WhaleSignal{
			Coin:          coin,
			WhaleLongPct:  longPct,
			WhaleShortPct: shortPct,
			RecentChanges: append([]domain.WhaleChange(nil), recent...),
			Timestamp:     now,
		})
	}
	return signals
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (t *WhaleTracker) pollLoop(ctx context.Context) {
	for {
		t.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.pollInterval):
		}
	}
}

// pollOnce fetches clearinghouse state for every tracked address and records
// position diffs. A failed fetch skips that address for the cycle, leaving
// its baseline unchanged.
func (t *WhaleTracker) pollOnce(ctx context.Context) {
	now := domain.NowUnix()
	for _, addr := range t.Whales() {
		if ctx.Err() != nil {
			return
		}
		state, err := t.rest.ClearinghouseState(ctx, addr)
		if err != nil {
			t.logger.Debug("clearinghouse state fetch failed",
				slog.String("address", addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.record(addr, parseClearinghousePositions(state), now)
	}
}

// record diffs freshly polled positions against the stored baseline for the
// address, appending a WhaleChange for every instrument whose size changed.
// A position missing from the new poll is treated as closed (new size 0).
// The fresh mapping becomes the new baseline.
func (t *WhaleTracker) record(addr string, positions map[string]float64, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.lastPositions[addr]
	for coin, newSize := range positions {
		prevSize := prev[coin]
		if newSize != prevSize {
			t.recentChanges = append(t.recentChanges, domain.WhaleChange{
				Address:   addr,
				Coin:      coin,
				PrevSize:  prevSize,
				NewSize:   newSize,
				Timestamp: now,
			})
		}
	}
	for coin, prevSize := range prev {
		if _, still := positions[coin]; !still && prevSize != 0 {
			t.recentChanges = append(t.recentChanges, domain.WhaleChange{
				Address:   addr,
				Coin:      coin,
				PrevSize:  prevSize,
				NewSize:   0,
				Timestamp: now,
			})
		}
	}
	t.lastPositions[addr] = positions

	if overflow := len(t.recentChanges) - maxRecentChanges; overflow > 0 {
		t.recentChanges = append([]domain.WhaleChange(nil), t.recentChanges[overflow:]...)
	}
}

// bootstrapWhales tops the tracked list up from the venue leaderboard. Any
// failure leaves the list as the seed list.
func (t *WhaleTracker) bootstrapWhales(ctx context.Context) {
	if !t.bootstrap {
		return
	}
	addrs := t.fetchLeaderboard(ctx)
	if len(addrs) == 0 {
		t.logger.Warn("leaderboard bootstrap returned no addresses, tracking seed list only",
			slog.Int("seed", len(t.seed)),
		)
		return
	}

	t.mu.Lock()
	for _, addr := range addrs {
		if len(t.whales) >= maxWhales {
			break
		}
		t.addWhaleLocked(addr)
	}
	count := len(t.whales)
	t.mu.Unlock()

	t.logger.Info("whale list bootstrapped", slog.Int("tracked", count))
}

// fetchLeaderboard probes the known leaderboard payload kinds and returns the
// addresses of the first non-empty response. Entries may be raw address
// strings or objects carrying the address under "address" or "user"; the
// list may be wrapped under "leaders", "entries", or "data".
func (t *WhaleTracker) fetchLeaderboard(ctx context.Context) []string {
	var candidates []any
	for _, kind := range leaderboardKinds {
		resp, err := t.rest.Info(ctx, map[string]any{"type": kind})
		if err != nil {
			continue
		}
		if arr := jsonx.Slice(resp); arr != nil {
			candidates = arr
		} else if m := jsonx.Map(resp); m != nil {
			for _, key := range []string{"leaders", "entries", "data"} {
				if arr := jsonx.Slice(m[key]); arr != nil {
					candidates = arr
					break
				}
			}
		}
		if len(candidates) > 0 {
			break
		}
	}

	addresses := make([]string, 0, len(candidates))
	for _, item := range candidates {
		switch v := item.(type) {
		case string:
			addresses = append(addresses, v)
		case map[string]any:
			if addr := jsonx.Str(v, "address", "user"); addr != "" {
				addresses = append(addresses, addr)
			}
		}
	}
	return addresses
}

func (t *WhaleTracker) addWhaleLocked(address string) {
	for _, w := range t.whales {
		if w == address {
			return
		}
	}
	t.whales = append(t.whales, address)
}

// parseClearinghousePositions extracts {coin: signed size} from a
// clearinghouse-state response. Position entries may be the position object
// directly or a single-key wrapper around it.
func parseClearinghousePositions(state any) map[string]float64 {
	positions := make(map[string]float64)
	m := jsonx.Map(state)
	if m == nil {
		return positions
	}
	for _, item := range jsonx.Slice(m["assetPositions"]) {
		pos := jsonx.Unwrap(item, "position")
		coin := jsonx.Str(pos, "coin")
		if coin == "" {
			continue
		}
		positions[coin] = jsonx.Num(pos, "szi")
	}
	return positions
}

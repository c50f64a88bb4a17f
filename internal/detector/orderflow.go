package detector

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/jsonx"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

// OrderFlowImbalance consumes the live trade stream and computes buy/sell
// imbalance metrics over a fixed list of windows. It owns its WebSocket
// client; trade events are buffered per coin and trimmed to the largest
// window on every batch append.
type OrderFlowImbalance struct {
	coins      []string
	tracked    map[string]bool
	windows    []int
	maxWindow  float64
	thresholds map[string]float64
	ws         *hyperliquid.WSClient
	logger     *slog.Logger

	mu      sync.Mutex
	trades  map[string][]domain.TradeEvent
	started bool
}

// NewOrderFlowImbalance creates the detector and its WebSocket client. The
// client's message handler is bound here; Start opens the connection and
// subscribes to the trade stream of every tracked coin.
func NewOrderFlowImbalance(wsURL string, coins []string, windows []int, thresholds map[string]float64, reconnectDelay time.Duration, logger *slog.Logger) *OrderFlowImbalance {
	d := &OrderFlowImbalance{
		coins:      coins,
		tracked:    make(map[string]bool, len(coins)),
		windows:    windows,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "orderflow")),
		trades:     make(map[string][]domain.TradeEvent, len(coins)),
	}
	for _, coin := range coins {
		d.tracked[coin] = true
		d.trades[coin] = nil
	}
	for _, w := range windows {
		if float64(w) > d.maxWindow {
			d.maxWindow = float64(w)
		}
	}
	d.ws = hyperliquid.NewWSClient(wsURL, d.onMessage, reconnectDelay, logger)
	return d
}

// Start opens the WebSocket session and subscribes to trades for every
// tracked coin. It is idempotent.
func (d *OrderFlowImbalance) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.ws.Start()
	for _, coin := range d.coins {
		d.ws.SubscribeTrades(coin)
	}
}

// Stop closes the WebSocket session. It is idempotent.
func (d *OrderFlowImbalance) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	d.ws.Stop()
}

// Signals computes the imbalance metrics for every (coin, window) pair from
// the current buffer contents. The buffer is copied under the lock and
// released before computation.
func (d *OrderFlowImbalance) Signals() []domain.OrderFlowSignal {
	now := domain.NowUnix()

	d.mu.Lock()
	buffers := make(map[string][]domain.TradeEvent, len(d.coins))
	for _, coin := range d.coins {
		buffers[coin] = append([]domain.TradeEvent(nil), d.trades[coin]...)
	}
	d.mu.Unlock()

	signals := make([]domain.OrderFlowSignal, 0, len(d.coins)*len(d.windows))
	for _, coin := range d.coins {
		threshold := d.thresholds[coin]
		for _, window := range d.windows {
			signals = append(signals, computeWindow(coin, window, threshold, buffers[coin], now))
		}
	}
	return signals
}

// computeWindow accumulates the events within the window and derives the
// imbalance and large-trade counters. Large-trade counting is disabled when
// the coin has no configured threshold.
func computeWindow(coin string, window int, threshold float64, events []domain.TradeEvent, now float64) domain.OrderFlowSignal {
	cutoff := now - float64(window)
	var buyVol, sellVol, netLargeFlow float64
	var largeBuy, largeSell int

	for _, ev := range events {
		if ev.Timestamp < cutoff {
			continue
		}
		if ev.Side == domain.SideBuy {
			buyVol += ev.NotionalUSD
		} else {
			sellVol += ev.NotionalUSD
		}
		if threshold > 0 && ev.NotionalUSD >= threshold {
			if ev.Side == domain.SideBuy {
				largeBuy++
				netLargeFlow += ev.NotionalUSD
			} else {
				largeSell++
				netLargeFlow -= ev.NotionalUSD
			}
		}
	}

	imbalance := 0.0
	if total := buyVol + sellVol; total > 0 {
		imbalance = (buyVol - sellVol) / total
	}

	return domain.OrderFlowSignal{
		Coin:           coin,
		Window:         window,
		Imbalance:      imbalance,
		LargeBuyCount:  largeBuy,
		LargeSellCount: largeSell,
		NetLargeFlow:   netLargeFlow,
		Timestamp:      now,
	}
}

// onMessage runs in the WebSocket receive loop. It appends every trade for a
// tracked coin to the buffer and trims aged events.
func (d *OrderFlowImbalance) onMessage(msg map[string]any) {
	channel := jsonx.Str(msg, "channel", "type")
	if channel != "trades" {
		return
	}

	data, ok := jsonx.Field(msg, "data")
	if !ok {
		return
	}
	trades := jsonx.Slice(data)
	if trades == nil {
		trades = jsonx.Slice(jsonx.Map(data)["trades"])
	}
	if len(trades) == 0 {
		return
	}

	now := domain.NowUnix()
	d.mu.Lock()
	for _, raw := range trades {
		t := jsonx.Map(raw)
		if t == nil {
			continue
		}
		coin := jsonx.Str(t, "coin", "symbol")
		if !d.tracked[coin] {
			continue
		}
		side := domain.SideSell
		if strings.HasPrefix(strings.ToUpper(jsonx.Str(t, "side", "dir", "takerSide")), "B") {
			side = domain.SideBuy
		}
		usd := jsonx.Num(t, "usd")
		if _, has := jsonx.Field(t, "usd"); !has {
			usd = jsonx.Num(t, "px", "price") * jsonx.Num(t, "sz", "size", "qty")
		}
		d.trades[coin] = append(d.trades[coin], domain.TradeEvent{
			Timestamp:   now,
			Side:        side,
			NotionalUSD: usd,
		})
	}
	d.trimLocked(now)
	d.mu.Unlock()
}

// trimLocked drops events older than the largest window. Caller holds d.mu.
func (d *OrderFlowImbalance) trimLocked(now float64) {
	cutoff := now - d.maxWindow
	for _, coin := range d.coins {
		events := d.trades[coin]
		i := 0
		for i < len(events) && events[i].Timestamp < cutoff {
			i++
		}
		if i > 0 {
			d.trades[coin] = append(events[:0], events[i:]...)
		}
	}
}

package detector

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersig/hypersig/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrderFlow(coins []string, windows []int, thresholds map[string]float64) *OrderFlowImbalance {
	return NewOrderFlowImbalance("ws://unused", coins, windows, thresholds, time.Second, testLogger())
}

func TestComputeWindowImbalance(t *testing.T) {
	now := domain.NowUnix()
	events := []domain.TradeEvent{
		{Timestamp: now - 100, Side: domain.SideBuy, NotionalUSD: 60_000},
		{Timestamp: now - 50, Side: domain.SideSell, NotionalUSD: 40_000},
	}

	sig := computeWindow("ETH", 300, 50_000, events, now)

	assert.Equal(t, "ETH", sig.Coin)
	assert.Equal(t, 300, sig.Window)
	assert.InDelta(t, 0.2, sig.Imbalance, 1e-9)
	assert.Equal(t, 1, sig.LargeBuyCount)
	assert.Equal(t, 0, sig.LargeSellCount)
	assert.InDelta(t, 60_000, sig.NetLargeFlow, 1e-9)
}

func TestComputeWindowExcludesAgedEvents(t *testing.T) {
	now := domain.NowUnix()
	events := []domain.TradeEvent{
		{Timestamp: now - 400, Side: domain.SideBuy, NotionalUSD: 1_000_000},
		{Timestamp: now - 10, Side: domain.SideSell, NotionalUSD: 500},
	}

	sig := computeWindow("ETH", 300, 0, events, now)

	// Only the recent sell is in the 300s window.
	assert.InDelta(t, -1.0, sig.Imbalance, 1e-9)
	assert.Equal(t, 0, sig.LargeBuyCount)
}

func TestComputeWindowEmpty(t *testing.T) {
	sig := computeWindow("ETH", 300, 50_000, nil, domain.NowUnix())

	assert.Equal(t, 0.0, sig.Imbalance)
	assert.Equal(t, 0.0, sig.NetLargeFlow)
}

func TestComputeWindowNoThresholdDisablesLargeCounting(t *testing.T) {
	now := domain.NowUnix()
	events := []domain.TradeEvent{
		{Timestamp: now - 5, Side: domain.SideBuy, NotionalUSD: 10_000_000},
	}

	sig := computeWindow("DOGE", 300, 0, events, now)

	assert.Equal(t, 0, sig.LargeBuyCount)
	assert.Equal(t, 0.0, sig.NetLargeFlow)
	assert.InDelta(t, 1.0, sig.Imbalance, 1e-9)
}

func TestImbalanceStaysBounded(t *testing.T) {
	now := domain.NowUnix()
	cases := [][]domain.TradeEvent{
		{{Timestamp: now, Side: domain.SideBuy, NotionalUSD: 1}},
		{{Timestamp: now, Side: domain.SideSell, NotionalUSD: 1e12}},
		{
			{Timestamp: now - 1, Side: domain.SideBuy, NotionalUSD: 123.45},
			{Timestamp: now - 2, Side: domain.SideSell, NotionalUSD: 0.01},
			{Timestamp: now - 3, Side: domain.SideBuy, NotionalUSD: 9999},
		},
	}
	for _, events := range cases {
		sig := computeWindow("ETH", 300, 0, events, now)
		assert.LessOrEqual(t, math.Abs(sig.Imbalance), 1.0)
	}
}

func TestOnMessageAppendsTrackedTrades(t *testing.T) {
	d := newTestOrderFlow([]string{"ETH"}, []int{300}, map[string]float64{"ETH": 50_000})

	d.onMessage(map[string]any{
		"channel": "trades",
		"data": []any{
			map[string]any{"coin": "ETH", "side": "B", "px": "3000", "sz": "2"},
			map[string]any{"coin": "ETH", "side": "A", "usd": 1500.0},
			// Untracked coin is dropped.
			map[string]any{"coin": "BTC", "side": "B", "usd": 9999.0},
		},
	})

	d.mu.Lock()
	events := append([]domain.TradeEvent(nil), d.trades["ETH"]...)
	d.mu.Unlock()

	require.Len(t, events, 2)
	assert.Equal(t, domain.SideBuy, events[0].Side)
	assert.InDelta(t, 6000, events[0].NotionalUSD, 1e-9)
	assert.Equal(t, domain.SideSell, events[1].Side)
	assert.InDelta(t, 1500, events[1].NotionalUSD, 1e-9)
}

func TestOnMessageWrappedTradeList(t *testing.T) {
	d := newTestOrderFlow([]string{"SOL"}, []int{300}, nil)

	d.onMessage(map[string]any{
		"type": "trades",
		"data": map[string]any{
			"trades": []any{
				map[string]any{"symbol": "SOL", "dir": "buy", "price": "150", "qty": "10"},
			},
		},
	})

	d.mu.Lock()
	events := append([]domain.TradeEvent(nil), d.trades["SOL"]...)
	d.mu.Unlock()

	require.Len(t, events, 1)
	assert.Equal(t, domain.SideBuy, events[0].Side)
	assert.InDelta(t, 1500, events[0].NotionalUSD, 1e-9)
}

func TestOnMessageIgnoresOtherChannels(t *testing.T) {
	d := newTestOrderFlow([]string{"ETH"}, []int{300}, nil)

	d.onMessage(map[string]any{
		"channel": "l2Book",
		"data":    []any{map[string]any{"coin": "ETH", "side": "B", "usd": 1.0}},
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.trades["ETH"])
}

func TestTrimDropsEventsBeyondLargestWindow(t *testing.T) {
	d := newTestOrderFlow([]string{"ETH"}, []int{300, 900}, nil)
	now := domain.NowUnix()

	d.mu.Lock()
	d.trades["ETH"] = []domain.TradeEvent{
		{Timestamp: now - 1000, Side: domain.SideBuy, NotionalUSD: 1},
		{Timestamp: now - 800, Side: domain.SideBuy, NotionalUSD: 1},
		{Timestamp: now - 10, Side: domain.SideSell, NotionalUSD: 1},
	}
	d.trimLocked(now)
	events := append([]domain.TradeEvent(nil), d.trades["ETH"]...)
	d.mu.Unlock()

	require.Len(t, events, 2)
	assert.InDelta(t, now-800, events[0].Timestamp, 1e-6)
}

func TestSignalsOnePerCoinWindowPair(t *testing.T) {
	d := newTestOrderFlow([]string{"ETH", "SOL"}, []int{300, 900}, nil)

	signals := d.Signals()

	require.Len(t, signals, 4)
	assert.Equal(t, "ETH", signals[0].Coin)
	assert.Equal(t, 300, signals[0].Window)
	assert.Equal(t, "SOL", signals[2].Coin)
}

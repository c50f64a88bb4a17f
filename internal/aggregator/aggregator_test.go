package aggregator

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersig/hypersig/internal/config"
	"github.com/hypersig/hypersig/internal/domain"
	"github.com/hypersig/hypersig/internal/platform/hyperliquid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	cfg := config.Defaults()
	rest := hyperliquid.NewInfoClient(cfg.Hyperliquid.RestURL, cfg.Hyperliquid.MaxRPS, testLogger())
	return New(&cfg, rest, Detectors{}, testLogger())
}

func TestRecommendBands(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.Recommendation
	}{
		{0.8, domain.StrongLong},
		{0.6, domain.StrongLong},
		{0.59, domain.LeanLong},
		{0.2, domain.LeanLong},
		{0.19, domain.Neutral},
		{0.0, domain.Neutral},
		{-0.19, domain.Neutral},
		{-0.2, domain.LeanShort},
		{-0.59, domain.LeanShort},
		{-0.6, domain.StrongShort},
		{-0.8, domain.StrongShort},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, recommend(tc.score), "score %v", tc.score)
	}
}

func TestOrderflowScoreMeanAcrossWindows(t *testing.T) {
	signals := []domain.OrderFlowSignal{
		{Coin: "ETH", Window: 300, Imbalance: 0.8},
		{Coin: "ETH", Window: 900, Imbalance: 0.4},
	}
	assert.InDelta(t, 0.6, orderflowScore(signals), 1e-9)
	assert.Equal(t, 0.0, orderflowScore(nil))
}

func TestWhaleScore(t *testing.T) {
	signals := map[string]domain.WhaleSignal{
		"ETH": {Coin: "ETH", WhaleLongPct: 80, WhaleShortPct: 20},
	}
	assert.InDelta(t, 0.6, whaleScore(signals, "ETH"), 1e-9)
	assert.Equal(t, 0.0, whaleScore(signals, "SOL"))
}

func TestHLPScoreContrarian(t *testing.T) {
	signals := map[string]domain.HLPSignal{
		"long":    {ZScore: 1.0, Direction: domain.DirectionLong},
		"short":   {ZScore: -3.0, Direction: domain.DirectionShort},
		"flat":    {ZScore: 0, Direction: domain.DirectionFlat},
		"extreme": {ZScore: 10.0, Direction: domain.DirectionLong},
	}

	// Vault long reads bearish.
	assert.InDelta(t, -0.5, hlpScore(signals, "long"), 1e-9)
	// Vault short reads bullish.
	assert.InDelta(t, 1.0, hlpScore(signals, "short"), 1e-9)
	assert.Equal(t, 0.0, hlpScore(signals, "flat"))
	// Magnitude is capped at 1.
	assert.InDelta(t, -1.0, hlpScore(signals, "extreme"), 1e-9)
	assert.Equal(t, 0.0, hlpScore(signals, "missing"))
}

func TestFundingScoreContrarian(t *testing.T) {
	signals := map[string]domain.FundingSignal{
		"crowdedLong":  {FundingZScore: 1.0},
		"crowdedShort": {FundingZScore: -4.0},
		"neutral":      {FundingZScore: 0},
	}

	assert.InDelta(t, -0.5, fundingScore(signals, "crowdedLong"), 1e-9)
	assert.InDelta(t, 1.0, fundingScore(signals, "crowdedShort"), 1e-9)
	assert.Equal(t, 0.0, fundingScore(signals, "neutral"))
	assert.Equal(t, 0.0, fundingScore(signals, "missing"))
}

func TestCompositeSignalsTotalWithoutData(t *testing.T) {
	a := newTestAggregator(t)

	composites := a.CompositeSignals()

	require.Len(t, composites, len(config.Defaults().Tracked.Coins))
	for _, c := range composites {
		assert.Equal(t, 0.0, c.Score)
		assert.Equal(t, domain.Neutral, c.Recommendation)
		assert.Contains(t, c.Components, "orderflow")
		assert.Contains(t, c.Components, "whales")
		assert.Contains(t, c.Components, "hlp")
		assert.Contains(t, c.Components, "funding")
		assert.Greater(t, c.Timestamp, 0.0)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	a := newTestAggregator(t)

	a.Stop() // never started: no-op
	assert.False(t, a.started)
}

package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersig/hypersig/internal/domain"
)

func newTestFunding(coins []string) *FundingAnomalyDetector {
	return NewFundingAnomalyDetector(nil, coins, time.Minute, testLogger())
}

func TestParseAssetContexts(t *testing.T) {
	resp := []any{
		map[string]any{
			"universe": []any{
				map[string]any{"name": "ETH"},
				map[string]any{"name": "SOL"},
			},
		},
		[]any{
			map[string]any{"funding": "0.0001", "openInterest": "1500000"},
			map[string]any{"fundingRate": 0.0002, "oi": 800000.0},
		},
	}

	ctxs := parseAssetContexts(resp)

	require.Len(t, ctxs, 2)
	assert.Equal(t, "ETH", ctxs[0].coin)
	assert.InDelta(t, 0.0001, ctxs[0].fundingRate, 1e-12)
	assert.InDelta(t, 1_500_000, ctxs[0].openInterest, 1e-6)
	assert.Equal(t, "SOL", ctxs[1].coin)
	assert.InDelta(t, 0.0002, ctxs[1].fundingRate, 1e-12)
}

func TestParseAssetContextsBadShapes(t *testing.T) {
	assert.Nil(t, parseAssetContexts(nil))
	assert.Nil(t, parseAssetContexts([]any{map[string]any{}}))
	assert.Nil(t, parseAssetContexts(map[string]any{"universe": []any{}}))

	// More contexts than universe names: extras are skipped.
	resp := []any{
		map[string]any{"universe": []any{map[string]any{"name": "ETH"}}},
		[]any{
			map[string]any{"funding": "0.1"},
			map[string]any{"funding": "0.2"},
		},
	}
	ctxs := parseAssetContexts(resp)
	require.Len(t, ctxs, 1)
	assert.Equal(t, "ETH", ctxs[0].coin)
}

func TestRecordOIChange(t *testing.T) {
	d := newTestFunding([]string{"ETH"})
	now := domain.NowUnix()

	d.record(assetContext{coin: "ETH", fundingRate: 0.0001, openInterest: 1000}, now)
	// First observation has no baseline, so no OI change.
	sig := d.Signals()[0]
	assert.Equal(t, 0.0, sig.OIChangePct)

	d.record(assetContext{coin: "ETH", fundingRate: 0.0001, openInterest: 1250}, now+60)
	sig = d.Signals()[0]
	assert.InDelta(t, 25.0, sig.OIChangePct, 1e-9)
	assert.True(t, sig.IsAnomaly)
}

func TestRecordFundingZScoreAnomaly(t *testing.T) {
	d := newTestFunding([]string{"ETH"})
	now := domain.NowUnix()

	// Stable funding builds the baseline without tripping anomalies.
	rates := []float64{0.0001, 0.0002, 0.0001, 0.0002, 0.0001, 0.0002}
	for i, r := range rates {
		d.record(assetContext{coin: "ETH", fundingRate: r, openInterest: 1000}, now+float64(i))
	}
	assert.False(t, d.Signals()[0].IsAnomaly)

	// A sharp spike lands far outside the history.
	d.record(assetContext{coin: "ETH", fundingRate: 0.01, openInterest: 1000}, now+100)
	sig := d.Signals()[0]
	assert.GreaterOrEqual(t, sig.FundingZScore, anomalyZScore)
	assert.True(t, sig.IsAnomaly)
}

func TestSignalsOmitUnpolledCoins(t *testing.T) {
	d := newTestFunding([]string{"ETH", "SOL"})
	now := domain.NowUnix()

	d.record(assetContext{coin: "ETH", fundingRate: 0.0001, openInterest: 1}, now)

	signals := d.Signals()
	require.Len(t, signals, 1)
	assert.Equal(t, "ETH", signals[0].Coin)
}

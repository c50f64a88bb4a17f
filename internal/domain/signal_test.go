package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wire field names are consumed by external dashboards; renaming one is a
// breaking change, so they are pinned here.
func TestSignalWireFieldNames(t *testing.T) {
	cases := []struct {
		v    any
		keys []string
	}{
		{
			TradeEvent{},
			[]string{"timestamp", "side", "usd"},
		},
		{
			OrderFlowSignal{},
			[]string{"coin", "window", "imbalance", "large_buy_count", "large_sell_count", "net_large_flow", "timestamp"},
		},
		{
			WhaleSignal{},
			[]string{"coin", "whale_long_pct", "whale_short_pct", "recent_changes", "timestamp"},
		},
		{
			WhaleChange{},
			[]string{"address", "coin", "prev_size", "new_size", "timestamp"},
		},
		{
			HLPSignal{},
			[]string{"coin", "hlp_exposure", "z_score", "direction", "is_extreme", "timestamp"},
		},
		{
			FundingSignal{},
			[]string{"coin", "funding_rate", "funding_zscore", "oi", "oi_change_pct", "is_anomaly", "timestamp"},
		},
		{
			CompositeSignal{},
			[]string{"coin", "score", "components", "recommendation", "timestamp"},
		},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.v)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		for _, key := range tc.keys {
			assert.Contains(t, m, key, "%T missing %q", tc.v, key)
		}
		assert.Len(t, m, len(tc.keys), "%T has unexpected fields", tc.v)
	}
}

func TestCompositeSignalRoundTrip(t *testing.T) {
	in := CompositeSignal{
		Coin:           "ETH",
		Score:          -0.35,
		Components:     map[string]float64{"orderflow": -0.5, "whales": 0.1, "hlp": -0.6, "funding": -0.2},
		Recommendation: LeanShort,
		Timestamp:      1700000000.25,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out CompositeSignal
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestNowUnixFractionalSeconds(t *testing.T) {
	now := NowUnix()
	wall := float64(time.Now().UnixNano()) / 1e9

	assert.InDelta(t, wall, now, 1.0)
	assert.Greater(t, now, 1.7e9)
}

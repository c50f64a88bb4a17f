package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingHistoryTrims(t *testing.T) {
	h := &rollingHistory{}

	h.append(0, 1)
	h.append(historyWindow/2, 2)
	// This append pushes the first sample past the window.
	h.append(historyWindow+1, 3)

	vals := h.values()
	require.Len(t, vals, 2)
	assert.Equal(t, []float64{2, 3}, vals)
}

func TestZScoreNeedsMinimumSamples(t *testing.T) {
	// Four samples: below the minimum, z stays 0 regardless of spread.
	vals := []float64{1, 2, 3, 4}
	assert.Equal(t, 0.0, zscore(vals, 100))
}

func TestZScoreZeroSpread(t *testing.T) {
	vals := []float64{5, 5, 5, 5, 5}
	assert.Equal(t, 0.0, zscore(vals, 5))
}

func TestZScoreKnownValue(t *testing.T) {
	// Population stddev of {1..5} is sqrt(2), mean 3.
	vals := []float64{1, 2, 3, 4, 5}
	z := zscore(vals, 3+2*1.4142135623730951)
	assert.InDelta(t, 2.0, z, 1e-9)

	z = zscore(vals, 3)
	assert.InDelta(t, 0.0, z, 1e-9)
}

func TestMeanAndStddev(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, mean(vals), 1e-9)
	assert.InDelta(t, 2.0, stddev(vals, 5.0), 1e-9)
}

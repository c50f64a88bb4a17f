// Package detector implements the four signal detectors: order-flow
// imbalance, whale position tracking, house-vault sentiment, and funding-rate
// anomalies. Each detector owns its background work (a polling loop or a
// WebSocket subscription), guards its state with a mutex, and exposes a
// Signals method returning an immutable copy of its latest output.
package detector

import "math"

// historyWindow is the retention horizon for rolling histories, in seconds.
const historyWindow = 7 * 24 * 3600

// minZScoreSamples is the number of samples a history needs before z-scores
// are computed; below it the z-score is 0.
const minZScoreSamples = 5

// sample is one (timestamp, value) observation in a rolling history.
type sample struct {
	ts    float64
	value float64
}

// rollingHistory is an append-only sequence of samples trimmed on append so
// every timestamp stays within historyWindow of the newest observation.
// Samples arrive in non-decreasing timestamp order.
type rollingHistory struct {
	samples []sample
}

// append adds an observation and drops samples older than the window. Under
// sustained upstream failure the history stops growing but never clears; old
// samples fall out naturally on the next append.
func (h *rollingHistory) append(ts, value float64) {
	h.samples = append(h.samples, sample{ts: ts, value: value})
	cutoff := ts - historyWindow
	i := 0
	for i < len(h.samples) && h.samples[i].ts < cutoff {
		i++
	}
	if i > 0 {
		h.samples = append(h.samples[:0], h.samples[i:]...)
	}
}

// values returns the retained observation values in timestamp order.
func (h *rollingHistory) values() []float64 {
	out := make([]float64, len(h.samples))
	for i, s := range h.samples {
		out[i] = s.value
	}
	return out
}

// zscore returns the standard score of x against the sample values. It is 0
// when there are fewer than minZScoreSamples samples or the standard
// deviation is 0.
func zscore(values []float64, x float64) float64 {
	if len(values) < minZScoreSamples {
		return 0
	}
	m := mean(values)
	sd := stddev(values, m)
	if sd == 0 {
		return 0
	}
	return (x - m) / sd
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

package domain

import "time"

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Direction describes the sign of a position or exposure.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// Recommendation is the human-readable band a composite score falls into.
type Recommendation string

const (
	StrongLong  Recommendation = "STRONG_LONG"
	LeanLong    Recommendation = "LEAN_LONG"
	Neutral     Recommendation = "NEUTRAL"
	LeanShort   Recommendation = "LEAN_SHORT"
	StrongShort Recommendation = "STRONG_SHORT"
)

// TradeEvent is a single fill observed on the trade stream. It lives only in
// the rolling order-flow buffer and is discarded once it ages past the largest
// configured window.
type TradeEvent struct {
	Timestamp   float64 `json:"timestamp"`
	Side        Side    `json:"side"`
	NotionalUSD float64 `json:"usd"`
}

// WhaleChange records a position-size change for a tracked address. A position
// that disappears from a poll is recorded with NewSize 0.
type WhaleChange struct {
	Address   string  `json:"address"`
	Coin      string  `json:"coin"`
	PrevSize  float64 `json:"prev_size"`
	NewSize   float64 `json:"new_size"`
	Timestamp float64 `json:"timestamp"`
}

// OrderFlowSignal is the trade-flow imbalance for one coin over one window.
type OrderFlowSignal struct {
	Coin           string  `json:"coin"`
	Window         int     `json:"window"`
	Imbalance      float64 `json:"imbalance"`
	LargeBuyCount  int     `json:"large_buy_count"`
	LargeSellCount int     `json:"large_sell_count"`
	NetLargeFlow   float64 `json:"net_large_flow"`
	Timestamp      float64 `json:"timestamp"`
}

// WhaleSignal summarizes the tracked-address positioning for one coin.
// Percentages are of the addresses holding a nonzero position in the coin.
type WhaleSignal struct {
	Coin          string        `json:"coin"`
	WhaleLongPct  float64       `json:"whale_long_pct"`
	WhaleShortPct float64       `json:"whale_short_pct"`
	RecentChanges []WhaleChange `json:"recent_changes"`
	Timestamp     float64       `json:"timestamp"`
}

// HLPSignal is the house vault's exposure in one coin with its z-score against
// a 7-day rolling history.
type HLPSignal struct {
	Coin        string    `json:"coin"`
	HLPExposure float64   `json:"hlp_exposure"`
	ZScore      float64   `json:"z_score"`
	Direction   Direction `json:"direction"`
	IsExtreme   bool      `json:"is_extreme"`
	Timestamp   float64   `json:"timestamp"`
}

// FundingSignal carries the funding-rate z-score and open-interest change for
// one coin.
type FundingSignal struct {
	Coin          string  `json:"coin"`
	FundingRate   float64 `json:"funding_rate"`
	FundingZScore float64 `json:"funding_zscore"`
	OpenInterest  float64 `json:"oi"`
	OIChangePct   float64 `json:"oi_change_pct"`
	IsAnomaly     bool    `json:"is_anomaly"`
	Timestamp     float64 `json:"timestamp"`
}

// CompositeSignal is the weighted combination of all detector components for
// one coin. Components are normalized to roughly [-1, 1]; missing detectors
// contribute zero.
type CompositeSignal struct {
	Coin           string             `json:"coin"`
	Score          float64            `json:"score"`
	Components     map[string]float64 `json:"components"`
	Recommendation Recommendation     `json:"recommendation"`
	Timestamp      float64            `json:"timestamp"`
}

// NowUnix returns the current time as fractional seconds since the epoch, the
// timestamp convention used across all signal types.
func NowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

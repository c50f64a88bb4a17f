package handler

import (
	"log/slog"
	"net/http"

	"github.com/hypersig/hypersig/internal/domain"
)

// SignalSource exposes the latest detector outputs to the read API. The
// aggregator satisfies it.
type SignalSource interface {
	OrderFlowSignals() []domain.OrderFlowSignal
	WhaleSignals() []domain.WhaleSignal
	HLPSignals() []domain.HLPSignal
	FundingSignals() []domain.FundingSignal
	CompositeSignals() []domain.CompositeSignal
}

// SignalHandler serves the latest signal snapshots. Every endpoint responds
// 200 with the current snapshot; detectors that have not produced output yet
// simply yield empty lists.
type SignalHandler struct {
	source SignalSource
	logger *slog.Logger
}

// NewSignalHandler creates a SignalHandler reading from the given source.
func NewSignalHandler(source SignalSource, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		source: source,
		logger: logger.With(slog.String("handler", "signals")),
	}
}

// OrderFlow returns the per-window order-flow imbalance signals.
// GET /api/signals/orderflow
func (h *SignalHandler) OrderFlow(w http.ResponseWriter, r *http.Request) {
	signals := h.source.OrderFlowSignals()
	if signals == nil {
		signals = []domain.OrderFlowSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// Whales returns the per-coin whale positioning signals.
// GET /api/signals/whales
func (h *SignalHandler) Whales(w http.ResponseWriter, r *http.Request) {
	signals := h.source.WhaleSignals()
	if signals == nil {
		signals = []domain.WhaleSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// HLP returns the vault-exposure signals.
// GET /api/signals/hlp
func (h *SignalHandler) HLP(w http.ResponseWriter, r *http.Request) {
	signals := h.source.HLPSignals()
	if signals == nil {
		signals = []domain.HLPSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// Funding returns the funding-anomaly signals.
// GET /api/signals/funding
func (h *SignalHandler) Funding(w http.ResponseWriter, r *http.Request) {
	signals := h.source.FundingSignals()
	if signals == nil {
		signals = []domain.FundingSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// Composite returns the weighted composite signal per tracked coin.
// GET /api/signals/composite
func (h *SignalHandler) Composite(w http.ResponseWriter, r *http.Request) {
	signals := h.source.CompositeSignals()
	if signals == nil {
		signals = []domain.CompositeSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

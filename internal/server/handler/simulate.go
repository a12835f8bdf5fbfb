package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
	"dexradar/internal/simulator"
)

// SimulateRunner runs a slippage-adjusted simulation for a candidate.
type SimulateRunner interface {
	SimulateWithSlippage(ctx context.Context, cand domain.OpportunityCandidate, notionalUSD, slippagePct decimal.Decimal) (domain.SlippageReport, error)
	CacheStats() simulator.CacheStats
}

// SimulateHandler serves on-demand simulation of a stored candidate.
type SimulateHandler struct {
	sim             SimulateRunner
	store           OpportunityReader
	defaultSlippage decimal.Decimal
	logger          *slog.Logger
}

// NewSimulateHandler creates a SimulateHandler.
func NewSimulateHandler(sim SimulateRunner, store OpportunityReader, defaultSlippage decimal.Decimal, logger *slog.Logger) *SimulateHandler {
	return &SimulateHandler{
		sim:             sim,
		store:           store,
		defaultSlippage: defaultSlippage,
		logger:          logger,
	}
}

type simulateRequest struct {
	OpportunityID string `json:"opportunity_id"`
	// NotionalUSD overrides the candidate's detected notional when set.
	NotionalUSD *decimal.Decimal `json:"notional_usd,omitempty"`
	// SlippagePct overrides the configured default when set.
	SlippagePct *decimal.Decimal `json:"slippage_pct,omitempty"`
}

// Simulate replays a stored candidate through the simulator and returns both
// the optimistic and the slippage-adjusted result. Repeating the call within
// the result-cache TTL returns the identical base simulation.
// POST /api/simulate
func (h *SimulateHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OpportunityID == "" {
		writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}

	cand, err := h.store.GetByID(r.Context(), req.OpportunityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load candidate for simulate failed",
			slog.String("id", req.OpportunityID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load opportunity")
		return
	}

	notional := cand.NotionalUSD
	if req.NotionalUSD != nil {
		notional = *req.NotionalUSD
	}
	if !notional.IsPositive() {
		writeError(w, http.StatusBadRequest, "notional_usd must be positive")
		return
	}
	slippage := h.defaultSlippage
	if req.SlippagePct != nil {
		slippage = *req.SlippagePct
	}
	if slippage.IsNegative() {
		writeError(w, http.StatusBadRequest, "slippage_pct must not be negative")
		return
	}

	report, err := h.sim.SimulateWithSlippage(r.Context(), cand, notional, slippage)
	if err != nil {
		if errors.Is(err, domain.ErrSimulationFailed) {
			// The failed result still describes which leg broke.
			writeJSON(w, http.StatusUnprocessableEntity, report.Base)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: simulate failed",
			slog.String("id", req.OpportunityID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "simulation failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CacheStats reports simulator result-cache effectiveness.
// GET /api/simulate/cache
func (h *SimulateHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sim.CacheStats())
}

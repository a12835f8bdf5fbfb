package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"dexradar/internal/domain"
)

// OpportunityReader is the slice of the store the opportunity endpoints use.
type OpportunityReader interface {
	FindRecent(ctx context.Context, filter domain.OpportunityFilter) ([]domain.OpportunityCandidate, error)
	GetByID(ctx context.Context, id string) (domain.OpportunityCandidate, error)
	AggregateStats(ctx context.Context, window time.Duration) (domain.OpportunityStats, error)
}

// OpportunityHandler serves detected-candidate endpoints.
type OpportunityHandler struct {
	store  OpportunityReader
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(store OpportunityReader, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, logger: logger}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.OpportunityCandidate `json:"opportunities"`
}

// List returns recent candidates, newest first. A window with no detections
// is an empty list, not an error.
// GET /api/opportunities?type=simple&status=profitable&limit=50&offset=0
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.OpportunityFilter{
		Type:   domain.OpportunityType(r.URL.Query().Get("type")),
		Status: domain.OpportunityStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50, 500),
		Offset: queryInt(r, "offset", 0, 0),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = &t
	}

	cands, err := h.store.FindRecent(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if cands == nil {
		cands = []domain.OpportunityCandidate{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: cands})
}

// Get returns a single candidate by ID.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}
	cand, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get opportunity failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

// Stats aggregates candidates over a lookback window (default one hour).
// GET /api/opportunities/stats?window_minutes=60
func (h *OpportunityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := time.Duration(queryInt(r, "window_minutes", 60, 24*60)) * time.Minute

	stats, err := h.store.AggregateStats(r.Context(), window)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: aggregate stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

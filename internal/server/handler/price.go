package handler

import (
	"log/slog"
	"net/http"
	"time"

	"dexradar/internal/domain"
)

// PriceLister exposes the price cache snapshot to the API.
type PriceLister interface {
	ListAll() []domain.PriceObservation
	History(venue, tokenA, tokenB string, feeTier int) []domain.PriceObservation
}

// PriceHandler serves current and historical normalized prices.
type PriceHandler struct {
	cache  PriceLister
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(cache PriceLister, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{cache: cache, logger: logger}
}

type priceView struct {
	Venue       string `json:"venue"`
	Pair        string `json:"pair"`
	FeeTier     int    `json:"fee_tier,omitempty"`
	Price       string `json:"price"`
	Mode        string `json:"mode,omitempty"`
	BlockHeight uint64 `json:"block_height,omitempty"`
	ObservedAt  string `json:"observed_at"`
}

func toPriceView(obs domain.PriceObservation) priceView {
	return priceView{
		Venue:       obs.Venue,
		Pair:        obs.TokenA + "/" + obs.TokenB,
		FeeTier:     obs.FeeTier,
		Price:       obs.Price.String(),
		Mode:        string(obs.Mode),
		BlockHeight: obs.BlockHeight,
		ObservedAt:  obs.ObservedAt.UTC().Format(time.RFC3339),
	}
}

// List returns the current price for every tracked pool. Query parameters
// venue, token_a, token_b and fee_tier switch to the history ring of one
// pool instead.
// GET /api/prices
// GET /api/prices?venue=uniswap_v3&token_a=WETH&token_b=USDC&fee_tier=3000
func (h *PriceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	venue := q.Get("venue")
	tokenA := q.Get("token_a")
	tokenB := q.Get("token_b")

	var observations []domain.PriceObservation
	if venue != "" && tokenA != "" && tokenB != "" {
		observations = h.cache.History(venue, tokenA, tokenB, queryInt(r, "fee_tier", 0, 0))
	} else {
		observations = h.cache.ListAll()
	}

	views := make([]priceView, len(observations))
	for i, obs := range observations {
		views[i] = toPriceView(obs)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": views})
}

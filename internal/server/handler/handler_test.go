package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
	"dexradar/internal/simulator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	t.Run("all dependencies healthy", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": fakePinger{},
			"redis":    fakePinger{},
		}, discardLogger())

		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
	})

	t.Run("unreachable dependency degrades status", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": fakePinger{err: errors.New("connection refused")},
		}, discardLogger())

		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "unreachable", body.Checks["postgres"])
	})
}

type fakeReader struct {
	recent  []domain.OpportunityCandidate
	byID    map[string]domain.OpportunityCandidate
	stats   domain.OpportunityStats
	err     error
	filters []domain.OpportunityFilter
}

func (f *fakeReader) FindRecent(_ context.Context, filter domain.OpportunityFilter) ([]domain.OpportunityCandidate, error) {
	f.filters = append(f.filters, filter)
	return f.recent, f.err
}

func (f *fakeReader) GetByID(_ context.Context, id string) (domain.OpportunityCandidate, error) {
	if f.err != nil {
		return domain.OpportunityCandidate{}, f.err
	}
	c, ok := f.byID[id]
	if !ok {
		return domain.OpportunityCandidate{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeReader) AggregateStats(context.Context, time.Duration) (domain.OpportunityStats, error) {
	return f.stats, f.err
}

func TestOpportunityList(t *testing.T) {
	t.Run("applies query filters", func(t *testing.T) {
		reader := &fakeReader{recent: []domain.OpportunityCandidate{{ID: "a"}}}
		h := NewOpportunityHandler(reader, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/opportunities?type=simple&status=profitable&limit=10", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, reader.filters, 1)
		assert.Equal(t, domain.OpportunitySimple, reader.filters[0].Type)
		assert.Equal(t, domain.StatusProfitable, reader.filters[0].Status)
		assert.Equal(t, 10, reader.filters[0].Limit)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		h := NewOpportunityHandler(&fakeReader{}, discardLogger())

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"opportunities":[]}`, rec.Body.String())
	})

	t.Run("invalid since", func(t *testing.T) {
		h := NewOpportunityHandler(&fakeReader{}, discardLogger())

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?since=yesterday", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		h := NewOpportunityHandler(&fakeReader{err: errors.New("db down")}, discardLogger())

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestOpportunityGet(t *testing.T) {
	reader := &fakeReader{byID: map[string]domain.OpportunityCandidate{
		"cand-1": {ID: "cand-1", Type: domain.OpportunitySimple},
	}}
	h := NewOpportunityHandler(reader, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/opportunities/{id}", h.Get)

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/cand-1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var cand domain.OpportunityCandidate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cand))
		assert.Equal(t, "cand-1", cand.ID)
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type fakePrices struct {
	all     []domain.PriceObservation
	history []domain.PriceObservation
}

func (f *fakePrices) ListAll() []domain.PriceObservation { return f.all }

func (f *fakePrices) History(string, string, string, int) []domain.PriceObservation {
	return f.history
}

func TestPriceList(t *testing.T) {
	now := time.Now().UTC()
	obs := domain.PriceObservation{
		Venue: "uniswap", TokenA: "WETH", TokenB: "USDT", FeeTier: 3000,
		Price: decimal.NewFromInt(2650), Mode: domain.NormalizationDirect,
		ObservedAt: now,
	}

	t.Run("snapshot", func(t *testing.T) {
		h := NewPriceHandler(&fakePrices{all: []domain.PriceObservation{obs}}, discardLogger())

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Prices []priceView `json:"prices"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Prices, 1)
		assert.Equal(t, "WETH/USDT", body.Prices[0].Pair)
		assert.Equal(t, "2650", body.Prices[0].Price)
		assert.Equal(t, "direct", body.Prices[0].Mode)
	})

	t.Run("history query", func(t *testing.T) {
		f := &fakePrices{history: []domain.PriceObservation{obs, obs}}
		h := NewPriceHandler(f, discardLogger())

		req := httptest.NewRequest(http.MethodGet,
			"/api/prices?venue=uniswap&token_a=WETH&token_b=USDT&fee_tier=3000", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		var body struct {
			Prices []priceView `json:"prices"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Prices, 2)
	})
}

type fakeSim struct {
	report domain.SlippageReport
	err    error
	stats  simulator.CacheStats

	gotNotional decimal.Decimal
	gotSlippage decimal.Decimal
}

func (f *fakeSim) SimulateWithSlippage(_ context.Context, _ domain.OpportunityCandidate, notionalUSD, slippagePct decimal.Decimal) (domain.SlippageReport, error) {
	f.gotNotional = notionalUSD
	f.gotSlippage = slippagePct
	return f.report, f.err
}

func (f *fakeSim) CacheStats() simulator.CacheStats { return f.stats }

func simulateBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestSimulate(t *testing.T) {
	cand := domain.OpportunityCandidate{
		ID:          "cand-1",
		Type:        domain.OpportunitySimple,
		NotionalUSD: decimal.NewFromInt(1000),
	}
	store := &fakeReader{byID: map[string]domain.OpportunityCandidate{"cand-1": cand}}
	defaultSlippage := decimal.NewFromFloat(0.5)

	t.Run("uses defaults from candidate and config", func(t *testing.T) {
		sim := &fakeSim{report: domain.SlippageReport{
			Base:     domain.SimulationResult{Success: true},
			Adjusted: domain.SimulationResult{Success: true},
		}}
		h := NewSimulateHandler(sim, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{"opportunity_id": "cand-1"})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, sim.gotNotional.Equal(decimal.NewFromInt(1000)))
		assert.True(t, sim.gotSlippage.Equal(defaultSlippage))
	})

	t.Run("request overrides", func(t *testing.T) {
		sim := &fakeSim{}
		h := NewSimulateHandler(sim, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{
			"opportunity_id": "cand-1",
			"notional_usd":   "2500",
			"slippage_pct":   "1",
		})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, sim.gotNotional.Equal(decimal.NewFromInt(2500)))
		assert.True(t, sim.gotSlippage.Equal(decimal.NewFromInt(1)))
	})

	t.Run("missing id", func(t *testing.T) {
		h := NewSimulateHandler(&fakeSim{}, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown candidate", func(t *testing.T) {
		h := NewSimulateHandler(&fakeSim{}, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{"opportunity_id": "nope"})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("failed simulation returns the broken leg", func(t *testing.T) {
		sim := &fakeSim{
			report: domain.SlippageReport{Base: domain.SimulationResult{
				Success: false,
				Error:   "leg 2 WETH->USDT on sushiswap: execution reverted",
			}},
			err: domain.ErrSimulationFailed,
		}
		h := NewSimulateHandler(sim, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{"opportunity_id": "cand-1"})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var res domain.SimulationResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "leg 2")
	})

	t.Run("non-positive notional", func(t *testing.T) {
		h := NewSimulateHandler(&fakeSim{}, store, defaultSlippage, discardLogger())

		body := simulateBody(t, map[string]any{"opportunity_id": "cand-1", "notional_usd": "0"})
		rec := httptest.NewRecorder()
		h.Simulate(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSimulateCacheStats(t *testing.T) {
	sim := &fakeSim{stats: simulator.CacheStats{Hits: 7, Misses: 3, Size: 2}}
	h := NewSimulateHandler(sim, &fakeReader{}, decimal.Zero, discardLogger())

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/simulate/cache", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hits":7,"misses":3,"size":2}`, rec.Body.String())
}

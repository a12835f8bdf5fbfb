package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

type workerStore struct {
	domain.OpportunityStore
	mu        sync.Mutex
	simulated map[string]domain.SimulationResult
	statuses  map[string]domain.OpportunityStatus
}

func newWorkerStore() *workerStore {
	return &workerStore{
		simulated: make(map[string]domain.SimulationResult),
		statuses:  make(map[string]domain.OpportunityStatus),
	}
}

func (s *workerStore) MarkSimulated(_ context.Context, id string, res domain.SimulationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulated[id] = res
	return nil
}

func (s *workerStore) UpdateStatus(_ context.Context, id string, status domain.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *workerStore) statusOf(id string) domain.OpportunityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

type recordingAlerter struct {
	mu   sync.Mutex
	sent []domain.OpportunityCandidate
}

func (a *recordingAlerter) AlertOpportunity(_ context.Context, cand domain.OpportunityCandidate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, cand)
}

func (a *recordingAlerter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func runWorker(t *testing.T, q domain.Quoter, cands ...domain.OpportunityCandidate) (*workerStore, *recordingAlerter) {
	t.Helper()

	store := newWorkerStore()
	alerter := &recordingAlerter{}
	in := make(chan domain.OpportunityCandidate, len(cands))
	for _, c := range cands {
		in <- c
	}
	close(in)

	w, err := NewWorker(decimal.NewFromInt(1), WorkerDeps{
		Simulator: newTestSimulator(t, q),
		Store:     store,
		Alerter:   alerter,
		In:        in,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	return store, alerter
}

func TestWorkerProfitableCandidate(t *testing.T) {
	q := &fakeQuoter{rates: map[string]decimal.Decimal{
		legKey("uniswap", "USDT", "WETH"):   decimal.NewFromInt(1).Div(decimal.NewFromInt(2650)),
		legKey("sushiswap", "WETH", "USDT"): decimal.NewFromInt(2800),
	}}
	cand := simpleCandidate()
	cand.NotionalUSD = decimal.NewFromInt(1000)

	store, alerter := runWorker(t, q, cand)

	assert.Equal(t, domain.StatusProfitable, store.statusOf(cand.ID))
	res, ok := store.simulated[cand.ID]
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.True(t, res.Profitable)

	require.Equal(t, 1, alerter.sentCount())
	assert.Equal(t, cand.ID, alerter.sent[0].ID)
	require.NotNil(t, alerter.sent[0].Simulation)
	assert.Equal(t, domain.StatusProfitable, alerter.sent[0].Status)
}

func TestWorkerUnprofitableCandidate(t *testing.T) {
	// Selling at the same price it bought: gas makes the verdict negative.
	q := &fakeQuoter{rates: map[string]decimal.Decimal{
		legKey("uniswap", "USDT", "WETH"):   decimal.NewFromInt(1).Div(decimal.NewFromInt(2650)),
		legKey("sushiswap", "WETH", "USDT"): decimal.NewFromInt(2650),
	}}
	cand := simpleCandidate()
	cand.NotionalUSD = decimal.NewFromInt(1000)

	store, alerter := runWorker(t, q, cand)

	assert.Equal(t, domain.StatusUnprofitable, store.statusOf(cand.ID))
	assert.Equal(t, 0, alerter.sentCount())
}

func TestWorkerFailedSimulation(t *testing.T) {
	q := &fakeQuoter{fail: map[string]error{
		legKey("uniswap", "USDT", "WETH"): errors.New("execution reverted"),
	}}
	cand := simpleCandidate()
	cand.NotionalUSD = decimal.NewFromInt(1000)

	store, alerter := runWorker(t, q, cand)

	assert.Equal(t, domain.StatusFailed, store.statusOf(cand.ID))
	assert.Equal(t, 0, alerter.sentCount())
}

func TestNewWorkerValidation(t *testing.T) {
	in := make(chan domain.OpportunityCandidate)

	_, err := NewWorker(decimal.NewFromInt(1), WorkerDeps{In: in})
	assert.Error(t, err)

	_, err = NewWorker(decimal.NewFromInt(1), WorkerDeps{
		Simulator: newTestSimulator(t, &fakeQuoter{}),
	})
	assert.Error(t, err)
}

package simulator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// Alerter receives profitable candidates after simulation confirms them.
type Alerter interface {
	AlertOpportunity(ctx context.Context, cand domain.OpportunityCandidate)
}

// WorkerDeps wires the worker's collaborators. Store and Alerter are
// optional; the worker still simulates and logs without them.
type WorkerDeps struct {
	Simulator *Simulator
	Store     domain.OpportunityStore
	Alerter   Alerter
	In        <-chan domain.OpportunityCandidate
	Logger    *slog.Logger
}

// Worker drains detected candidates from the scanner, simulates each one
// with the configured slippage haircut, and persists the verdict.
type Worker struct {
	sim         *Simulator
	store       domain.OpportunityStore
	alerter     Alerter
	in          <-chan domain.OpportunityCandidate
	slippagePct decimal.Decimal
	logger      *slog.Logger
}

func NewWorker(slippagePct decimal.Decimal, deps WorkerDeps) (*Worker, error) {
	if deps.Simulator == nil {
		return nil, errors.New("simulator worker: simulator is required")
	}
	if deps.In == nil {
		return nil, errors.New("simulator worker: input channel is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		sim:         deps.Simulator,
		store:       deps.Store,
		alerter:     deps.Alerter,
		in:          deps.In,
		slippagePct: slippagePct,
		logger:      logger.With(slog.String("component", "sim_worker")),
	}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("simulation worker started", slog.String("slippage_pct", w.slippagePct.String()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cand, ok := <-w.in:
			if !ok {
				return nil
			}
			w.process(ctx, cand)
		}
	}
}

func (w *Worker) process(ctx context.Context, cand domain.OpportunityCandidate) {
	report, err := w.sim.SimulateWithSlippage(ctx, cand, cand.NotionalUSD, w.slippagePct)
	if err != nil {
		w.logger.Warn("simulation failed",
			slog.String("candidate", cand.ID),
			slog.String("type", string(cand.Type)),
			slog.String("error", err.Error()),
		)
		w.persist(ctx, cand.ID, report.Base, domain.StatusFailed)
		return
	}

	res := report.Adjusted
	status := domain.StatusUnprofitable
	if res.Profitable {
		status = domain.StatusProfitable
	}
	w.persist(ctx, cand.ID, res, status)

	w.logger.Info("candidate simulated",
		slog.String("candidate", cand.ID),
		slog.String("type", string(cand.Type)),
		slog.String("net_usd", res.NetProfitUSD.StringFixed(2)),
		slog.String("status", string(status)),
	)

	if res.Profitable && w.alerter != nil {
		enriched := cand
		enriched.Simulation = &res
		enriched.Status = status
		w.alerter.AlertOpportunity(ctx, enriched)
	}
}

func (w *Worker) persist(ctx context.Context, id string, res domain.SimulationResult, status domain.OpportunityStatus) {
	if w.store == nil {
		return
	}
	if err := w.store.MarkSimulated(ctx, id, res); err != nil {
		w.logger.Warn("persist simulation failed", slog.String("candidate", id), slog.String("error", err.Error()))
		return
	}
	if err := w.store.UpdateStatus(ctx, id, status); err != nil {
		w.logger.Warn("update status failed", slog.String("candidate", id), slog.String("error", err.Error()))
	}
}

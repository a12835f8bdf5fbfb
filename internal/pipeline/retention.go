// Package pipeline hosts the background maintenance loops that keep the
// opportunity store bounded.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dexradar/internal/domain"
)

// CandidateArchiver uploads a batch of candidates before they are purged.
type CandidateArchiver interface {
	ArchiveCandidates(ctx context.Context, cands []domain.OpportunityCandidate, cutoff time.Time) (string, error)
}

// RetentionConfig carries the janitor's windows.
type RetentionConfig struct {
	// ExpireAfter is how long a non-terminal candidate stays live before it
	// is marked expired.
	ExpireAfter time.Duration
	// PurgeAfter is how long terminal candidates are kept before deletion.
	PurgeAfter time.Duration
	// SweepInterval is how often the janitor runs.
	SweepInterval time.Duration
}

// Janitor expires stale candidates and purges old terminal ones, optionally
// archiving each purge batch to blob storage first. A failed archive aborts
// the purge for that sweep; nothing is deleted without a durable copy.
type Janitor struct {
	store    domain.OpportunityStore
	archiver CandidateArchiver
	cfg      RetentionConfig
	logger   *slog.Logger
}

// NewJanitor creates a Janitor. The archiver is optional; without one, purge
// batches are deleted directly.
func NewJanitor(store domain.OpportunityStore, archiver CandidateArchiver, cfg RetentionConfig, logger *slog.Logger) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("pipeline: opportunity store is required")
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 5 * time.Minute
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:    store,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "retention")),
	}, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info("retention janitor started",
		slog.Duration("expire_after", j.cfg.ExpireAfter),
		slog.Duration("purge_after", j.cfg.PurgeAfter),
		slog.Duration("sweep_interval", j.cfg.SweepInterval),
	)
	defer j.logger.Info("retention janitor stopped")

	ticker := time.NewTicker(j.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one expire-then-purge pass.
func (j *Janitor) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := j.store.ExpireBefore(ctx, now.Add(-j.cfg.ExpireAfter))
	if err != nil {
		j.logger.Warn("expire pass failed", slog.String("error", err.Error()))
	} else if expired > 0 {
		j.logger.Info("expired stale candidates", slog.Int64("count", expired))
	}

	purged, err := j.purge(ctx, now.Add(-j.cfg.PurgeAfter))
	if err != nil {
		j.logger.Warn("purge pass failed", slog.String("error", err.Error()))
	} else if purged > 0 {
		j.logger.Info("purged terminal candidates", slog.Int64("count", purged))
	}
}

func (j *Janitor) purge(ctx context.Context, cutoff time.Time) (int64, error) {
	cands, err := j.store.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(cands) == 0 {
		return 0, nil
	}

	if j.archiver != nil {
		path, err := j.archiver.ArchiveCandidates(ctx, cands, cutoff)
		if err != nil {
			return 0, err
		}
		j.logger.Info("archived purge batch",
			slog.Int("count", len(cands)),
			slog.String("path", path),
		)
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return j.store.DeleteByIDs(ctx, ids)
}

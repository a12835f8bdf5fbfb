package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityFilter narrows FindRecent queries.
type OpportunityFilter struct {
	Type   OpportunityType
	Status OpportunityStatus
	Since  *time.Time
	Limit  int
	Offset int
}

// OpportunityStats aggregates candidates over a time window.
type OpportunityStats struct {
	Window          time.Duration   `json:"window"`
	Total           int64           `json:"total"`
	Simple          int64           `json:"simple"`
	Triangular      int64           `json:"triangular"`
	Profitable      int64           `json:"profitable"`
	AvgSpreadPct    decimal.Decimal `json:"avg_spread_pct"`
	TotalNetUSD     decimal.Decimal `json:"total_net_usd"`
	BestNetUSD      decimal.Decimal `json:"best_net_usd"`
}

// OpportunityStore persists candidates and their status transitions. The
// detection pipeline treats it as optional: persistence failures are logged
// and never stop a scan cycle.
type OpportunityStore interface {
	Upsert(ctx context.Context, c OpportunityCandidate) error
	MarkSimulated(ctx context.Context, id string, res SimulationResult) error
	MarkExecuted(ctx context.Context, id string, res SimulationResult) error
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	FindRecent(ctx context.Context, filter OpportunityFilter) ([]OpportunityCandidate, error)
	GetByID(ctx context.Context, id string) (OpportunityCandidate, error)
	AggregateStats(ctx context.Context, window time.Duration) (OpportunityStats, error)
	// ExpireBefore transitions non-terminal candidates created before the
	// cutoff to StatusExpired and returns how many rows changed.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// ListTerminalBefore returns terminal-status candidates created before
	// the cutoff, for archival ahead of purge.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]OpportunityCandidate, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// SignalBus provides pub/sub fan-out of pipeline events (price updates,
// detected candidates) to external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads an archive object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Numeric money columns travel as strings to keep decimal precision exact.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given client.
func NewOpportunityStore(c *Client) *OpportunityStore {
	return &OpportunityStore{pool: c.Pool()}
}

const candidateCols = `id, type, path, legs,
	buy_venue, sell_venue, buy_fee_tier, sell_fee_tier,
	buy_price::text, sell_price::text,
	spread_pct::text, notional_usd::text, gross_profit_usd::text,
	swap_fees_usd::text, gas_cost_usd::text, total_fees_usd::text,
	net_profit_usd::text, roi_pct::text, price_impact_pct::text,
	status, simulation, created_at`

// Upsert inserts a candidate or refreshes its economics when the same ID is
// detected again.
func (s *OpportunityStore) Upsert(ctx context.Context, c domain.OpportunityCandidate) error {
	legs, err := json.Marshal(c.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs for %s: %w", c.ID, err)
	}
	var simulation []byte
	if c.Simulation != nil {
		simulation, err = json.Marshal(c.Simulation)
		if err != nil {
			return fmt.Errorf("postgres: marshal simulation for %s: %w", c.ID, err)
		}
	}

	const query = `
		INSERT INTO opportunities (
			id, type, path, legs,
			buy_venue, sell_venue, buy_fee_tier, sell_fee_tier,
			buy_price, sell_price,
			spread_pct, notional_usd, gross_profit_usd,
			swap_fees_usd, gas_cost_usd, total_fees_usd,
			net_profit_usd, roi_pct, price_impact_pct,
			status, simulation, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22
		)
		ON CONFLICT (id) DO UPDATE SET
			spread_pct       = EXCLUDED.spread_pct,
			gross_profit_usd = EXCLUDED.gross_profit_usd,
			swap_fees_usd    = EXCLUDED.swap_fees_usd,
			gas_cost_usd     = EXCLUDED.gas_cost_usd,
			total_fees_usd   = EXCLUDED.total_fees_usd,
			net_profit_usd   = EXCLUDED.net_profit_usd,
			roi_pct          = EXCLUDED.roi_pct,
			price_impact_pct = EXCLUDED.price_impact_pct,
			status           = EXCLUDED.status,
			updated_at       = NOW()`

	_, err = s.pool.Exec(ctx, query,
		c.ID, string(c.Type), c.Path, legs,
		c.BuyVenue, c.SellVenue, c.BuyFeeTier, c.SellFeeTier,
		c.BuyPrice.String(), c.SellPrice.String(),
		c.SpreadPct.String(), c.NotionalUSD.String(), c.GrossProfitUSD.String(),
		c.Fees.SwapFeesUSD.String(), c.Fees.GasCostUSD.String(), c.Fees.TotalUSD.String(),
		c.NetProfitUSD.String(), c.ROIPct.String(), c.PriceImpactPct.String(),
		string(c.Status), simulation, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert opportunity %s: %w", c.ID, err)
	}
	return nil
}

// MarkSimulated attaches a simulation result and moves the candidate to the
// simulated status.
func (s *OpportunityStore) MarkSimulated(ctx context.Context, id string, res domain.SimulationResult) error {
	return s.attachSimulation(ctx, id, res, domain.StatusSimulated)
}

// MarkExecuted attaches the final simulation result and moves the candidate
// to the executed status.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string, res domain.SimulationResult) error {
	return s.attachSimulation(ctx, id, res, domain.StatusExecuted)
}

func (s *OpportunityStore) attachSimulation(ctx context.Context, id string, res domain.SimulationResult, status domain.OpportunityStatus) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres: marshal simulation for %s: %w", id, err)
	}
	const query = `
		UPDATE opportunities SET
			simulation = $2,
			status     = $3,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, data, string(status))
	if err != nil {
		return fmt.Errorf("postgres: mark %s %s: %w", status, id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a candidate's lifecycle status.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	const query = `UPDATE opportunities SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindRecent returns candidates matching the filter, newest first.
func (s *OpportunityStore) FindRecent(ctx context.Context, filter domain.OpportunityFilter) ([]domain.OpportunityCandidate, error) {
	query := `SELECT ` + candidateCols + ` FROM opportunities`
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = "+arg(string(filter.Type)))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= "+arg(*filter.Since))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find recent opportunities: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// GetByID fetches a single candidate.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.OpportunityCandidate, error) {
	query := `SELECT ` + candidateCols + ` FROM opportunities WHERE id = $1`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return domain.OpportunityCandidate{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	defer rows.Close()

	cands, err := scanCandidates(rows)
	if err != nil {
		return domain.OpportunityCandidate{}, err
	}
	if len(cands) == 0 {
		return domain.OpportunityCandidate{}, domain.ErrNotFound
	}
	return cands[0], nil
}

// AggregateStats summarizes candidates detected inside the window.
func (s *OpportunityStore) AggregateStats(ctx context.Context, window time.Duration) (domain.OpportunityStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE type = 'simple'),
			COUNT(*) FILTER (WHERE type = 'triangular'),
			COUNT(*) FILTER (WHERE status = 'profitable'),
			COALESCE(AVG(spread_pct), 0)::text,
			COALESCE(SUM(net_profit_usd) FILTER (WHERE net_profit_usd > 0), 0)::text,
			COALESCE(MAX(net_profit_usd), 0)::text
		FROM opportunities
		WHERE created_at >= $1`

	cutoff := time.Now().Add(-window)
	var (
		stats                        domain.OpportunityStats
		avgSpread, totalNet, bestNet string
	)
	err := s.pool.QueryRow(ctx, query, cutoff).Scan(
		&stats.Total, &stats.Simple, &stats.Triangular, &stats.Profitable,
		&avgSpread, &totalNet, &bestNet,
	)
	if err != nil {
		return domain.OpportunityStats{}, fmt.Errorf("postgres: aggregate stats: %w", err)
	}
	stats.Window = window
	if stats.AvgSpreadPct, err = decimal.NewFromString(avgSpread); err != nil {
		return domain.OpportunityStats{}, fmt.Errorf("postgres: parse avg spread: %w", err)
	}
	if stats.TotalNetUSD, err = decimal.NewFromString(totalNet); err != nil {
		return domain.OpportunityStats{}, fmt.Errorf("postgres: parse total net: %w", err)
	}
	if stats.BestNetUSD, err = decimal.NewFromString(bestNet); err != nil {
		return domain.OpportunityStats{}, fmt.Errorf("postgres: parse best net: %w", err)
	}
	return stats, nil
}

// ExpireBefore marks non-terminal candidates created before the cutoff as
// expired and reports how many rows changed.
func (s *OpportunityStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE opportunities SET
			status     = 'expired',
			updated_at = NOW()
		WHERE created_at < $1
		  AND status NOT IN ('expired', 'executed', 'failed')`
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListTerminalBefore returns terminal-status candidates created before the
// cutoff, oldest first, for archival ahead of purge.
func (s *OpportunityStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]domain.OpportunityCandidate, error) {
	query := `SELECT ` + candidateCols + ` FROM opportunities
		WHERE created_at < $1
		  AND status IN ('expired', 'executed', 'failed')
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal opportunities: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// DeleteByIDs removes candidates by ID and reports how many rows were
// deleted.
func (s *OpportunityStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCandidates(rows pgx.Rows) ([]domain.OpportunityCandidate, error) {
	var cands []domain.OpportunityCandidate
	for rows.Next() {
		var (
			c          domain.OpportunityCandidate
			typ        string
			legs       []byte
			simulation []byte
			status     string
			nums       [11]string
		)
		if err := rows.Scan(
			&c.ID, &typ, &c.Path, &legs,
			&c.BuyVenue, &c.SellVenue, &c.BuyFeeTier, &c.SellFeeTier,
			&nums[0], &nums[1],
			&nums[2], &nums[3], &nums[4],
			&nums[5], &nums[6], &nums[7],
			&nums[8], &nums[9], &nums[10],
			&status, &simulation, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		c.Type = domain.OpportunityType(typ)
		c.Status = domain.OpportunityStatus(status)

		if err := json.Unmarshal(legs, &c.Legs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal legs for %s: %w", c.ID, err)
		}
		if len(simulation) > 0 {
			var res domain.SimulationResult
			if err := json.Unmarshal(simulation, &res); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal simulation for %s: %w", c.ID, err)
			}
			c.Simulation = &res
		}

		dsts := []*decimal.Decimal{
			&c.BuyPrice, &c.SellPrice,
			&c.SpreadPct, &c.NotionalUSD, &c.GrossProfitUSD,
			&c.Fees.SwapFeesUSD, &c.Fees.GasCostUSD, &c.Fees.TotalUSD,
			&c.NetProfitUSD, &c.ROIPct, &c.PriceImpactPct,
		}
		for i, dst := range dsts {
			d, err := decimal.NewFromString(nums[i])
			if err != nil {
				return nil, fmt.Errorf("postgres: parse numeric for %s: %w", c.ID, err)
			}
			*dst = d
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return cands, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

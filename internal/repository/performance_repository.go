package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-arena/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

const createDailyPerformanceTable = `
CREATE TABLE IF NOT EXISTS daily_performance (
    agent_id        TEXT NOT NULL REFERENCES agents (id),
    date            DATE NOT NULL,
    portfolio_value NUMERIC NOT NULL,
    daily_return    DOUBLE PRECISION NOT NULL DEFAULT 0,
    positions_json  TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (agent_id, date)
);
`

// PerformanceRepository stores one valuation snapshot per agent per trading
// day. Re-running a cycle on the same day upserts the row instead of adding
// a duplicate.
type PerformanceRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPerformanceRepository(pool PgxPool, tracer trace.Tracer) *PerformanceRepository {
	return &PerformanceRepository{pool: pool, tracer: tracer}
}

func (r *PerformanceRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "performance-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createDailyPerformanceTable)
	return err
}

func (r *PerformanceRepository) UpsertDaily(ctx context.Context, snap *domain.DailySnapshot) error {
	_, span := r.tracer.Start(ctx, "performance-repo.upsert-daily")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO daily_performance (agent_id, date, portfolio_value, daily_return, positions_json)
		 VALUES ($1, $2, $3::numeric, $4, $5)
		 ON CONFLICT (agent_id, date) DO UPDATE SET
		     portfolio_value = EXCLUDED.portfolio_value,
		     daily_return = EXCLUDED.daily_return,
		     positions_json = EXCLUDED.positions_json`,
		snap.AgentID, snap.Date, snap.PortfolioValue.String(), snap.DailyReturn, snap.PositionsJSON,
	)
	return err
}

// SeriesByAgent returns up to days snapshots, oldest first, for charting.
func (r *PerformanceRepository) SeriesByAgent(ctx context.Context, agentID string, days int) ([]*domain.DailySnapshot, error) {
	_, span := r.tracer.Start(ctx, "performance-repo.series-by-agent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT agent_id, date, portfolio_value::text, daily_return, positions_json
		 FROM (
		     SELECT agent_id, date, portfolio_value, daily_return, positions_json
		     FROM daily_performance
		     WHERE agent_id = $1
		     ORDER BY date DESC
		     LIMIT $2
		 ) recent
		 ORDER BY date ASC`,
		agentID, days,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []*domain.DailySnapshot
	for rows.Next() {
		s := &domain.DailySnapshot{}
		var valueRaw string
		if err := rows.Scan(&s.AgentID, &s.Date, &valueRaw, &s.DailyReturn, &s.PositionsJSON); err != nil {
			return nil, err
		}
		if s.PortfolioValue, err = parseMoney(valueRaw); err != nil {
			return nil, fmt.Errorf("snapshot %s/%s portfolio_value: %w", s.AgentID, s.Date.Format("2006-01-02"), err)
		}
		series = append(series, s)
	}
	return series, rows.Err()
}

// LatestBefore returns the most recent snapshot value strictly before date,
// used to compute the day-over-day return. The second return is false when
// no earlier snapshot exists.
func (r *PerformanceRepository) LatestBefore(ctx context.Context, agentID string, date time.Time) (decimal.Decimal, bool, error) {
	_, span := r.tracer.Start(ctx, "performance-repo.latest-before")
	defer span.End()

	var valueRaw string
	err := r.pool.QueryRow(ctx,
		`SELECT portfolio_value::text
		 FROM daily_performance
		 WHERE agent_id = $1 AND date < $2
		 ORDER BY date DESC
		 LIMIT 1`,
		agentID, date,
	).Scan(&valueRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	value, err := parseMoney(valueRaw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return value, true, nil
}

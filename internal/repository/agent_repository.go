package repository

import (
	"context"
	"errors"
	"fmt"

	"agent-arena/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

var ErrAgentNotFound = errors.New("agent not found")

const createAgentsTable = `
CREATE TABLE IF NOT EXISTS agents (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    strategy        TEXT NOT NULL,
    cash            NUMERIC NOT NULL,
    current_value   NUMERIC NOT NULL,
    total_return    DOUBLE PRECISION NOT NULL DEFAULT 0,
    win_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_trades    INTEGER NOT NULL DEFAULT 0,
    winning_trades  INTEGER NOT NULL DEFAULT 0,
    closing_trades  INTEGER NOT NULL DEFAULT 0,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type AgentRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAgentRepository(pool PgxPool, tracer trace.Tracer) *AgentRepository {
	return &AgentRepository{pool: pool, tracer: tracer}
}

func (r *AgentRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "agent-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createAgentsTable)
	return err
}

// EnsureAgent bootstraps the agent row on first run. An existing row is left
// untouched so restarts never reset cash or performance.
func (r *AgentRepository) EnsureAgent(ctx context.Context, id, name, strategy string, startingCash decimal.Decimal) error {
	_, span := r.tracer.Start(ctx, "agent-repo.ensure-agent")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO agents (id, name, strategy, cash, current_value)
		 VALUES ($1, $2, $3, $4::numeric, $4::numeric)
		 ON CONFLICT (id) DO NOTHING`,
		id, name, strategy, startingCash.String(),
	)
	return err
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	_, span := r.tracer.Start(ctx, "agent-repo.get-by-id")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, name, strategy, cash::text, current_value::text,
		        total_return, win_rate, total_trades, is_active, created_at, updated_at
		 FROM agents
		 WHERE id = $1`,
		id,
	)

	agent, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListActive returns active agents ordered by current portfolio value,
// best first.
func (r *AgentRepository) ListActive(ctx context.Context) ([]*domain.Agent, error) {
	_, span := r.tracer.Start(ctx, "agent-repo.list-active")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, strategy, cash::text, current_value::text,
		        total_return, win_rate, total_trades, is_active, created_at, updated_at
		 FROM agents
		 WHERE is_active
		 ORDER BY current_value DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdatePerformance records the outcome of one cycle: new cash and valuation,
// plus counters for executed trades and closed positions. Win rate is derived
// in SQL from the cumulative counters so concurrent cycles for different
// agents never race on a read-modify-write.
func (r *AgentRepository) UpdatePerformance(ctx context.Context, id string, cash, currentValue decimal.Decimal, totalReturn float64, trades, wins, closings int) error {
	_, span := r.tracer.Start(ctx, "agent-repo.update-performance")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET
		     cash = $2::numeric,
		     current_value = $3::numeric,
		     total_return = $4,
		     total_trades = total_trades + $5,
		     winning_trades = winning_trades + $6,
		     closing_trades = closing_trades + $7,
		     win_rate = CASE WHEN closing_trades + $7 > 0
		                     THEN (winning_trades + $6)::double precision / (closing_trades + $7)
		                     ELSE 0 END,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, cash.String(), currentValue.String(), totalReturn, trades, wins, closings,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update agent %s: %w", id, ErrAgentNotFound)
	}
	return nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	a := &domain.Agent{}
	var cashRaw, valueRaw string
	if err := row.Scan(&a.ID, &a.Name, &a.Strategy, &cashRaw, &valueRaw,
		&a.TotalReturn, &a.WinRate, &a.TotalTrades, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.Cash, err = parseMoney(cashRaw); err != nil {
		return nil, fmt.Errorf("agent %s cash: %w", a.ID, err)
	}
	if a.CurrentValue, err = parseMoney(valueRaw); err != nil {
		return nil, fmt.Errorf("agent %s current_value: %w", a.ID, err)
	}
	return a, nil
}

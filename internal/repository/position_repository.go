package repository

import (
	"context"
	"fmt"

	"agent-arena/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createPositionsTable = `
CREATE TABLE IF NOT EXISTS positions (
    agent_id    TEXT NOT NULL REFERENCES agents (id),
    symbol      TEXT NOT NULL,
    quantity    BIGINT NOT NULL,
    cost_basis  NUMERIC NOT NULL,
    last_buy_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (agent_id, symbol)
);
`

// PositionRepository stores the current holdings per agent. The table mirrors
// the in-memory portfolio after each cycle, so writes replace the whole set.
type PositionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPositionRepository(pool PgxPool, tracer trace.Tracer) *PositionRepository {
	return &PositionRepository{pool: pool, tracer: tracer}
}

func (r *PositionRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "position-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPositionsTable)
	return err
}

// ReplaceForAgent overwrites the stored holdings with the given set. Symbols
// the agent no longer holds are removed; the rest are upserted in one batch.
func (r *PositionRepository) ReplaceForAgent(ctx context.Context, agentID string, positions map[string]domain.Position) error {
	_, span := r.tracer.Start(ctx, "position-repo.replace-for-agent")
	defer span.End()

	batch := &pgx.Batch{}
	if len(positions) == 0 {
		batch.Queue(`DELETE FROM positions WHERE agent_id = $1`, agentID)
	} else {
		symbols := make([]string, 0, len(positions))
		for symbol := range positions {
			symbols = append(symbols, symbol)
		}
		batch.Queue(`DELETE FROM positions WHERE agent_id = $1 AND NOT (symbol = ANY($2))`, agentID, symbols)

		for _, pos := range positions {
			batch.Queue(
				`INSERT INTO positions (agent_id, symbol, quantity, cost_basis, last_buy_at)
				 VALUES ($1, $2, $3, $4::numeric, $5)
				 ON CONFLICT (agent_id, symbol) DO UPDATE SET
				     quantity = EXCLUDED.quantity,
				     cost_basis = EXCLUDED.cost_basis,
				     last_buy_at = EXCLUDED.last_buy_at`,
				agentID, pos.Symbol, pos.Quantity, pos.CostBasis.String(), pos.LastBuyAt,
			)
		}
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListByAgent loads the stored holdings keyed by symbol.
func (r *PositionRepository) ListByAgent(ctx context.Context, agentID string) (map[string]domain.Position, error) {
	_, span := r.tracer.Start(ctx, "position-repo.list-by-agent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, quantity, cost_basis::text, last_buy_at
		 FROM positions
		 WHERE agent_id = $1`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make(map[string]domain.Position)
	for rows.Next() {
		var pos domain.Position
		var basisRaw string
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &basisRaw, &pos.LastBuyAt); err != nil {
			return nil, err
		}
		if pos.CostBasis, err = parseMoney(basisRaw); err != nil {
			return nil, fmt.Errorf("position %s cost_basis: %w", pos.Symbol, err)
		}
		positions[pos.Symbol] = pos
	}
	return positions, rows.Err()
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
    id          BIGSERIAL PRIMARY KEY,
    agent_id    TEXT NOT NULL REFERENCES agents (id),
    symbol      TEXT NOT NULL,
    action      TEXT NOT NULL,
    quantity    BIGINT NOT NULL,
    price       NUMERIC NOT NULL,
    total_value NUMERIC NOT NULL,
    reasoning   TEXT NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_agent_time
    ON trades (agent_id, executed_at DESC);

CREATE INDEX IF NOT EXISTS idx_trades_time
    ON trades (executed_at DESC);
`

// TradeRepository persists executed trades. The log is append-only: there is
// no update or delete path.
type TradeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTradeRepository(pool PgxPool, tracer trace.Tracer) *TradeRepository {
	return &TradeRepository{pool: pool, tracer: tracer}
}

func (r *TradeRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "trade-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createTradesTable)
	return err
}

// Insert appends one trade and fills in its assigned ID.
func (r *TradeRepository) Insert(ctx context.Context, trade *domain.ExecutedTrade) error {
	_, span := r.tracer.Start(ctx, "trade-repo.insert")
	defer span.End()

	return r.pool.QueryRow(ctx,
		`INSERT INTO trades (agent_id, symbol, action, quantity, price, total_value, reasoning, confidence, executed_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
		 RETURNING id`,
		trade.AgentID, trade.Symbol, string(trade.Action), trade.Quantity,
		trade.Price.String(), trade.TotalValue.String(), trade.Reasoning,
		trade.Confidence, trade.ExecutedAt,
	).Scan(&trade.ID)
}

// ListRecent pages through the trade log newest-first. An empty action lists
// everything; otherwise only BUY or SELL rows matching the filter.
func (r *TradeRepository) ListRecent(ctx context.Context, limit, offset int, action domain.TradeAction) ([]*domain.ExecutedTrade, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.list-recent")
	defer span.End()

	query := `SELECT id, agent_id, symbol, action, quantity, price::text, total_value::text, reasoning, confidence, executed_at
		 FROM trades`
	args := []any{}
	if action != "" {
		query += ` WHERE action = $1`
		args = append(args, string(action))
	}
	query += fmt.Sprintf(` ORDER BY executed_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	return r.queryTrades(ctx, query, args...)
}

// ListByAgent returns an agent's trades newest-first.
func (r *TradeRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.ExecutedTrade, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.list-by-agent")
	defer span.End()

	return r.queryTrades(ctx,
		`SELECT id, agent_id, symbol, action, quantity, price::text, total_value::text, reasoning, confidence, executed_at
		 FROM trades
		 WHERE agent_id = $1
		 ORDER BY executed_at DESC, id DESC
		 LIMIT $2`,
		agentID, limit,
	)
}

func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.ExecutedTrade, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.ExecutedTrade
	for rows.Next() {
		t := &domain.ExecutedTrade{}
		var action, priceRaw, valueRaw string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Symbol, &action, &t.Quantity,
			&priceRaw, &valueRaw, &t.Reasoning, &t.Confidence, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Action = domain.TradeAction(strings.ToUpper(action))
		if t.Price, err = parseMoney(priceRaw); err != nil {
			return nil, fmt.Errorf("trade %d price: %w", t.ID, err)
		}
		if t.TotalValue, err = parseMoney(valueRaw); err != nil {
			return nil, fmt.Errorf("trade %d total_value: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// PgxPool is the subset of pgxpool.Pool the repositories use, narrowed so
// tests can substitute fakes.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// parseMoney converts a NUMERIC column selected with ::text into a decimal.
// Money columns are always read through this helper so a schema drift shows
// up as an error instead of a silent zero.
func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", raw, err)
	}
	return d, nil
}

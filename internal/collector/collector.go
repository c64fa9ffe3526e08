package collector

import (
	"context"
	"errors"

	"agent-arena/internal/domain"
)

var (
	// ErrInsufficientData means the source answered but returned too
	// little data to produce a reading.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrSourceUnavailable means the upstream could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Collector produces one signal reading for a symbol. Implementations
// return an error instead of a reading when their source fails; the
// aggregator decides what a missing source means.
type Collector interface {
	Kind() domain.SourceKind
	Collect(ctx context.Context, symbol string) (*domain.SignalReading, error)
}

// TextJudge scores a bundle of free-form texts about one symbol on the
// 0..1 bearish-to-bullish scale.
type TextJudge interface {
	ScoreTexts(ctx context.Context, symbol string, texts []string) (float64, error)
}

// PriceHistorySource supplies daily closes in chronological order,
// oldest first.
type PriceHistorySource interface {
	GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

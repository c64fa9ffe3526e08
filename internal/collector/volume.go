package collector

import (
	"context"
	"fmt"

	"agent-arena/internal/domain"
	"agent-arena/internal/ta"

	"go.opentelemetry.io/otel/trace"
)

const volumeMinCloses = 5

// VolumeCollector uses short-horizon volatility as a proxy for trading
// volume: a sharp move on high volatility reads as conviction in the
// move's direction, a quiet tape reads as neutral.
type VolumeCollector struct {
	history      PriceHistorySource
	lookbackDays int
	tracer       trace.Tracer
}

func NewVolumeCollector(history PriceHistorySource, tracer trace.Tracer) *VolumeCollector {
	return &VolumeCollector{history: history, lookbackDays: 10, tracer: tracer}
}

func (c *VolumeCollector) Kind() domain.SourceKind { return domain.SourceVolume }

func (c *VolumeCollector) Collect(ctx context.Context, symbol string) (*domain.SignalReading, error) {
	ctx, span := c.tracer.Start(ctx, "collector.volume")
	defer span.End()

	points, err := c.history.GetHistoricalPrices(ctx, symbol, c.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("price history for %s: %w", symbol, err)
	}
	if len(points) < volumeMinCloses {
		return nil, fmt.Errorf("volume reading for %s needs %d closes, have %d: %w",
			symbol, volumeMinCloses, len(points), ErrInsufficientData)
	}

	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	n := len(closes)

	lastChange := (closes[n-1] - closes[n-2]) / closes[n-2]
	returns := ta.Returns(closes[n-5:])
	volatility := ta.Volatility(returns)

	score := 0.5
	switch {
	case volatility > 0.03 && lastChange > 0:
		score = 0.7
	case volatility > 0.03:
		score = 0.3
	case volatility < 0.01:
		score = 0.5
	}

	return &domain.SignalReading{
		Source:     domain.SourceVolume,
		Score:      score,
		Confidence: 0.5,
		DataPoints: n,
	}, nil
}

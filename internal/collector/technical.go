package collector

import (
	"context"
	"fmt"

	"agent-arena/internal/domain"
	"agent-arena/internal/ta"

	"go.opentelemetry.io/otel/trace"
)

const technicalMinCloses = 10

// TechnicalCollector derives a sentiment reading from pure price
// action: moving-average position, short-horizon returns, and RSI.
// It never consults the text judge, so its confidence is fixed.
type TechnicalCollector struct {
	history      PriceHistorySource
	lookbackDays int
	tracer       trace.Tracer
}

func NewTechnicalCollector(history PriceHistorySource, tracer trace.Tracer) *TechnicalCollector {
	return &TechnicalCollector{history: history, lookbackDays: 30, tracer: tracer}
}

func (c *TechnicalCollector) Kind() domain.SourceKind { return domain.SourceTechnical }

func (c *TechnicalCollector) Collect(ctx context.Context, symbol string) (*domain.SignalReading, error) {
	ctx, span := c.tracer.Start(ctx, "collector.technical")
	defer span.End()

	points, err := c.history.GetHistoricalPrices(ctx, symbol, c.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("price history for %s: %w", symbol, err)
	}
	if len(points) < technicalMinCloses {
		return nil, fmt.Errorf("technical reading for %s needs %d closes, have %d: %w",
			symbol, technicalMinCloses, len(points), ErrInsufficientData)
	}

	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	n := len(closes)
	current := closes[n-1]

	sma5 := ta.SMA(closes[n-5:])
	sma20Window := closes
	if n > 20 {
		sma20Window = closes[n-20:]
	}
	sma20 := ta.SMA(sma20Window)

	rsiWindow := closes
	if n > 14 {
		rsiWindow = closes[n-14:]
	}
	rsi := ta.RSI(rsiWindow, 14)

	return1d := (current - closes[n-2]) / closes[n-2]
	return5d := (current - closes[n-5]) / closes[n-5]

	score := 0.5
	if current > sma5 {
		score += 0.10
	}
	if current > sma20 {
		score += 0.15
	}
	if sma5 > sma20 {
		score += 0.15
	}
	score += clamp(return1d*5, -0.15, 0.15)
	score += clamp(return5d*3, -0.15, 0.15)
	if rsi < 30 {
		score += 0.10
	} else if rsi > 70 {
		score -= 0.10
	}

	return &domain.SignalReading{
		Source:     domain.SourceTechnical,
		Score:      clamp(score, 0, 1),
		Confidence: 0.7,
		DataPoints: n,
	}, nil
}

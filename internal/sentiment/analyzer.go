package sentiment

import (
	"context"
	"log"
	"sync"

	"agent-arena/internal/collector"
	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Analyzer fans collectors out across the watch-list and aggregates
// their readings per symbol. A collector failure drops that source for
// that symbol only; with every source down the symbol still gets the
// neutral fallback, so Analyze cannot fail.
type Analyzer struct {
	collectors  []collector.Collector
	maxInFlight int
	tracer      trace.Tracer
}

func NewAnalyzer(collectors []collector.Collector, tracer trace.Tracer) *Analyzer {
	return &Analyzer{collectors: collectors, maxInFlight: 4, tracer: tracer}
}

// Analyze returns one aggregated sentiment per symbol, keyed by symbol.
func (a *Analyzer) Analyze(ctx context.Context, symbols []string) map[string]domain.AggregatedSentiment {
	ctx, span := a.tracer.Start(ctx, "sentiment.analyze")
	defer span.End()

	var mu sync.Mutex
	results := make(map[string]domain.AggregatedSentiment, len(symbols))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(a.maxInFlight)
	for _, symbol := range symbols {
		symbol := symbol
		group.Go(func() error {
			aggregated := a.analyzeSymbol(ctx, symbol)
			mu.Lock()
			results[symbol] = aggregated
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func (a *Analyzer) analyzeSymbol(ctx context.Context, symbol string) domain.AggregatedSentiment {
	ctx, span := a.tracer.Start(ctx, "sentiment.analyze-symbol")
	defer span.End()

	readings := make([]domain.SignalReading, 0, len(a.collectors))
	for _, c := range a.collectors {
		reading, err := c.Collect(ctx, symbol)
		if err != nil {
			log.Printf("Warning: %s collector failed for %s: %v", c.Kind(), symbol, err)
			continue
		}
		readings = append(readings, *reading)
	}

	return Aggregate(symbol, readings)
}

package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type PriceRefresher interface {
	RefreshPrices(ctx context.Context) error
}

// PricePoller keeps the quote cache warm between trading cycles.
type PricePoller struct {
	tracer       trace.Tracer
	priceService PriceRefresher
	pollInterval time.Duration
}

func NewPricePoller(tracer trace.Tracer, priceService PriceRefresher, pollIntervalSecs int) *PricePoller {
	return &PricePoller{
		tracer:       tracer,
		priceService: priceService,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
	}
}

// Start polls until ctx is cancelled. Blocks.
func (p *PricePoller) Start(ctx context.Context) {
	log.Println("Price poller starting...")

	p.refreshOnce(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price poller stopped")
			return
		case <-ticker.C:
			p.refreshOnce(ctx)
		}
	}
}

func (p *PricePoller) refreshOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "price-poller.refresh")
	defer span.End()

	if err := p.priceService.RefreshPrices(ctx); err != nil {
		log.Printf("price refresh error: %v", err)
	}
}

package collector

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// HeadlineSource is any feed that can return recent headlines for a symbol.
type HeadlineSource interface {
	FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error)
}

// NewsCollector merges headlines from multiple feeds, deduplicates by
// title, and scores them with the text judge. Confidence saturates at
// 15 headlines.
type NewsCollector struct {
	sources      []HeadlineSource
	judge        TextJudge
	maxHeadlines int
	tracer       trace.Tracer
}

func NewNewsCollector(sources []HeadlineSource, judge TextJudge, maxHeadlines int, tracer trace.Tracer) *NewsCollector {
	if maxHeadlines <= 0 {
		maxHeadlines = 20
	}
	return &NewsCollector{
		sources:      sources,
		judge:        judge,
		maxHeadlines: maxHeadlines,
		tracer:       tracer,
	}
}

func (c *NewsCollector) Kind() domain.SourceKind { return domain.SourceNews }

func (c *NewsCollector) Collect(ctx context.Context, symbol string) (*domain.SignalReading, error) {
	ctx, span := c.tracer.Start(ctx, "collector.news")
	defer span.End()

	seen := make(map[string]struct{})
	var headlines []domain.Headline
	reached := 0
	for _, source := range c.sources {
		rows, err := source.FetchHeadlines(ctx, symbol, c.maxHeadlines)
		if err != nil {
			log.Printf("Warning: news feed for %s unavailable: %v", symbol, err)
			continue
		}
		reached++
		for _, row := range rows {
			key := strings.ToLower(strings.TrimSpace(row.Title))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			headlines = append(headlines, row)
		}
	}
	if reached == 0 {
		return nil, fmt.Errorf("news feeds for %s: %w", symbol, ErrSourceUnavailable)
	}
	if len(headlines) == 0 {
		return nil, fmt.Errorf("news headlines for %s: %w", symbol, ErrInsufficientData)
	}
	if len(headlines) > c.maxHeadlines {
		headlines = headlines[:c.maxHeadlines]
	}

	texts := make([]string, 0, len(headlines))
	for _, h := range headlines {
		if h.Source != "" {
			texts = append(texts, fmt.Sprintf("[%s] %s", h.Source, h.Title))
		} else {
			texts = append(texts, h.Title)
		}
	}

	score, err := c.judge.ScoreTexts(ctx, symbol, texts)
	if err != nil {
		return nil, fmt.Errorf("judge headlines for %s: %w", symbol, err)
	}

	return &domain.SignalReading{
		Source:     domain.SourceNews,
		Score:      clamp(score, 0, 1),
		Confidence: math.Min(float64(len(headlines))/15.0, 1.0),
		DataPoints: len(headlines),
	}, nil
}

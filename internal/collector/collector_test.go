package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

type fakeJudge struct {
	score float64
	err   error
	texts []string
}

func (f *fakeJudge) ScoreTexts(_ context.Context, _ string, texts []string) (float64, error) {
	f.texts = texts
	return f.score, f.err
}

type fakeReddit struct {
	posts []domain.RawPost
	err   error
}

func (f *fakeReddit) FetchMentions(context.Context, []string, []string, int) ([]domain.RawPost, error) {
	return f.posts, f.err
}

type fakeStocktwits struct {
	posts []domain.RawPost
	err   error
}

func (f *fakeStocktwits) FetchSymbolStream(context.Context, string, int) ([]domain.RawPost, error) {
	return f.posts, f.err
}

type fakeHeadlines struct {
	headlines []domain.Headline
	err       error
}

func (f *fakeHeadlines) FetchHeadlines(context.Context, string, int) ([]domain.Headline, error) {
	return f.headlines, f.err
}

type fakeHistory struct {
	points []domain.PricePoint
	err    error
}

func (f *fakeHistory) GetHistoricalPrices(context.Context, string, int) ([]domain.PricePoint, error) {
	return f.points, f.err
}

func pricePoints(closes ...float64) []domain.PricePoint {
	base := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	points := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = domain.PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return points
}

func makePosts(n int, source string) []domain.RawPost {
	posts := make([]domain.RawPost, n)
	for i := range posts {
		posts[i] = domain.RawPost{ID: "p", Source: source, Title: "NVDA talk", Score: 10}
	}
	return posts
}

func TestSocialCollectorCombinesSources(t *testing.T) {
	judge := &fakeJudge{score: 0.8}
	c := NewSocialCollector(
		&fakeReddit{posts: makePosts(4, "reddit/r/stocks")},
		&fakeStocktwits{posts: makePosts(6, "stocktwits")},
		judge, []string{"stocks"}, 25, testTracer(),
	)

	reading, err := c.Collect(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Source != domain.SourceSocial {
		t.Fatalf("unexpected source: %s", reading.Source)
	}
	if reading.Score != 0.8 {
		t.Fatalf("expected judge score 0.8, got %v", reading.Score)
	}
	if reading.DataPoints != 10 {
		t.Fatalf("expected 10 data points, got %d", reading.DataPoints)
	}
	if reading.Confidence != 0.5 {
		t.Fatalf("expected confidence 10/20=0.5, got %v", reading.Confidence)
	}
	if len(judge.texts) != 10 {
		t.Fatalf("expected 10 texts passed to judge, got %d", len(judge.texts))
	}
}

func TestSocialCollectorConfidenceSaturates(t *testing.T) {
	c := NewSocialCollector(
		&fakeReddit{posts: makePosts(30, "reddit/r/stocks")},
		&fakeStocktwits{err: errors.New("down")},
		&fakeJudge{score: 0.6}, []string{"stocks"}, 40, testTracer(),
	)

	reading, err := c.Collect(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Confidence != 1.0 {
		t.Fatalf("expected capped confidence 1.0, got %v", reading.Confidence)
	}
}

func TestSocialCollectorNoPosts(t *testing.T) {
	c := NewSocialCollector(
		&fakeReddit{err: errors.New("down")},
		&fakeStocktwits{},
		&fakeJudge{score: 0.5}, []string{"stocks"}, 25, testTracer(),
	)

	_, err := c.Collect(context.Background(), "NVDA")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestNewsCollectorDeduplicatesTitles(t *testing.T) {
	judge := &fakeJudge{score: 0.65}
	c := NewNewsCollector([]HeadlineSource{
		&fakeHeadlines{headlines: []domain.Headline{
			{Title: "Apple beats expectations", Source: "Wire A"},
			{Title: "Apple suppliers rally", Source: "Wire A"},
		}},
		&fakeHeadlines{headlines: []domain.Headline{
			{Title: "apple beats expectations", Source: "Wire B"},
			{Title: "iPhone demand holds up", Source: "Wire B"},
		}},
	}, judge, 20, testTracer())

	reading, err := c.Collect(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.DataPoints != 3 {
		t.Fatalf("expected 3 unique headlines, got %d", reading.DataPoints)
	}
	if reading.Confidence != 3.0/15.0 {
		t.Fatalf("expected confidence 0.2, got %v", reading.Confidence)
	}
}

func TestNewsCollectorAllFeedsDown(t *testing.T) {
	c := NewNewsCollector([]HeadlineSource{
		&fakeHeadlines{err: errors.New("down")},
		&fakeHeadlines{err: errors.New("down")},
	}, &fakeJudge{}, 20, testTracer())

	_, err := c.Collect(context.Background(), "AAPL")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestNewsCollectorNoHeadlines(t *testing.T) {
	c := NewNewsCollector([]HeadlineSource{
		&fakeHeadlines{},
	}, &fakeJudge{}, 20, testTracer())

	_, err := c.Collect(context.Background(), "AAPL")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTechnicalCollectorUptrendScoresBullish(t *testing.T) {
	history := &fakeHistory{points: pricePoints(100, 101, 102, 103, 104, 105, 106, 107, 108, 109)}
	c := NewTechnicalCollector(history, testTracer())

	reading, err := c.Collect(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Score <= 0.7 {
		t.Fatalf("expected bullish score for steady uptrend, got %v", reading.Score)
	}
	if reading.Confidence != 0.7 {
		t.Fatalf("expected fixed confidence 0.7, got %v", reading.Confidence)
	}
	if reading.DataPoints != 10 {
		t.Fatalf("expected 10 data points, got %d", reading.DataPoints)
	}
}

func TestTechnicalCollectorDowntrendScoresBearish(t *testing.T) {
	history := &fakeHistory{points: pricePoints(109, 108, 107, 106, 105, 104, 103, 102, 101, 100)}
	c := NewTechnicalCollector(history, testTracer())

	reading, err := c.Collect(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Score >= 0.5 {
		t.Fatalf("expected bearish score for steady downtrend, got %v", reading.Score)
	}
}

func TestTechnicalCollectorNeedsTenCloses(t *testing.T) {
	history := &fakeHistory{points: pricePoints(100, 101, 102)}
	c := NewTechnicalCollector(history, testTracer())

	_, err := c.Collect(context.Background(), "MSFT")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestVolumeCollectorReadsVolatility(t *testing.T) {
	cases := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"volatile and up", []float64{100, 100, 103, 99, 106, 110}, 0.7},
		{"volatile and down", []float64{100, 100, 97, 103, 95, 90}, 0.3},
		{"quiet tape", []float64{100, 100.1, 100, 100.05, 100.1, 100.15}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewVolumeCollector(&fakeHistory{points: pricePoints(tc.closes...)}, testTracer())
			reading, err := c.Collect(context.Background(), "TSLA")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reading.Score != tc.want {
				t.Fatalf("expected score %v, got %v", tc.want, reading.Score)
			}
			if reading.Confidence != 0.5 {
				t.Fatalf("expected fixed confidence 0.5, got %v", reading.Confidence)
			}
		})
	}
}

func TestVolumeCollectorNeedsFiveCloses(t *testing.T) {
	c := NewVolumeCollector(&fakeHistory{points: pricePoints(100, 101)}, testTracer())
	if _, err := c.Collect(context.Background(), "TSLA"); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

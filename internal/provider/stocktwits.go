package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	stocktwitsBaseURL = "https://api.stocktwits.com/api/2"
	stocktwitsMax     = 30
)

// StocktwitsProvider fetches recent messages from a symbol stream. The
// public API caps streams at 30 messages and labels some of them with a
// Bullish/Bearish tag, which is carried through on the post.
type StocktwitsProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewStocktwitsProvider(tracer trace.Tracer) *StocktwitsProvider {
	return &StocktwitsProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: stocktwitsBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(2, 500*time.Millisecond),
	}
}

// FetchSymbolStream returns up to limit recent messages tagged with the
// symbol. Messages shorter than 10 characters are dropped as noise.
func (p *StocktwitsProvider) FetchSymbolStream(ctx context.Context, symbol string, limit int) ([]domain.RawPost, error) {
	ctx, span := p.tracer.Start(ctx, "stocktwits.symbol-stream")
	defer span.End()

	if limit <= 0 || limit > stocktwitsMax {
		limit = stocktwitsMax
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/streams/symbol/%s.json?limit=%d", p.baseURL, url.PathEscape(symbol), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stocktwits API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Messages []struct {
			ID        int64  `json:"id"`
			Body      string `json:"body"`
			CreatedAt string `json:"created_at"`
			Entities  struct {
				Sentiment *struct {
					Basic string `json:"basic"`
				} `json:"sentiment"`
			} `json:"entities"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode stocktwits response: %w", err)
	}

	posts := make([]domain.RawPost, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		body := sanitizeText(msg.Body, 420)
		if len(body) < 10 {
			continue
		}
		sentiment := "neutral"
		if msg.Entities.Sentiment != nil && msg.Entities.Sentiment.Basic != "" {
			sentiment = strings.ToLower(msg.Entities.Sentiment.Basic)
		}
		createdAt, err := time.Parse(time.RFC3339, msg.CreatedAt)
		if err != nil {
			createdAt = time.Now().UTC()
		}
		posts = append(posts, domain.RawPost{
			ID:        fmt.Sprintf("%d", msg.ID),
			Source:    "stocktwits",
			Content:   body,
			Sentiment: sentiment,
			Symbols:   []string{symbol},
			CreatedAt: createdAt.UTC(),
		})
	}
	return posts, nil
}

// SentimentScore maps a Stocktwits sentiment tag onto the 0..1 scale.
func SentimentScore(sentiment string) float64 {
	switch strings.ToLower(sentiment) {
	case "bullish":
		return 0.8
	case "bearish":
		return 0.2
	default:
		return 0.5
	}
}

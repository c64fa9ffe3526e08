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
	yahooChartBaseURL  = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooSearchBaseURL = "https://query1.finance.yahoo.com/v1/finance/search"
	marketDataUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// ErrPriceUnavailable is returned when the upstream has no usable quote
// for a symbol.
var ErrPriceUnavailable = fmt.Errorf("price unavailable")

// MarketDataProvider fetches quotes and daily close series from the
// Yahoo Finance chart API. Rate limited to roughly one call per second
// with a small burst allowance.
type MarketDataProvider struct {
	client        *http.Client
	chartBaseURL  string
	searchBaseURL string
	tracer        trace.Tracer
	limiter       *RateLimiter
	retryDelay    time.Duration
}

func NewMarketDataProvider(tracer trace.Tracer) *MarketDataProvider {
	return &MarketDataProvider{
		client:        &http.Client{Timeout: 15 * time.Second},
		chartBaseURL:  yahooChartBaseURL,
		searchBaseURL: yahooSearchBaseURL,
		tracer:        tracer,
		limiter:       NewRateLimiter(5, time.Second),
		retryDelay:    time.Second,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetCurrentPrice returns the latest quote for a symbol, falling back to
// the most recent non-null close when the quote field is missing.
func (p *MarketDataProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := p.tracer.Start(ctx, "marketdata.current-price")
	defer span.End()

	u := fmt.Sprintf("%s/%s?interval=1d&range=1d", p.chartBaseURL, url.PathEscape(symbol))
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("parse price for %s: %w", symbol, err)
	}
	if len(payload.Chart.Result) == 0 {
		return 0, fmt.Errorf("%s: %w", symbol, ErrPriceUnavailable)
	}

	result := payload.Chart.Result[0]
	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}

	// Fallback: last non-null close of the day.
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 {
				return *closes[i], nil
			}
		}
	}

	return 0, fmt.Errorf("%s: %w", symbol, ErrPriceUnavailable)
}

// GetHistoricalPrices returns up to days daily closes in chronological
// order, oldest first. Gaps (null closes) are skipped.
func (p *MarketDataProvider) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	ctx, span := p.tracer.Start(ctx, "marketdata.historical-prices")
	defer span.End()

	if days <= 0 {
		days = 30
	}
	u := fmt.Sprintf("%s/%s?interval=1d&range=%dd", p.chartBaseURL, url.PathEscape(symbol), days)
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse history for %s: %w", symbol, err)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrPriceUnavailable)
	}

	result := payload.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]domain.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, domain.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}
	return points, nil
}

// FetchHeadlines returns recent news headlines for a symbol from the
// Yahoo Finance search endpoint.
func (p *MarketDataProvider) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	ctx, span := p.tracer.Start(ctx, "marketdata.news-headlines")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	u := fmt.Sprintf("%s?q=%s&quotesCount=0&newsCount=%d", p.searchBaseURL, url.QueryEscape(symbol), limit)
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}

	var payload struct {
		News []struct {
			Title               string `json:"title"`
			Publisher           string `json:"publisher"`
			ProviderPublishTime int64  `json:"providerPublishTime"`
		} `json:"news"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse news for %s: %w", symbol, err)
	}

	headlines := make([]domain.Headline, 0, len(payload.News))
	for _, row := range payload.News {
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		headlines = append(headlines, domain.Headline{
			Title:       title,
			Source:      sanitizeText(row.Publisher, 120),
			PublishedAt: time.Unix(row.ProviderPublishTime, 0).UTC(),
		})
	}
	return headlines, nil
}

// doRequest performs a rate-limited GET and retries once after a pause
// when the upstream answers 429.
func (p *MarketDataProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	body, status, err := p.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelay):
		}
		body, status, err = p.get(ctx, url)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("market data API error %d: %s", status, string(body))
	}
	return body, nil
}

func (p *MarketDataProvider) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", marketDataUA)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// sanitizeText collapses whitespace and truncates to maxLen bytes.
func sanitizeText(in string, maxLen int) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	in = strings.Join(strings.Fields(in), " ")
	if maxLen > 0 && len(in) > maxLen {
		in = in[:maxLen]
	}
	return in
}

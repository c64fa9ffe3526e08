package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const googleNewsBaseURL = "https://news.google.com/rss/search"

// NewsRSSProvider fetches stock headlines from the Google News RSS
// search feed.
type NewsRSSProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
}

func NewNewsRSSProvider(tracer trace.Tracer) *NewsRSSProvider {
	return &NewsRSSProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: googleNewsBaseURL,
		tracer:  tracer,
	}
}

// FetchHeadlines queries the feed for "<symbol> stock" and returns up to
// maxItems headlines, newest first as the feed delivers them.
func (p *NewsRSSProvider) FetchHeadlines(ctx context.Context, symbol string, maxItems int) ([]domain.Headline, error) {
	ctx, span := p.tracer.Start(ctx, "news.fetch-headlines")
	defer span.End()

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if maxItems <= 0 {
		maxItems = 20
	}

	query := url.QueryEscape(symbol + " stock")
	u := fmt.Sprintf("%s?q=%s&hl=en-US&gl=US&ceid=US:en", p.baseURL, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("news feed error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rss struct {
		Channel struct {
			Items []struct {
				Title   string `xml:"title"`
				PubDate string `xml:"pubDate"`
				Source  string `xml:"source"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("decode news feed: %w", err)
	}

	headlines := make([]domain.Headline, 0, min(maxItems, len(rss.Channel.Items)))
	for i, row := range rss.Channel.Items {
		if i >= maxItems {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		publishedAt := parseRSSDate(row.PubDate)
		if publishedAt.IsZero() {
			publishedAt = time.Now().UTC()
		}
		headlines = append(headlines, domain.Headline{
			Title:       title,
			Source:      sanitizeText(row.Source, 120),
			PublishedAt: publishedAt,
		})
	}

	return headlines, nil
}

func parseRSSDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

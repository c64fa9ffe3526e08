package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	redditBaseURL     = "https://www.reddit.com"
	defaultRedditUA   = "agent-arena/1.0 (paper-trading research bot)"
	defaultRedditSize = 40
)

// RedditProvider scrapes hot posts from public subreddits via the
// unauthenticated JSON API and keeps only posts that mention one of the
// tracked symbols.
type RedditProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
}

func NewRedditProvider(tracer trace.Tracer) *RedditProvider {
	return &RedditProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: defaultRedditUA,
		tracer:    tracer,
	}
}

// FetchMentions scans the given subreddits for posts mentioning any of
// the symbols. A failing subreddit is logged and skipped so one outage
// does not blank the whole source. Results are sorted by score
// descending and capped at limit.
func (p *RedditProvider) FetchMentions(ctx context.Context, subreddits, symbols []string, limit int) ([]domain.RawPost, error) {
	ctx, span := p.tracer.Start(ctx, "reddit.fetch-mentions")
	defer span.End()

	if len(subreddits) == 0 {
		return nil, fmt.Errorf("at least one subreddit is required")
	}
	if limit <= 0 {
		limit = defaultRedditSize
	}
	perSub := limit / len(subreddits)
	if perSub < 10 {
		perSub = 10
	}

	var posts []domain.RawPost
	fetched := 0
	for _, sub := range subreddits {
		subPosts, err := p.fetchSubreddit(ctx, sub, symbols, perSub)
		if err != nil {
			log.Printf("Warning: failed to scan r/%s: %v", sub, err)
			continue
		}
		fetched++
		posts = append(posts, subPosts...)
	}
	if fetched == 0 {
		return nil, fmt.Errorf("all subreddits failed")
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (p *RedditProvider) fetchSubreddit(ctx context.Context, subreddit string, symbols []string, limit int) ([]domain.RawPost, error) {
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit is required")
	}
	if limit > 100 {
		limit = 100
	}

	base := strings.TrimRight(p.baseURL, "/")
	u := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", base, url.PathEscape(subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reddit API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			Children []struct {
				Data struct {
					ID          string  `json:"id"`
					Subreddit   string  `json:"subreddit"`
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					CreatedUTC  float64 `json:"created_utc"`
					Score       float64 `json:"score"`
					NumComments float64 `json:"num_comments"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reddit response: %w", err)
	}

	posts := make([]domain.RawPost, 0, len(payload.Data.Children))
	for _, row := range payload.Data.Children {
		data := row.Data
		if strings.TrimSpace(data.ID) == "" || strings.TrimSpace(data.Title) == "" {
			continue
		}
		if data.SelfText == "[removed]" || data.SelfText == "[deleted]" {
			continue
		}
		found := ExtractSymbols(data.Title+" "+data.SelfText, symbols)
		if len(found) == 0 {
			continue
		}
		posts = append(posts, domain.RawPost{
			ID:        data.ID,
			Source:    "reddit/r/" + strings.TrimSpace(data.Subreddit),
			Title:     sanitizeText(data.Title, 300),
			Content:   sanitizeText(data.SelfText, 420),
			Score:     int(data.Score),
			Comments:  int(data.NumComments),
			Symbols:   found,
			CreatedAt: time.Unix(int64(data.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

// ExtractSymbols returns the subset of symbols mentioned in text.
// A mention is a cashtag ($AAPL), a standalone word, a "SYMBOL stock/
// shares/calls/puts" phrase, or a "ticker: SYMBOL" label.
func ExtractSymbols(text string, symbols []string) []string {
	var found []string
	for _, symbol := range symbols {
		if symbolMentioned(text, symbol) {
			found = append(found, symbol)
		}
	}
	return found
}

func symbolMentioned(text, symbol string) bool {
	quoted := regexp.QuoteMeta(symbol)
	patterns := []string{
		`(?i)\$` + quoted + `\b`,
		`(?i)\b` + quoted + `\b`,
		`(?i)\b` + quoted + `\s+(stock|shares?|calls?|puts?)`,
		`(?i)(ticker:?|symbol:?)\s*` + quoted + `\b`,
	}
	for _, pattern := range patterns {
		if regexp.MustCompile(pattern).MatchString(text) {
			return true
		}
	}
	return false
}

package collector

import (
	"context"
	"fmt"
	"log"
	"math"

	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type redditSource interface {
	FetchMentions(ctx context.Context, subreddits, symbols []string, limit int) ([]domain.RawPost, error)
}

type stocktwitsSource interface {
	FetchSymbolStream(ctx context.Context, symbol string, limit int) ([]domain.RawPost, error)
}

// SocialCollector reads chatter about a symbol from Reddit and
// Stocktwits and hands the combined sample to the text judge.
// Confidence grows with post count, saturating at 20 posts.
type SocialCollector struct {
	reddit     redditSource
	stocktwits stocktwitsSource
	judge      TextJudge
	subreddits []string
	maxPosts   int
	tracer     trace.Tracer
}

func NewSocialCollector(reddit redditSource, stocktwits stocktwitsSource, judge TextJudge, subreddits []string, maxPosts int, tracer trace.Tracer) *SocialCollector {
	if maxPosts <= 0 {
		maxPosts = 25
	}
	return &SocialCollector{
		reddit:     reddit,
		stocktwits: stocktwits,
		judge:      judge,
		subreddits: subreddits,
		maxPosts:   maxPosts,
		tracer:     tracer,
	}
}

func (c *SocialCollector) Kind() domain.SourceKind { return domain.SourceSocial }

func (c *SocialCollector) Collect(ctx context.Context, symbol string) (*domain.SignalReading, error) {
	ctx, span := c.tracer.Start(ctx, "collector.social")
	defer span.End()

	var posts []domain.RawPost
	redditPosts, err := c.reddit.FetchMentions(ctx, c.subreddits, []string{symbol}, c.maxPosts)
	if err != nil {
		log.Printf("Warning: reddit mentions for %s unavailable: %v", symbol, err)
	} else {
		posts = append(posts, redditPosts...)
	}
	twitsPosts, err := c.stocktwits.FetchSymbolStream(ctx, symbol, c.maxPosts)
	if err != nil {
		log.Printf("Warning: stocktwits stream for %s unavailable: %v", symbol, err)
	} else {
		posts = append(posts, twitsPosts...)
	}

	if len(posts) == 0 {
		return nil, fmt.Errorf("social posts for %s: %w", symbol, ErrInsufficientData)
	}

	texts := make([]string, 0, len(posts))
	for _, post := range posts {
		texts = append(texts, formatPost(post))
	}

	score, err := c.judge.ScoreTexts(ctx, symbol, texts)
	if err != nil {
		return nil, fmt.Errorf("judge social posts for %s: %w", symbol, err)
	}

	return &domain.SignalReading{
		Source:     domain.SourceSocial,
		Score:      clamp(score, 0, 1),
		Confidence: math.Min(float64(len(posts))/20.0, 1.0),
		DataPoints: len(posts),
	}, nil
}

// formatPost renders one post with its engagement context so the judge
// can weigh widely-seen posts more heavily.
func formatPost(post domain.RawPost) string {
	switch {
	case post.Sentiment != "":
		return fmt.Sprintf("[%s, tagged %s] %s", post.Source, post.Sentiment, post.Content)
	case post.Content != "":
		return fmt.Sprintf("[%s, score=%d comments=%d] %s | %s", post.Source, post.Score, post.Comments, post.Title, post.Content)
	default:
		return fmt.Sprintf("[%s, score=%d comments=%d] %s", post.Source, post.Score, post.Comments, post.Title)
	}
}

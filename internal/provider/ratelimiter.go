package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by the outbound API providers.
// Each provider sizes its own bucket to the upstream's documented or
// observed limits.
type RateLimiter struct {
	mu             sync.Mutex
	tokens         int
	maxTokens      int
	refillInterval time.Duration
	lastRefill     time.Time
}

// NewRateLimiter creates a limiter that starts full and regains one
// token every refillInterval, up to maxTokens.
func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.refillInterval):
		}
	}
}

func (r *RateLimiter) take() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastRefill)
	if refilled := int(elapsed / r.refillInterval); refilled > 0 {
		r.tokens += refilled
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = r.lastRefill.Add(time.Duration(refilled) * r.refillInterval)
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

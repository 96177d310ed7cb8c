// Package ratelimit provides the token-bucket, sliding-window, keyed, and
// throttling primitives used across channel plugins and the agent loop to
// bound outbound call rates.
package ratelimit

import (
	"sync"
	"time"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// TokenBucket refills lazily: on each operation it computes elapsed time
// since the last refill and adds tokens proportional to the refill rate,
// clamped to the configured maximum.
type TokenBucket struct {
	mu         sync.Mutex
	max        float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket starting full at max tokens.
func NewTokenBucket(max, refillRatePerSecond float64) *TokenBucket {
	return &TokenBucket{
		max:        max,
		refillRate: refillRatePerSecond,
		tokens:     max,
		lastRefill: time.Now(),
	}
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * b.refillRate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	b.lastRefill = now
}

// TryAcquire attempts to consume one token.
func (b *TokenBucket) TryAcquire() convoymodel.RateLimitOutcome {
	return b.TryAcquireN(1)
}

// TryAcquireN attempts to consume n tokens at once.
func (b *TokenBucket) TryAcquireN(n float64) convoymodel.RateLimitOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())

	if b.tokens >= n {
		b.tokens -= n
		return convoymodel.RateLimitOutcome{
			Allowed:   true,
			Remaining: b.tokens,
			Limit:     b.max,
		}
	}

	deficit := n - b.tokens
	retryAfterMs := int64(0)
	if b.refillRate > 0 {
		retryAfterMs = int64(deficit / b.refillRate * 1000)
	}
	return convoymodel.RateLimitOutcome{
		Allowed:      false,
		RetryAfterMs: retryAfterMs,
		Remaining:    b.tokens,
		Limit:        b.max,
	}
}

// Tokens returns the current token count after a lazy refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// Reset restores the bucket to full.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.max
	b.lastRefill = time.Now()
}

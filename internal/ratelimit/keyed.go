package ratelimit

import (
	"sync"
	"time"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// LimiterKind selects which primitive a KeyedLimiter instantiates per key.
type LimiterKind int

const (
	KindTokenBucket LimiterKind = iota
	KindSlidingWindow
)

type keyedEntry struct {
	bucket       *TokenBucket
	window       *SlidingWindow
	lastActivity time.Time
}

// KeyedLimiter lazily instantiates one TokenBucket or SlidingWindow per key
// on first access, and supports cleaning up entries that have gone idle
// for longer than a caller-chosen age (LRU-by-age).
type KeyedLimiter struct {
	mu   sync.Mutex
	kind LimiterKind

	// Token-bucket construction params.
	max        float64
	refillRate float64

	// Sliding-window construction params.
	windowMax int
	windowMs  int64

	entries map[string]*keyedEntry
}

// NewKeyedTokenBucketLimiter builds a KeyedLimiter whose per-key primitive
// is a TokenBucket(max, refillRatePerSecond).
func NewKeyedTokenBucketLimiter(max, refillRatePerSecond float64) *KeyedLimiter {
	return &KeyedLimiter{
		kind:       KindTokenBucket,
		max:        max,
		refillRate: refillRatePerSecond,
		entries:    make(map[string]*keyedEntry),
	}
}

// NewKeyedSlidingWindowLimiter builds a KeyedLimiter whose per-key
// primitive is a SlidingWindow(max, windowMs).
func NewKeyedSlidingWindowLimiter(max int, windowMs int64) *KeyedLimiter {
	return &KeyedLimiter{
		kind:      KindSlidingWindow,
		windowMax: max,
		windowMs:  windowMs,
		entries:   make(map[string]*keyedEntry),
	}
}

func (k *KeyedLimiter) getOrCreateLocked(key string) *keyedEntry {
	e, ok := k.entries[key]
	if ok {
		return e
	}
	e = &keyedEntry{}
	switch k.kind {
	case KindTokenBucket:
		e.bucket = NewTokenBucket(k.max, k.refillRate)
	case KindSlidingWindow:
		e.window = NewSlidingWindow(k.windowMax, k.windowMs)
	}
	k.entries[key] = e
	return e
}

// Check performs try_acquire against the per-key primitive, creating it if
// this is the first call for key.
func (k *KeyedLimiter) Check(key string) convoymodel.RateLimitOutcome {
	k.mu.Lock()
	e := k.getOrCreateLocked(key)
	e.lastActivity = time.Now()
	k.mu.Unlock()

	switch k.kind {
	case KindTokenBucket:
		return e.bucket.TryAcquire()
	default:
		return e.window.TryAcquire()
	}
}

// Reset clears the per-key primitive for key, if any.
func (k *KeyedLimiter) Reset(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

// ResetAll clears every key.
func (k *KeyedLimiter) ResetAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries = make(map[string]*keyedEntry)
}

// Cleanup drops entries whose lastActivity is older than maxAge, returning
// the number removed. A no-op (returns 0) when there is no history at all.
func (k *KeyedLimiter) Cleanup(maxAge time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.entries) == 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, e := range k.entries {
		if e.lastActivity.Before(cutoff) {
			delete(k.entries, key)
			removed++
		}
	}
	return removed
}

// KeyCount returns the number of distinct keys currently tracked.
func (k *KeyedLimiter) KeyCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

package ratelimit

import (
	"sync"
	"time"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// SlidingWindow allows up to max operations within a trailing window of
// windowMs milliseconds, evicting stale timestamps on every call.
type SlidingWindow struct {
	mu         sync.Mutex
	max        int
	windowMs   int64
	timestamps []int64 // unix ms, ascending
}

// NewSlidingWindow creates a window limiter.
func NewSlidingWindow(max int, windowMs int64) *SlidingWindow {
	return &SlidingWindow{max: max, windowMs: windowMs}
}

func (w *SlidingWindow) evictLocked(nowMs int64) {
	cutoff := nowMs - w.windowMs
	i := 0
	for i < len(w.timestamps) && w.timestamps[i] <= cutoff {
		i++
	}
	if i > 0 {
		w.timestamps = w.timestamps[i:]
	}
}

// TryAcquire records now iff fewer than max timestamps remain in the
// window; otherwise it denies with retry_after_ms computed from the oldest
// surviving timestamp.
func (w *SlidingWindow) TryAcquire() convoymodel.RateLimitOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UnixMilli()
	w.evictLocked(now)

	if len(w.timestamps) < w.max {
		w.timestamps = append(w.timestamps, now)
		return convoymodel.RateLimitOutcome{
			Allowed:   true,
			Remaining: float64(w.max - len(w.timestamps)),
			Limit:     float64(w.max),
		}
	}

	oldest := w.timestamps[0]
	retryAfter := oldest + w.windowMs - now
	if retryAfter < 0 {
		retryAfter = 0
	}
	return convoymodel.RateLimitOutcome{
		Allowed:      false,
		RetryAfterMs: retryAfter,
		Remaining:    0,
		Limit:        float64(w.max),
	}
}

// CurrentCount returns the number of timestamps currently inside the
// window.
func (w *SlidingWindow) CurrentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(time.Now().UnixMilli())
	return len(w.timestamps)
}

// Reset clears all recorded timestamps. A no-op on an already-empty window.
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = nil
}

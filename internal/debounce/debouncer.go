// Package debounce guards the message handler against re-processing the
// same inbound message id twice within a short window, to tolerate
// transport-level delivery retries.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the default debounce window for inbound message ids.
const DefaultWindow = 5 * time.Second

// Debouncer tracks recently-seen message ids and reports whether a given id
// should be processed (first sighting) or dropped (duplicate within the
// window).
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// New builds a Debouncer with the given window. A non-positive window
// disables deduplication (every id is treated as new).
func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window, seen: make(map[string]time.Time)}
}

// ShouldProcess reports whether id has not been seen within the current
// window, recording it as seen if so.
func (d *Debouncer) ShouldProcess(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.window <= 0 {
		d.seen[id] = now
		return true
	}

	if last, ok := d.seen[id]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[id] = now
	return true
}

// SetWindow changes the debounce window.
func (d *Debouncer) SetWindow(window time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = window
}

// Cleanup drops entries older than the current window, returning the
// number removed. A no-op on an empty debouncer.
func (d *Debouncer) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) == 0 {
		return 0
	}
	cutoff := time.Now().Add(-d.window)
	removed := 0
	for id, last := range d.seen {
		if last.Before(cutoff) {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

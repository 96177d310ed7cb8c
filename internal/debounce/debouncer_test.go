package debounce

import (
	"testing"
	"time"
)

func TestShouldProcessDeduplicatesWithinWindow(t *testing.T) {
	d := New(30 * time.Millisecond)

	if !d.ShouldProcess("m1") {
		t.Fatalf("first sighting should process")
	}
	if d.ShouldProcess("m1") {
		t.Fatalf("duplicate within window should not process")
	}

	time.Sleep(40 * time.Millisecond)
	if !d.ShouldProcess("m1") {
		t.Fatalf("sighting after window elapses should process again")
	}
}

func TestCleanupNoopWhenEmpty(t *testing.T) {
	d := New(DefaultWindow)
	if removed := d.Cleanup(); removed != 0 {
		t.Fatalf("cleanup on empty history must be a no-op, removed=%d", removed)
	}
}

func TestCleanupRemovesStaleEntries(t *testing.T) {
	d := New(20 * time.Millisecond)
	d.ShouldProcess("old")
	time.Sleep(30 * time.Millisecond)
	d.ShouldProcess("new")

	removed := d.Cleanup()
	if removed != 1 {
		t.Fatalf("expected 1 stale entry removed, got %d", removed)
	}
}

package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasksConcurrently(t *testing.T) {
	p := New(4, 16, nil)
	defer p.Shutdown()

	var wg sync.WaitGroup
	var count int32
	wg.Add(10)
	for i := 0; i < 10; i++ {
		p.Enqueue(func() {
			defer wg.Done()
			atomic.AddInt32(&count, 1)
		})
	}
	wg.Wait()

	if atomic.LoadInt32(&count) != 10 {
		t.Fatalf("expected 10 tasks to run, got %d", count)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(1, 4, nil)
	defer p.Shutdown()

	done := make(chan struct{})
	p.Enqueue(func() { panic("boom") })
	p.Enqueue(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not recover from panic and continue processing")
	}
}

func TestShutdownRejectsFurtherEnqueues(t *testing.T) {
	p := New(2, 4, nil)
	p.Shutdown()

	var ran int32
	p.Enqueue(func() { atomic.AddInt32(&ran, 1) })

	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("task enqueued after shutdown must not run")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(1, 1, nil)
	p.Shutdown()
	p.Shutdown() // must not panic on double-close
}

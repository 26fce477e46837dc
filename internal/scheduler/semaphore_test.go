package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(2)
	if sem.Capacity() != 2 {
		t.Fatalf("capacity = %d", sem.Capacity())
	}

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !sem.Acquire(context.Background()) {
				t.Error("acquire failed with live context")
				return
			}
			defer sem.Release()
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak.Load())
	}
}

func TestSemaphoreAcquireCancelled(t *testing.T) {
	sem := NewSemaphore(1)
	if !sem.Acquire(context.Background()) {
		t.Fatal("first acquire failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sem.Acquire(ctx) {
		t.Error("acquire succeeded on a cancelled context with no free slot")
	}

	sem.Release()
	if !sem.Acquire(context.Background()) {
		t.Error("acquire failed after release")
	}
}

func TestSemaphoreNilIsUnlimited(t *testing.T) {
	sem := NewSemaphore(0)
	if sem != nil {
		t.Fatal("expected nil semaphore for n <= 0")
	}
	if !sem.Acquire(context.Background()) {
		t.Error("nil semaphore should always admit")
	}
	sem.Release()
	if sem.Capacity() != 0 {
		t.Errorf("capacity = %d", sem.Capacity())
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Queue Creation Tests
// =============================================================================

func TestQueue_Create(t *testing.T) {
	q := NewQueue("normal", 4)
	defer q.Close()

	if q.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", q.Workers())
	}
	if q.Name() != "normal" {
		t.Errorf("Name() = %q, want %q", q.Name(), "normal")
	}
	if !q.IsRunning() {
		t.Error("Queue should be running after creation")
	}
}

func TestQueue_CreateZeroWorkers(t *testing.T) {
	q := NewQueue("q", 0)
	defer q.Close()

	if want := runtime.GOMAXPROCS(0); q.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", q.Workers(), want)
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestQueue_SubmitSignalsFence(t *testing.T) {
	q := NewQueue("q", 2)
	defer q.Close()

	errBoom := errors.New("boom")
	ok := q.Submit(func(int) error { return nil })
	bad := q.Submit(func(int) error { return errBoom })

	if err := ok.Wait(context.Background()); err != nil {
		t.Errorf("ok.Wait() = %v, want nil", err)
	}
	if err := bad.Wait(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("bad.Wait() = %v, want %v", err, errBoom)
	}
	if !bad.IsSignalled() || !errors.Is(bad.Err(), errBoom) {
		t.Error("fence should stay signalled with the job error")
	}
}

func TestQueue_WorkerIndexInRange(t *testing.T) {
	q := NewQueue("q", 3)
	defer q.Close()

	var bad atomic.Int32
	fences := make([]*Fence, 100)
	for i := range fences {
		fences[i] = q.Submit(func(worker int) error {
			if worker < 0 || worker >= 3 {
				bad.Add(1)
			}
			return nil
		})
	}
	for _, f := range fences {
		_ = f.Wait(context.Background())
	}
	if bad.Load() != 0 {
		t.Errorf("%d jobs saw a worker index outside [0, 3)", bad.Load())
	}
}

func TestQueue_PerWorkerStateIsExclusive(t *testing.T) {
	q := NewQueue("q", 4)
	defer q.Close()

	busy := make([]atomic.Bool, 4)
	var overlap atomic.Int32
	fences := make([]*Fence, 200)
	for i := range fences {
		fences[i] = q.Submit(func(worker int) error {
			if !busy[worker].CompareAndSwap(false, true) {
				overlap.Add(1)
			}
			time.Sleep(10 * time.Microsecond)
			busy[worker].Store(false)
			return nil
		})
	}
	for _, f := range fences {
		_ = f.Wait(context.Background())
	}
	if overlap.Load() != 0 {
		t.Errorf("%d jobs ran concurrently on one worker", overlap.Load())
	}
}

func TestQueue_SubmitNil(t *testing.T) {
	q := NewQueue("q", 1)
	defer q.Close()

	if f := q.Submit(nil); !f.IsSignalled() || f.Err() != nil {
		t.Error("Submit(nil) should return a signalled fence")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestQueue_CloseRunsQueuedWork(t *testing.T) {
	q := NewQueue("q", 2)

	var counter atomic.Int64
	for range 50 {
		q.Submit(func(int) error {
			time.Sleep(time.Microsecond)
			counter.Add(1)
			return nil
		})
	}
	q.Close()

	if counter.Load() != 50 {
		t.Errorf("counter = %d, want 50", counter.Load())
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d after Close, want 0", q.Pending())
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q := NewQueue("q", 2)
	q.Close()
	q.Close()
	if q.IsRunning() {
		t.Error("queue should not be running after Close")
	}
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := NewQueue("q", 2)
	q.Close()

	f := q.Submit(func(int) error {
		t.Error("job ran after Close")
		return nil
	})
	if err := f.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() = %v, want ErrClosed", err)
	}
}

func TestQueue_ConcurrentSubmitAndClose(t *testing.T) {
	q := NewQueue("q", 4)

	var wg sync.WaitGroup
	fences := make(chan *Fence, 400)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				fences <- q.Submit(func(int) error { return nil })
			}
		}()
	}
	time.Sleep(time.Millisecond)
	q.Close()
	wg.Wait()
	close(fences)

	// Every fence signals: either the job ran or it was refused.
	for f := range fences {
		select {
		case <-f.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("fence never signalled")
		}
	}
}

// =============================================================================
// Fence Tests
// =============================================================================

func TestFence_WaitCanceled(t *testing.T) {
	f := NewFence()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if f.IsSignalled() {
		t.Error("canceled wait must not signal the fence")
	}
	if f.Err() != nil {
		t.Errorf("Err() = %v on a pending fence, want nil", f.Err())
	}
}

func TestFence_FirstSignalWins(t *testing.T) {
	first := errors.New("first")
	f := NewFence()
	f.Signal(first)
	f.Signal(errors.New("second"))
	if !errors.Is(f.Err(), first) {
		t.Errorf("Err() = %v, want %v", f.Err(), first)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkQueue_Submit(b *testing.B) {
	q := NewQueue("bench", 4)
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Submit(func(int) error { return nil }).Wait(context.Background())
	}
}

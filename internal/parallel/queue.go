// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is the fence error of jobs submitted to a closed queue.
var ErrClosed = errors.New("parallel: queue closed")

// Job is a unit of work. Worker is the index of the goroutine running it,
// in [0, Workers()), so a job can use per-worker state without locking.
type Job func(worker int) error

type task struct {
	fn    Job
	fence *Fence
}

// Queue is a pool of goroutines running compile jobs.
//
// Each worker has its own queue and steals from the others when its queue
// is empty. Jobs run in parallel up to the worker count; no order between
// jobs is guaranteed. A started job always runs to completion.
//
// Thread safety: Queue is safe for concurrent use.
type Queue struct {
	name    string
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan task

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// closeMu orders Submit against Close so that no task is queued after
	// the workers drained.
	closeMu sync.RWMutex
	running atomic.Bool
	pending atomic.Int64
}

// NewQueue creates a queue with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewQueue(name string, workers int) *Queue {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	q := &Queue{
		name:       name,
		workers:    workers,
		workQueues: make([]chan task, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		q.workQueues[i] = make(chan task, queueSize)
	}
	q.running.Store(true)

	q.wg.Add(workers)
	for i := range workers {
		go q.worker(i)
	}
	return q
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	myQueue := q.workQueues[id]
	for {
		select {
		case <-q.done:
			q.drain(id, myQueue)
			return
		case t := <-myQueue:
			q.run(id, t)
		default:
			if t, ok := q.steal(id); ok {
				q.run(id, t)
				continue
			}
			select {
			case <-q.done:
				q.drain(id, myQueue)
				return
			case t := <-myQueue:
				q.run(id, t)
			}
		}
	}
}

func (q *Queue) run(id int, t task) {
	defer q.pending.Add(-1)
	t.fence.Signal(t.fn(id))
}

// drain runs all remaining work of a queue.
func (q *Queue) drain(id int, queue chan task) {
	for {
		select {
		case t := <-queue:
			q.run(id, t)
		default:
			return
		}
	}
}

// steal takes work from another worker's queue.
func (q *Queue) steal(myID int) (task, bool) {
	for i := range q.workers {
		if i == myID {
			continue
		}
		select {
		case t := <-q.workQueues[i]:
			return t, true
		default:
		}
	}
	return task{}, false
}

// Submit queues fn on the worker with the shortest queue and returns the
// fence fn's result is signalled on. Submit blocks while every queue is
// full. On a closed queue the fence is signalled with ErrClosed.
func (q *Queue) Submit(fn Job) *Fence {
	if fn == nil {
		return SignalledFence(nil)
	}
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if !q.running.Load() {
		return SignalledFence(ErrClosed)
	}

	minIdx, minLen := 0, len(q.workQueues[0])
	for i := 1; i < q.workers; i++ {
		if n := len(q.workQueues[i]); n < minLen {
			minLen, minIdx = n, i
		}
	}

	f := NewFence()
	q.pending.Add(1)
	q.workQueues[minIdx] <- task{fn: fn, fence: f}
	return f
}

// Close stops accepting work, runs everything already queued and stops
// the workers. Close is safe to call multiple times.
func (q *Queue) Close() {
	q.closeMu.Lock()
	if !q.running.CompareAndSwap(true, false) {
		q.closeMu.Unlock()
		return
	}
	close(q.done)
	q.closeMu.Unlock()

	q.wg.Wait()
}

// Name returns the queue name given to NewQueue.
func (q *Queue) Name() string { return q.name }

// Workers returns the number of workers.
func (q *Queue) Workers() int { return q.workers }

// IsRunning returns true if the queue is still accepting work.
func (q *Queue) IsRunning() bool { return q.running.Load() }

// Pending returns the number of jobs submitted and not yet finished.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

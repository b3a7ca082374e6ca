// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"context"
	"sync"
)

// Fence is a one-shot completion signal carrying the job's error.
//
// The first Signal wins; later calls are ignored. Fence is safe for
// concurrent use.
type Fence struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewFence returns an unsignalled fence.
func NewFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// SignalledFence returns a fence already signalled with err.
func SignalledFence(err error) *Fence {
	f := NewFence()
	f.Signal(err)
	return f
}

// Signal marks the fence complete.
func (f *Fence) Signal(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the fence is signalled.
func (f *Fence) Done() <-chan struct{} { return f.done }

// IsSignalled reports whether the fence is signalled. It never blocks.
func (f *Fence) IsSignalled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error the fence was signalled with, or nil while it is
// pending.
func (f *Fence) Err() error {
	if !f.IsSignalled() {
		return nil
	}
	return f.err
}

// Wait blocks until the fence is signalled or ctx is done. Canceling ctx
// stops the wait, not the job.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

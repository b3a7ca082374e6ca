// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package partcache provides the interning table behind the shader part
// cache: an append-only map from sub-key to value where each missing
// value is built at most once concurrently.
package partcache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Mode selects how builds of missing entries are serialized.
type Mode uint8

const (
	// Serialized holds the table's build lock for the whole build, so
	// one table builds one entry at a time.
	Serialized Mode = iota
	// PerKey marks a missing key as in flight and builds it without the
	// table lock. Different keys build in parallel; callers asking for a
	// key in flight wait for it.
	PerKey
)

func (m Mode) String() string {
	if m == PerKey {
		return "per-key"
	}
	return "serialized"
}

// Table is a thread-safe append-only interning table.
//
// Entries are never removed or replaced. A failed build stores nothing,
// so a later call for the same key builds again.
//
// Table must not be copied after creation (has mutex).
type Table[K comparable, V any] struct {
	mode Mode

	mu       sync.RWMutex
	entries  map[K]V
	inflight map[K]*flight

	// sem is the build lock of Serialized mode. A channel so that waiting
	// for it honors context cancellation.
	sem chan struct{}

	hits     atomic.Uint64
	builds   atomic.Uint64
	failures atomic.Uint64
}

type flight struct {
	done chan struct{}
}

// New creates an empty table.
func New[K comparable, V any](mode Mode) *Table[K, V] {
	return &Table[K, V]{
		mode:     mode,
		entries:  make(map[K]V),
		inflight: make(map[K]*flight),
		sem:      make(chan struct{}, 1),
	}
}

// Mode returns the build mode of the table.
func (t *Table[K, V]) Mode() Mode { return t.mode }

// Get returns the entry for key without building it.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// GetOrBuild returns the entry for key, calling build if there is none.
// On a hit build is not called. The context bounds only the wait for the
// build lock or for another caller's build; a build that started runs to
// completion.
func (t *Table[K, V]) GetOrBuild(ctx context.Context, key K, build func() (V, error)) (V, error) {
	if v, ok := t.Get(key); ok {
		t.hits.Add(1)
		return v, nil
	}
	if t.mode == PerKey {
		return t.buildPerKey(ctx, key, build)
	}
	return t.buildSerialized(ctx, key, build)
}

func (t *Table[K, V]) buildSerialized(ctx context.Context, key K, build func() (V, error)) (V, error) {
	var zero V
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-t.sem }()

	// Built by the previous holder of the lock.
	if v, ok := t.Get(key); ok {
		t.hits.Add(1)
		return v, nil
	}
	return t.run(key, build)
}

func (t *Table[K, V]) buildPerKey(ctx context.Context, key K, build func() (V, error)) (V, error) {
	var zero V
	for {
		t.mu.Lock()
		if v, ok := t.entries[key]; ok {
			t.mu.Unlock()
			t.hits.Add(1)
			return v, nil
		}
		f, busy := t.inflight[key]
		if !busy {
			f = &flight{done: make(chan struct{})}
			t.inflight[key] = f
			t.mu.Unlock()

			v, err := t.run(key, build)

			t.mu.Lock()
			delete(t.inflight, key)
			t.mu.Unlock()
			close(f.done)
			return v, err
		}
		t.mu.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		// A failed flight leaves nothing behind; the loop builds again.
	}
}

// run calls build and publishes a successful result.
func (t *Table[K, V]) run(key K, build func() (V, error)) (V, error) {
	v, err := build()
	if err != nil {
		t.failures.Add(1)
		var zero V
		return zero, err
	}
	t.builds.Add(1)
	t.mu.Lock()
	t.entries[key] = v
	t.mu.Unlock()
	return v, nil
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Range calls fn for every entry until fn returns false. The table is
// read-locked during the call; fn must not build.
func (t *Table[K, V]) Range(fn func(K, V) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Stats returns table statistics.
func (t *Table[K, V]) Stats() Stats {
	return Stats{
		Entries:  t.Len(),
		Hits:     t.hits.Load(),
		Builds:   t.builds.Load(),
		Failures: t.failures.Load(),
	}
}

// Stats contains table statistics.
type Stats struct {
	// Entries is the current number of entries.
	Entries int
	// Hits counts calls answered without a build.
	Hits uint64
	// Builds counts successful builds.
	Builds uint64
	// Failures counts failed builds.
	Failures uint64
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

// entry is a cached value linked into its shard's LRU ring.
type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

// lruList is a circular doubly-linked list with a sentinel root. The
// front is the most recently used entry. Not thread-safe.
type lruList[K comparable, V any] struct {
	root entry[K, V]
	len  int
}

func (l *lruList[K, V]) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
}

func (l *lruList[K, V]) pushFront(key K, value V) *entry[K, V] {
	e := &entry[K, V]{key: key, value: value}
	l.insertAfter(e, &l.root)
	l.len++
	return e
}

func (l *lruList[K, V]) insertAfter(e, at *entry[K, V]) {
	e.prev = at
	e.next = at.next
	at.next.prev = e
	at.next = e
}

func (l *lruList[K, V]) moveToFront(e *entry[K, V]) {
	if l.root.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	l.insertAfter(e, &l.root)
}

func (l *lruList[K, V]) remove(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	l.len--
}

// back returns the least recently used entry, or nil.
func (l *lruList[K, V]) back() *entry[K, V] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache holds compiled main bodies keyed by IR content.
//
// A Screen shares one BinaryCache between all of its selectors, so two
// shader objects created from the same source compile once:
//
//	c := cache.NewBinaryCache(0)
//	if bin, ok := c.Get(key); ok {
//		return bin
//	}
//
// BinaryCache is a ShardedCache: 16 shards with their own lock and LRU
// order, and atomic hit, miss and eviction counters.
//
// # Thread Safety
//
// ShardedCache is safe for concurrent use and must not be copied after
// creation.
package cache

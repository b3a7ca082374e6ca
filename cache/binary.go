// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"encoding/binary"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// BinaryKey identifies a compiled main body by content: two selectors
// whose IR hashes are equal share one binary.
type BinaryKey struct {
	IR       [32]byte
	Stage    abi.Stage
	Kind     backend.Kind
	WaveSize uint8
	Chip     string
	Spec     backend.MainSpec
}

// HashBinaryKey returns the leading IR hash bytes. The IR hash is
// uniformly distributed, so it is enough to pick a shard.
func HashBinaryKey(k BinaryKey) uint64 {
	return binary.LittleEndian.Uint64(k.IR[:8]) ^ uint64(k.Stage)<<56 ^ uint64(k.Kind)<<48
}

// BinaryCache caches compiled main bodies by BinaryKey.
type BinaryCache = ShardedCache[BinaryKey, *backend.Binary]

// NewBinaryCache returns a cache holding up to capacity binaries per shard.
func NewBinaryCache(capacity int) *BinaryCache {
	return NewSharded[BinaryKey, *backend.Binary](capacity, HashBinaryKey)
}

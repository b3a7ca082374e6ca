// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

func intHasher(i int) uint64 { return uint64(i) * 0x9e3779b97f4a7c15 }

// =============================================================================
// ShardedCache
// =============================================================================

func TestNewSharded(t *testing.T) {
	c := NewSharded[int, int](100, intHasher)
	if c.Capacity() != 100 {
		t.Errorf("Capacity() = %d, want 100", c.Capacity())
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if d := NewSharded[int, int](0, intHasher); d.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", d.Capacity(), DefaultCapacity)
	}
}

func TestShardedCacheGetSet(t *testing.T) {
	c := NewSharded[int, string](10, intHasher)
	c.Set(1, "one")

	if v, ok := c.Get(1); !ok || v != "one" {
		t.Errorf("Get(1) = %q, %t, want one, true", v, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Error("Get(2) found a missing key")
	}
	c.Set(1, "uno")
	if v, _ := c.Get(1); v != "uno" {
		t.Errorf("Get(1) after update = %q, want uno", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestShardedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// One shard in use: every key hashes to 0.
	c := NewSharded[int, int](2, func(int) uint64 { return 0 })
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Set(3, 3)

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("key 1 was used last and should stay")
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", st.Evictions)
	}
}

func TestShardedCacheDeleteClear(t *testing.T) {
	c := NewSharded[int, int](10, intHasher)
	for i := range 20 {
		c.Set(i, i)
	}
	if !c.Delete(3) || c.Delete(3) {
		t.Error("Delete(3) should succeed once")
	}
	if c.Len() != 19 {
		t.Errorf("Len() = %d, want 19", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	c.Set(5, 5)
	if v, ok := c.Get(5); !ok || v != 5 {
		t.Error("cache unusable after Clear")
	}
}

func TestShardedCacheStats(t *testing.T) {
	c := NewSharded[int, int](10, intHasher)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Get(1)
	c.Get(99)

	st := c.Stats()
	if st.Len != 2 || st.Hits != 2 || st.Misses != 1 {
		t.Errorf("Stats() = %+v, want Len=2 Hits=2 Misses=1", st)
	}
	if st.HitRate < 0.66 || st.HitRate > 0.67 {
		t.Errorf("HitRate = %f, want 2/3", st.HitRate)
	}
	if st.TotalCapacity != 10*DefaultShardCount {
		t.Errorf("TotalCapacity = %d, want %d", st.TotalCapacity, 10*DefaultShardCount)
	}
}

func TestShardedCacheConcurrent(t *testing.T) {
	c := NewSharded[int, int](100, intHasher)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				c.Set(i*100+j, j)
				c.Get(i*100 + j/2)
			}
		}()
	}
	wg.Wait()
	if c.Len() == 0 || c.Len() > 100*DefaultShardCount {
		t.Errorf("Len() = %d out of range", c.Len())
	}
}

// =============================================================================
// BinaryCache
// =============================================================================

func TestBinaryCacheKeysByContent(t *testing.T) {
	c := NewBinaryCache(0)
	key := BinaryKey{Stage: abi.StageFragment, Chip: "navi10", WaveSize: 64}
	key.IR[0] = 0xab
	bin := &backend.Binary{Code: []byte{1, 2, 3, 4}}
	c.Set(key, bin)

	same := key
	if got, ok := c.Get(same); !ok || got != bin {
		t.Error("equal key missed")
	}

	other := key
	other.Spec.AsNGG = true
	if _, ok := c.Get(other); ok {
		t.Error("key with different spec hit")
	}
	otherChip := key
	otherChip.Chip = "vega10"
	if _, ok := c.Get(otherChip); ok {
		t.Error("key for another chip hit")
	}
}

func TestHashBinaryKeyStable(t *testing.T) {
	var k BinaryKey
	copy(k.IR[:], "0123456789abcdef0123456789abcdef")
	if HashBinaryKey(k) != HashBinaryKey(k) {
		t.Error("hash not deterministic")
	}
	k2 := k
	k2.Stage = abi.StageVertex
	k.Stage = abi.StageFragment
	if HashBinaryKey(k) == HashBinaryKey(k2) {
		t.Error("stage does not affect the hash")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkShardedCacheGet(b *testing.B) {
	c := NewSharded[string, int](100, func(s string) uint64 {
		n, _ := strconv.Atoi(s)
		return uint64(n)
	})
	for i := range 100 {
		c.Set(strconv.Itoa(i), i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("50")
	}
}

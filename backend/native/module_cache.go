// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/spirv"
)

// ModuleCache caches SPIR-V compiled from generated WGSL.
//
// Prologs and epilogs with equal keys generate equal WGSL, and separate
// compilers for one chip generate the same text again. The cache is keyed
// by an FNV-1a hash of the text and checked again under the write lock,
// so concurrent misses on one text compile it once.
//
// ModuleCache is safe for concurrent use.
type ModuleCache struct {
	mu      sync.RWMutex
	modules map[uint64]cachedModule

	// hits and misses are read without the lock.
	hits   atomic.Uint64
	misses atomic.Uint64
}

type cachedModule struct {
	source string
	code   []byte
}

// NewModuleCache returns an empty cache.
func NewModuleCache() *ModuleCache {
	return &ModuleCache{modules: make(map[uint64]cachedModule)}
}

// GetOrCompile returns the SPIR-V of src, compiling it on a miss.
// Compile errors are not cached.
func (c *ModuleCache) GetOrCompile(src string) ([]byte, error) {
	key := hashSource(src)

	// Fast path: read lock
	c.mu.RLock()
	if m, ok := c.modules[key]; ok && m.source == src {
		c.mu.RUnlock()
		c.hits.Add(1)
		return m.code, nil
	}
	c.mu.RUnlock()

	// Slow path: write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[key]; ok && m.source == src {
		c.hits.Add(1)
		return m.code, nil
	}

	code, err := compileWGSL(src)
	if err != nil {
		return nil, err
	}
	c.modules[key] = cachedModule{source: src, code: code}
	c.misses.Add(1)
	return code, nil
}

// Stats returns the number of cache hits and misses.
func (c *ModuleCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// HitRate returns hits over lookups, or zero before the first lookup.
func (c *ModuleCache) HitRate() float64 {
	hits, misses := c.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Size returns the number of cached modules.
func (c *ModuleCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Clear removes every module and resets the statistics.
func (c *ModuleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules = make(map[uint64]cachedModule)
	c.hits.Store(0)
	c.misses.Store(0)
}

func hashSource(src string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(src))
	return h.Sum64()
}

// compileWGSL runs the full naga pipeline on generated text.
func compileWGSL(src string) ([]byte, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, err
	}
	if err := validate(module); err != nil {
		return nil, err
	}
	return naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
	"github.com/gogpu/variant/internal/partcache"
)

// Part is a compiled prolog or epilog. Parts are immutable and owned by
// the PartCache that built them; shaders only reference them.
type Part struct {
	Key    abi.PartKey
	Binary *backend.Binary
	Layout *abi.Layout
}

// Name returns the segment name of the part in a linked image.
func (p *Part) Name() string { return p.Key.Kind.String() }

// PartCache interns compiled parts by sub-key, one table per part kind.
// Parts are never evicted while the cache lives.
type PartCache struct {
	tables [abi.NumPartKinds]*partcache.Table[abi.PartKey, *Part]
}

// NewPartCache returns an empty cache.
func NewPartCache(mode PartBuildMode) *PartCache {
	m := partcache.Serialized
	if mode == BuildPerKey {
		m = partcache.PerKey
	}
	c := &PartCache{}
	for i := range c.tables {
		c.tables[i] = partcache.New[abi.PartKey, *Part](m)
	}
	return c
}

// GetOrBuild returns the part for key, calling build on a miss. A failed
// build caches nothing.
func (c *PartCache) GetOrBuild(ctx context.Context, key abi.PartKey, build func() (*Part, error)) (*Part, error) {
	if key.Kind >= abi.NumPartKinds {
		return nil, ErrInvalidArgument
	}
	p, err := c.tables[key.Kind].GetOrBuild(ctx, key, build)
	if err != nil {
		return nil, err
	}
	Logger().Debug("variant: part", "key", key.Kind, "size", p.Binary.Size())
	return p, nil
}

// Lookup returns a cached part without building it.
func (c *PartCache) Lookup(key abi.PartKey) (*Part, bool) {
	if key.Kind >= abi.NumPartKinds {
		return nil, false
	}
	return c.tables[key.Kind].Get(key)
}

// Len returns the number of cached parts.
func (c *PartCache) Len() int {
	n := 0
	for _, t := range c.tables {
		n += t.Len()
	}
	return n
}

// PartStats are the statistics of one part kind.
type PartStats = partcache.Stats

// Stats returns per-kind statistics.
func (c *PartCache) Stats() [abi.NumPartKinds]PartStats {
	var st [abi.NumPartKinds]PartStats
	for i, t := range c.tables {
		st[i] = t.Stats()
	}
	return st
}

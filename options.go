// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"runtime"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// ScreenOption configures a Screen during creation.
//
// Example:
//
//	// Default: the highest priority registered backend, GFX10 limits
//	screen, err := variant.NewScreen()
//
//	// Explicit chip and worker count
//	screen, err := variant.NewScreen(
//	    variant.WithChip(abi.Vega10()),
//	    variant.WithWorkers(4),
//	)
type ScreenOption func(*screenOptions)

// PartBuildMode selects how the part cache serializes builds of missing
// parts.
type PartBuildMode uint8

const (
	// BuildSerialized builds one missing part per part kind at a time,
	// holding the kind's lock for the whole build.
	BuildSerialized PartBuildMode = iota
	// BuildPerKey builds different missing parts of one kind in parallel.
	// A part is still built at most once concurrently.
	BuildPerKey
)

func (m PartBuildMode) String() string {
	if m == BuildPerKey {
		return "per-key"
	}
	return "serialized"
}

// screenOptions holds optional configuration for Screen creation.
type screenOptions struct {
	chip           abi.Chip
	backend        backend.Backend
	provider       backend.IRProvider
	uploader       backend.Uploader
	workers        int
	partBuildMode  PartBuildMode
	passBadShaders bool
	forceMono      bool
	scratchBase    uint64
	binaryCapacity int
}

// defaultScreenOptions returns the default screen options.
func defaultScreenOptions() screenOptions {
	return screenOptions{
		chip:    abi.Navi10(),
		workers: defaultWorkers(),
	}
}

// defaultWorkers leaves one CPU to the caller and caps the pool at 16.
func defaultWorkers() int {
	return min(max(1, runtime.GOMAXPROCS(0)-1), 16)
}

// WithChip sets the GPU the screen compiles for.
func WithChip(c abi.Chip) ScreenOption {
	return func(o *screenOptions) {
		o.chip = c
	}
}

// WithBackend sets the code generation backend. Without it the screen
// uses backend.Default().
func WithBackend(b backend.Backend) ScreenOption {
	return func(o *screenOptions) {
		o.backend = b
	}
}

// WithIRProvider sets the IR provider. Without it the screen uses the
// backend if the backend implements backend.IRProvider.
func WithIRProvider(p backend.IRProvider) ScreenOption {
	return func(o *screenOptions) {
		o.provider = p
	}
}

// WithUploader sets where linked shaders are placed. Without it shaders
// are kept in host memory (upload.NewMemory).
func WithUploader(u backend.Uploader) ScreenOption {
	return func(o *screenOptions) {
		o.uploader = u
	}
}

// WithWorkers sets the number of compile workers of the normal priority
// queue. The low priority queue gets a quarter of them, at least one.
func WithWorkers(n int) ScreenOption {
	return func(o *screenOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPartBuildMode sets how the part cache serializes builds.
func WithPartBuildMode(m PartBuildMode) ScreenOption {
	return func(o *screenOptions) {
		o.partBuildMode = m
	}
}

// WithPassBadShaders downgrades backend failures from a panic to an error
// returned by Select.
func WithPassBadShaders(pass bool) ScreenOption {
	return func(o *screenOptions) {
		o.passBadShaders = pass
	}
}

// WithForceMonolithic compiles every variant as one function.
func WithForceMonolithic(force bool) ScreenOption {
	return func(o *screenOptions) {
		o.forceMono = force
	}
}

// WithScratchBase sets the GPU address of the scratch ring that scratch
// relocations resolve to.
func WithScratchBase(addr uint64) ScreenOption {
	return func(o *screenOptions) {
		o.scratchBase = addr
	}
}

// WithBinaryCacheCapacity sets the per-shard capacity of the main part
// binary cache.
func WithBinaryCacheCapacity(n int) ScreenOption {
	return func(o *screenOptions) {
		o.binaryCapacity = n
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package upload

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// Upload errors.
var (
	// ErrFreed is returned when an allocation is read after Free.
	ErrFreed = errors.New("upload: allocation freed")

	// ErrForeign is returned for an allocation made by another uploader.
	ErrForeign = errors.New("upload: allocation not owned by this uploader")

	// ErrOutOfMemory is returned when the address space is exhausted.
	ErrOutOfMemory = errors.New("upload: out of shader memory")

	// ErrNoDevice is returned when no HAL device can be found.
	ErrNoDevice = errors.New("upload: no HAL device")
)

// DefaultMemoryBase is the first address Memory hands out.
const DefaultMemoryBase uint64 = 0x1_0000_0000

// Memory is a backend.Uploader that keeps images in host memory.
//
// Addresses grow monotonically from the base and are never reused, so a
// stale address always fails to resolve instead of aliasing new code.
type Memory struct {
	mu    sync.Mutex
	next  uint64
	limit uint64
	live  map[uint64][]byte
	bytes uint64
}

// MemoryOption configures a Memory uploader.
type MemoryOption func(*Memory)

// WithAddressRange sets the address window allocations are carved from.
func WithAddressRange(base, size uint64) MemoryOption {
	return func(m *Memory) {
		m.next = abi.AlignUp(base, backend.SegmentAlign)
		m.limit = base + size
	}
}

// NewMemory returns a Memory uploader.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		next:  DefaultMemoryBase,
		limit: ^uint64(0),
		live:  make(map[uint64][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upload patches img and stores it at a fresh address.
func (m *Memory) Upload(ctx context.Context, img *backend.Image, resolve backend.Resolver) (*backend.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err := img.Bytes(resolve)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	size := max(uint64(len(code)), backend.SegmentAlign)
	if m.next+size < m.next || m.next+size > m.limit {
		return nil, ErrOutOfMemory
	}
	addr := m.next
	m.next = abi.AlignUp(addr+size, backend.SegmentAlign)
	m.live[addr] = code
	m.bytes += uint64(len(code))

	slogger().Debug("upload: memory", "addr", addr, "size", len(code), "segments", len(img.Segments))
	return &backend.Allocation{Address: addr, Size: uint32(len(code)), Handle: m}, nil
}

// Free releases a. Freeing twice is a no-op.
func (m *Memory) Free(a *backend.Allocation) {
	if a == nil || a.Handle != m {
		return
	}
	m.mu.Lock()
	if code, ok := m.live[a.Address]; ok {
		m.bytes -= uint64(len(code))
		delete(m.live, a.Address)
	}
	m.mu.Unlock()
}

// Read returns a copy of the uploaded code of a.
func (m *Memory) Read(a *backend.Allocation) ([]byte, error) {
	if a == nil || a.Handle != m {
		return nil, ErrForeign
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.live[a.Address]
	if !ok {
		return nil, ErrFreed
	}
	return append([]byte(nil), code...), nil
}

// Live returns the number of allocations and the bytes they hold.
func (m *Memory) Live() (allocations int, bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live), m.bytes
}

// SetLogger sets the upload package logger.
func (m *Memory) SetLogger(l *slog.Logger) { SetLogger(l) }

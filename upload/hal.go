// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// spirvHeaderWords is the size of the SPIR-V module header.
const spirvHeaderWords = 5

// HAL is a backend.Uploader that creates wgpu/hal shader modules.
//
// Each segment of an image holds one or more SPIR-V modules laid end to
// end; a fused monolithic segment holds one per fragment. HAL creates a
// shader module for each and frees them together.
type HAL struct {
	device hal.Device

	mu   sync.Mutex
	next uint64
	live map[*halAllocation]struct{}
}

// halAllocation is the Handle of an Allocation made by HAL.
type halAllocation struct {
	owner   *HAL
	modules []hal.ShaderModule
}

// NewHAL returns an uploader that creates modules on device.
func NewHAL(device hal.Device) *HAL {
	return &HAL{
		device: device,
		next:   DefaultMemoryBase,
		live:   make(map[*halAllocation]struct{}),
	}
}

// Upload patches img and creates its shader modules. If any module
// fails, the modules already created are destroyed.
func (h *HAL) Upload(ctx context.Context, img *backend.Image, resolve backend.Resolver) (*backend.Allocation, error) {
	code, err := img.Bytes(resolve)
	if err != nil {
		return nil, err
	}

	ha := &halAllocation{owner: h}
	for i, seg := range img.Segments {
		end := uint32(len(code))
		if i+1 < len(img.Segments) {
			end = img.Segments[i+1].Offset
		}
		end = min(end, seg.Offset+uint32(seg.Binary.Size()))
		for j, words := range SplitSPIRV(backend.Words(code[seg.Offset:end])) {
			if err := ctx.Err(); err != nil {
				h.destroy(ha)
				return nil, err
			}
			mod, err := h.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
				Label:  fmt.Sprintf("%s.%d", seg.Name, j),
				Source: hal.ShaderSource{SPIRV: words},
			})
			if err != nil {
				h.destroy(ha)
				return nil, fmt.Errorf("upload: segment %s: %w", seg.Name, err)
			}
			ha.modules = append(ha.modules, mod)
		}
	}

	h.mu.Lock()
	addr := h.next
	h.next = abi.AlignUp(addr+uint64(max(img.Size, backend.SegmentAlign)), backend.SegmentAlign)
	h.live[ha] = struct{}{}
	h.mu.Unlock()

	slogger().Debug("upload: hal", "addr", addr, "modules", len(ha.modules))
	return &backend.Allocation{Address: addr, Size: img.Size, Handle: ha}, nil
}

// Free destroys the shader modules of a. Freeing twice is a no-op.
func (h *HAL) Free(a *backend.Allocation) {
	if a == nil {
		return
	}
	ha, ok := a.Handle.(*halAllocation)
	if !ok || ha.owner != h {
		return
	}
	h.mu.Lock()
	_, live := h.live[ha]
	delete(h.live, ha)
	h.mu.Unlock()
	if live {
		h.destroy(ha)
	}
}

func (h *HAL) destroy(ha *halAllocation) {
	for _, m := range ha.modules {
		h.device.DestroyShaderModule(m)
	}
	ha.modules = nil
}

// Modules returns the number of shader modules of a, or zero once freed.
func (h *HAL) Modules(a *backend.Allocation) int {
	ha, ok := a.Handle.(*halAllocation)
	if !ok || ha.owner != h {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.live[ha]; !live {
		return 0
	}
	return len(ha.modules)
}

// Close destroys every live module. The device is not destroyed.
func (h *HAL) Close() {
	h.mu.Lock()
	live := h.live
	h.live = make(map[*halAllocation]struct{})
	h.mu.Unlock()
	for ha := range live {
		h.destroy(ha)
	}
}

// SetLogger sets the upload package logger.
func (h *HAL) SetLogger(l *slog.Logger) { SetLogger(l) }

// SplitSPIRV splits words into the SPIR-V modules laid end to end in it.
// A new module starts where an instruction boundary holds the magic
// number; zero words between modules are skipped. Words that do not
// start with the magic number are returned as one module.
func SplitSPIRV(words []uint32) [][]uint32 {
	if len(words) < spirvHeaderWords || words[0] != spirvMagic {
		if len(words) == 0 {
			return nil
		}
		return [][]uint32{words}
	}

	var modules [][]uint32
	start := 0
	i := spirvHeaderWords
	for i < len(words) {
		if words[i] == spirvMagic {
			modules = append(modules, words[start:i])
			start = i
			i += spirvHeaderWords
			continue
		}
		n := int(words[i] >> 16)
		if n == 0 {
			// Zero padding between modules.
			j := i
			for j < len(words) && words[j] == 0 {
				j++
			}
			modules = append(modules, words[start:i])
			start = j
			i = j + spirvHeaderWords
			continue
		}
		i += n
	}
	if start < len(words) {
		modules = append(modules, words[start:])
	}
	return modules
}

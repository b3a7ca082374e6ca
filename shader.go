// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
	"github.com/gogpu/variant/internal/parallel"
)

// ShaderInfo is metadata of a built variant consumed when binding it.
type ShaderInfo struct {
	// NumInputSGPRs and NumInputVGPRs are the registers the hardware
	// loads before the first instruction.
	NumInputSGPRs int
	NumInputVGPRs int

	// FaceVGPRIndex and AncillaryVGPRIndex locate fragment system values
	// among the input VGPRs, or -1.
	FaceVGPRIndex      int
	AncillaryVGPRIndex int

	NumParamExports int
	NumPosExports   int
	// OutputSlots maps an exported semantic to its parameter index.
	OutputSlots map[abi.Semantic]int

	UsesInstanceID   bool
	UsesBaseInstance bool
}

// Shader is one variant: a Selector compiled for one Key.
//
// A Shader is built exactly once. Until its fence is signalled only the
// key and selector may be read; afterwards it is immutable.
type Shader struct {
	sel   *Selector
	key   Key
	fence *parallel.Fence

	optimized bool

	// Set by the build.
	mono   bool
	binary *backend.Binary
	// Parts are owned by the screen's PartCache.
	prolog, prolog2, epilog *Part
	// previous is the main body of the first half of a merged stage.
	previous *backend.Binary
	config   abi.Config
	info     ShaderInfo
	image    *backend.Image

	freeOnce sync.Once
	alloc    *backend.Allocation
}

func newShader(sel *Selector, key Key, optimized bool) *Shader {
	return &Shader{sel: sel, key: key, optimized: optimized, fence: parallel.NewFence()}
}

// Key returns the key the variant was selected with.
func (sh *Shader) Key() Key { return sh.key }

// Selector returns the shader the variant was compiled from.
func (sh *Shader) Selector() *Selector { return sh.sel }

// Wait blocks until the variant is built and returns its build error.
func (sh *Shader) Wait(ctx context.Context) error { return sh.fence.Wait(ctx) }

// IsReady reports whether the variant was built successfully.
func (sh *Shader) IsReady() bool {
	return sh.fence.IsSignalled() && sh.fence.Err() == nil
}

// Monolithic reports whether the variant was compiled as one function.
func (sh *Shader) Monolithic() bool { return sh.mono }

// Optimized reports whether the variant carries optimization bits.
func (sh *Shader) Optimized() bool { return sh.optimized }

// Config returns the reconciled register configuration.
func (sh *Shader) Config() abi.Config { return sh.config }

// Info returns the binding metadata.
func (sh *Shader) Info() ShaderInfo { return sh.info }

// Binary returns the main body, or the whole code of a monolithic
// variant.
func (sh *Shader) Binary() *backend.Binary { return sh.binary }

// Image returns the linked segments.
func (sh *Shader) Image() *backend.Image { return sh.image }

// Address returns the GPU address of the entry point.
func (sh *Shader) Address() uint64 {
	if sh.alloc == nil {
		return 0
	}
	return sh.alloc.Address
}

// Parts returns the shared parts of a split variant in link order.
func (sh *Shader) Parts() []*Part {
	var parts []*Part
	for _, p := range []*Part{sh.prolog, sh.prolog2, sh.epilog} {
		if p != nil {
			parts = append(parts, p)
		}
	}
	return parts
}

// free releases the upload once.
func (sh *Shader) free(u backend.Uploader) {
	sh.freeOnce.Do(func() {
		if sh.alloc != nil && u != nil {
			u.Free(sh.alloc)
		}
	})
}

// String returns a one-line summary such as
// "ps fs_main split [ps_prolog main ps_epilog] sgprs=16 vgprs=24 ...".
func (sh *Shader) String() string {
	mode := "split"
	if sh.mono {
		mode = "mono"
	}
	var names []string
	if sh.image != nil {
		for _, s := range sh.image.Segments {
			names = append(names, s.Name)
		}
	}
	return fmt.Sprintf("%s %s %s [%s] %s", sh.sel.Stage(), sh.sel.label, mode,
		strings.Join(names, " "), sh.config)
}

// outputInfo fills the export counts of a stage that feeds the
// rasterizer.
func outputInfo(info *abi.Info, k Key, si *ShaderInfo) {
	switch info.Stage {
	case abi.StageVertex, abi.StageTessEval:
		if k.Flags.Has(AsLS) || (k.Flags.Has(AsES) && !k.Flags.Has(AsNGG)) {
			return
		}
	case abi.StageGeometry:
	default:
		return
	}

	si.OutputSlots = make(map[abi.Semantic]int)
	pos := 1
	misc := false
	for i, o := range info.Outputs {
		if o.UsageMask == 0 || (i < 64 && k.Opt.KillOutputs&(1<<uint(i)) != 0) {
			continue
		}
		switch o.Semantic {
		case abi.SemanticPosition, abi.SemanticClipDist0, abi.SemanticClipDist1,
			abi.SemanticTessOuter, abi.SemanticTessInner:
		case abi.SemanticPointSize:
			misc = misc || k.Opt.Flags&OptKillPointSize == 0
		case abi.SemanticLayer, abi.SemanticViewport:
			misc = true
		default:
			si.OutputSlots[o.Semantic] = si.NumParamExports
			si.NumParamExports++
		}
	}
	if k.Mono.Flags&MonoVSExportPrimID != 0 {
		si.OutputSlots[abi.SemanticPrimID] = si.NumParamExports
		si.NumParamExports++
	}
	if misc {
		pos++
	}
	clip := info.WritesClipDistance &^ k.Opt.KillClipDistances
	if clip&0x0f != 0 {
		pos++
	}
	if clip&0xf0 != 0 {
		pos++
	}
	si.NumPosExports = pos
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/variant/abi"
	"honnef.co/go/safeish"
)

// Key describes every axis a shader variant is specialized on.
//
// Key is a plain value with no padding bytes: two keys are equal exactly
// when their bytes are equal, so a Key can be compared with ==, used as a
// map key, or hashed through Bytes. The zero value of every field means
// "no effect", so a field added for a new axis does not change the
// meaning of existing keys.
type Key struct {
	// Opt holds optimization axes. A non-zero Opt makes the variant an
	// optimized, monolithic one.
	Opt OptBits
	// Mono holds axes only a monolithic compile can honor.
	Mono MonoBits
	// PrevStage is the first half of a merged stage: the LS selector of a
	// merged HS, or the ES selector of a merged GS.
	PrevStage SelectorID
	// Part holds the prolog and epilog bits.
	Part PartBits
	// Flags selects the hardware stage the shader runs as.
	Flags KeyFlags
}

// SelectorID identifies a Selector within its Screen. Zero means none.
type SelectorID uint64

// KeyFlags selects the hardware stage a VS or TES runs as.
type KeyFlags uint32

// Hardware stage flags.
const (
	AsES KeyFlags = 1 << iota
	AsLS
	AsNGG
)

// Has reports whether all bits of f are set.
func (k KeyFlags) Has(f KeyFlags) bool { return k&f == f }

// OptBits are optimization axes.
type OptBits struct {
	// KillOutputs removes exports of the given output slots.
	KillOutputs uint64
	// InlinedUniformValues replace the leading uniform dwords when
	// OptInlineUniforms is set.
	InlinedUniformValues [abi.MaxInlinableUniforms]uint32
	Flags                OptFlags
	// NGGCulling is a NGGCull* mask.
	NGGCulling uint8
	// KillClipDistances removes clip distance exports by mask.
	KillClipDistances uint8
	_                 [2]byte
}

// OptFlags are boolean optimization axes.
type OptFlags uint32

// Optimization flags.
const (
	OptKillPointSize OptFlags = 1 << iota
	// OptPreferMono asks for a monolithic compile without other changes.
	OptPreferMono
	OptInlineUniforms
	// OptSamePatchVertices means the HS input and output patch sizes
	// match, so LS outputs can be forwarded in VGPRs.
	OptSamePatchVertices
)

// NGG culling bits.
const (
	NGGCullEnabled uint8 = 1 << iota
	NGGCullFrontFace
	NGGCullBackFace
	NGGCullLines
)

// MonoBits are axes only a monolithic compile can honor.
type MonoBits struct {
	// FFTCSInputsToCopy lists VS outputs a fixed-function HS copies.
	FFTCSInputsToCopy uint64
	// VSFixFetch holds a per-attribute fetch fixup (see FixFetch*).
	VSFixFetch [16]uint8
	Flags      MonoFlags
	// VSFetchOpencode marks attributes fetched with an explicit opcode.
	VSFetchOpencode uint32
}

// MonoFlags are boolean monolithic-only axes.
type MonoFlags uint32

// Monolithic flags.
const (
	MonoVSExportPrimID MonoFlags = 1 << iota
)

// Vertex fetch fixups stored in MonoBits.VSFixFetch.
const (
	FixFetchNone uint8 = iota
	FixFetchA2Snorm
	FixFetchA2Sscaled
	FixFetchA2Sint
	FixFetchRGBA32Unorm
	FixFetchRGBX32Unorm
	FixFetchRGBA32Snorm
	FixFetchRGBX32Snorm
	FixFetchRGBA32Fixed
	FixFetchRGBX32Fixed
	FixFetchRGB8
	FixFetchRGB8Int
	FixFetchRGB16
	FixFetchRGB16Int
)

// PartBits hold the state prologs and epilogs are specialized on.
type PartBits struct {
	PSEpilog  abi.PSEpilogBits
	VSProlog  abi.VSPrologBits
	PSProlog  abi.PSPrologBits
	TCSEpilog abi.TCSEpilogBits
	GSProlog  abi.GSPrologBits
	_         [3]byte
}

// Bytes returns the key's memory as bytes. The slice aliases a copy.
func (k Key) Bytes() []byte {
	arr := [1]Key{k}
	return safeish.SliceCast[[]byte](arr[:])
}

// Hash returns the FNV-1a hash of the key bytes.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(k.Bytes()) // fnv.Write never returns an error
	return h.Sum64()
}

// IsZero reports whether no optimization axis is set.
func (o OptBits) IsZero() bool { return o == OptBits{} }

// IsZero reports whether no monolithic-only axis is set.
func (m MonoBits) IsZero() bool { return m == MonoBits{} }

// WithoutOpt returns the key with all optimization axes cleared. This is
// the key of the unoptimized variant an optimized one falls back to.
func (k Key) WithoutOpt() Key {
	k.Opt = OptBits{}
	return k
}

// clearInlinedUniforms disables uniform inlining.
func (k *Key) clearInlinedUniforms() {
	k.Opt.Flags &^= OptInlineUniforms
	k.Opt.InlinedUniformValues = [abi.MaxInlinableUniforms]uint32{}
}

// Validate rejects key combinations no compile can honor.
func (k Key) Validate(stage abi.Stage, chip abi.Chip) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s key: %s", ErrInvalidArgument, stage, fmt.Sprintf(format, args...))
	}
	if !stage.Valid() {
		return fmt.Errorf("%w: stage %d", ErrInvalidArgument, stage)
	}
	if k.Flags&^(AsES|AsLS|AsNGG) != 0 {
		return invalid("unknown flags %#x", uint32(k.Flags))
	}
	if k.Flags.Has(AsES) && k.Flags.Has(AsLS) {
		return invalid("as_es and as_ls are exclusive")
	}
	if k.Flags.Has(AsLS) && k.Flags.Has(AsNGG) {
		return invalid("as_ls and as_ngg are exclusive")
	}
	if k.Flags != 0 && stage != abi.StageVertex && stage != abi.StageTessEval &&
		!(stage == abi.StageGeometry && k.Flags == AsNGG) {
		return invalid("hardware stage flags on %s", stage)
	}
	if k.Flags.Has(AsLS) && stage != abi.StageVertex {
		return invalid("only a vertex shader runs as LS")
	}
	if k.Flags.Has(AsNGG) && !chip.HasNGG() {
		return invalid("as_ngg needs %s or later, chip is %s", abi.GFX10, chip.Gfx)
	}
	if k.Opt.NGGCulling != 0 {
		if !k.Flags.Has(AsNGG) || k.Flags.Has(AsES) {
			return invalid("ngg culling without a primitive shader")
		}
		if k.Opt.NGGCulling&NGGCullEnabled == 0 {
			return invalid("ngg culling bits %#x without enable", k.Opt.NGGCulling)
		}
	}
	if k.PrevStage != 0 {
		if !chip.HasMergedStages() {
			return invalid("previous stage on %s, which has no merged stages", chip.Gfx)
		}
		if stage != abi.StageTessCtrl && stage != abi.StageGeometry {
			return invalid("previous stage on %s", stage)
		}
	}
	if k.Opt.Flags&OptInlineUniforms == 0 && k.Opt.InlinedUniformValues != [abi.MaxInlinableUniforms]uint32{} {
		return invalid("inlined uniform values without inlining")
	}
	if k.Opt.Flags&OptSamePatchVertices != 0 && stage != abi.StageTessCtrl &&
		!(stage == abi.StageVertex && k.Flags.Has(AsLS)) {
		return invalid("same_patch_vertices outside LS and HS")
	}
	if k.Part.TCSEpilog.PrimMode > abi.TessPrimIsolines {
		return invalid("tess prim mode %d", k.Part.TCSEpilog.PrimMode)
	}
	if k.Part.PSEpilog.AlphaFunc > uint8(gputypes.CompareFunctionAlways) {
		return invalid("alpha func %d", k.Part.PSEpilog.AlphaFunc)
	}
	if int(k.Part.PSEpilog.LastCBuf) >= 8 {
		return invalid("last color buffer %d", k.Part.PSEpilog.LastCBuf)
	}
	return nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"math/bits"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/variant/abi"
)

// VertexInput is the vertex fetch state of a pipeline.
type VertexInput struct {
	Buffers []gputypes.VertexBufferLayout
	// Divisors holds the instance step rate of each buffer. Zero and one
	// both step once per instance.
	Divisors []uint32
}

// KeyForVertex returns the key bits of a vertex shader fetching from in.
//
// Attributes stepped per instance get a prolog that computes their index;
// divisors other than one are loaded from memory by that prolog.
// Attributes that are not dword aligned need a per-component fetch, which
// only a monolithic compile can do.
func KeyForVertex(chip abi.Chip, in VertexInput) Key {
	var k Key
	for i, buf := range in.Buffers {
		if buf.StepMode == gputypes.VertexStepModeVertexBufferNotUsed {
			continue
		}
		divisor := uint32(1)
		if i < len(in.Divisors) && in.Divisors[i] > 1 {
			divisor = in.Divisors[i]
		}
		for _, attr := range buf.Attributes {
			loc := attr.ShaderLocation
			if loc >= 16 {
				continue
			}
			if buf.StepMode == gputypes.VertexStepModeInstance {
				if divisor == 1 {
					k.Part.VSProlog.InstanceDivisorIsOne |= 1 << loc
				} else {
					k.Part.VSProlog.InstanceDivisorIsFetched |= 1 << loc
				}
			}
			if chip.Gfx < abi.GFX9 && needsOpencodeFetch(attr, buf.ArrayStride) {
				k.Mono.VSFetchOpencode |= 1 << loc
			}
		}
	}
	return k
}

// needsOpencodeFetch reports whether a typed buffer load of the attribute
// would be misaligned.
func needsOpencodeFetch(attr gputypes.VertexAttribute, stride uint64) bool {
	if attr.Format.Size() < 4 {
		return false
	}
	return attr.Offset%4 != 0 || stride%4 != 0
}

// FragmentOutput is the color and multisample state a fragment shader
// exports to.
type FragmentOutput struct {
	Targets     []gputypes.ColorTargetState
	Multisample gputypes.MultisampleState
	// AlphaFunc is the alpha test; zero disables it.
	AlphaFunc gputypes.CompareFunction
	// AlphaToOne forces exported alpha to one.
	AlphaToOne bool
	// MinSampleShading is the fraction of samples shaded per pixel.
	MinSampleShading float32
	// ClampColor clamps float color outputs to [0, 1].
	ClampColor bool
	// LineSmooth enables polygon and line smoothing.
	LineSmooth bool
}

// Rasterizer is the fixed-function state a fragment prolog depends on.
type Rasterizer struct {
	// TwoSideColor selects back colors for back-facing primitives.
	TwoSideColor bool
	// FlatShade interpolates colors flat.
	FlatShade bool
	// PolyStipple discards pixels masked by the stipple pattern.
	PolyStipple bool
	// ForceSampleInterp shades every sample.
	ForceSampleInterp bool
}

// KeyForFragment returns the key bits of a fragment shader described by
// info drawing with rast into out.
func KeyForFragment(info *abi.Info, rast Rasterizer, out FragmentOutput) Key {
	var k Key
	e := &k.Part.PSEpilog
	for mrt, t := range out.Targets {
		if mrt >= 8 {
			break
		}
		if info.ColorsWritten&(1<<uint(mrt)) == 0 {
			continue
		}
		format := colorExportFormat(t, info.ColorTypeOf(mrt))
		if format == abi.ColFormatZero {
			continue
		}
		e.SetColFormat(mrt, format)
		e.LastCBuf = uint8(mrt)
		switch t.Format {
		case gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
			gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint,
			gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint:
			e.ColorIsInt8 |= 1 << uint(mrt)
		case gputypes.TextureFormatRGB10A2Uint:
			e.ColorIsInt10 |= 1 << uint(mrt)
		}
	}
	if out.AlphaFunc != gputypes.CompareFunctionUndefined && out.AlphaFunc != gputypes.CompareFunctionAlways {
		e.AlphaFunc = uint8(out.AlphaFunc)
	}
	if out.AlphaToOne && out.Multisample.Count > 1 {
		e.Flags |= abi.EpilogAlphaToOne
	}
	if out.ClampColor {
		e.Flags |= abi.EpilogClampColor
	}
	if out.LineSmooth {
		e.Flags |= abi.EpilogPolyLineSmoothing
	}

	p := &k.Part.PSProlog
	if rast.TwoSideColor && info.ColorsRead != 0 {
		p.Flags |= abi.PrologColorTwoSide
	}
	if rast.FlatShade && info.ColorsRead != 0 {
		p.Flags |= abi.PrologFlatshadeColors
	}
	if rast.PolyStipple {
		p.Flags |= abi.PrologPolyStipple
	}
	samples := max(out.Multisample.Count, 1)
	if rast.ForceSampleInterp && samples > 1 {
		p.Flags |= abi.PrologForcePerspSampleInterp | abi.PrologForceLinearSampleInterp
	}
	if out.MinSampleShading > 0 && samples > 1 {
		iter := uint32(out.MinSampleShading*float32(samples) + 0.5)
		p.SamplemaskLogPSIter = uint16(bits.Len32(max(iter, 1)) - 1)
	}
	return k
}

// colorExportFormat picks the narrowest export that keeps every bit of
// the target format.
func colorExportFormat(t gputypes.ColorTargetState, ct abi.ColorType) uint32 {
	isInt := false
	var format uint32
	switch t.Format {
	case gputypes.TextureFormatUndefined:
		return abi.ColFormatZero
	case gputypes.TextureFormatR32Float:
		format = abi.ColFormat32R
		if t.Blend != nil {
			format = abi.ColFormat32AR
		}
	case gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint:
		format, isInt = abi.ColFormat32R, true
	case gputypes.TextureFormatRG32Float:
		format = abi.ColFormat32GR
	case gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRG32Sint:
		format, isInt = abi.ColFormat32GR, true
	case gputypes.TextureFormatRGBA32Float:
		format = abi.ColFormat32ABGR
	case gputypes.TextureFormatRGBA32Uint, gputypes.TextureFormatRGBA32Sint:
		format, isInt = abi.ColFormat32ABGR, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRGBA16Unorm:
		format = abi.ColFormatUnorm16ABGR
	case gputypes.TextureFormatR16Snorm, gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRGBA16Snorm:
		format = abi.ColFormatSnorm16ABGR
	case gputypes.TextureFormatR8Uint, gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGB10A2Uint:
		format, isInt = abi.ColFormatUint16ABGR, true
	case gputypes.TextureFormatR8Sint, gputypes.TextureFormatRG8Sint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatR16Sint, gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRGBA16Sint:
		format, isInt = abi.ColFormatSint16ABGR, true
	default:
		// 8 and 10 bit normalized, 16 bit float and packed float formats.
		format = abi.ColFormatFP16ABGR
	}
	// An integer target written with floats, or the reverse, exports nothing.
	if isInt != (ct != abi.ColorFloat) {
		return abi.ColFormatZero
	}
	return format
}

// GeometryInput is the primitive state a geometry or primitive shader
// sees.
type GeometryInput struct {
	Primitive gputypes.PrimitiveState
	// TriStripAdjacency is set for triangle strips with adjacency, which
	// have no gputypes topology.
	TriStripAdjacency bool
	// Cull enables primitive culling in the shader when it runs as NGG.
	Cull bool
}

// KeyForGeometry returns the key bits for the last vertex processing
// stage (flags carries AsNGG when it runs as a primitive shader).
func KeyForGeometry(chip abi.Chip, flags KeyFlags, in GeometryInput) Key {
	k := Key{Flags: flags}
	if in.TriStripAdjacency {
		k.Part.GSProlog.Flags |= abi.PrologTriStripAdjFix
	}
	if !in.Cull || !chip.HasNGG() || !flags.Has(AsNGG) || flags.Has(AsES) {
		return k
	}
	switch in.Primitive.Topology {
	case gputypes.PrimitiveTopologyPointList:
		return k
	case gputypes.PrimitiveTopologyLineList, gputypes.PrimitiveTopologyLineStrip:
		k.Opt.NGGCulling = NGGCullEnabled | NGGCullLines
		return k
	}
	k.Opt.NGGCulling = NGGCullEnabled
	front, back := NGGCullFrontFace, NGGCullBackFace
	if in.Primitive.FrontFace == gputypes.FrontFaceCW {
		front, back = back, front
	}
	switch in.Primitive.CullMode {
	case gputypes.CullModeFront:
		k.Opt.NGGCulling |= front
	case gputypes.CullModeBack:
		k.Opt.NGGCulling |= back
	}
	return k
}

// TessState is the tessellation state of a pipeline.
type TessState struct {
	// PrimMode is an abi.TessPrim* value.
	PrimMode uint8
	// InputPatchVertices and OutputPatchVertices are the patch sizes
	// entering and leaving the hull shader.
	InputPatchVertices  uint8
	OutputPatchVertices uint8
	// TESReadsTessFactors is set when the domain shader reads the
	// tessellation factors.
	TESReadsTessFactors bool
	// Invoc0DefinesTessFactors is set when invocation 0 writes every
	// tessellation factor.
	Invoc0DefinesTessFactors bool
}

// KeyForTessCtrl returns the key bits of a hull shader. prev is the LS
// selector merged in front of it on chips with merged stages; zero keeps
// the stages separate.
func KeyForTessCtrl(chip abi.Chip, prev SelectorID, st TessState) Key {
	var k Key
	k.Part.TCSEpilog.PrimMode = st.PrimMode
	if st.TESReadsTessFactors {
		k.Part.TCSEpilog.Flags |= abi.EpilogTESReadsTessFactors
	}
	if st.Invoc0DefinesTessFactors {
		k.Part.TCSEpilog.Flags |= abi.EpilogInvoc0TessFactorsAreDef
	}
	if chip.HasMergedStages() {
		k.PrevStage = prev
		// Without hull shader waves the LS input VGPRs are loaded shifted.
		if chip.Gfx == abi.GFX9 && prev != 0 {
			k.Part.VSProlog.Flags |= abi.PrologLSVGPRFix
		}
	}
	if st.InputPatchVertices != 0 && st.InputPatchVertices == st.OutputPatchVertices {
		k.Opt.Flags |= OptSamePatchVertices
	}
	return k
}

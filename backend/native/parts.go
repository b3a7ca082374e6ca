// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/variant/abi"
)

// Prologs and epilogs are generated as WGSL compute functions over a
// register array: SGPR i is regs[i] and VGPR j is regs[vgprBase+j]. Data
// the hardware would fetch from memory lives in the mem buffer.
const (
	vgprBase = 128

	// mem layout.
	memKill       = 0  // nonzero when the invocation is killed
	memDivisors   = 16 // one instance divisor per attribute
	memStipple    = 32 // 32 rows of the polygon stipple pattern
	memAttributes = 64 // per attribute: p0, p10, p20, four dwords each
	memExports    = 64 // four dwords per color target, then z, stencil, mask
	memTessFactor = 64 // per patch: outer then inner factors
)

const partPreamble = `@group(0) @binding(0) var<storage, read_write> regs: array<u32>;
@group(0) @binding(1) var<storage, read_write> mem: array<u32>;

@compute @workgroup_size(1)
fn %s() {
`

// partWriter emits the body of one part.
type partWriter struct {
	sb     strings.Builder
	layout *abi.Layout
}

func (w *partWriter) linef(format string, args ...any) {
	w.sb.WriteByte('\t')
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func reg(file abi.File, slot int) string {
	if file == abi.SGPR {
		return fmt.Sprintf("regs[%du]", slot)
	}
	return fmt.Sprintf("regs[%du]", vgprBase+slot)
}

// arg returns the register of a named input, or "0u" when the layout has
// no such input.
func (w *partWriter) arg(name string) string {
	a, ok := w.layout.Lookup(name)
	if !ok {
		return "0u"
	}
	return reg(a.File, int(a.Slot))
}

// ret returns the register a named return value is written to.
func (w *partWriter) ret(name string) (string, bool) {
	for _, r := range w.layout.Returns {
		if r.Name == name {
			return reg(r.File, int(r.Slot)), true
		}
	}
	return "", false
}

// partSource generates the WGSL of a prolog or epilog.
func partSource(chip abi.Chip, k abi.PartKey, l *abi.Layout) (string, error) {
	w := &partWriter{layout: l}
	fmt.Fprintf(&w.sb, partPreamble, k.Kind.String())

	var err error
	switch k.Kind {
	case abi.PartVSProlog:
		err = vsProlog(w, chip, k.VSProlog)
	case abi.PartTCSEpilog:
		tcsEpilog(w, k.TCSEpilog)
	case abi.PartGSProlog:
		gsProlog(w, chip, k.GSProlog)
	case abi.PartPSProlog:
		err = psProlog(w, chip, k.PSProlog)
	case abi.PartPSEpilog:
		psEpilog(w, k.PSEpilog)
	default:
		err = fmt.Errorf("native: unknown part kind %d", k.Kind)
	}
	if err != nil {
		return "", err
	}
	w.sb.WriteString("}\n")
	return w.sb.String(), nil
}

// =============================================================================
// Vertex prolog
// =============================================================================

func vsProlog(w *partWriter, chip abi.Chip, k abi.VSPrologKey) error {
	merged := chip.HasMergedStages() && k.NumMergedNextStageVGPRs > 0
	ref, err := abi.StageLayout(chip, abi.LayoutOptions{Info: &abi.Info{Stage: abi.StageVertex}, AsLS: merged})
	if err != nil {
		return err
	}
	instanceSlot := ref.Slot(abi.ArgInstanceID)

	if k.States.Flags&abi.PrologLSVGPRFix != 0 {
		// With no HS waves the LS inputs arrive two VGPRs late.
		if s := ref.Slot(abi.ArgMergedWaveInfo); s >= 0 {
			w.linef("if ((%s >> 8u) & 0xffu) == 0u {", reg(abi.SGPR, s))
			for i := range 4 {
				w.linef("\t%s = %s;", reg(abi.VGPR, i), reg(abi.VGPR, i+2))
			}
			w.linef("}")
		}
	}

	w.linef("var vtx: u32 = %s;", reg(abi.VGPR, 0))
	if instanceSlot >= 0 {
		w.linef("var inst: u32 = %s;", reg(abi.VGPR, instanceSlot))
	} else {
		w.linef("var inst: u32 = 0u;")
	}
	if k.States.Flags&abi.PrologUnpackInstanceIDFromVertexID != 0 {
		w.linef("inst = vtx >> 16u;")
		w.linef("vtx = vtx & 0xffffu;")
	}
	start := "0u"
	if s := ref.Slot(abi.ArgStartInstance); s >= 0 {
		start = reg(abi.SGPR, s)
	}
	w.linef("let start = %s;", start)

	for i := range int(k.NumInputs) {
		dst, ok := w.ret(fmt.Sprintf("%s%d", abi.ArgVertexIndex, i))
		if !ok {
			return fmt.Errorf("native: vs prolog layout has no %s%d", abi.ArgVertexIndex, i)
		}
		bit := uint16(1) << i
		switch {
		case i < 16 && k.States.InstanceDivisorIsOne&bit != 0:
			w.linef("%s = start + inst;", dst)
		case i < 16 && k.States.InstanceDivisorIsFetched&bit != 0:
			w.linef("let d%d = mem[%du];", i, memDivisors+i)
			w.linef("%s = select(start, start + inst / max(d%d, 1u), d%d != 0u);", dst, i, i)
		default:
			w.linef("%s = vtx;", dst)
		}
	}
	return nil
}

// =============================================================================
// Tess control epilog
// =============================================================================

func tessFactorCounts(prim uint8) (outer, inner int) {
	switch prim {
	case abi.TessPrimQuads:
		return 4, 2
	case abi.TessPrimIsolines:
		return 2, 0
	}
	return 3, 1
}

func tcsEpilog(w *partWriter, k abi.TCSEpilogKey) {
	outer, inner := tessFactorCounts(k.States.PrimMode)
	n := outer + inner
	indent := ""
	if k.States.Flags&abi.EpilogInvoc0TessFactorsAreDef != 0 {
		w.linef("if %s == 0u {", w.arg(abi.ArgInvocationID))
		indent = "\t"
	}
	w.linef("%slet base = %du + %s * %du;", indent, memTessFactor, w.arg(abi.ArgRelPatchID), n)
	for i := range n {
		w.linef("%smem[base + %du] = %s;", indent, i, w.arg(fmt.Sprintf("%s%d", abi.ArgTessFactor, i)))
	}
	if k.States.Flags&abi.EpilogTESReadsTessFactors != 0 {
		// The TES reads the factors from the offchip ring as well.
		w.linef("%slet ring = %s;", indent, w.arg(abi.ArgTFLDSOffset))
		for i := range n {
			w.linef("%smem[ring + %du] = %s;", indent, i, w.arg(fmt.Sprintf("%s%d", abi.ArgTessFactor, i)))
		}
	}
	if indent != "" {
		w.linef("}")
	}
}

// =============================================================================
// Geometry prolog
// =============================================================================

func gsProlog(w *partWriter, chip abi.Chip, k abi.GSPrologKey) {
	if k.States.Flags&abi.PrologTriStripAdjFix == 0 {
		return
	}
	// Odd primitives of a triangle strip with adjacency have their six
	// vertices rotated by two.
	w.linef("if (%s & 1u) != 0u {", w.arg(abi.ArgGSPrimID))
	if chip.HasMergedStages() {
		for i := range 3 {
			w.linef("\tlet o%d = %s;", i, w.arg(fmt.Sprintf("%s%d", abi.ArgGSVtxOffset, i)))
		}
		w.linef("\tvar v = array<u32, 6>(o0 & 0xffffu, o0 >> 16u, o1 & 0xffffu, o1 >> 16u, o2 & 0xffffu, o2 >> 16u);")
		for i := range 3 {
			w.linef("\t%s = v[%du] | (v[%du] << 16u);", w.arg(fmt.Sprintf("%s%d", abi.ArgGSVtxOffset, i)),
				(2*i+4)%6, (2*i+5)%6)
		}
	} else {
		for i := range 6 {
			w.linef("\tlet o%d = %s;", i, w.arg(fmt.Sprintf("%s%d", abi.ArgGSVtxOffset, i)))
		}
		for i := range 6 {
			w.linef("\t%s = o%d;", w.arg(fmt.Sprintf("%s%d", abi.ArgGSVtxOffset, i)), (i+4)%6)
		}
	}
	w.linef("}")
}

// =============================================================================
// Fragment prolog
// =============================================================================

func psProlog(w *partWriter, chip abi.Chip, k abi.PSPrologKey) error {
	ref, err := abi.StageLayout(chip, abi.LayoutOptions{Info: &abi.Info{Stage: abi.StageFragment}})
	if err != nil {
		return err
	}
	// The prolog passes the main body's inputs through, so system values
	// sit where the fragment layout puts them.
	vgpr := func(name string, comp int) string {
		return reg(abi.VGPR, ref.Slot(name)+comp)
	}
	flags := k.States.Flags

	if flags&abi.PrologPolyStipple != 0 {
		w.linef("let sx = u32(bitcast<f32>(%s)) & 31u;", vgpr(abi.ArgFragPosX, 0))
		w.linef("let sy = u32(bitcast<f32>(%s)) & 31u;", vgpr(abi.ArgFragPosY, 0))
		w.linef("if ((mem[%du + sy] >> sx) & 1u) == 0u {", memStipple)
		w.linef("\tmem[%du] = 1u;", memKill)
		w.linef("}")
	}

	copyPair := func(dst, src string) {
		for c := range 2 {
			w.linef("%s = %s;", vgpr(dst, c), vgpr(src, c))
		}
	}
	if flags&abi.PrologBCOptimizeForPersp != 0 {
		// Fully covered primitives use the center for the centroid.
		w.linef("if (%s >> 31u) != 0u {", reg(abi.SGPR, ref.Slot(abi.ArgPrimMask)))
		copyPair(abi.ArgPerspCentroid, abi.ArgPerspCenter)
		w.linef("}")
	}
	if flags&abi.PrologBCOptimizeForLinear != 0 {
		w.linef("if (%s >> 31u) != 0u {", reg(abi.SGPR, ref.Slot(abi.ArgPrimMask)))
		copyPair(abi.ArgLinearCentroid, abi.ArgLinearCenter)
		w.linef("}")
	}
	if flags&abi.PrologForcePerspSampleInterp != 0 {
		copyPair(abi.ArgPerspCenter, abi.ArgPerspSample)
		copyPair(abi.ArgPerspCentroid, abi.ArgPerspSample)
	}
	if flags&abi.PrologForceLinearSampleInterp != 0 {
		copyPair(abi.ArgLinearCenter, abi.ArgLinearSample)
		copyPair(abi.ArgLinearCentroid, abi.ArgLinearSample)
	}
	if flags&abi.PrologForcePerspCenterInterp != 0 {
		copyPair(abi.ArgPerspSample, abi.ArgPerspCenter)
		copyPair(abi.ArgPerspCentroid, abi.ArgPerspCenter)
	}
	if flags&abi.PrologForceLinearCenterInterp != 0 {
		copyPair(abi.ArgLinearSample, abi.ArgLinearCenter)
		copyPair(abi.ArgLinearCentroid, abi.ArgLinearCenter)
	}

	if k.States.SamplemaskLogPSIter != 0 && k.AncillaryVGPRIndex >= 0 {
		// Each sample-rate invocation keeps only the coverage of its
		// own samples.
		iter := uint32(1) << k.States.SamplemaskLogPSIter
		mask := uint32(1)<<(16/iter) - 1
		w.linef("let sample_id = (%s >> 8u) & 0xfu;", reg(abi.VGPR, int(k.AncillaryVGPRIndex)))
		w.linef("%s = %s & (%#xu << sample_id);", vgpr(abi.ArgSampleCoverage, 0), vgpr(abi.ArgSampleCoverage, 0), mask)
	}

	ret := 0
	for c := range 2 {
		read := (k.ColorsRead >> (4 * c)) & 0xf
		if read == 0 {
			continue
		}
		if k.ColorAttrIndex[c] < 0 {
			// The previous stage does not write the color.
			for comp := range 4 {
				if read&(1<<comp) == 0 {
					continue
				}
				if dst, ok := w.ret(fmt.Sprintf("%s%d", abi.ArgColor, ret)); ok {
					w.linef("%s = 0u;", dst)
				}
				ret++
			}
			continue
		}
		attr := fmt.Sprintf("%du", k.ColorAttrIndex[c])
		if flags&abi.PrologColorTwoSide != 0 && k.FaceVGPRIndex >= 0 {
			w.linef("let attr%d = select(%du, %du, %s != 0u);", c,
				int(k.NumInterpInputs)+c, k.ColorAttrIndex[c], reg(abi.VGPR, int(k.FaceVGPRIndex)))
			attr = fmt.Sprintf("attr%d", c)
		}
		idx := k.ColorInterpVGPRIndex[c]
		if idx >= 0 {
			w.linef("let i%d = bitcast<f32>(%s);", c, reg(abi.VGPR, int(idx)))
			w.linef("let j%d = bitcast<f32>(%s);", c, reg(abi.VGPR, int(idx)+1))
		}
		for comp := range 4 {
			if read&(1<<comp) == 0 {
				continue
			}
			dst, ok := w.ret(fmt.Sprintf("%s%d", abi.ArgColor, ret))
			if !ok {
				return fmt.Errorf("native: ps prolog layout has no %s%d", abi.ArgColor, ret)
			}
			ret++
			at := func(v int) string {
				return fmt.Sprintf("mem[%du + (%s * 3u + %du) * 4u + %du]", memAttributes, attr, v, comp)
			}
			if idx < 0 {
				w.linef("%s = %s;", dst, at(0))
				continue
			}
			w.linef("%s = bitcast<u32>(bitcast<f32>(%s) + i%d * bitcast<f32>(%s) + j%d * bitcast<f32>(%s));",
				dst, at(0), c, at(1), c, at(2))
		}
	}
	return nil
}

// =============================================================================
// Fragment epilog
// =============================================================================

// alphaCompare returns the WGSL comparison of gputypes.CompareFunction f,
// or "" when the test always passes.
func alphaCompare(f uint8) string {
	switch gputypes.CompareFunction(f) {
	case gputypes.CompareFunctionNever:
		return "false"
	case gputypes.CompareFunctionLess:
		return "a < alpha_ref"
	case gputypes.CompareFunctionEqual:
		return "a == alpha_ref"
	case gputypes.CompareFunctionLessEqual:
		return "a <= alpha_ref"
	case gputypes.CompareFunctionGreater:
		return "a > alpha_ref"
	case gputypes.CompareFunctionNotEqual:
		return "a != alpha_ref"
	case gputypes.CompareFunctionGreaterEqual:
		return "a >= alpha_ref"
	}
	return ""
}

func psEpilog(w *partWriter, k abi.PSEpilogKey) {
	st := k.States
	color := func(mrt, c int) string {
		return w.arg(fmt.Sprintf("%s%d.%c", abi.ArgColor, mrt, "xyzw"[c]))
	}

	// The first written target supplies the alpha test value.
	first := -1
	for mrt := range 8 {
		if k.ColorsWritten&(1<<mrt) != 0 {
			first = mrt
			break
		}
	}
	if cmp := alphaCompare(st.AlphaFunc); cmp != "" && first >= 0 && k.ColorTypes&(3<<(2*first)) == 0 {
		w.linef("let a = bitcast<f32>(%s);", color(first, 3))
		w.linef("let alpha_ref = bitcast<f32>(%s);", w.arg(abi.ArgAlphaRef))
		w.linef("if !(%s) {", cmp)
		w.linef("\tmem[%du] = 1u;", memKill)
		w.linef("}")
	}

	targets := k.ColorsWritten
	src := func(mrt int) int { return mrt }
	if st.LastCBuf > 0 && first == 0 {
		// Broadcast target 0 to every target up to LastCBuf.
		for mrt := 1; mrt <= int(st.LastCBuf) && mrt < 8; mrt++ {
			targets |= 1 << mrt
		}
		src = func(int) int { return 0 }
	}

	for mrt := range 8 {
		if targets&(1<<mrt) == 0 {
			continue
		}
		format := st.ColFormat(mrt)
		if format == abi.ColFormatZero {
			continue
		}
		s := src(mrt)
		typ := abi.ColorType(k.ColorTypes>>(2*uint(s))) & 3
		for c := range 4 {
			w.linef("var c%d_%d: u32 = %s;", mrt, c, color(s, c))
		}
		switch typ {
		case abi.ColorFloat:
			if st.Flags&abi.EpilogAlphaToOne != 0 {
				w.linef("c%d_3 = 0x3f800000u;", mrt)
			}
			if st.Flags&abi.EpilogPolyLineSmoothing != 0 {
				w.linef("c%d_3 = bitcast<u32>(bitcast<f32>(c%d_3) * f32(countOneBits(%s)) / 16.0);",
					mrt, mrt, w.arg(abi.ArgSampleMaskIn))
			}
			if st.Flags&abi.EpilogClampColor != 0 {
				for c := range 4 {
					w.linef("c%d_%d = bitcast<u32>(clamp(bitcast<f32>(c%d_%d), 0.0, 1.0));", mrt, c, mrt, c)
				}
			}
		case abi.ColorUint:
			intClamp(w, mrt, st, false)
		case abi.ColorSint:
			intClamp(w, mrt, st, true)
		}
		exportColor(w, mrt, format)
	}

	next := memExports + 4*8
	if k.WritesZ {
		w.linef("mem[%du] = %s;", next, w.arg(abi.ArgFragDepth))
	}
	if k.WritesStencil {
		w.linef("mem[%du] = %s;", next+1, w.arg(abi.ArgFragStencil))
	}
	if k.WritesSamplemask {
		w.linef("mem[%du] = %s;", next+2, w.arg(abi.ArgFragSamplemask))
	}
}

// intClamp clamps integer colors written to 8- or 10-bit targets.
func intClamp(w *partWriter, mrt int, st abi.PSEpilogBits, signed bool) {
	var rgb, alpha [2]int32
	switch {
	case st.ColorIsInt8&(1<<mrt) != 0:
		rgb, alpha = [2]int32{0, 255}, [2]int32{0, 255}
		if signed {
			rgb, alpha = [2]int32{-128, 127}, [2]int32{-128, 127}
		}
	case st.ColorIsInt10&(1<<mrt) != 0:
		rgb, alpha = [2]int32{0, 1023}, [2]int32{0, 3}
		if signed {
			rgb, alpha = [2]int32{-512, 511}, [2]int32{-2, 1}
		}
	default:
		return
	}
	for c := range 4 {
		lim := rgb
		if c == 3 {
			lim = alpha
		}
		if signed {
			w.linef("c%d_%d = bitcast<u32>(clamp(bitcast<i32>(c%d_%d), %di, %di));", mrt, c, mrt, c, lim[0], lim[1])
		} else {
			w.linef("c%d_%d = min(c%d_%d, %du);", mrt, c, mrt, c, lim[1])
		}
	}
}

// exportColor packs target mrt in its export format.
func exportColor(w *partWriter, mrt int, format uint32) {
	base := memExports + 4*mrt
	f := func(c int) string { return fmt.Sprintf("bitcast<f32>(c%d_%d)", mrt, c) }
	switch format {
	case abi.ColFormat32R:
		w.linef("mem[%du] = c%d_0;", base, mrt)
	case abi.ColFormat32GR:
		w.linef("mem[%du] = c%d_0;", base, mrt)
		w.linef("mem[%du] = c%d_1;", base+1, mrt)
	case abi.ColFormat32AR:
		w.linef("mem[%du] = c%d_0;", base, mrt)
		w.linef("mem[%du] = c%d_3;", base+1, mrt)
	case abi.ColFormatFP16ABGR:
		w.linef("mem[%du] = pack2x16float(vec2<f32>(%s, %s));", base, f(0), f(1))
		w.linef("mem[%du] = pack2x16float(vec2<f32>(%s, %s));", base+1, f(2), f(3))
	case abi.ColFormatUnorm16ABGR:
		w.linef("mem[%du] = pack2x16unorm(vec2<f32>(%s, %s));", base, f(0), f(1))
		w.linef("mem[%du] = pack2x16unorm(vec2<f32>(%s, %s));", base+1, f(2), f(3))
	case abi.ColFormatSnorm16ABGR:
		w.linef("mem[%du] = pack2x16snorm(vec2<f32>(%s, %s));", base, f(0), f(1))
		w.linef("mem[%du] = pack2x16snorm(vec2<f32>(%s, %s));", base+1, f(2), f(3))
	case abi.ColFormatUint16ABGR, abi.ColFormatSint16ABGR:
		w.linef("mem[%du] = (c%d_0 & 0xffffu) | (c%d_1 << 16u);", base, mrt, mrt)
		w.linef("mem[%du] = (c%d_2 & 0xffffu) | (c%d_3 << 16u);", base+1, mrt, mrt)
	default:
		for c := range 4 {
			w.linef("mem[%du] = c%d_%d;", base+c, mrt, c)
		}
	}
}

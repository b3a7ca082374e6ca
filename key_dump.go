// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"fmt"
	"io"
	"strings"

	"github.com/gogpu/variant/abi"
)

// String returns a one-line summary of the non-zero axes of the key.
func (k Key) String() string {
	var parts []string
	if k.Flags != 0 {
		parts = append(parts, "flags="+k.Flags.String())
	}
	if k.PrevStage != 0 {
		parts = append(parts, fmt.Sprintf("prev=%d", k.PrevStage))
	}
	if k.Part != (PartBits{}) {
		parts = append(parts, fmt.Sprintf("part=%+v", k.Part))
	}
	if !k.Mono.IsZero() {
		parts = append(parts, fmt.Sprintf("mono=%+v", k.Mono))
	}
	if !k.Opt.IsZero() {
		parts = append(parts, fmt.Sprintf("opt=%+v", k.Opt))
	}
	if len(parts) == 0 {
		return "Key{}"
	}
	return "Key{" + strings.Join(parts, " ") + "}"
}

// String lists the set flags, e.g. "as_es|as_ngg".
func (k KeyFlags) String() string {
	if k == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  KeyFlags
		name string
	}{{AsES, "as_es"}, {AsLS, "as_ls"}, {AsNGG, "as_ngg"}} {
		if k&f.bit != 0 {
			names = append(names, f.name)
			k &^= f.bit
		}
	}
	if k != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(k)))
	}
	return strings.Join(names, "|")
}

// Dump writes the key fields that matter for stage, one per line. The
// output is meant for humans and shader dumps, not for parsing.
func (k Key) Dump(w io.Writer, stage abi.Stage) error {
	d := &keyDumper{w: w}
	d.line("flags", k.Flags.String())
	if k.PrevStage != 0 {
		d.line("prev_stage", k.PrevStage)
	}

	switch stage {
	case abi.StageVertex:
		d.vsProlog("part.vs.prolog", k.Part.VSProlog)
		d.mono(k.Mono)
	case abi.StageTessCtrl:
		if k.PrevStage != 0 {
			d.vsProlog("part.tcs.ls_prolog", k.Part.VSProlog)
		}
		d.line("part.tcs.epilog.prim_mode", k.Part.TCSEpilog.PrimMode)
		d.line("part.tcs.epilog.invoc0_tess_factors_are_def",
			k.Part.TCSEpilog.Flags&abi.EpilogInvoc0TessFactorsAreDef != 0)
		d.line("part.tcs.epilog.tes_reads_tess_factors",
			k.Part.TCSEpilog.Flags&abi.EpilogTESReadsTessFactors != 0)
		d.line("mono.ff_tcs_inputs_to_copy", fmt.Sprintf("%#x", k.Mono.FFTCSInputsToCopy))
	case abi.StageTessEval:
		d.mono(k.Mono)
	case abi.StageGeometry:
		if k.PrevStage != 0 {
			d.vsProlog("part.gs.vs_prolog", k.Part.VSProlog)
		}
		d.line("part.gs.prolog.tri_strip_adj_fix",
			k.Part.GSProlog.Flags&abi.PrologTriStripAdjFix != 0)
	case abi.StageFragment:
		p := k.Part.PSProlog
		d.line("part.ps.prolog.color_two_side", p.Flags&abi.PrologColorTwoSide != 0)
		d.line("part.ps.prolog.flatshade_colors", p.Flags&abi.PrologFlatshadeColors != 0)
		d.line("part.ps.prolog.poly_stipple", p.Flags&abi.PrologPolyStipple != 0)
		d.line("part.ps.prolog.force_persp_sample_interp", p.Flags&abi.PrologForcePerspSampleInterp != 0)
		d.line("part.ps.prolog.force_linear_sample_interp", p.Flags&abi.PrologForceLinearSampleInterp != 0)
		d.line("part.ps.prolog.force_persp_center_interp", p.Flags&abi.PrologForcePerspCenterInterp != 0)
		d.line("part.ps.prolog.force_linear_center_interp", p.Flags&abi.PrologForceLinearCenterInterp != 0)
		d.line("part.ps.prolog.bc_optimize_for_persp", p.Flags&abi.PrologBCOptimizeForPersp != 0)
		d.line("part.ps.prolog.bc_optimize_for_linear", p.Flags&abi.PrologBCOptimizeForLinear != 0)
		d.line("part.ps.prolog.samplemask_log_ps_iter", p.SamplemaskLogPSIter)
		e := k.Part.PSEpilog
		d.line("part.ps.epilog.spi_shader_col_format", fmt.Sprintf("%#x", e.SPIShaderColFormat))
		d.line("part.ps.epilog.color_is_int8", fmt.Sprintf("%#x", e.ColorIsInt8))
		d.line("part.ps.epilog.color_is_int10", fmt.Sprintf("%#x", e.ColorIsInt10))
		d.line("part.ps.epilog.last_cbuf", e.LastCBuf)
		d.line("part.ps.epilog.alpha_func", e.AlphaFunc)
		d.line("part.ps.epilog.alpha_to_one", e.Flags&abi.EpilogAlphaToOne != 0)
		d.line("part.ps.epilog.poly_line_smoothing", e.Flags&abi.EpilogPolyLineSmoothing != 0)
		d.line("part.ps.epilog.clamp_color", e.Flags&abi.EpilogClampColor != 0)
	case abi.StageCompute:
	default:
		return fmt.Errorf("%w: stage %d", ErrInvalidArgument, stage)
	}

	if stage != abi.StageCompute && stage != abi.StageFragment {
		d.line("opt.kill_outputs", fmt.Sprintf("%#x", k.Opt.KillOutputs))
		d.line("opt.kill_clip_distances", fmt.Sprintf("%#x", k.Opt.KillClipDistances))
		d.line("opt.kill_pointsize", k.Opt.Flags&OptKillPointSize != 0)
		d.line("opt.ngg_culling", fmt.Sprintf("%#x", k.Opt.NGGCulling))
	}
	d.line("opt.prefer_mono", k.Opt.Flags&OptPreferMono != 0)
	d.line("opt.inline_uniforms", k.Opt.Flags&OptInlineUniforms != 0)
	if k.Opt.Flags&OptInlineUniforms != 0 {
		d.line("opt.inlined_uniform_values", k.Opt.InlinedUniformValues)
	}
	return d.err
}

func (d *keyDumper) vsProlog(prefix string, p abi.VSPrologBits) {
	d.line(prefix+".instance_divisor_is_one", fmt.Sprintf("%#x", p.InstanceDivisorIsOne))
	d.line(prefix+".instance_divisor_is_fetched", fmt.Sprintf("%#x", p.InstanceDivisorIsFetched))
	d.line(prefix+".unpack_instance_id_from_vertex_id",
		p.Flags&abi.PrologUnpackInstanceIDFromVertexID != 0)
	d.line(prefix+".ls_vgpr_fix", p.Flags&abi.PrologLSVGPRFix != 0)
}

func (d *keyDumper) mono(m MonoBits) {
	d.line("mono.vs.fix_fetch", m.VSFixFetch)
	d.line("mono.vs.fetch_opencode", fmt.Sprintf("%#x", m.VSFetchOpencode))
	d.line("mono.vs.export_prim_id", m.Flags&MonoVSExportPrimID != 0)
}

// keyDumper writes aligned lines and keeps the first error.
type keyDumper struct {
	w   io.Writer
	err error
}

func (d *keyDumper) line(name string, value any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, "  %-48s = %v\n", name, value)
}

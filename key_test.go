// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/variant/abi"
)

// =============================================================================
// Identity
// =============================================================================

func TestKeyBytes(t *testing.T) {
	var k Key
	if got, want := len(k.Bytes()), int(unsafe.Sizeof(k)); got != want {
		t.Fatalf("len(Bytes()) = %d, want %d", got, want)
	}
	if !bytes.Equal(k.Bytes(), make([]byte, unsafe.Sizeof(k))) {
		t.Error("zero key has non-zero bytes")
	}

	k.Part.PSEpilog.AlphaFunc = 3
	b := k.Bytes()
	b[0] ^= 0xff
	if k.Bytes()[0] == b[0] {
		t.Error("Bytes aliases the key")
	}
}

func TestKeyHash(t *testing.T) {
	a := psKey()
	b := psKey()
	if a.Hash() != b.Hash() {
		t.Error("equal keys hash differently")
	}
	mutations := []func(*Key){
		func(k *Key) { k.Flags = AsNGG },
		func(k *Key) { k.PrevStage = 1 },
		func(k *Key) { k.Opt.KillOutputs = 1 },
		func(k *Key) { k.Mono.VSFixFetch[15] = FixFetchRGB8 },
		func(k *Key) { k.Part.GSProlog.Flags = abi.PrologTriStripAdjFix },
		func(k *Key) { k.Part.TCSEpilog.PrimMode = abi.TessPrimQuads },
	}
	for i, mutate := range mutations {
		k := psKey()
		mutate(&k)
		if k == a || k.Hash() == a.Hash() {
			t.Errorf("mutation %d did not change the key", i)
		}
	}
}

func TestWithoutOpt(t *testing.T) {
	k := psKey()
	k.Flags = 0
	k.Opt = OptBits{KillOutputs: 0x3, Flags: OptKillPointSize | OptInlineUniforms, NGGCulling: NGGCullEnabled}
	k.Opt.InlinedUniformValues[0] = 9

	base := k.WithoutOpt()
	if !base.Opt.IsZero() {
		t.Errorf("WithoutOpt kept %+v", base.Opt)
	}
	if base.Part != k.Part || base.Mono != k.Mono {
		t.Error("WithoutOpt changed non-optimization axes")
	}
	if k.Opt.IsZero() {
		t.Error("WithoutOpt modified its receiver")
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestKeyValidate(t *testing.T) {
	withOpt := func(o OptBits) Key { return Key{Opt: o} }
	tests := []struct {
		name  string
		stage abi.Stage
		chip  abi.Chip
		key   Key
		ok    bool
	}{
		{"zero vs", abi.StageVertex, abi.Navi10(), Key{}, true},
		{"zero cs", abi.StageCompute, abi.Polaris10(), Key{}, true},
		{"vs as ngg", abi.StageVertex, abi.Navi10(), Key{Flags: AsNGG}, true},
		{"vs as es ngg", abi.StageVertex, abi.Navi10(), Key{Flags: AsES | AsNGG}, true},
		{"gs as ngg", abi.StageGeometry, abi.Navi10(), Key{Flags: AsNGG}, true},
		{"invalid stage", abi.Stage(42), abi.Navi10(), Key{}, false},
		{"unknown flag", abi.StageVertex, abi.Navi10(), Key{Flags: 1 << 7}, false},
		{"es and ls", abi.StageVertex, abi.Navi10(), Key{Flags: AsES | AsLS}, false},
		{"ls and ngg", abi.StageVertex, abi.Navi10(), Key{Flags: AsLS | AsNGG}, false},
		{"ps with flags", abi.StageFragment, abi.Navi10(), Key{Flags: AsNGG}, false},
		{"gs as es", abi.StageGeometry, abi.Navi10(), Key{Flags: AsES}, false},
		{"tes as ls", abi.StageTessEval, abi.Navi10(), Key{Flags: AsLS}, false},
		{"ngg before gfx10", abi.StageVertex, abi.Vega10(), Key{Flags: AsNGG}, false},
		{"culling", abi.StageVertex, abi.Navi10(),
			Key{Flags: AsNGG, Opt: OptBits{NGGCulling: NGGCullEnabled | NGGCullBackFace}}, true},
		{"culling without ngg", abi.StageVertex, abi.Navi10(),
			withOpt(OptBits{NGGCulling: NGGCullEnabled}), false},
		{"culling as es", abi.StageVertex, abi.Navi10(),
			Key{Flags: AsES | AsNGG, Opt: OptBits{NGGCulling: NGGCullEnabled}}, false},
		{"culling without enable", abi.StageVertex, abi.Navi10(),
			Key{Flags: AsNGG, Opt: OptBits{NGGCulling: NGGCullBackFace}}, false},
		{"merged tcs", abi.StageTessCtrl, abi.Vega10(), Key{PrevStage: 2}, true},
		{"merged gs", abi.StageGeometry, abi.Navi10(), Key{PrevStage: 2}, true},
		{"prev without merged stages", abi.StageTessCtrl, abi.Polaris10(), Key{PrevStage: 2}, false},
		{"prev on ps", abi.StageFragment, abi.Navi10(), Key{PrevStage: 2}, false},
		{"inline", abi.StageFragment, abi.Navi10(),
			withOpt(OptBits{Flags: OptInlineUniforms, InlinedUniformValues: [4]uint32{1, 2}}), true},
		{"values without inline", abi.StageFragment, abi.Navi10(),
			withOpt(OptBits{InlinedUniformValues: [4]uint32{1}}), false},
		{"same patch tcs", abi.StageTessCtrl, abi.Navi10(), withOpt(OptBits{Flags: OptSamePatchVertices}), true},
		{"same patch ls", abi.StageVertex, abi.Navi10(),
			Key{Flags: AsLS, Opt: OptBits{Flags: OptSamePatchVertices}}, true},
		{"same patch ps", abi.StageFragment, abi.Navi10(), withOpt(OptBits{Flags: OptSamePatchVertices}), false},
		{"prim mode", abi.StageTessCtrl, abi.Navi10(),
			Key{Part: PartBits{TCSEpilog: abi.TCSEpilogBits{PrimMode: abi.TessPrimIsolines + 1}}}, false},
		{"alpha func", abi.StageFragment, abi.Navi10(),
			Key{Part: PartBits{PSEpilog: abi.PSEpilogBits{AlphaFunc: uint8(gputypes.CompareFunctionAlways) + 1}}}, false},
		{"last cbuf", abi.StageFragment, abi.Navi10(),
			Key{Part: PartBits{PSEpilog: abi.PSEpilogBits{LastCBuf: 8}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate(tt.stage, tt.chip)
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Validate() = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

// =============================================================================
// Formatting
// =============================================================================

func TestKeyFlagsString(t *testing.T) {
	tests := []struct {
		flags KeyFlags
		want  string
	}{
		{0, "none"},
		{AsLS, "as_ls"},
		{AsES | AsNGG, "as_es|as_ngg"},
		{AsNGG | 1 << 4, "as_ngg|0x10"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("KeyFlags(%#x).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{}).String(); got != "Key{}" {
		t.Errorf("zero key = %q", got)
	}
	k := Key{Flags: AsNGG, PrevStage: 4}
	got := k.String()
	for _, want := range []string{"flags=as_ngg", "prev=4"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "opt=") || strings.Contains(got, "part=") {
		t.Errorf("String() = %q lists zero axes", got)
	}
}

func TestKeyDump(t *testing.T) {
	k := psKey()
	k.Part.PSEpilog.AlphaFunc = uint8(gputypes.CompareFunctionLess)
	k.Part.PSProlog.Flags = abi.PrologColorTwoSide

	var buf bytes.Buffer
	if err := k.Dump(&buf, abi.StageFragment); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"part.ps.prolog.color_two_side",
		"part.ps.epilog.alpha_func",
		"part.ps.epilog.spi_shader_col_format",
		"opt.inline_uniforms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "opt.kill_outputs") {
		t.Error("fragment dump lists vertex export axes")
	}
	if strings.Contains(out, "inlined_uniform_values") {
		t.Error("dump lists inlined values without inlining")
	}
}

func TestKeyDumpPerStage(t *testing.T) {
	tests := []struct {
		stage abi.Stage
		key   Key
		want  string
	}{
		{abi.StageVertex, Key{}, "part.vs.prolog.instance_divisor_is_one"},
		{abi.StageTessCtrl, Key{PrevStage: 3}, "part.tcs.ls_prolog.ls_vgpr_fix"},
		{abi.StageTessEval, Key{}, "mono.vs.export_prim_id"},
		{abi.StageGeometry, Key{}, "part.gs.prolog.tri_strip_adj_fix"},
		{abi.StageCompute, Key{}, "opt.prefer_mono"},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.key.Dump(&buf, tt.stage); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("dump lacks %q:\n%s", tt.want, buf.String())
			}
		})
	}
}

type failingWriter struct{ n int }

var errWrite = errors.New("write failed")

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errWrite
}

func TestKeyDumpErrors(t *testing.T) {
	if err := (Key{}).Dump(&bytes.Buffer{}, abi.Stage(42)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid stage: %v", err)
	}
	w := &failingWriter{}
	if err := (Key{}).Dump(w, abi.StageFragment); !errors.Is(err, errWrite) {
		t.Errorf("err = %v, want %v", err, errWrite)
	}
	if w.n != 1 {
		t.Errorf("%d writes after the first failure", w.n-1)
	}
}

// =============================================================================
// Keys from pipeline state
// =============================================================================

func TestKeyForVertex(t *testing.T) {
	in := VertexInput{
		Buffers: []gputypes.VertexBufferLayout{
			{
				ArrayStride: 12,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x3, ShaderLocation: 0}},
			},
			{
				ArrayStride: 16,
				StepMode:    gputypes.VertexStepModeInstance,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, ShaderLocation: 1},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 2},
				},
			},
			{
				ArrayStride: 8,
				StepMode:    gputypes.VertexStepModeInstance,
				Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x2, ShaderLocation: 3}},
			},
			{
				StepMode:   gputypes.VertexStepModeVertexBufferNotUsed,
				Attributes: []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x2, ShaderLocation: 4}},
			},
		},
		Divisors: []uint32{0, 1, 3},
	}
	k := KeyForVertex(abi.Navi10(), in)
	p := k.Part.VSProlog
	if p.InstanceDivisorIsOne != 0b0110 {
		t.Errorf("divisor is one = %#b", p.InstanceDivisorIsOne)
	}
	if p.InstanceDivisorIsFetched != 0b1000 {
		t.Errorf("divisor is fetched = %#b", p.InstanceDivisorIsFetched)
	}
	if !k.Mono.IsZero() {
		t.Errorf("aligned fetches need a monolithic compile: %+v", k.Mono)
	}
	if err := k.Validate(abi.StageVertex, abi.Navi10()); err != nil {
		t.Error(err)
	}
}

func TestKeyForVertexMisaligned(t *testing.T) {
	in := VertexInput{Buffers: []gputypes.VertexBufferLayout{{
		ArrayStride: 14,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 2, ShaderLocation: 5},
			{Format: gputypes.VertexFormatUint8x2, Offset: 1, ShaderLocation: 6},
		},
	}}}
	if got := KeyForVertex(abi.Polaris10(), in).Mono.VSFetchOpencode; got != 1<<5 {
		t.Errorf("opencode mask on gfx8 = %#x, want %#x", got, 1<<5)
	}
	if got := KeyForVertex(abi.Vega10(), in).Mono.VSFetchOpencode; got != 0 {
		t.Errorf("opencode mask on gfx9 = %#x, want 0", got)
	}
}

func TestKeyForFragment(t *testing.T) {
	info := psInfo()
	info.ColorsWritten = 0b111
	info.ColorTypes = uint16(abi.ColorUint) << 4
	out := FragmentOutput{
		Targets: []gputypes.ColorTargetState{
			{Format: gputypes.TextureFormatRGBA8Unorm},
			{Format: gputypes.TextureFormatRGBA32Float},
			{Format: gputypes.TextureFormatRGBA8Uint},
			{Format: gputypes.TextureFormatRGBA16Float},
		},
		Multisample:      gputypes.MultisampleState{Count: 4},
		AlphaFunc:        gputypes.CompareFunctionLess,
		AlphaToOne:       true,
		MinSampleShading: 0.5,
	}
	k := KeyForFragment(info, Rasterizer{TwoSideColor: true, ForceSampleInterp: true}, out)

	e := k.Part.PSEpilog
	if e.ColFormat(0) != abi.ColFormatFP16ABGR || e.ColFormat(1) != abi.ColFormat32ABGR ||
		e.ColFormat(2) != abi.ColFormatUint16ABGR {
		t.Errorf("color formats %#x", e.SPIShaderColFormat)
	}
	// Target 3 is not written.
	if e.ColFormat(3) != abi.ColFormatZero || e.LastCBuf != 2 {
		t.Errorf("last cbuf %d, format 3 %#x", e.LastCBuf, e.ColFormat(3))
	}
	if e.ColorIsInt8 != 1<<2 {
		t.Errorf("int8 mask %#b", e.ColorIsInt8)
	}
	if e.AlphaFunc != uint8(gputypes.CompareFunctionLess) || e.Flags&abi.EpilogAlphaToOne == 0 {
		t.Errorf("epilog %+v", e)
	}

	p := k.Part.PSProlog
	want := abi.PrologColorTwoSide | abi.PrologForcePerspSampleInterp | abi.PrologForceLinearSampleInterp
	if p.Flags != want {
		t.Errorf("prolog flags %#x, want %#x", p.Flags, want)
	}
	if p.SamplemaskLogPSIter != 1 {
		t.Errorf("log ps iter = %d, want 1", p.SamplemaskLogPSIter)
	}
	if err := k.Validate(abi.StageFragment, abi.Navi10()); err != nil {
		t.Error(err)
	}
}

func TestKeyForFragmentTypeMismatch(t *testing.T) {
	info := psInfo()
	out := FragmentOutput{
		Targets:     []gputypes.ColorTargetState{{Format: gputypes.TextureFormatRGBA8Uint}},
		Multisample: gputypes.MultisampleState{Count: 1},
		AlphaFunc:   gputypes.CompareFunctionAlways,
		AlphaToOne:  true,
	}
	k := KeyForFragment(info, Rasterizer{ForceSampleInterp: true}, out)
	if k.Part.PSEpilog != (abi.PSEpilogBits{}) {
		t.Errorf("float output to an integer target exported %+v", k.Part.PSEpilog)
	}
	if k.Part.PSProlog.Flags != 0 {
		t.Errorf("single sampled prolog flags %#x", k.Part.PSProlog.Flags)
	}
}

func TestKeyForGeometry(t *testing.T) {
	tri := func(front gputypes.FrontFace, cull gputypes.CullMode) gputypes.PrimitiveState {
		return gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, FrontFace: front, CullMode: cull}
	}
	tests := []struct {
		name  string
		chip  abi.Chip
		flags KeyFlags
		in    GeometryInput
		want  uint8
	}{
		{"back ccw", abi.Navi10(), AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeBack), Cull: true},
			NGGCullEnabled | NGGCullBackFace},
		{"back cw", abi.Navi10(), AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCW, gputypes.CullModeBack), Cull: true},
			NGGCullEnabled | NGGCullFrontFace},
		{"no cull mode", abi.Navi10(), AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeNone), Cull: true},
			NGGCullEnabled},
		{"lines", abi.Navi10(), AsNGG,
			GeometryInput{Primitive: gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyLineList}, Cull: true},
			NGGCullEnabled | NGGCullLines},
		{"points", abi.Navi10(), AsNGG,
			GeometryInput{Primitive: gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyPointList}, Cull: true}, 0},
		{"culling off", abi.Navi10(), AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeBack)}, 0},
		{"legacy pipeline", abi.Navi10(), 0, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeBack), Cull: true}, 0},
		{"es", abi.Navi10(), AsES | AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeBack), Cull: true}, 0},
		{"gfx9", abi.Vega10(), AsNGG, GeometryInput{Primitive: tri(gputypes.FrontFaceCCW, gputypes.CullModeBack), Cull: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := KeyForGeometry(tt.chip, tt.flags, tt.in)
			if k.Opt.NGGCulling != tt.want {
				t.Errorf("culling = %#x, want %#x", k.Opt.NGGCulling, tt.want)
			}
			if k.Flags != tt.flags {
				t.Errorf("flags = %s", k.Flags)
			}
		})
	}

	k := KeyForGeometry(abi.Navi10(), 0, GeometryInput{TriStripAdjacency: true})
	if k.Part.GSProlog.Flags&abi.PrologTriStripAdjFix == 0 {
		t.Error("triangle strip adjacency fix not set")
	}
}

func TestKeyForTessCtrl(t *testing.T) {
	st := TessState{
		PrimMode:            abi.TessPrimQuads,
		InputPatchVertices:  4,
		OutputPatchVertices: 4,
		TESReadsTessFactors: true,
	}

	k := KeyForTessCtrl(abi.Vega10(), 7, st)
	if k.PrevStage != 7 || k.Part.VSProlog.Flags&abi.PrologLSVGPRFix == 0 {
		t.Errorf("gfx9 key %s", k)
	}
	if k.Part.TCSEpilog.PrimMode != abi.TessPrimQuads || k.Part.TCSEpilog.Flags != abi.EpilogTESReadsTessFactors {
		t.Errorf("epilog %+v", k.Part.TCSEpilog)
	}
	if k.Opt.Flags&OptSamePatchVertices == 0 {
		t.Error("matching patch sizes did not set same_patch_vertices")
	}

	if k := KeyForTessCtrl(abi.Navi10(), 7, st); k.PrevStage != 7 || k.Part.VSProlog.Flags != 0 {
		t.Errorf("gfx10 key %s", k)
	}
	if k := KeyForTessCtrl(abi.Polaris10(), 7, st); k.PrevStage != 0 {
		t.Errorf("gfx8 merged stages: %s", k)
	}

	st.OutputPatchVertices = 3
	if k := KeyForTessCtrl(abi.Navi10(), 0, st); k.Opt.Flags&OptSamePatchVertices != 0 {
		t.Error("different patch sizes set same_patch_vertices")
	}
}

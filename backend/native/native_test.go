// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

const drawWGSL = `
struct Params {
    scale: f32,
    mode: u32,
    tint: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;

struct VSOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) color0: vec4<f32>,
    @location(1) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) pos: vec3<f32>, @location(1) uv: vec2<f32>, @builtin(vertex_index) vid: u32) -> VSOut {
    var out: VSOut;
    out.pos = vec4<f32>(pos * params.scale, f32(vid));
    out.color0 = params.tint;
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(@location(0) color0: vec4<f32>, @location(1) @interpolate(linear) uv: vec2<f32>, @builtin(front_facing) front: bool) -> @location(0) vec4<f32> {
    if (params.mode == 1u && uv.x < 0.0) {
        discard;
    }
    var c = color0 * params.scale;
    if (!front) {
        c = vec4<f32>(0.0);
    }
    return vec4<f32>(c.rgb, dpdx(uv.x));
}
`

const reduceWGSL = `
var<workgroup> tile: array<f32, 64>;

@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(8, 8, 1)
fn cs_main(@builtin(local_invocation_index) li: u32, @builtin(workgroup_id) wg: vec3<u32>) {
    tile[li] = data[li + wg.x * 64u];
    workgroupBarrier();
    data[li] = tile[63u - li];
}
`

var spirvMagic = []byte{0x03, 0x02, 0x23, 0x07}

func load(t *testing.T, stage abi.Stage, code, entry string) (*Module, *abi.Info) {
	t.Helper()
	m, info, err := NewProvider().Load(backend.Source{Label: entry, Stage: stage, Code: code, EntryPoint: entry})
	if err != nil {
		t.Fatalf("Load(%s): %v", entry, err)
	}
	return m.(*Module), info
}

// =============================================================================
// Analysis
// =============================================================================

func TestAnalyzeVertex(t *testing.T) {
	_, info := load(t, abi.StageVertex, drawWGSL, "vs_main")

	if info.NumVertexBuffers != 2 || !info.NeedsVSProlog {
		t.Errorf("NumVertexBuffers = %d, NeedsVSProlog = %t", info.NumVertexBuffers, info.NeedsVSProlog)
	}
	if !info.UsesVertexID || info.UsesInstanceID {
		t.Errorf("UsesVertexID = %t, UsesInstanceID = %t", info.UsesVertexID, info.UsesInstanceID)
	}
	if !info.WritesPosition {
		t.Error("WritesPosition = false")
	}
	want := []abi.Semantic{abi.SemanticPosition, abi.SemanticColor0, abi.Generic(1)}
	if len(info.Outputs) != len(want) {
		t.Fatalf("got %d outputs, want %d", len(info.Outputs), len(want))
	}
	for i, s := range want {
		if info.Outputs[i].Semantic != s {
			t.Errorf("output %d = %s, want %s", i, info.Outputs[i].Semantic, s)
		}
	}
	if info.Outputs[2].UsageMask != 0x3 {
		t.Errorf("uv usage mask = %#x, want 0x3", info.Outputs[2].UsageMask)
	}
}

func TestAnalyzeFragment(t *testing.T) {
	_, info := load(t, abi.StageFragment, drawWGSL, "fs_main")

	if len(info.Inputs) != 2 {
		t.Fatalf("got %d inputs, want 2", len(info.Inputs))
	}
	if in := info.Inputs[0]; in.Semantic != abi.SemanticColor0 || in.Interp != abi.InterpPerspCenter {
		t.Errorf("input 0 = %s/%s", in.Semantic, in.Interp)
	}
	if in := info.Inputs[1]; in.Semantic != abi.Generic(1) || in.Interp != abi.InterpLinearCenter {
		t.Errorf("input 1 = %s/%s", in.Semantic, in.Interp)
	}
	if info.ColorsRead != 0xf || info.ColorInterp[0] != abi.InterpPerspCenter {
		t.Errorf("ColorsRead = %#x, ColorInterp[0] = %s", info.ColorsRead, info.ColorInterp[0])
	}
	if !info.UsesFrontFace || !info.UsesDiscard || !info.UsesDerivatives {
		t.Errorf("front face %t, discard %t, derivatives %t", info.UsesFrontFace, info.UsesDiscard, info.UsesDerivatives)
	}
	if info.ColorsWritten != 1 || info.ColorTypeOf(0) != abi.ColorFloat {
		t.Errorf("ColorsWritten = %#x, type %d", info.ColorsWritten, info.ColorTypeOf(0))
	}
	if info.NumInlinableUniforms != 2 {
		t.Errorf("NumInlinableUniforms = %d, want 2", info.NumInlinableUniforms)
	}
}

func TestAnalyzeCompute(t *testing.T) {
	_, info := load(t, abi.StageCompute, reduceWGSL, "cs_main")

	if info.Workgroup != [3]uint32{8, 8, 1} {
		t.Errorf("Workgroup = %v", info.Workgroup)
	}
	if info.LDSBytes != 256 {
		t.Errorf("LDSBytes = %d, want 256", info.LDSBytes)
	}
	if info.UsesBlockID != [3]bool{true, true, true} {
		t.Errorf("UsesBlockID = %v", info.UsesBlockID)
	}
	if info.NumInlinableUniforms != 0 {
		t.Errorf("NumInlinableUniforms = %d, want 0", info.NumInlinableUniforms)
	}
}

func TestLoadErrors(t *testing.T) {
	p := NewProvider()
	tests := []struct {
		name string
		src  backend.Source
		want error
	}{
		{"geometry", backend.Source{Stage: abi.StageGeometry, Code: drawWGSL}, backend.ErrUnsupported},
		{"hull", backend.Source{Stage: abi.StageTessCtrl, Code: drawWGSL}, backend.ErrUnsupported},
		{"missing entry", backend.Source{Stage: abi.StageFragment, Code: drawWGSL, EntryPoint: "nope"}, ErrNoEntryPoint},
		{"no compute", backend.Source{Stage: abi.StageCompute, Code: drawWGSL}, ErrNoEntryPoint},
		{"syntax", backend.Source{Stage: abi.StageFragment, Code: "fn ("}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Load(tt.src)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// =============================================================================
// IR transformations
// =============================================================================

// uniformLoads counts loads of the first uniform in the entry point.
func uniformLoads(m *Module) int {
	g, _, _ := inlinableUniform(m.module)
	fn := &m.module.EntryPoints[m.entry].Function
	n := 0
	for _, e := range fn.Expressions {
		load, ok := e.Kind.(ir.ExprLoad)
		if !ok {
			continue
		}
		p, ok := fn.Expressions[load.Pointer].Kind.(ir.ExprAccessIndex)
		if !ok {
			continue
		}
		if gv, ok := fn.Expressions[p.Base].Kind.(ir.ExprGlobalVariable); ok && gv.Variable == g {
			n++
		}
	}
	return n
}

func TestInlineUniforms(t *testing.T) {
	m, _ := load(t, abi.StageFragment, drawWGSL, "fs_main")
	before := uniformLoads(m)
	if before < 2 {
		t.Fatalf("fragment shader has %d uniform loads, want at least 2", before)
	}

	p := NewProvider()
	out, err := p.InlineUniforms(m, []uint32{math.Float32bits(2), 1})
	if err != nil {
		t.Fatalf("InlineUniforms: %v", err)
	}
	if got := uniformLoads(out.(*Module)); got != before-2 {
		t.Errorf("%d uniform loads left, want %d", got, before-2)
	}
	if uniformLoads(m) != before {
		t.Error("InlineUniforms modified its input")
	}
	if out.Hash() == m.Hash() {
		t.Error("inlined IR has the hash of its input")
	}

	other, _ := p.InlineUniforms(m, []uint32{math.Float32bits(3), 1})
	if other.Hash() == out.Hash() {
		t.Error("different uniform values give equal hashes")
	}
	again, _ := p.InlineUniforms(m, []uint32{math.Float32bits(2), 1})
	if again.Hash() != out.Hash() {
		t.Error("equal uniform values give different hashes")
	}
}

func TestInlineUniformsWithoutUniforms(t *testing.T) {
	m, _ := load(t, abi.StageCompute, reduceWGSL, "cs_main")
	if _, err := NewProvider().InlineUniforms(m, []uint32{1}); !errors.Is(err, ErrNoUniforms) {
		t.Errorf("err = %v, want ErrNoUniforms", err)
	}
}

func TestLowerIsDeterministic(t *testing.T) {
	m, _ := load(t, abi.StageVertex, drawWGSL, "vs_main")
	p := NewProvider()
	a, err := p.Lower(m, false)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	b, _ := p.Lower(m, false)
	c, _ := p.Lower(m, true)
	if a.Hash() != b.Hash() {
		t.Error("Lower is not deterministic")
	}
	if a.Hash() == c.Hash() {
		t.Error("specialized lowering has the generic hash")
	}
}

type foreignIR struct{}

func (foreignIR) Hash() [32]byte      { return [32]byte{} }
func (f foreignIR) Clone() backend.IR { return f }

func TestForeignIR(t *testing.T) {
	p := NewProvider()
	if _, err := p.Lower(foreignIR{}, false); !errors.Is(err, ErrForeignIR) {
		t.Errorf("Lower = %v, want ErrForeignIR", err)
	}
	if _, err := p.InlineUniforms(foreignIR{}, nil); !errors.Is(err, ErrForeignIR) {
		t.Errorf("InlineUniforms = %v, want ErrForeignIR", err)
	}
}

// =============================================================================
// Compiler
// =============================================================================

func mainRequest(t *testing.T, chip abi.Chip, stage abi.Stage, code, entry string) *backend.Request {
	t.Helper()
	m, info := load(t, stage, code, entry)
	l, err := abi.StageLayout(chip, abi.LayoutOptions{Info: info})
	if err != nil {
		t.Fatalf("StageLayout: %v", err)
	}
	return &backend.Request{Label: entry, Stage: stage, Kind: backend.KindMain, IR: m, Info: info, Layout: l, Chip: chip}
}

func TestCompileMain(t *testing.T) {
	chip := abi.Vega10()
	c, err := New().NewCompiler(chip)
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	defer c.Close()

	tests := []struct {
		stage abi.Stage
		code  string
		entry string
	}{
		{abi.StageVertex, drawWGSL, "vs_main"},
		{abi.StageFragment, drawWGSL, "fs_main"},
		{abi.StageCompute, reduceWGSL, "cs_main"},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			req := mainRequest(t, chip, tt.stage, tt.code, tt.entry)
			bin, err := c.Compile(req)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if !bytes.HasPrefix(bin.Code, spirvMagic) {
				t.Error("code is not SPIR-V")
			}
			if len(bin.Relocs) != 0 {
				t.Errorf("got %d relocations, want none", len(bin.Relocs))
			}
			if bin.Entry != tt.entry {
				t.Errorf("Entry = %q", bin.Entry)
			}
			if got, want := bin.Config.NumSGPRs, uint32(req.Layout.NumSGPRs)+vccSGPRs; got != want {
				t.Errorf("NumSGPRs = %d, want %d", got, want)
			}
			if bin.Config.NumVGPRs < uint32(req.Layout.NumVGPRs) {
				t.Errorf("NumVGPRs = %d below the layout's %d", bin.Config.NumVGPRs, req.Layout.NumVGPRs)
			}
			if !strings.Contains(bin.Disasm, tt.entry) {
				t.Errorf("disasm does not name the entry point:\n%s", bin.Disasm)
			}
		})
	}
}

func TestCompileFragmentInputs(t *testing.T) {
	chip := abi.Navi10()
	c, _ := New().NewCompiler(chip)
	bin, err := c.Compile(mainRequest(t, chip, abi.StageFragment, drawWGSL, "fs_main"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := abi.PSInputPerspCenter | abi.PSInputLinearCenter | abi.PSInputFrontFace
	if bin.Config.PSInputEna != want {
		t.Errorf("PSInputEna = %#x, want %#x", bin.Config.PSInputEna, want)
	}
	if bin.Config.MaxSIMDWaves == 0 {
		t.Error("MaxSIMDWaves = 0")
	}
}

func TestCompileComputeLDS(t *testing.T) {
	chip := abi.Polaris10()
	c, _ := New().NewCompiler(chip)
	bin, err := c.Compile(mainRequest(t, chip, abi.StageCompute, reduceWGSL, "cs_main"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if bin.Config.LDSBytes < 256 || bin.Config.LDSBytes%chip.LDSIncrement() != 0 {
		t.Errorf("LDSBytes = %d", bin.Config.LDSBytes)
	}
}

func TestCompileErrors(t *testing.T) {
	chip := abi.Vega10()
	c, _ := New().NewCompiler(chip)
	req := mainRequest(t, chip, abi.StageVertex, drawWGSL, "vs_main")

	gs := *req
	gs.Stage = abi.StageGeometry
	if _, err := c.Compile(&gs); !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("geometry: %v, want ErrUnsupported", err)
	}
	foreign := *req
	foreign.IR = foreignIR{}
	if _, err := c.Compile(&foreign); !errors.Is(err, ErrForeignIR) {
		t.Errorf("foreign IR: %v, want ErrForeignIR", err)
	}
	c.Close()
	if _, err := c.Compile(req); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("closed: %v, want ErrClosed", err)
	}
}

func TestNewCompilerInvalidChip(t *testing.T) {
	if _, err := New().NewCompiler(abi.Chip{}); err == nil {
		t.Error("NewCompiler accepted an empty chip")
	}
}

func TestRegistered(t *testing.T) {
	b := backend.Get(backend.BackendNative)
	if _, ok := b.(*Backend); !ok {
		t.Fatalf("Get(native) = %T", b)
	}
	if _, ok := b.(backend.IRProvider); !ok {
		t.Error("native backend is not an IR provider")
	}
}

// =============================================================================
// Parts
// =============================================================================

func partRequest(t *testing.T, chip abi.Chip, k abi.PartKey) *backend.Request {
	t.Helper()
	l, err := k.Layout(chip)
	if err != nil {
		t.Fatalf("Layout(%s): %v", k.Kind, err)
	}
	return &backend.Request{Label: k.Kind.String(), Stage: k.Stage(), Kind: backend.KindPart, Part: k, Layout: l, Chip: chip}
}

func psEpilogPart() abi.PartKey {
	k := abi.PSEpilogKey{ColorsWritten: 1, WritesZ: true}
	k.States.SetColFormat(0, abi.ColFormatFP16ABGR)
	k.States.AlphaFunc = 2 // less
	k.States.Flags = abi.EpilogClampColor
	return k.Part()
}

func TestPartSource(t *testing.T) {
	chip := abi.Vega10()
	tests := []struct {
		name string
		key  abi.PartKey
		want []string
	}{
		{
			name: "vs prolog",
			key: abi.VSPrologKey{
				States:        abi.VSPrologBits{InstanceDivisorIsOne: 1, InstanceDivisorIsFetched: 2},
				NumInputSGPRs: 8,
				NumInputs:     3,
			}.Part(),
			want: []string{"start + inst;", "max(d1, 1u)", "= vtx;"},
		},
		{
			name: "ps epilog",
			key:  psEpilogPart(),
			want: []string{"a < alpha_ref", "pack2x16float", "clamp(", "mem[96u]"},
		},
		{
			name: "ps prolog two side",
			key: abi.PSPrologKey{
				States:               abi.PSPrologBits{Flags: abi.PrologColorTwoSide},
				ColorsRead:           0xf,
				NumInputSGPRs:        6,
				NumInputVGPRs:        24,
				NumInterpInputs:      2,
				FaceVGPRIndex:        20,
				AncillaryVGPRIndex:   -1,
				ColorAttrIndex:       [2]int8{0, -1},
				ColorInterpVGPRIndex: [2]int8{2, -1},
			}.Part(),
			want: []string{"let attr0 = select(2u, 0u,", "let i0 ="},
		},
		{
			name: "gs prolog",
			key:  abi.GSPrologKey{States: abi.GSPrologBits{Flags: abi.PrologTriStripAdjFix}, NumInputSGPRs: 8}.Part(),
			want: []string{"array<u32, 6>"},
		},
		{
			name: "tcs epilog",
			key: abi.TCSEpilogKey{States: abi.TCSEpilogBits{
				PrimMode: abi.TessPrimQuads,
				Flags:    abi.EpilogInvoc0TessFactorsAreDef,
			}}.Part(),
			want: []string{"== 0u {", "mem[base + 5u]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := partRequest(t, chip, tt.key)
			src, err := partSource(chip, tt.key, req.Layout)
			if err != nil {
				t.Fatalf("partSource: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(src, w) {
					t.Errorf("source lacks %q:\n%s", w, src)
				}
			}
			again, _ := partSource(chip, tt.key, req.Layout)
			if again != src {
				t.Error("source is not deterministic")
			}
		})
	}
}

func TestCompilePartCachesModules(t *testing.T) {
	chip := abi.Vega10()
	b := New()
	c1, _ := b.NewCompiler(chip)
	c2, _ := b.NewCompiler(chip)

	req := partRequest(t, chip, psEpilogPart())
	first, err := c1.Compile(req)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !bytes.HasPrefix(first.Code, spirvMagic) {
		t.Error("part is not SPIR-V")
	}
	second, err := c2.Compile(req)
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if !bytes.Equal(first.Code, second.Code) {
		t.Error("equal parts compiled to different code")
	}
	if hits, misses := b.Modules().Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses, want 1, 1", hits, misses)
	}
	if b.Modules().Size() != 1 {
		t.Errorf("Size() = %d", b.Modules().Size())
	}
}

func TestCompileVSProlog(t *testing.T) {
	chip := abi.Navi10()
	c, _ := New().NewCompiler(chip)
	k := abi.VSPrologKey{
		States:        abi.VSPrologBits{InstanceDivisorIsOne: 1, Flags: abi.PrologUnpackInstanceIDFromVertexID},
		NumInputSGPRs: 8,
		NumInputs:     2,
	}.Part()
	bin, err := c.Compile(partRequest(t, chip, k))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if bin.Entry != "vs_prolog" {
		t.Errorf("Entry = %q", bin.Entry)
	}
	if bin.Config.NumVGPRs == 0 {
		t.Error("part uses no VGPRs")
	}
}

func TestCompileVSPrologFetchedDivisors(t *testing.T) {
	chip := abi.Navi10()
	tests := []struct {
		name   string
		states abi.VSPrologBits
		inputs uint8
	}{
		{"one fetched", abi.VSPrologBits{InstanceDivisorIsFetched: 1}, 1},
		{"mixed", abi.VSPrologBits{InstanceDivisorIsOne: 1, InstanceDivisorIsFetched: 6}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := New().NewCompiler(chip)
			defer c.Close()
			k := abi.VSPrologKey{States: tt.states, NumInputSGPRs: 8, NumInputs: tt.inputs}.Part()
			req := partRequest(t, chip, k)
			src, err := partSource(chip, k, req.Layout)
			if err != nil {
				t.Fatalf("partSource: %v", err)
			}
			if strings.Contains(src, "%!") {
				t.Fatalf("malformed source:\n%s", src)
			}
			bin, err := c.Compile(req)
			if err != nil {
				t.Fatalf("Compile: %v\n%s", err, src)
			}
			if !bytes.HasPrefix(bin.Code, spirvMagic) {
				t.Error("prolog is not SPIR-V")
			}
		})
	}
}

func TestModuleCacheCompileError(t *testing.T) {
	c := NewModuleCache()
	if _, err := c.GetOrCompile("fn broken("); err == nil {
		t.Fatal("GetOrCompile accepted invalid WGSL")
	}
	if c.Size() != 0 {
		t.Error("failed compile was cached")
	}
	c.Clear()
	if c.HitRate() != 0 {
		t.Error("HitRate after Clear != 0")
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
	"github.com/gogpu/variant/upload"
)

// =============================================================================
// Fake IR provider
// =============================================================================

// fakeIR is content-addressed by the source text and the transformations
// applied to it.
type fakeIR struct {
	hash    [32]byte
	inlined []uint32
}

func (ir *fakeIR) Hash() [32]byte { return ir.hash }

func (ir *fakeIR) Clone() backend.IR {
	c := *ir
	c.inlined = append([]uint32(nil), ir.inlined...)
	return &c
}

func (ir *fakeIR) derive(op string, args ...uint32) *fakeIR {
	h := sha256.New()
	h.Write(ir.hash[:])
	fmt.Fprint(h, op, args)
	out := &fakeIR{inlined: ir.inlined}
	copy(out.hash[:], h.Sum(nil))
	return out
}

func vsInfo() *abi.Info {
	return &abi.Info{
		Stage: abi.StageVertex,
		Inputs: []abi.Slot{
			{Semantic: abi.Generic(0), UsageMask: 0x7},
			{Semantic: abi.Generic(1), UsageMask: 0x3},
		},
		Outputs: []abi.Slot{
			{Semantic: abi.SemanticPosition, UsageMask: 0xf},
			{Semantic: abi.SemanticPointSize, UsageMask: 0x1},
			{Semantic: abi.Generic(0), UsageMask: 0x3},
		},
		NumVertexBuffers: 2,
		UsesVertexID:     true,
		WritesPosition:   true,
		WritesPointSize:  true,
		NeedsVSProlog:    true,
	}
}

func psInfo() *abi.Info {
	return &abi.Info{
		Stage: abi.StageFragment,
		Inputs: []abi.Slot{
			{Semantic: abi.SemanticColor0, Interp: abi.InterpColor, UsageMask: 0xf},
			{Semantic: abi.Generic(0), Interp: abi.InterpPerspCenter, UsageMask: 0x3},
		},
		ColorsRead:           0xf,
		ColorInterp:          [2]abi.Interp{abi.InterpColor},
		UsesFrontFace:        true,
		ColorsWritten:        1,
		NumInlinableUniforms: 2,
	}
}

func csInfo() *abi.Info {
	return &abi.Info{
		Stage:       abi.StageCompute,
		Workgroup:   [3]uint32{64, 1, 1},
		UsesBlockID: [3]bool{true, false, false},
		LDSBytes:    1024,
	}
}

func tcsInfo() *abi.Info {
	return &abi.Info{
		Stage:            abi.StageTessCtrl,
		Inputs:           []abi.Slot{{Semantic: abi.Generic(0), UsageMask: 0x3}},
		Outputs:          []abi.Slot{{Semantic: abi.SemanticTessOuter, UsageMask: 0xf}, {Semantic: abi.SemanticTessInner, UsageMask: 0x3}},
		UsesInvocationID: true,
	}
}

// sources maps the source text of a fake shader to its analysis.
var sources = map[string]func() *abi.Info{
	"vs":  vsInfo,
	"vs2": vsInfo,
	"ps":  psInfo,
	"ps2": psInfo,
	"cs":  csInfo,
	"tcs": tcsInfo,
}

type fakeProvider struct{}

func (fakeProvider) Load(src backend.Source) (backend.IR, *abi.Info, error) {
	info, ok := sources[src.Code]
	if !ok {
		return nil, nil, fmt.Errorf("fake: no shader %q", src.Code)
	}
	return &fakeIR{hash: sha256.Sum256([]byte(src.Code))}, info(), nil
}

func (fakeProvider) Lower(in backend.IR, specialize bool) (backend.IR, error) {
	var flag uint32
	if specialize {
		flag = 1
	}
	return in.(*fakeIR).derive("lower", flag), nil
}

func (fakeProvider) InlineUniforms(in backend.IR, values []uint32) (backend.IR, error) {
	out := in.(*fakeIR).derive("inline", values...)
	out.inlined = append([]uint32(nil), values...)
	return out, nil
}

// =============================================================================
// Fake backend
// =============================================================================

var errInjected = errors.New("fake: injected failure")

// fakeBackend produces deterministic code whose bytes identify the
// request. Hooks let tests fail or hold compiles.
type fakeBackend struct {
	fakeProvider

	mu       sync.Mutex
	compiles map[string]int
	// fail rejects matching requests.
	fail func(req *backend.Request) bool
	// gate holds compiles of inlined IR until it is closed.
	gate chan struct{}
	// config overrides the configuration of matching requests.
	config func(req *backend.Request, c *abi.Config)
	logger *slog.Logger
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{compiles: make(map[string]int)}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) NewCompiler(chip abi.Chip) (backend.Compiler, error) {
	return &fakeCompiler{b: b}, nil
}

// count returns how many compiles of name ran; name is a part kind,
// "main", "cull" or a selector label.
func (b *fakeBackend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compiles[name]
}

func (b *fakeBackend) SetLogger(l *slog.Logger) {
	b.mu.Lock()
	b.logger = l
	b.mu.Unlock()
}

func (b *fakeBackend) currentLogger() *slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

func (b *fakeBackend) setFail(fail func(req *backend.Request) bool) {
	b.mu.Lock()
	b.fail = fail
	b.mu.Unlock()
}

type fakeCompiler struct {
	b      *fakeBackend
	closed bool
}

func (c *fakeCompiler) Close() { c.closed = true }

func (c *fakeCompiler) Compile(req *backend.Request) (*backend.Binary, error) {
	if c.closed {
		return nil, backend.ErrClosed
	}
	b := c.b
	if ir, ok := req.IR.(*fakeIR); ok && ir.inlined != nil && b.gate != nil {
		<-b.gate
	}

	b.mu.Lock()
	name := req.Kind.String()
	if req.Kind == backend.KindPart {
		name = req.Part.Kind.String()
	}
	b.compiles[name]++
	if req.Kind != backend.KindPart {
		b.compiles[req.Label]++
	}
	fail := b.fail
	cfgHook := b.config
	b.mu.Unlock()

	if fail != nil && fail(req) {
		return nil, errInjected
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%+v", req.Stage, req.Kind, req.Part, req.Layout.Signature(), req.Spec)
	if req.IR != nil {
		ir := req.IR.Hash()
		h.Write(ir[:])
	}
	code := h.Sum(nil)

	cfg := abi.Config{
		NumSGPRs: uint32(max(req.Layout.NumSGPRs, req.Layout.NumRetSGPRs)),
		NumVGPRs: uint32(max(req.Layout.NumVGPRs, req.Layout.NumRetVGPRs)),
	}
	if req.Info != nil {
		cfg.LDSBytes = req.Info.LDSBytes
	}
	if cfgHook != nil {
		cfgHook(req, &cfg)
	}
	return &backend.Binary{
		Code:   code,
		Entry:  name,
		Config: cfg,
		Disasm: "; " + name,
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

type testScreen struct {
	*Screen
	b   *fakeBackend
	mem *upload.Memory
}

func newTestScreen(t *testing.T, opts ...ScreenOption) *testScreen {
	t.Helper()
	b := newFakeBackend()
	mem := upload.NewMemory()
	opts = append([]ScreenOption{
		WithBackend(b),
		WithUploader(mem),
		WithWorkers(2),
		WithPassBadShaders(true),
	}, opts...)
	s, err := NewScreen(opts...)
	if err != nil {
		t.Fatalf("NewScreen: %v", err)
	}
	t.Cleanup(s.Close)
	return &testScreen{Screen: s, b: b, mem: mem}
}

func (ts *testScreen) selector(t *testing.T, code string, stage abi.Stage) *Selector {
	t.Helper()
	sel, err := ts.NewSelector(backend.Source{Label: code, Stage: stage, Code: code})
	if err != nil {
		t.Fatalf("NewSelector(%s): %v", code, err)
	}
	if err := sel.Ready().Wait(context.Background()); err != nil {
		t.Fatalf("initial compile of %s: %v", code, err)
	}
	return sel
}

func (ts *testScreen) mustSelect(t *testing.T, sel *Selector, k Key) *Shader {
	t.Helper()
	sh, err := ts.Select(context.Background(), sel, k)
	if err != nil {
		t.Fatalf("Select(%s, %s): %v", sel.Label(), k, err)
	}
	return sh
}

func psKey() Key {
	var k Key
	k.Part.PSEpilog.SetColFormat(0, abi.ColFormatFP16ABGR)
	return k
}

// waitOptimized polls until the optimized variant for k is built.
func (ts *testScreen) waitOptimized(t *testing.T, sel *Selector, k Key) *Shader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		sh, err := ts.SelectOptimized(ctx, sel, k)
		if err == nil {
			return sh
		}
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("SelectOptimized: %v", err)
		}
		select {
		case <-ctx.Done():
			t.Fatal("optimized variant never became ready")
		case <-time.After(time.Millisecond):
		}
	}
}

func segmentNames(sh *Shader) []string {
	var names []string
	for _, s := range sh.Image().Segments {
		names = append(names, s.Name)
	}
	return names
}

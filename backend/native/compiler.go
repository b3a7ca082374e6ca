// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend { return New() })
}

// Backend compiles WGSL through naga into SPIR-V. It is also the WGSL
// IR provider, so a screen using it needs no separate provider.
type Backend struct {
	Provider
	modules *ModuleCache
}

// New returns a native backend with an empty module cache.
func New() *Backend {
	return &Backend{modules: NewModuleCache()}
}

// Name returns "native".
func (b *Backend) Name() string { return backend.BackendNative }

// Modules returns the cache of generated part modules.
func (b *Backend) Modules() *ModuleCache { return b.modules }

// SetLogger sets the logger of the native backend.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// NewCompiler returns a compiler for chip.
func (b *Backend) NewCompiler(chip abi.Chip) (backend.Compiler, error) {
	if err := chip.Validate(); err != nil {
		return nil, err
	}
	return &Compiler{chip: chip, modules: b.modules}, nil
}

// Compiler compiles requests for one chip. It is used by one goroutine at
// a time; the module cache it shares with other compilers is safe for
// concurrent use.
type Compiler struct {
	chip    abi.Chip
	modules *ModuleCache
	closed  bool
}

// Close releases the compiler. Compile fails afterwards.
func (c *Compiler) Close() { c.closed = true }

// Compile compiles one request.
func (c *Compiler) Compile(req *backend.Request) (*backend.Binary, error) {
	if c.closed {
		return nil, backend.ErrClosed
	}
	if req.Layout == nil {
		return nil, fmt.Errorf("native: %s: request without layout", req.Label)
	}
	switch req.Kind {
	case backend.KindPart:
		return c.compilePart(req)
	case backend.KindMain, backend.KindCull:
		return c.compileMain(req)
	}
	return nil, fmt.Errorf("%w: kind %s", backend.ErrUnsupported, req.Kind)
}

func (c *Compiler) compilePart(req *backend.Request) (*backend.Binary, error) {
	src, err := partSource(c.chip, req.Part, req.Layout)
	if err != nil {
		return nil, err
	}
	code, err := c.modules.GetOrCompile(src)
	if err != nil {
		return nil, fmt.Errorf("native: %s: %w", req.Label, err)
	}
	cfg := partConfig(req)
	slogger().Debug("native: compiled part", "label", req.Label, "kind", req.Part.Kind.String(), "bytes", len(code))
	return &backend.Binary{
		Code:   code,
		Entry:  req.Part.Kind.String(),
		Config: cfg,
		Disasm: fmt.Sprintf("; %s %s\n; %s\n%s", req.Label, req.Layout.Signature(), cfg, src),
	}, nil
}

func (c *Compiler) compileMain(req *backend.Request) (*backend.Binary, error) {
	switch req.Stage {
	case abi.StageTessCtrl, abi.StageGeometry:
		return nil, fmt.Errorf("%w: %s has no WGSL form", backend.ErrUnsupported, req.Stage)
	}
	m, ok := req.IR.(*Module)
	if !ok {
		return nil, ErrForeignIR
	}
	if req.Info == nil {
		return nil, fmt.Errorf("native: %s: request without shader info", req.Label)
	}

	// Compile only the requested entry point.
	module := cloneModule(m.module)
	ep := module.EntryPoints[m.entry]
	module.EntryPoints = []ir.EntryPoint{ep}
	ir.CompactUnused(module)

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("native: %s: %w", req.Label, err)
	}
	fn := &module.EntryPoints[0].Function
	cfg := mainConfig(req, module, fn)

	slogger().Debug("native: compiled",
		"label", req.Label,
		"stage", req.Stage.String(),
		"kind", req.Kind.String(),
		"bytes", len(code),
		"vgprs", cfg.NumVGPRs)
	return &backend.Binary{
		Code:   code,
		Entry:  ep.Name,
		Config: cfg,
		Disasm: mainDisasm(req, ep.Name, len(code), cfg),
	}, nil
}

// mainDisasm is a readable summary of a compiled body. The SPIR-V itself
// is left to spirv-dis.
func mainDisasm(req *backend.Request, entry string, size int, cfg abi.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s %s %s entry=%s spirv=%d bytes\n", req.Label, req.Stage, req.Kind, entry, size)
	fmt.Fprintf(&sb, "; %s\n", req.Layout.Signature())
	fmt.Fprintf(&sb, "; %s\n", cfg)
	s := req.Spec
	var hw []string
	if s.AsLS {
		hw = append(hw, "ls")
	}
	if s.AsES {
		hw = append(hw, "es")
	}
	if s.AsNGG {
		hw = append(hw, "ngg")
	}
	if len(hw) > 0 {
		fmt.Fprintf(&sb, "; as %s\n", strings.Join(hw, "+"))
	}
	if s.KillOutputs != 0 || s.KillClipDistances != 0 || s.KillPointSize {
		fmt.Fprintf(&sb, "; kill outputs=%#x clip=%#x psize=%t\n", s.KillOutputs, s.KillClipDistances, s.KillPointSize)
	}
	if s.NGGCulling != 0 {
		fmt.Fprintf(&sb, "; ngg culling=%#x\n", s.NGGCulling)
	}
	if s.VSFetchOpencode != 0 {
		fmt.Fprintf(&sb, "; fetch opencode=%#x\n", s.VSFetchOpencode)
	}
	if cfg.PSInputEna != 0 {
		fmt.Fprintf(&sb, "; ps_input_ena=%#x\n", uint32(cfg.PSInputEna))
	}
	return sb.String()
}

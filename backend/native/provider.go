// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// Module is the IR of one WGSL entry point. It is never mutated after it
// is returned: transformations clone the naga module first.
type Module struct {
	module *ir.Module
	entry  int
	stage  abi.Stage
	hash   [32]byte
}

// Hash identifies the module content. It is derived from the source text
// and the chain of transformations applied to it.
func (m *Module) Hash() [32]byte { return m.hash }

// Clone returns a copy whose naga module can be transformed independently.
func (m *Module) Clone() backend.IR {
	return &Module{
		module: cloneModule(m.module),
		entry:  m.entry,
		stage:  m.stage,
		hash:   m.hash,
	}
}

// EntryPoint returns the naga entry point the module compiles.
func (m *Module) EntryPoint() *ir.EntryPoint { return &m.module.EntryPoints[m.entry] }

// Stage returns the stage the module was loaded as.
func (m *Module) Stage() abi.Stage { return m.stage }

// derive returns the hash of m after a transformation named op.
func (m *Module) derive(op string, args ...uint32) [32]byte {
	h := sha256.New()
	h.Write(m.hash[:])
	h.Write([]byte(op))
	var w [4]byte
	for _, a := range args {
		binary.LittleEndian.PutUint32(w[:], a)
		h.Write(w[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Provider loads WGSL through naga. It implements backend.IRProvider.
type Provider struct{}

// NewProvider returns a WGSL provider.
func NewProvider() *Provider { return &Provider{} }

// Load parses, lowers and validates src and analyzes the selected entry
// point.
//
// WGSL has vertex, fragment and compute entry points. A vertex entry point
// may be loaded as a tessellation evaluation shader, which reads the
// patch-relative vertex index in place of the vertex id. Hull and geometry
// shaders have no WGSL form.
func (p *Provider) Load(src backend.Source) (backend.IR, *abi.Info, error) {
	want, err := nagaStage(src.Stage)
	if err != nil {
		return nil, nil, err
	}
	ast, err := naga.Parse(src.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("native: %s: %w", src.Label, err)
	}
	module, err := naga.LowerWithSource(ast, src.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("native: %s: %w", src.Label, err)
	}
	if err := validate(module); err != nil {
		return nil, nil, fmt.Errorf("native: %s: %w", src.Label, err)
	}

	entry := -1
	for i, ep := range module.EntryPoints {
		if ep.Stage == want && (src.EntryPoint == "" || ep.Name == src.EntryPoint) {
			entry = i
			break
		}
	}
	if entry < 0 {
		return nil, nil, fmt.Errorf("%w: %s %s %q", ErrNoEntryPoint, src.Label, src.Stage, src.EntryPoint)
	}

	info, err := analyze(module, entry, src.Stage)
	if err != nil {
		return nil, nil, fmt.Errorf("native: %s: %w", src.Label, err)
	}

	h := sha256.New()
	h.Write([]byte{byte(src.Stage)})
	h.Write([]byte(module.EntryPoints[entry].Name))
	h.Write([]byte{0})
	h.Write([]byte(src.Code))
	m := &Module{module: module, entry: entry, stage: src.Stage}
	copy(m.hash[:], h.Sum(nil))

	slogger().Debug("native: loaded",
		"label", src.Label,
		"stage", src.Stage.String(),
		"entry", module.EntryPoints[entry].Name,
		"inputs", len(info.Inputs),
		"outputs", len(info.Outputs),
		"inlinable_uniforms", info.NumInlinableUniforms)
	return m, info, nil
}

// Lower inlines helper functions and removes unused expressions and
// globals. With specialize set the module was changed for one variant and
// constants folded by the rewrite are compacted as well.
func (p *Provider) Lower(in backend.IR, specialize bool) (backend.IR, error) {
	m, ok := in.(*Module)
	if !ok {
		return nil, ErrForeignIR
	}
	out := m.Clone().(*Module)
	if err := ir.InlineUserFunctions(out.module, nil); err != nil {
		return nil, fmt.Errorf("native: inline functions: %w", err)
	}
	ir.CompactExpressions(out.module)
	if specialize {
		ir.CompactUnused(out.module)
		ir.CompactConstants(out.module)
	}
	var flag uint32
	if specialize {
		flag = 1
	}
	out.hash = m.derive("lower", flag)
	return out, nil
}

// InlineUniforms replaces loads of the leading uniform dwords with
// literals.
func (p *Provider) InlineUniforms(in backend.IR, values []uint32) (backend.IR, error) {
	m, ok := in.(*Module)
	if !ok {
		return nil, ErrForeignIR
	}
	out := m.Clone().(*Module)
	n, err := inlineUniforms(out.module, out.entry, values)
	if err != nil {
		return nil, err
	}
	out.hash = m.derive("inline", values...)
	slogger().Debug("native: inlined uniforms", "values", len(values), "loads", n)
	return out, nil
}

// nagaStage returns the WGSL entry point stage a pipeline stage loads from.
func nagaStage(s abi.Stage) (ir.ShaderStage, error) {
	switch s {
	case abi.StageVertex, abi.StageTessEval:
		return ir.StageVertex, nil
	case abi.StageFragment:
		return ir.StageFragment, nil
	case abi.StageCompute:
		return ir.StageCompute, nil
	}
	return 0, fmt.Errorf("%w: %s has no WGSL entry point", backend.ErrUnsupported, s)
}

// validate runs the naga validator and reports its first error.
func validate(module *ir.Module) error {
	errs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w (and %d more)", ErrValidation, &errs[0], len(errs)-1)
	}
	return nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/variant/abi"
)

// maxVertexBuffers bounds the vertex buffers one vertex shader can fetch.
const maxVertexBuffers = 16

// ioVar is one bound entry point input or output after struct members
// are flattened.
type ioVar struct {
	name    string
	typ     ir.TypeHandle
	binding ir.Binding
}

// flatten appends the bound values of a parameter or result of type typ.
func flatten(m *ir.Module, name string, typ ir.TypeHandle, b *ir.Binding, out []ioVar) []ioVar {
	if b != nil {
		return append(out, ioVar{name: name, typ: typ, binding: *b})
	}
	if st, ok := m.Types[typ].Inner.(ir.StructType); ok {
		for _, mem := range st.Members {
			out = flatten(m, mem.Name, mem.Type, mem.Binding, out)
		}
	}
	return out
}

// analyze computes the static analysis of entry point index entry.
func analyze(m *ir.Module, entry int, stage abi.Stage) (*abi.Info, error) {
	ep := &m.EntryPoints[entry]
	fn := &ep.Function
	info := &abi.Info{Stage: stage}

	var inputs, outputs []ioVar
	for _, arg := range fn.Arguments {
		inputs = flatten(m, arg.Name, arg.Type, arg.Binding, inputs)
	}
	if fn.Result != nil {
		outputs = flatten(m, "", fn.Result.Type, fn.Result.Binding, outputs)
	}

	type located struct {
		loc  uint32
		slot abi.Slot
	}
	var locIn, locOut []located

	for _, v := range inputs {
		switch b := v.binding.(type) {
		case ir.BuiltinBinding:
			inputBuiltin(info, b.Builtin)
		case ir.LocationBinding:
			slot := abi.Slot{Semantic: semanticOf(v.name, b.Location), UsageMask: usageMask(m, v.typ)}
			if stage == abi.StageFragment {
				slot.Interp = interpOf(m, v.typ, b.Interpolation)
				switch slot.Semantic {
				case abi.SemanticColor0:
					info.ColorsRead |= slot.UsageMask
					info.ColorInterp[0] = slot.Interp
				case abi.SemanticColor1:
					info.ColorsRead |= slot.UsageMask << 4
					info.ColorInterp[1] = slot.Interp
				}
			}
			locIn = append(locIn, located{b.Location, slot})
		}
	}

	for _, v := range outputs {
		switch b := v.binding.(type) {
		case ir.BuiltinBinding:
			outputBuiltin(m, info, b.Builtin, v.typ)
		case ir.LocationBinding:
			if stage == abi.StageFragment {
				if b.Location >= 8 {
					return nil, fmt.Errorf("color target %d out of range", b.Location)
				}
				info.ColorsWritten |= 1 << b.Location
				info.ColorTypes |= uint16(colorType(m, v.typ)) << (2 * b.Location)
				continue
			}
			slot := abi.Slot{Semantic: semanticOf(v.name, b.Location), UsageMask: usageMask(m, v.typ)}
			locOut = append(locOut, located{b.Location, slot})
		}
	}

	byLoc := func(a, b located) int { return cmp.Compare(a.loc, b.loc) }
	slices.SortFunc(locIn, byLoc)
	slices.SortFunc(locOut, byLoc)
	for _, l := range locIn {
		info.Inputs = append(info.Inputs, l.slot)
	}
	if info.WritesPosition {
		info.Outputs = append(info.Outputs, abi.Slot{Semantic: abi.SemanticPosition, UsageMask: 0xf})
	}
	if info.WritesPointSize {
		info.Outputs = append(info.Outputs, abi.Slot{Semantic: abi.SemanticPointSize, UsageMask: 1})
	}
	if info.WritesClipDistance != 0 {
		info.Outputs = append(info.Outputs, abi.Slot{Semantic: abi.SemanticClipDist0, UsageMask: info.WritesClipDistance & 0xf})
		if info.WritesClipDistance>>4 != 0 {
			info.Outputs = append(info.Outputs, abi.Slot{Semantic: abi.SemanticClipDist1, UsageMask: info.WritesClipDistance >> 4})
		}
	}
	for _, l := range locOut {
		info.Outputs = append(info.Outputs, l.slot)
	}

	switch stage {
	case abi.StageVertex:
		if len(locIn) > 0 {
			info.NumVertexBuffers = uint8(min(locIn[len(locIn)-1].loc+1, maxVertexBuffers))
			info.NeedsVSProlog = true
		}
	case abi.StageFragment:
		w := &walker{module: m}
		w.block(fn.Body)
		info.UsesDiscard = w.discard
		info.UsesDerivatives = w.derivatives || usesImplicitLOD(fn)
	case abi.StageCompute:
		info.Workgroup = ep.Workgroup
	}

	for _, g := range m.GlobalVariables {
		if g.Space == ir.SpaceWorkGroup {
			info.LDSBytes += abi.AlignUp(ir.TypeSize(m, g.Type), 4)
		}
	}
	if _, n, ok := inlinableUniform(m); ok {
		info.NumInlinableUniforms = uint8(n)
	}

	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

func inputBuiltin(info *abi.Info, b ir.BuiltinValue) {
	switch b {
	case ir.BuiltinVertexIndex:
		info.UsesVertexID = true
	case ir.BuiltinInstanceIndex:
		info.UsesInstanceID = true
	case ir.BuiltinPrimitiveIndex:
		info.UsesPrimID = true
	case ir.BuiltinPosition:
		info.ReadsPosition = 0xf
	case ir.BuiltinFrontFacing:
		info.UsesFrontFace = true
	case ir.BuiltinSampleIndex:
		info.UsesSampleID = true
	case ir.BuiltinSampleMask:
		info.UsesSampleMaskIn = true
	case ir.BuiltinWorkGroupID:
		info.UsesBlockID = [3]bool{true, true, true}
	case ir.BuiltinNumWorkGroups:
		info.UsesGridSize = true
	case ir.BuiltinGlobalInvocationID:
		info.UsesBlockID = [3]bool{true, true, true}
	case ir.BuiltinSubgroupSize, ir.BuiltinSubgroupInvocationID, ir.BuiltinSubgroupID, ir.BuiltinNumSubgroups:
		info.UsesSubgroupInfo = true
	}
}

func outputBuiltin(m *ir.Module, info *abi.Info, b ir.BuiltinValue, typ ir.TypeHandle) {
	switch b {
	case ir.BuiltinPosition:
		info.WritesPosition = true
	case ir.BuiltinPointSize:
		info.WritesPointSize = true
	case ir.BuiltinClipDistance:
		n := uint32(1)
		if arr, ok := m.Types[typ].Inner.(ir.ArrayType); ok && arr.Size.Constant != nil {
			n = min(*arr.Size.Constant, 8)
		}
		info.WritesClipDistance = uint8(1<<n - 1)
	case ir.BuiltinFragDepth:
		info.WritesZ = true
	case ir.BuiltinSampleMask:
		info.WritesSamplemask = true
	}
}

// semanticOf names a location-bound value. Values named color0, color1,
// bcolor0 and bcolor1 carry the legacy color semantics that the fragment
// prolog interpolates and two-side selects; every other location is a
// generic varying.
func semanticOf(name string, loc uint32) abi.Semantic {
	switch strings.ToLower(name) {
	case "color0":
		return abi.SemanticColor0
	case "color1":
		return abi.SemanticColor1
	case "bcolor0":
		return abi.SemanticBackColor0
	case "bcolor1":
		return abi.SemanticBackColor1
	}
	return abi.Generic(int(loc))
}

func interpOf(m *ir.Module, typ ir.TypeHandle, in *ir.Interpolation) abi.Interp {
	if in == nil {
		if s, ok := scalarOf(m, typ); ok && s.Kind != ir.ScalarFloat {
			return abi.InterpFlat
		}
		return abi.InterpPerspCenter
	}
	switch in.Kind {
	case ir.InterpolationFlat:
		return abi.InterpFlat
	case ir.InterpolationLinear:
		switch in.Sampling {
		case ir.SamplingCentroid:
			return abi.InterpLinearCentroid
		case ir.SamplingSample:
			return abi.InterpLinearSample
		}
		return abi.InterpLinearCenter
	}
	switch in.Sampling {
	case ir.SamplingCentroid:
		return abi.InterpPerspCentroid
	case ir.SamplingSample:
		return abi.InterpPerspSample
	}
	return abi.InterpPerspCenter
}

func scalarOf(m *ir.Module, typ ir.TypeHandle) (ir.ScalarType, bool) {
	switch t := m.Types[typ].Inner.(type) {
	case ir.ScalarType:
		return t, true
	case ir.VectorType:
		return t.Scalar, true
	}
	return ir.ScalarType{}, false
}

func usageMask(m *ir.Module, typ ir.TypeHandle) uint8 {
	switch t := m.Types[typ].Inner.(type) {
	case ir.ScalarType:
		return 1
	case ir.VectorType:
		return uint8(1<<t.Size - 1)
	}
	return 0xf
}

func colorType(m *ir.Module, typ ir.TypeHandle) abi.ColorType {
	s, _ := scalarOf(m, typ)
	switch s.Kind {
	case ir.ScalarSint:
		return abi.ColorSint
	case ir.ScalarUint:
		return abi.ColorUint
	}
	return abi.ColorFloat
}

// walker scans a function body for fragment side effects.
type walker struct {
	module      *ir.Module
	discard     bool
	derivatives bool
	seen        map[ir.FunctionHandle]bool
}

func (w *walker) block(b ir.Block) {
	for _, s := range b {
		switch k := s.Kind.(type) {
		case ir.StmtKill:
			w.discard = true
		case ir.StmtBlock:
			w.block(k.Block)
		case ir.StmtIf:
			w.block(k.Accept)
			w.block(k.Reject)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				w.block(c.Body)
			}
		case ir.StmtLoop:
			w.block(k.Body)
			w.block(k.Continuing)
		case ir.StmtCall:
			w.call(k.Function)
		}
	}
}

// call follows calls into helper functions, which may discard or take
// derivatives on behalf of the entry point.
func (w *walker) call(h ir.FunctionHandle) {
	if w.seen == nil {
		w.seen = make(map[ir.FunctionHandle]bool)
	}
	if w.seen[h] || int(h) >= len(w.module.Functions) {
		return
	}
	w.seen[h] = true
	callee := &w.module.Functions[h]
	if usesImplicitLOD(callee) {
		w.derivatives = true
	}
	w.block(callee.Body)
}

// usesImplicitLOD reports whether fn computes derivatives, explicitly or
// through a sample with automatic level of detail.
func usesImplicitLOD(fn *ir.Function) bool {
	for _, e := range fn.Expressions {
		switch k := e.Kind.(type) {
		case ir.ExprDerivative:
			return true
		case ir.ExprImageSample:
			switch k.Level.(type) {
			case ir.SampleLevelAuto, ir.SampleLevelBias:
				return true
			}
		}
	}
	return false
}

// inlinableUniform returns the uniform buffer whose leading members can be
// replaced by constants, and how many members qualify. The buffer is the
// uniform with the lowest group and binding; its qualifying members are
// the leading 32-bit scalars packed one per dword.
func inlinableUniform(m *ir.Module) (ir.GlobalVariableHandle, int, bool) {
	best := -1
	for i, g := range m.GlobalVariables {
		if g.Space != ir.SpaceUniform || g.Binding == nil {
			continue
		}
		if best < 0 || resourceLess(g.Binding, m.GlobalVariables[best].Binding) {
			best = i
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	n := 0
	switch t := m.Types[m.GlobalVariables[best].Type].Inner.(type) {
	case ir.ScalarType:
		if t.Width == 4 && t.Kind != ir.ScalarBool {
			n = 1
		}
	case ir.StructType:
		for i, mem := range t.Members {
			s, ok := m.Types[mem.Type].Inner.(ir.ScalarType)
			if !ok || s.Width != 4 || s.Kind == ir.ScalarBool || mem.Offset != uint32(4*i) {
				break
			}
			n++
		}
	}
	n = min(n, abi.MaxInlinableUniforms)
	return ir.GlobalVariableHandle(best), n, n > 0
}

func resourceLess(a, b *ir.ResourceBinding) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Binding < b.Binding
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"math"

	"github.com/gogpu/naga/ir"
)

// inlineUniforms rewrites loads of the leading dwords of the inlinable
// uniform buffer into literals and returns how many loads were replaced.
// Values beyond the inlinable members are ignored.
func inlineUniforms(m *ir.Module, entry int, values []uint32) (int, error) {
	g, n, ok := inlinableUniform(m)
	if !ok {
		return 0, ErrNoUniforms
	}
	values = values[:min(len(values), n)]

	count := rewriteLoads(m, &m.EntryPoints[entry].Function, g, values)
	for i := range m.Functions {
		count += rewriteLoads(m, &m.Functions[i], g, values)
	}
	return count, nil
}

// rewriteLoads replaces Load(AccessIndex(uniform, i)) and, for a scalar
// uniform, Load(uniform) in fn.
func rewriteLoads(m *ir.Module, fn *ir.Function, g ir.GlobalVariableHandle, values []uint32) int {
	isUniform := func(h ir.ExpressionHandle) bool {
		gv, ok := fn.Expressions[h].Kind.(ir.ExprGlobalVariable)
		return ok && gv.Variable == g
	}
	var members []ir.StructMember
	scalar, isScalar := m.Types[m.GlobalVariables[g].Type].Inner.(ir.ScalarType)
	if st, ok := m.Types[m.GlobalVariables[g].Type].Inner.(ir.StructType); ok {
		members = st.Members
	}

	count := 0
	for i, e := range fn.Expressions {
		load, ok := e.Kind.(ir.ExprLoad)
		if !ok {
			continue
		}
		switch p := fn.Expressions[load.Pointer].Kind.(type) {
		case ir.ExprGlobalVariable:
			if p.Variable == g && isScalar && len(values) > 0 {
				fn.Expressions[i].Kind = literal(scalar.Kind, values[0])
				count++
			}
		case ir.ExprAccessIndex:
			if !isUniform(p.Base) || int(p.Index) >= len(values) || int(p.Index) >= len(members) {
				continue
			}
			s := m.Types[members[p.Index].Type].Inner.(ir.ScalarType)
			fn.Expressions[i].Kind = literal(s.Kind, values[p.Index])
			count++
		}
	}
	return count
}

func literal(kind ir.ScalarKind, bits uint32) ir.Literal {
	switch kind {
	case ir.ScalarSint:
		return ir.Literal{Value: ir.LiteralI32(int32(bits))}
	case ir.ScalarFloat:
		return ir.Literal{Value: ir.LiteralF32(math.Float32frombits(bits))}
	}
	return ir.Literal{Value: ir.LiteralU32(bits)}
}

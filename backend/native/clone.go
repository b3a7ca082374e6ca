// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"slices"

	"github.com/gogpu/naga/ir"
)

// cloneModule copies everything the compaction and inlining passes
// rewrite. ir.CloneModuleForOverrides copies expressions and the top
// level of each body; nested blocks, struct members and globals are
// copied here.
func cloneModule(src *ir.Module) *ir.Module {
	dst := ir.CloneModuleForOverrides(src)
	dst.Types = slices.Clone(src.Types)
	for i, t := range dst.Types {
		if st, ok := t.Inner.(ir.StructType); ok {
			st.Members = slices.Clone(st.Members)
			dst.Types[i].Inner = st
		}
	}
	dst.GlobalVariables = slices.Clone(src.GlobalVariables)
	for i := range dst.Functions {
		dst.Functions[i].Body = cloneBlock(dst.Functions[i].Body)
		dst.Functions[i].Arguments = slices.Clone(dst.Functions[i].Arguments)
	}
	for i := range dst.EntryPoints {
		dst.EntryPoints[i].Function.Body = cloneBlock(dst.EntryPoints[i].Function.Body)
		dst.EntryPoints[i].Function.Arguments = slices.Clone(dst.EntryPoints[i].Function.Arguments)
	}
	return dst
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBlock(b ir.Block) ir.Block {
	if b == nil {
		return nil
	}
	out := make(ir.Block, len(b))
	for i, s := range b {
		switch k := s.Kind.(type) {
		case ir.StmtBlock:
			k.Block = cloneBlock(k.Block)
			s.Kind = k
		case ir.StmtIf:
			k.Accept = cloneBlock(k.Accept)
			k.Reject = cloneBlock(k.Reject)
			s.Kind = k
		case ir.StmtSwitch:
			k.Cases = slices.Clone(k.Cases)
			for j := range k.Cases {
				k.Cases[j].Body = cloneBlock(k.Cases[j].Body)
			}
			s.Kind = k
		case ir.StmtLoop:
			k.Body = cloneBlock(k.Body)
			k.Continuing = cloneBlock(k.Continuing)
			k.BreakIf = clonePtr(k.BreakIf)
			s.Kind = k
		case ir.StmtReturn:
			k.Value = clonePtr(k.Value)
			s.Kind = k
		case ir.StmtCall:
			k.Arguments = slices.Clone(k.Arguments)
			k.Result = clonePtr(k.Result)
			s.Kind = k
		case ir.StmtAtomic:
			k.Result = clonePtr(k.Result)
			s.Kind = k
		}
		out[i] = s
	}
	return out
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"fmt"
	"slices"
)

// VSPrologLayout returns the layout of a vertex prolog. The prolog passes
// every input through and appends one fetch index per vertex attribute.
func VSPrologLayout(chip Chip, k VSPrologKey) (*Layout, error) {
	b := NewBuilder(chip, StageVertex)
	for i := range int(k.NumInputSGPRs) {
		b.SGPR(fmt.Sprintf("sgpr%d", i))
	}
	vgprs := 4 + int(k.NumMergedNextStageVGPRs)
	for i := range vgprs {
		b.VGPR(fmt.Sprintf("vgpr%d", i))
	}
	b.ReturnInputs(SGPR, int(k.NumInputSGPRs))
	b.ReturnInputs(VGPR, vgprs)
	b.Returns(VGPR, int(k.NumInputs), ArgVertexIndex)
	return b.Build()
}

// GSPrologLayout returns the layout of the geometry prolog, which rewrites
// the vertex offsets of triangle strips with adjacency in place.
func GSPrologLayout(chip Chip, k GSPrologKey) (*Layout, error) {
	b := NewBuilder(chip, StageGeometry)
	for i := range int(k.NumInputSGPRs) {
		b.SGPR(fmt.Sprintf("sgpr%d", i))
	}
	if chip.HasMergedStages() {
		gsInputVGPRs(b)
	} else {
		b.VGPR(ArgGSVtxOffset + "0").VGPR(ArgGSVtxOffset + "1").VGPR(ArgGSPrimID)
		for i := 2; i < 6; i++ {
			b.VGPR(fmt.Sprintf("%s%d", ArgGSVtxOffset, i))
		}
		b.VGPR(ArgGSInvocationID)
	}
	b.ReturnInputs(SGPR, b.NumSGPRs())
	b.ReturnInputs(VGPR, b.NumVGPRs())
	return b.Build()
}

// TCSEpilogLayout returns the layout of the HS epilog that writes tess
// factors. Its inputs are the HS return list.
func TCSEpilogLayout(chip Chip) (*Layout, error) {
	p := NewBuilder(chip, StageTessCtrl)
	if chip.HasMergedStages() {
		p.Unused(SGPR, MergedSystemSGPRs+GFX9SGPRTCSOutLayout+1)
		p.ReturnInputs(SGPR, MergedSystemSGPRs+GFX9SGPRTCSOutLayout+1)
	} else {
		p.Unused(SGPR, GFX6TCSNumUserSGPR+2)
		p.ReturnInputs(SGPR, GFX6TCSNumUserSGPR+2)
	}
	tcsEpilogReturns(p)
	return FromReturns(chip, StageTessCtrl, p.returns)
}

// PSPrologLayout returns the layout of a fragment prolog. It passes the
// hardware inputs through and appends the interpolated colors.
func PSPrologLayout(chip Chip, k PSPrologKey) (*Layout, error) {
	b := NewBuilder(chip, StageFragment)
	for i := range int(k.NumInputSGPRs) {
		b.SGPR(fmt.Sprintf("sgpr%d", i))
	}
	for i := range int(k.NumInputVGPRs) {
		b.VGPR(fmt.Sprintf("vgpr%d", i))
	}
	b.ReturnInputs(SGPR, int(k.NumInputSGPRs))
	b.ReturnInputs(VGPR, int(k.NumInputVGPRs))
	b.Returns(VGPR, PopCount(k.ColorsRead), ArgColor)
	return b.Build()
}

// PSEpilogLayout returns the layout of a fragment epilog. Its inputs are
// the fragment return list.
func PSEpilogLayout(chip Chip, k PSEpilogKey) (*Layout, error) {
	p := NewBuilder(chip, StageFragment)
	globalDescPointers(p)
	perStageDescPointers(p, true)
	p.SGPR(ArgAlphaRef)
	p.ReturnInputs(SGPR, SGPRAlphaRef+1)
	psEpilogValues(p, k.ColorsWritten, k.WritesZ, k.WritesStencil, k.WritesSamplemask)
	return FromReturns(chip, StageFragment, p.returns)
}

// FromReturns builds the input layout of a function that is entered with
// the given return list. Registers no binding covers become unused
// arguments.
func FromReturns(chip Chip, stage Stage, returns []Binding) (*Layout, error) {
	if err := ValidateBindings(returns); err != nil {
		return nil, err
	}
	sorted := slices.Clone(returns)
	slices.SortFunc(sorted, func(a, c Binding) int {
		if a.File != c.File {
			return int(a.File) - int(c.File)
		}
		return int(a.Slot) - int(c.Slot)
	})
	b := NewBuilder(chip, stage)
	for _, r := range sorted {
		if r.File == SGPR {
			b.PadSGPRs(int(r.Slot))
		} else if n := int(r.Slot) - b.NumVGPRs(); n > 0 {
			b.Unused(VGPR, n)
		}
		b.Add(r.File, 1, ArgInt, r.Name)
	}
	return b.Build()
}

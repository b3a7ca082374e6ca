// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"errors"
	"fmt"
)

// LayoutOptions selects the variant of a main-body layout.
type LayoutOptions struct {
	// Info is the analysis of the shader being compiled.
	Info *Info

	// Prev is the analysis of the first half of a merged stage. It is
	// required for the HS half when SamePatchVertices is set.
	Prev *Info

	// AsLS, AsES and AsNGG select the hardware stage a VS or TES runs as.
	AsLS, AsES, AsNGG bool

	// NGGCull selects the culling function that runs before an NGG
	// vertex shader. It returns every input to the main body.
	NGGCull bool

	// SamePatchVertices forwards LS outputs to the HS in VGPRs.
	SamePatchVertices bool
}

type mergeKind uint8

const (
	mergeNone mergeKind = iota
	mergeLSHS
	mergeESGS
)

func mergeOf(chip Chip, stage Stage, o LayoutOptions) mergeKind {
	if !chip.HasMergedStages() {
		return mergeNone
	}
	switch {
	case stage == StageTessCtrl, stage == StageVertex && o.AsLS:
		return mergeLSHS
	case stage == StageGeometry,
		(stage == StageVertex || stage == StageTessEval) && (o.AsES || o.AsNGG):
		return mergeESGS
	}
	return mergeNone
}

// IsMerged reports whether the stage runs as one half of a merged
// hardware stage on chip.
func IsMerged(chip Chip, stage Stage, o LayoutOptions) bool {
	return mergeOf(chip, stage, o) != mergeNone
}

// StageLayout returns the register layout of a main body.
//
// Merged LS+HS and ES+GS waves share one input layout: the shared system
// block at SGPRs 0..7, then the scalar inputs of the first half, then those
// of the second half. Vector inputs are the first half's followed by the
// second half's; values computed by a vertex prolog come last. The second
// half is entered with the first half's return list as its input layout.
func StageLayout(chip Chip, o LayoutOptions) (*Layout, error) {
	if o.Info == nil {
		return nil, errors.New("abi: layout without shader info")
	}
	if o.AsLS && o.AsES {
		return nil, fmt.Errorf("abi: %s cannot run as both LS and ES", o.Info.Stage)
	}
	stage := o.Info.Stage
	b := NewBuilder(chip, stage)

	switch mergeOf(chip, stage, o) {
	case mergeLSHS:
		if stage == StageVertex {
			lshsFirstHalf(b, chip, o)
		} else if err := lshsSecondHalf(b, o); err != nil {
			return nil, err
		}
		return b.Build()
	case mergeESGS:
		if stage == StageGeometry {
			esgsSecondHalf(b, o)
		} else {
			esgsFirstHalf(b, chip, o)
		}
		return b.Build()
	}

	switch stage {
	case StageVertex:
		globalDescPointers(b)
		perStageDescPointers(b, true)
		vsSpecificSGPRs(b)
		vbDescriptorSGPRs(b, chip, o.Info, false)
		switch {
		case o.AsES:
			b.SGPR(ArgES2GSOffset)
		case o.AsLS:
		default:
			streamoutParams(b, o.Info)
		}
		vsInputVGPRs(b, chip, o.AsLS)
		vsPrologVGPRs(b, o.Info)

	case StageTessCtrl:
		globalDescPointers(b)
		perStageDescPointers(b, true)
		b.SGPR(ArgTCSOffchipLayout).SGPR(ArgTCSOutLDSOffsets).SGPR(ArgTCSOutLDSLayout)
		b.SGPR(ArgVSStateBits).SGPR(ArgTessOffchipOffset).SGPR(ArgTCSFactorOffset)
		b.VGPR(ArgTCSPatchID).VGPR(ArgTCSRelIDs)
		b.ReturnInputs(SGPR, GFX6TCSNumUserSGPR+2)
		tcsEpilogReturns(b)

	case StageTessEval:
		globalDescPointers(b)
		perStageDescPointers(b, true)
		b.SGPR(ArgVSStateBits).SGPR(ArgTCSOffchipLayout).SGPR(ArgTESOffchipAddr)
		if o.AsES {
			b.SGPR(ArgTessOffchipOffset).Unused(SGPR, 1).SGPR(ArgES2GSOffset)
		} else {
			streamoutParams(b, o.Info)
			b.SGPR(ArgTessOffchipOffset)
		}
		tesInputVGPRs(b)

	case StageGeometry:
		globalDescPointers(b)
		perStageDescPointers(b, true)
		b.SGPR(ArgGS2VSOffset).SGPR(ArgGSWaveID)
		b.VGPR(ArgGSVtxOffset + "0").VGPR(ArgGSVtxOffset + "1").VGPR(ArgGSPrimID)
		for i := 2; i < 6; i++ {
			b.VGPR(fmt.Sprintf("%s%d", ArgGSVtxOffset, i))
		}
		b.VGPR(ArgGSInvocationID)

	case StageFragment:
		fragmentLayout(b, o.Info)

	case StageCompute:
		globalDescPointers(b)
		perStageDescPointers(b, true)
		if o.Info.UsesGridSize {
			b.Add(SGPR, 3, ArgInt, ArgNumWorkGroups)
		}
		if o.Info.VariableBlockSize {
			b.SGPR(ArgBlockSize)
		}
		for i, used := range o.Info.UsesBlockID {
			if used {
				b.SGPR(fmt.Sprintf("%s%d", ArgWorkgroupID, i))
			}
		}
		if o.Info.UsesSubgroupInfo {
			b.SGPR(ArgTGSize)
		}
		b.Add(VGPR, 3, ArgInt, ArgLocalInvocation)

	default:
		return nil, fmt.Errorf("abi: no layout for %s", stage)
	}
	return b.Build()
}

func globalDescPointers(b *Builder) {
	b.Add(SGPR, 1, ArgDescPtr, ArgInternalBindings)
	b.Add(SGPR, 1, ArgImagePtr, ArgBindless)
}

// perStageDescPointers declares the descriptor pointers of the function
// being compiled (own) or of the other half of a merged stage.
func perStageDescPointers(b *Builder, own bool) {
	if own {
		b.Add(SGPR, 1, ArgDescPtr, ArgConstBuffers)
		b.Add(SGPR, 1, ArgImagePtr, ArgSamplersAndImages)
		return
	}
	b.Add(SGPR, 1, ArgDescPtr, ArgOtherConstBuffers)
	b.Add(SGPR, 1, ArgImagePtr, ArgOtherSamplersAndImages)
}

func vsSpecificSGPRs(b *Builder) {
	b.SGPR(ArgVSStateBits).SGPR(ArgBaseVertex).SGPR(ArgDrawID).SGPR(ArgStartInstance)
}

// NumVBDescriptorsInUserSGPRs returns how many vertex buffer descriptors a
// vertex shader receives preloaded.
func NumVBDescriptorsInUserSGPRs(chip Chip, info *Info) int {
	if info == nil || info.Stage != StageVertex {
		return 0
	}
	return int(min(uint32(info.NumVertexBuffers), chip.MaxVBDescriptorsInUserSGPRs))
}

func vbDescriptorSGPRs(b *Builder, chip Chip, info *Info, merged bool) {
	b.Add(SGPR, 1, ArgDescPtr, ArgVertexBuffers)
	n := NumVBDescriptorsInUserSGPRs(chip, info)
	if n == 0 {
		return
	}
	base := SGPRVBDescriptorFirst
	if merged {
		base += MergedSystemSGPRs
	}
	b.PadSGPRs(base)
	for i := range n {
		b.Add(SGPR, 4, ArgInt, fmt.Sprintf("%s%d", ArgVBDescriptor, i))
	}
}

func streamoutParams(b *Builder, info *Info) {
	if info.UsesStreamout() {
		b.SGPR(ArgStreamoutConfig).SGPR(ArgStreamoutWriteIndex)
	} else if info.Stage == StageTessEval {
		b.Unused(SGPR, 1)
	}
	for i, stride := range info.StreamoutStride {
		if stride != 0 {
			b.SGPR(fmt.Sprintf("%s%d", ArgStreamoutOffset, i))
		}
	}
}

// vsInputVGPRs declares the four hardware-loaded vertex VGPRs.
func vsInputVGPRs(b *Builder, chip Chip, asLS bool) {
	b.VGPR(ArgVertexID)
	switch {
	case asLS && chip.Gfx >= GFX10:
		b.VGPR(ArgVSRelPatchID).Unused(VGPR, 1).VGPR(ArgInstanceID)
	case asLS:
		b.VGPR(ArgVSRelPatchID).VGPR(ArgInstanceID).Unused(VGPR, 1)
	case chip.Gfx >= GFX10:
		b.Unused(VGPR, 1).VGPR(ArgVSPrimID).VGPR(ArgInstanceID)
	default:
		b.VGPR(ArgInstanceID).VGPR(ArgVSPrimID).Unused(VGPR, 1)
	}
}

// vsPrologVGPRs declares the per-attribute fetch indices computed by the
// vertex prolog.
func vsPrologVGPRs(b *Builder, info *Info) {
	n := info.NumInputs()
	for i := range n {
		b.VGPR(fmt.Sprintf("%s%d", ArgVertexIndex, i))
	}
	b.PrologVGPRs(n)
}

func tesInputVGPRs(b *Builder) {
	b.Add(VGPR, 1, ArgFloat, ArgTESU)
	b.Add(VGPR, 1, ArgFloat, ArgTESV)
	b.VGPR(ArgTESRelPatchID).VGPR(ArgTESPatchID)
}

func gsInputVGPRs(b *Builder) {
	b.VGPR(ArgGSVtxOffset + "0").VGPR(ArgGSVtxOffset + "1").VGPR(ArgGSPrimID)
	b.VGPR(ArgGSInvocationID).VGPR(ArgGSVtxOffset + "2")
}

// tcsEpilogReturns hands the patch values to the HS epilog. The first two
// VGPRs are left free so that the outputs do not alias the HS inputs.
func tcsEpilogReturns(b *Builder) {
	b.ReturnAt(VGPR, 2, ArgRelPatchID)
	b.ReturnAt(VGPR, 3, ArgInvocationID)
	b.ReturnAt(VGPR, 4, ArgTFLDSOffset)
	for i := range 6 {
		b.ReturnAt(VGPR, 5+i, fmt.Sprintf("%s%d", ArgTessFactor, i))
	}
}

func lshsSystemSGPRs(b *Builder, own bool) {
	perStageDescPointers(b, own)
	b.SGPR(ArgTessOffchipOffset).SGPR(ArgMergedWaveInfo).SGPR(ArgTCSFactorOffset).SGPR(ArgScratchOffset)
	b.Unused(SGPR, 2)
}

// lshsForwardBase is the first VGPR return slot of LS outputs forwarded to
// the HS, right after the HS system VGPRs.
const lshsForwardBase = 2

func lshsFirstHalf(b *Builder, chip Chip, o LayoutOptions) {
	lshsSystemSGPRs(b, false)
	globalDescPointers(b)
	perStageDescPointers(b, true)
	vsSpecificSGPRs(b)
	b.SGPR(ArgTCSOffchipLayout).SGPR(ArgTCSOutLDSOffsets).SGPR(ArgTCSOutLDSLayout)
	vbDescriptorSGPRs(b, chip, o.Info, true)

	vsInputVGPRs(b, chip, true)
	b.VGPR(ArgTCSPatchID).VGPR(ArgTCSRelIDs)
	vsPrologVGPRs(b, o.Info)

	b.ReturnInputs(SGPR, MergedSystemSGPRs+GFX9TCSNumUserSGPR)
	b.Return(VGPR, ArgTCSPatchID).Return(VGPR, ArgTCSRelIDs)
	if o.SamePatchVertices {
		n := LastBit(o.Info.OutputsWritten()) * 4
		for i := range n {
			b.ReturnAt(VGPR, lshsForwardBase+i, fmt.Sprintf("%s%d", ArgForwardedAttr, i))
		}
	}
}

func lshsSecondHalf(b *Builder, o LayoutOptions) error {
	lshsSystemSGPRs(b, true)
	globalDescPointers(b)
	perStageDescPointers(b, false)
	vsSpecificSGPRs(b)
	b.SGPR(ArgTCSOffchipLayout).SGPR(ArgTCSOutLDSOffsets).SGPR(ArgTCSOutLDSLayout)

	b.VGPR(ArgTCSPatchID).VGPR(ArgTCSRelIDs)
	if o.SamePatchVertices {
		if o.Prev == nil {
			return errors.New("abi: forwarded HS inputs need the LS shader info")
		}
		n := LastBit(o.Prev.OutputsWritten()) * 4
		for i := range n {
			b.Add(VGPR, 1, ArgFloat, fmt.Sprintf("%s%d", ArgForwardedAttr, i))
		}
	}

	b.ReturnInputs(SGPR, MergedSystemSGPRs+GFX9SGPRTCSOutLayout+1)
	tcsEpilogReturns(b)
	return nil
}

func esgsSystemSGPRs(b *Builder, own, asNGG bool) {
	perStageDescPointers(b, own)
	if asNGG {
		b.SGPR(ArgGSTGInfo)
	} else {
		b.SGPR(ArgGS2VSOffset)
	}
	b.SGPR(ArgMergedWaveInfo).SGPR(ArgTessOffchipOffset).SGPR(ArgScratchOffset)
	b.Add(SGPR, 1, ArgDescPtr, ArgSmallPrimCullInfo)
	b.Unused(SGPR, 1)
}

func esgsFirstHalf(b *Builder, chip Chip, o LayoutOptions) {
	stage := o.Info.Stage
	esgsSystemSGPRs(b, false, o.AsNGG)
	globalDescPointers(b)
	perStageDescPointers(b, true)
	if stage == StageVertex {
		vsSpecificSGPRs(b)
		vbDescriptorSGPRs(b, chip, o.Info, true)
	} else {
		b.SGPR(ArgVSStateBits).SGPR(ArgTCSOffchipLayout).SGPR(ArgTESOffchipAddr)
	}

	firstVGPR := b.NumVGPRs()
	if stage == StageVertex {
		vsInputVGPRs(b, chip, false)
	} else {
		tesInputVGPRs(b)
	}
	stageVGPRs := b.NumVGPRs() - firstVGPR
	gsInputVGPRs(b)
	if stage == StageVertex {
		vsPrologVGPRs(b, o.Info)
	}

	if !o.AsES && !o.NGGCull {
		return
	}
	var userSGPRs int
	switch {
	case stage == StageVertex && o.NGGCull:
		userSGPRs = GFX9VSGSNumUserSGPR + 1
		if n := NumVBDescriptorsInUserSGPRs(chip, o.Info); n > 0 {
			userSGPRs = SGPRVBDescriptorFirst + n*4
		}
	case stage == StageTessEval && o.NGGCull:
		userSGPRs = GFX9TESGSNumUserSGPR
	default:
		userSGPRs = NumVSStateResourceSGPRs
	}
	b.ReturnInputs(SGPR, MergedSystemSGPRs+userSGPRs)
	for _, name := range []string{ArgGSVtxOffset + "0", ArgGSVtxOffset + "1", ArgGSPrimID,
		ArgGSInvocationID, ArgGSVtxOffset + "2"} {
		b.Return(VGPR, name)
	}
	if o.NGGCull {
		// The culling function hands every vertex input to the main body.
		for slot := range stageVGPRs {
			b.Return(VGPR, b.nameAt(VGPR, uint16(firstVGPR+slot)))
		}
	}
}

func esgsSecondHalf(b *Builder, o LayoutOptions) {
	esgsSystemSGPRs(b, true, o.AsNGG)
	globalDescPointers(b)
	perStageDescPointers(b, false)
	b.SGPR(ArgVSStateBits)
	gsInputVGPRs(b)
}

func fragmentLayout(b *Builder, info *Info) {
	globalDescPointers(b)
	perStageDescPointers(b, true)
	b.SGPR(ArgAlphaRef).SGPR(ArgPrimMask)

	b.Add(VGPR, 2, ArgInt, ArgPerspSample)
	b.Add(VGPR, 2, ArgInt, ArgPerspCenter)
	b.Add(VGPR, 2, ArgInt, ArgPerspCentroid)
	b.Add(VGPR, 3, ArgInt, ArgPerspPullModel)
	b.Add(VGPR, 2, ArgInt, ArgLinearSample)
	b.Add(VGPR, 2, ArgInt, ArgLinearCenter)
	b.Add(VGPR, 2, ArgInt, ArgLinearCentroid)
	for _, name := range []string{ArgLineStipple, ArgFragPosX, ArgFragPosY, ArgFragPosZ, ArgFragPosW} {
		b.Add(VGPR, 1, ArgFloat, name)
	}
	b.VGPR(ArgFrontFace).VGPR(ArgAncillary)
	b.Add(VGPR, 1, ArgFloat, ArgSampleCoverage)
	b.VGPR(ArgPosFixedPt)

	colors := PopCount(info.ColorsRead)
	for i := range colors {
		b.Add(VGPR, 1, ArgFloat, fmt.Sprintf("%s%d", ArgColor, i))
	}
	b.PrologVGPRs(colors)

	b.ReturnInputs(SGPR, SGPRAlphaRef+1)
	psEpilogValues(b, info.ColorsWritten, info.WritesZ, info.WritesStencil, info.WritesSamplemask)
}

// psEpilogValues lays out the fragment outputs consumed by the epilog:
// four components per written color target, then depth, stencil and
// sample mask, then the input sample mask at PSEpilogSamplemaskMinLoc or
// later.
func psEpilogValues(b *Builder, colorsWritten uint8, z, stencil, samplemask bool) {
	for mrt := range 8 {
		if colorsWritten&(1<<mrt) == 0 {
			continue
		}
		for _, c := range "xyzw" {
			b.Return(VGPR, fmt.Sprintf("%s%d.%c", ArgColor, mrt, c))
		}
	}
	if z {
		b.Return(VGPR, ArgFragDepth)
	}
	if stencil {
		b.Return(VGPR, ArgFragStencil)
	}
	if samplemask {
		b.Return(VGPR, ArgFragSamplemask)
	}
	b.ReturnAt(VGPR, max(int(b.rvgpr), PSEpilogSamplemaskMinLoc), ArgSampleMaskIn)
}

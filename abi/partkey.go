// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"fmt"
	"strings"
)

// PartKind is the category of a prolog or epilog.
type PartKind uint8

// Part kinds.
const (
	PartVSProlog PartKind = iota
	PartTCSEpilog
	PartGSProlog
	PartPSProlog
	PartPSEpilog

	NumPartKinds
)

var partKindNames = [NumPartKinds]string{"vs_prolog", "tcs_epilog", "gs_prolog", "ps_prolog", "ps_epilog"}

func (k PartKind) String() string {
	if k < NumPartKinds {
		return partKindNames[k]
	}
	return fmt.Sprintf("PartKind(%d)", uint8(k))
}

// Stage returns the stage a part of kind k runs in.
func (k PartKind) Stage() Stage {
	switch k {
	case PartVSProlog:
		return StageVertex
	case PartTCSEpilog:
		return StageTessCtrl
	case PartGSProlog:
		return StageGeometry
	default:
		return StageFragment
	}
}

// VSPrologKey selects a vertex prolog. The same prolog serves a VS that
// runs alone and the VS half of a merged stage.
type VSPrologKey struct {
	States        VSPrologBits
	NumInputSGPRs uint8
	NumInputs     uint8
	// NumMergedNextStageVGPRs is the number of HS or GS system VGPRs that
	// follow the vertex VGPRs in a merged wave.
	NumMergedNextStageVGPRs uint8
	AsLS, AsES, AsNGG       bool
	// LoadVGPRsAfterCulling reloads the vertex VGPRs from LDS after an NGG
	// culling pass compacted the wave.
	LoadVGPRsAfterCulling bool
}

// TCSEpilogKey selects the HS epilog.
type TCSEpilogKey struct {
	States TCSEpilogBits
}

// GSPrologKey selects the GS prolog.
type GSPrologKey struct {
	States        GSPrologBits
	AsNGG         bool
	NumInputSGPRs uint8
}

// PSPrologKey selects a fragment prolog.
//
// VGPR indices are positions in the main body's input VGPRs; -1 means the
// value is not used.
type PSPrologKey struct {
	States          PSPrologBits
	ColorsRead      uint8
	NumInputSGPRs   uint8
	NumInputVGPRs   uint8
	NumInterpInputs uint8
	// WQM keeps helper lanes alive for derivatives.
	WQM                  bool
	FaceVGPRIndex        int8
	AncillaryVGPRIndex   int8
	ColorAttrIndex       [2]int8
	ColorInterpVGPRIndex [2]int8
}

// PSEpilogKey selects a fragment epilog.
type PSEpilogKey struct {
	States        PSEpilogBits
	ColorTypes    uint16
	ColorsWritten uint8
	WritesZ       bool
	WritesStencil bool
	// WritesSamplemask means the main body exports a sample mask.
	WritesSamplemask bool
}

// PartKey is the sub-key of one part. Only the member selected by Kind is
// meaningful; the others are zero, so two PartKeys are equal exactly when
// they select the same part.
type PartKey struct {
	Kind      PartKind
	VSProlog  VSPrologKey
	TCSEpilog TCSEpilogKey
	GSProlog  GSPrologKey
	PSProlog  PSPrologKey
	PSEpilog  PSEpilogKey
}

// Part wraps k in a PartKey.
func (k VSPrologKey) Part() PartKey { return PartKey{Kind: PartVSProlog, VSProlog: k} }

// Part wraps k in a PartKey.
func (k TCSEpilogKey) Part() PartKey { return PartKey{Kind: PartTCSEpilog, TCSEpilog: k} }

// Part wraps k in a PartKey.
func (k GSPrologKey) Part() PartKey { return PartKey{Kind: PartGSProlog, GSProlog: k} }

// Part wraps k in a PartKey.
func (k PSPrologKey) Part() PartKey { return PartKey{Kind: PartPSProlog, PSProlog: k} }

// Part wraps k in a PartKey.
func (k PSEpilogKey) Part() PartKey { return PartKey{Kind: PartPSEpilog, PSEpilog: k} }

// Stage returns the stage the part runs in.
func (k PartKey) Stage() Stage { return k.Kind.Stage() }

// Layout returns the register layout of the part.
func (k PartKey) Layout(chip Chip) (*Layout, error) {
	switch k.Kind {
	case PartVSProlog:
		return VSPrologLayout(chip, k.VSProlog)
	case PartTCSEpilog:
		return TCSEpilogLayout(chip)
	case PartGSProlog:
		return GSPrologLayout(chip, k.GSProlog)
	case PartPSProlog:
		return PSPrologLayout(chip, k.PSProlog)
	case PartPSEpilog:
		return PSEpilogLayout(chip, k.PSEpilog)
	}
	return nil, fmt.Errorf("abi: unknown part kind %d", k.Kind)
}

func (k PartKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Kind.String())
	switch k.Kind {
	case PartVSProlog:
		p := k.VSProlog
		fmt.Fprintf(&sb, "{divisor_is_one=%#x divisor_is_fetched=%#x flags=%#x sgprs=%d inputs=%d next_vgprs=%d ls=%t es=%t ngg=%t reload=%t}",
			p.States.InstanceDivisorIsOne, p.States.InstanceDivisorIsFetched, uint16(p.States.Flags),
			p.NumInputSGPRs, p.NumInputs, p.NumMergedNextStageVGPRs, p.AsLS, p.AsES, p.AsNGG, p.LoadVGPRsAfterCulling)
	case PartTCSEpilog:
		p := k.TCSEpilog
		fmt.Fprintf(&sb, "{prim_mode=%d flags=%#x}", p.States.PrimMode, uint8(p.States.Flags))
	case PartGSProlog:
		p := k.GSProlog
		fmt.Fprintf(&sb, "{flags=%#x ngg=%t sgprs=%d}", uint8(p.States.Flags), p.AsNGG, p.NumInputSGPRs)
	case PartPSProlog:
		p := k.PSProlog
		fmt.Fprintf(&sb, "{flags=%#x log_ps_iter=%d colors_read=%#x sgprs=%d vgprs=%d interp=%d wqm=%t face=%d ancillary=%d color_attr=%v color_interp=%v}",
			uint16(p.States.Flags), p.States.SamplemaskLogPSIter, p.ColorsRead, p.NumInputSGPRs, p.NumInputVGPRs,
			p.NumInterpInputs, p.WQM, p.FaceVGPRIndex, p.AncillaryVGPRIndex, p.ColorAttrIndex, p.ColorInterpVGPRIndex)
	case PartPSEpilog:
		p := k.PSEpilog
		fmt.Fprintf(&sb, "{col_format=%#x flags=%#x int8=%#x int10=%#x last_cbuf=%d alpha_func=%d colors=%#x types=%#x z=%t stencil=%t samplemask=%t}",
			p.States.SPIShaderColFormat, uint32(p.States.Flags), p.States.ColorIsInt8, p.States.ColorIsInt10,
			p.States.LastCBuf, p.States.AlphaFunc, p.ColorsWritten, p.ColorTypes, p.WritesZ, p.WritesStencil, p.WritesSamplemask)
	}
	return sb.String()
}

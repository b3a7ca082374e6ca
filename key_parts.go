// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"github.com/gogpu/variant/abi"
)

// Projections from a variant key to part sub-keys. Each is a pure
// function of the key, the selector analysis and the main body layout,
// so equal inputs always select the same cached part.

// vsNeedsProlog reports whether a vertex body needs a prolog. The second
// prolog of a culled NGG shader reloads the input VGPRs from LDS, so
// culling always needs one.
func vsNeedsProlog(info *abi.Info, bits abi.VSPrologBits, k Key, cullPass bool) bool {
	return info.NeedsVSProlog ||
		bits.Flags&abi.PrologLSVGPRFix != 0 ||
		(k.Opt.NGGCulling != 0 && !cullPass)
}

// vsPrologKey selects the prolog of vertex body info whose layout has
// numInputSGPRs scalar inputs. next is the stage of the wave the vertex
// body runs in: the vertex stage itself, or the HS or GS of a merged
// stage. It also reports whether the prolog loads the instance id.
func vsPrologKey(info *abi.Info, numInputSGPRs int, cullPass bool, bits abi.VSPrologBits,
	next abi.Stage, k Key) (abi.VSPrologKey, bool) {
	pk := abi.VSPrologKey{
		States:        bits,
		NumInputSGPRs: uint8(numInputSGPRs),
		NumInputs:     uint8(info.NumInputs()),
		AsLS:          k.Flags.Has(AsLS),
		AsES:          k.Flags.Has(AsES),
		AsNGG:         k.Flags.Has(AsNGG),
	}
	if !cullPass && k.Opt.NGGCulling != 0 {
		pk.LoadVGPRsAfterCulling = true
	}
	switch {
	case next == abi.StageTessCtrl:
		pk.AsLS = true
		pk.NumMergedNextStageVGPRs = 2
	case next == abi.StageGeometry:
		pk.AsES = true
		pk.NumMergedNextStageVGPRs = 5
	case pk.AsNGG:
		pk.NumMergedNextStageVGPRs = 5
	}

	inputs := uint16(1)<<min(info.NumInputs(), 16) - 1
	usesInstanceID := (bits.InstanceDivisorIsOne|bits.InstanceDivisorIsFetched)&inputs != 0
	return pk, usesInstanceID
}

// tcsEpilogKey selects the HS epilog. Every HS variant has one.
func tcsEpilogKey(k Key) abi.TCSEpilogKey {
	return abi.TCSEpilogKey{States: k.Part.TCSEpilog}
}

// gsPrologKey selects the GS prolog; ok is false when no prolog is needed.
func gsPrologKey(k Key, numInputSGPRs int) (pk abi.GSPrologKey, ok bool) {
	if k.Part.GSProlog.Flags&abi.PrologTriStripAdjFix == 0 {
		return abi.GSPrologKey{}, false
	}
	return abi.GSPrologKey{
		States:        k.Part.GSProlog,
		AsNGG:         k.Flags.Has(AsNGG),
		NumInputSGPRs: uint8(numInputSGPRs),
	}, true
}

// Fragment input VGPR indices of the barycentric pairs a prolog reads
// colors from. Linear pairs are two registers further in a monolithic
// body, which addresses the pull model weights as well.
const (
	interpPerspSample   = 0
	interpPerspCenter   = 2
	interpPerspCentroid = 4

	interpLinearSample      = 6
	interpLinearCenter      = 8
	interpLinearCentroid    = 10
	interpMonoLinearOffset  = 3
	colorInterpVGPRDisabled = -1
)

// psPrologKey selects the fragment prolog. separate is false when the
// prolog is fused into a monolithic body. It also returns the inputs a
// separate prolog needs the rasterizer to enable.
func psPrologKey(info *abi.Info, main *abi.Layout, k Key, separate bool) (abi.PSPrologKey, abi.PSInput) {
	states := k.Part.PSProlog
	pk := abi.PSPrologKey{
		States:               states,
		ColorsRead:           info.ColorsRead,
		NumInputSGPRs:        uint8(main.NumInputSGPRs()),
		NumInputVGPRs:        uint8(main.NumInputVGPRs()),
		FaceVGPRIndex:        -1,
		AncillaryVGPRIndex:   -1,
		ColorAttrIndex:       [2]int8{-1, -1},
		ColorInterpVGPRIndex: [2]int8{colorInterpVGPRDisabled, colorInterpVGPRDisabled},
	}
	const forced = abi.PrologForcePerspSampleInterp | abi.PrologForceLinearSampleInterp |
		abi.PrologForcePerspCenterInterp | abi.PrologForceLinearCenterInterp |
		abi.PrologBCOptimizeForPersp | abi.PrologBCOptimizeForLinear
	pk.WQM = info.UsesDerivatives && (pk.ColorsRead != 0 || states.Flags&forced != 0)
	if info.UsesSampleID || states.SamplemaskLogPSIter != 0 {
		pk.AncillaryVGPRIndex = int8(main.Slot(abi.ArgAncillary))
	}

	var ena abi.PSInput
	if info.ColorsRead == 0 {
		return pk, ena
	}
	if states.Flags&abi.PrologColorTwoSide != 0 {
		// Back colors are stored after the last input.
		pk.NumInterpInputs = uint8(info.NumInputs())
		pk.FaceVGPRIndex = int8(main.Slot(abi.ArgFrontFace))
		if separate {
			ena |= abi.PSInputFrontFace
		}
	}

	for i := range 2 {
		if info.ColorsRead&(0xf<<(4*i)) == 0 {
			continue
		}
		pk.ColorAttrIndex[i] = int8(info.InputSlot(abi.SemanticColor0 + abi.Semantic(i)))

		interp := info.ColorInterp[i]
		if states.Flags&abi.PrologFlatshadeColors != 0 && interp == abi.InterpColor {
			interp = abi.InterpFlat
		}
		var idx int8
		var in abi.PSInput
		switch {
		case interp == abi.InterpFlat:
			pk.ColorInterpVGPRIndex[i] = colorInterpVGPRDisabled
			continue
		case interp.Linear():
			loc := interp
			if states.Flags&abi.PrologForceLinearSampleInterp != 0 {
				loc = abi.InterpLinearSample
			}
			if states.Flags&abi.PrologForceLinearCenterInterp != 0 {
				loc = abi.InterpLinearCenter
			}
			switch loc {
			case abi.InterpLinearSample:
				idx, in = interpLinearSample, abi.PSInputLinearSample
			case abi.InterpLinearCentroid:
				idx, in = interpLinearCentroid, abi.PSInputLinearCentroid
			default:
				idx, in = interpLinearCenter, abi.PSInputLinearCenter
			}
			if !separate {
				idx += interpMonoLinearOffset
			}
		default:
			// Perspective, including colors that follow the flat-shade
			// state while it is off.
			loc := interp
			if states.Flags&abi.PrologForcePerspSampleInterp != 0 {
				loc = abi.InterpPerspSample
			}
			if states.Flags&abi.PrologForcePerspCenterInterp != 0 {
				loc = abi.InterpPerspCenter
			}
			switch loc {
			case abi.InterpPerspSample:
				idx, in = interpPerspSample, abi.PSInputPerspSample
			case abi.InterpPerspCentroid:
				idx, in = interpPerspCentroid, abi.PSInputPerspCentroid
			default:
				idx, in = interpPerspCenter, abi.PSInputPerspCenter
			}
		}
		pk.ColorInterpVGPRIndex[i] = idx
		if separate {
			ena |= in
		}
	}
	return pk, ena
}

// psNeedsProlog reports whether the prolog does anything.
func psNeedsProlog(pk abi.PSPrologKey) bool {
	const work = abi.PrologForcePerspSampleInterp | abi.PrologForceLinearSampleInterp |
		abi.PrologForcePerspCenterInterp | abi.PrologForceLinearCenterInterp |
		abi.PrologBCOptimizeForPersp | abi.PrologBCOptimizeForLinear | abi.PrologPolyStipple
	return pk.ColorsRead != 0 || pk.States.Flags&work != 0 || pk.States.SamplemaskLogPSIter != 0
}

// psEpilogKey selects the fragment epilog. Every fragment variant has one.
func psEpilogKey(info *abi.Info, k Key) abi.PSEpilogKey {
	return abi.PSEpilogKey{
		States:           k.Part.PSEpilog,
		ColorTypes:       info.ColorTypes,
		ColorsWritten:    info.ColorsWritten,
		WritesZ:          info.WritesZ,
		WritesStencil:    info.WritesStencil,
		WritesSamplemask: info.WritesSamplemask,
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"fmt"

	"github.com/gogpu/variant/abi"
)

// stageHandler holds the per-stage rules of variant assembly. One handler
// is chosen when a selector is created.
type stageHandler interface {
	stage() abi.Stage

	// mainFlags returns the hardware stage flags of the main part a key
	// needs. Keys with equal main flags share the main part.
	mainFlags(k Key) KeyFlags

	// prevFlags checks the first half of a merged stage and returns the
	// flags its main part is compiled with.
	prevFlags(k Key, prev *Selector) (KeyFlags, error)

	// alwaysMonolithic reports whether the stage has no parts.
	alwaysMonolithic() bool

	// plan picks the parts placed around the main body.
	plan(b *build) plan

	// reconcile applies stage specific fixups to the final configuration.
	reconcile(b *build, p *plan, cfg *abi.Config)
}

// plan lists the pieces of one variant in link order:
// [prolog][previous][prolog2][main][epilog].
type plan struct {
	prolog  *abi.PartKey
	prolog2 *abi.PartKey
	epilog  *abi.PartKey

	// cull puts the NGG culling body of the shader itself in the
	// previous stage slot.
	cull bool

	// usesInstanceID is set when the vertex prolog fetches by instance.
	usesInstanceID bool

	// psInputEna are fragment inputs a separate prolog reads.
	psInputEna abi.PSInput
}

func partPtr(k abi.PartKey) *abi.PartKey { return &k }

func newStageHandler(stage abi.Stage) (stageHandler, error) {
	switch stage {
	case abi.StageVertex:
		return vsHandler{}, nil
	case abi.StageTessCtrl:
		return tcsHandler{}, nil
	case abi.StageTessEval:
		return tesHandler{}, nil
	case abi.StageGeometry:
		return gsHandler{}, nil
	case abi.StageFragment:
		return psHandler{}, nil
	case abi.StageCompute:
		return csHandler{}, nil
	}
	return nil, fmt.Errorf("%w: stage %d", ErrInvalidArgument, stage)
}

// noPrev is embedded by stages that are never the second half of a
// merged stage.
type noPrev struct{}

func (noPrev) prevFlags(Key, *Selector) (KeyFlags, error) { return 0, nil }

// noFixups is embedded by stages without configuration fixups.
type noFixups struct{}

func (noFixups) reconcile(*build, *plan, *abi.Config) {}

// =============================================================================
// Vertex
// =============================================================================

type vsHandler struct {
	noPrev
	noFixups
}

func (vsHandler) stage() abi.Stage         { return abi.StageVertex }
func (vsHandler) mainFlags(k Key) KeyFlags { return k.Flags & (AsLS | AsES | AsNGG) }
func (vsHandler) alwaysMonolithic() bool   { return false }

func (vsHandler) plan(b *build) plan {
	var p plan
	info := b.sel.info
	bits := b.key.Part.VSProlog
	sgprs := b.mainLayout.NumInputSGPRs()

	// A culled NGG variant runs the vertex body twice: a position-only
	// pass that culls, then the full body on the surviving vertices.
	if b.mono && b.key.Opt.NGGCulling != 0 {
		p.cull = true
		if vsNeedsProlog(info, bits, b.key, true) {
			pk, instance := vsPrologKey(info, sgprs, true, bits, abi.StageVertex, b.key)
			p.prolog = partPtr(pk.Part())
			p.usesInstanceID = instance
		}
	}
	if vsNeedsProlog(info, bits, b.key, false) {
		pk, instance := vsPrologKey(info, sgprs, false, bits, abi.StageVertex, b.key)
		if p.cull {
			p.prolog2 = partPtr(pk.Part())
		} else {
			p.prolog = partPtr(pk.Part())
		}
		p.usesInstanceID = p.usesInstanceID || instance
	}
	return p
}

// =============================================================================
// Tessellation control
// =============================================================================

type tcsHandler struct{ noFixups }

func (tcsHandler) stage() abi.Stage       { return abi.StageTessCtrl }
func (tcsHandler) mainFlags(Key) KeyFlags { return 0 }
func (tcsHandler) alwaysMonolithic() bool { return false }

func (tcsHandler) prevFlags(k Key, prev *Selector) (KeyFlags, error) {
	if prev.Stage() != abi.StageVertex {
		return 0, fmt.Errorf("%w: tcs merged with %s", ErrInvalidArgument, prev.Stage())
	}
	return AsLS, nil
}

func (tcsHandler) plan(b *build) plan {
	var p plan
	if b.prev != nil {
		bits := b.key.Part.VSProlog
		if vsNeedsProlog(b.prev.info, bits, b.key, false) {
			pk, instance := vsPrologKey(b.prev.info, b.prevLayout.NumInputSGPRs(), false, bits, abi.StageTessCtrl, b.key)
			p.prolog = partPtr(pk.Part())
			p.usesInstanceID = instance
		}
	}
	p.epilog = partPtr(tcsEpilogKey(b.key).Part())
	return p
}

// =============================================================================
// Tessellation evaluation
// =============================================================================

type tesHandler struct {
	noPrev
	noFixups
}

func (tesHandler) stage() abi.Stage         { return abi.StageTessEval }
func (tesHandler) mainFlags(k Key) KeyFlags { return k.Flags & (AsES | AsNGG) }
func (tesHandler) alwaysMonolithic() bool   { return false }

func (tesHandler) plan(b *build) plan {
	return plan{cull: b.mono && b.key.Opt.NGGCulling != 0}
}

// =============================================================================
// Geometry
// =============================================================================

type gsHandler struct{ noFixups }

func (gsHandler) stage() abi.Stage         { return abi.StageGeometry }
func (gsHandler) mainFlags(k Key) KeyFlags { return k.Flags & AsNGG }
func (gsHandler) alwaysMonolithic() bool   { return false }

func (gsHandler) prevFlags(k Key, prev *Selector) (KeyFlags, error) {
	if s := prev.Stage(); s != abi.StageVertex && s != abi.StageTessEval {
		return 0, fmt.Errorf("%w: gs merged with %s", ErrInvalidArgument, s)
	}
	return AsES | k.Flags&AsNGG, nil
}

func (gsHandler) plan(b *build) plan {
	var p plan
	if b.prev != nil && b.prev.Stage() == abi.StageVertex {
		bits := b.key.Part.VSProlog
		if vsNeedsProlog(b.prev.info, bits, b.key, false) {
			pk, instance := vsPrologKey(b.prev.info, b.prevLayout.NumInputSGPRs(), false, bits, abi.StageGeometry, b.key)
			p.prolog = partPtr(pk.Part())
			p.usesInstanceID = instance
		}
	}
	if pk, ok := gsPrologKey(b.key, b.mainLayout.NumInputSGPRs()); ok {
		p.prolog2 = partPtr(pk.Part())
	}
	return p
}

// =============================================================================
// Fragment
// =============================================================================

type psHandler struct{ noPrev }

func (psHandler) stage() abi.Stage       { return abi.StageFragment }
func (psHandler) mainFlags(Key) KeyFlags { return 0 }
func (psHandler) alwaysMonolithic() bool { return false }

func (psHandler) plan(b *build) plan {
	var p plan
	pk, ena := psPrologKey(b.sel.info, b.mainLayout, b.key, !b.mono)
	if psNeedsProlog(pk) {
		p.prolog = partPtr(pk.Part())
		p.psInputEna = ena
	}
	p.epilog = partPtr(psEpilogKey(b.sel.info, b.key).Part())
	return p
}

// reconcile makes the rasterizer inputs consistent with the prolog.
func (psHandler) reconcile(b *build, p *plan, cfg *abi.Config) {
	cfg.NumVGPRs = max(cfg.NumVGPRs, uint32(b.info.NumInputVGPRs))

	flags := b.key.Part.PSProlog.Flags
	ena := cfg.PSInputEna | p.psInputEna
	if flags&abi.PrologPolyStipple != 0 {
		ena |= abi.PSInputPosFixedPt
	}

	force := func(flag abi.PSPrologFlags, keep, drop abi.PSInput) {
		if flags&flag != 0 && ena&drop != 0 {
			ena = ena&^drop | keep
		}
	}
	force(abi.PrologForcePerspSampleInterp, abi.PSInputPerspSample, abi.PSInputPerspCenter|abi.PSInputPerspCentroid)
	force(abi.PrologForceLinearSampleInterp, abi.PSInputLinearSample, abi.PSInputLinearCenter|abi.PSInputLinearCentroid)
	force(abi.PrologForcePerspCenterInterp, abi.PSInputPerspCenter, abi.PSInputPerspSample|abi.PSInputPerspCentroid)
	force(abi.PrologForceLinearCenterInterp, abi.PSInputLinearCenter, abi.PSInputLinearSample|abi.PSInputLinearCentroid)

	// POS_W needs a perspective weight pair.
	if ena&abi.PSInputPosW != 0 && ena&abi.PSInputPerspWeights == 0 {
		ena |= abi.PSInputPerspCenter
	}
	// At least one pair of weights must be enabled.
	if ena&(abi.PSInputPerspWeights|abi.PSInputLinearWeights) == 0 {
		ena |= abi.PSInputLinearCenter
	}
	// The sample mask fixup needs the sample id.
	if b.key.Part.PSProlog.SamplemaskLogPSIter != 0 {
		ena |= abi.PSInputAncillary
	}
	// Sample coverage is only loaded for line smoothing or a body that
	// reads the sample mask.
	if b.key.Part.PSEpilog.Flags&abi.EpilogPolyLineSmoothing == 0 && !b.sel.info.UsesSampleMaskIn {
		ena &^= abi.PSInputSampleCoverage
	}
	cfg.PSInputEna = ena
	cfg.PSInputAddr |= ena
}

// =============================================================================
// Compute
// =============================================================================

type csHandler struct {
	noPrev
	noFixups
}

func (csHandler) stage() abi.Stage       { return abi.StageCompute }
func (csHandler) mainFlags(Key) KeyFlags { return 0 }
func (csHandler) alwaysMonolithic() bool { return true }
func (csHandler) plan(*build) plan       { return plan{} }

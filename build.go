// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// build holds the state of one variant build.
type build struct {
	s    *Screen
	ctx  context.Context
	comp backend.Compiler
	sh   *Shader
	sel  *Selector
	key  Key
	mono bool

	// ir is the selector IR, specialized for monolithic variants that
	// inline uniforms.
	ir backend.IR

	// prev is the first half of a merged stage.
	prev      *Selector
	prevFlags KeyFlags

	mainLayout *abi.Layout
	prevLayout *abi.Layout

	info ShaderInfo
}

// fragment is one piece of a variant in link order.
type fragment struct {
	name   string
	binary *backend.Binary
}

// Segment names of the pieces that are not parts.
const (
	segMain     = "main"
	segPrevious = "previous"
	segCull     = "cull"
)

// buildShader builds sh with comp, then publishes it or records the
// failure. It returns the build error.
func (s *Screen) buildShader(ctx context.Context, sh *Shader, comp backend.Compiler) error {
	start := time.Now()
	b := &build{
		s:    s,
		ctx:  ctx,
		comp: comp,
		sh:   sh,
		sel:  sh.sel,
		key:  sh.key,
		ir:   sh.sel.ir,
	}
	b.mono = s.opts.forceMono || b.sel.handler.alwaysMonolithic() ||
		!b.key.Opt.IsZero() || !b.key.Mono.IsZero()

	if err := b.run(); err != nil {
		s.fail(sh, err)
		Logger().Warn("variant: build failed", "label", b.sel.label, "stage", b.sel.Stage().String(),
			"optimized", sh.optimized, "err", err)
		return err
	}

	if !b.sel.publish(sh) {
		sh.free(s.uploader)
		err := buildError(ErrInvalidArgument, b.sel.Stage(), b.sel.label, errSelectorReleased)
		sh.fence.Signal(err)
		return err
	}

	s.stats.variants.Add(1)
	if b.mono {
		s.stats.monolithic.Add(1)
	}
	if sh.optimized {
		s.stats.optimized.Add(1)
	}
	Logger().Info("variant: compiled", "label", b.sel.label, "stage", b.sel.Stage().String(),
		"mono", b.mono, "sgprs", sh.config.NumSGPRs, "vgprs", sh.config.NumVGPRs,
		"waves", sh.config.MaxSIMDWaves, "elapsed", time.Since(start))
	return nil
}

// fail drops a variant from its selector and wakes its waiters. A
// backend failure of an optimized variant has no caller to panic in, so
// the selector keeps it for the next request of the key.
func (s *Screen) fail(sh *Shader, err error) {
	var fatal error
	if sh.optimized && errors.Is(err, ErrBackendFailure) && !s.opts.passBadShaders {
		fatal = err
	}
	sh.sel.removeVariant(sh, fatal)
	sh.free(s.uploader)
	sh.fence.Signal(err)
	s.stats.failures.Add(1)
}

func (b *build) run() error {
	if err := b.resolvePrevious(); err != nil {
		return err
	}

	var frags []fragment
	var p plan
	var err error
	if b.mono {
		frags, p, err = b.monolithic()
	} else {
		frags, p, err = b.split()
	}
	if err != nil {
		return err
	}

	b.deriveInfo(&p)
	cfg, err := b.reconcile(frags, &p)
	if err != nil {
		return err
	}
	b.sh.config = cfg
	b.sh.info = b.info
	b.sh.mono = b.mono
	return b.link(frags)
}

// resolvePrevious looks up the first half of a merged stage.
func (b *build) resolvePrevious() error {
	if b.key.PrevStage == 0 {
		return nil
	}
	prev, ok := b.s.Selector(b.key.PrevStage)
	if !ok {
		return buildError(ErrInvalidArgument, b.sel.Stage(), b.sel.label,
			fmt.Errorf("previous stage selector %d not found", b.key.PrevStage))
	}
	flags, err := b.sel.handler.prevFlags(b.key, prev)
	if err != nil {
		return buildError(ErrInvalidArgument, b.sel.Stage(), b.sel.label, err)
	}
	b.prev, b.prevFlags = prev, flags
	return nil
}

// split assembles the variant from the selector's main part and cached
// parts.
func (b *build) split() ([]fragment, plan, error) {
	mp, err := b.sel.mainPart(b.ctx, b.comp, b.sel.handler.mainFlags(b.key))
	if err != nil {
		return nil, plan{}, err
	}
	b.mainLayout = mp.layout
	b.sh.binary = mp.binary

	var prevBin *backend.Binary
	if b.prev != nil {
		pp, err := b.prev.mainPart(b.ctx, b.comp, b.prevFlags)
		if err != nil {
			return nil, plan{}, err
		}
		b.prevLayout = pp.layout
		prevBin = pp.binary
		b.sh.previous = pp.binary
	}

	p := b.sel.handler.plan(b)
	var frags []fragment
	if p.prolog != nil {
		part, err := b.cachedPart(*p.prolog)
		if err != nil {
			return nil, p, err
		}
		b.sh.prolog = part
		frags = append(frags, fragment{name: part.Name(), binary: part.Binary})
	}
	if prevBin != nil {
		frags = append(frags, fragment{name: segPrevious, binary: prevBin})
	}
	if p.prolog2 != nil {
		part, err := b.cachedPart(*p.prolog2)
		if err != nil {
			return nil, p, err
		}
		b.sh.prolog2 = part
		frags = append(frags, fragment{name: part.Name(), binary: part.Binary})
	}
	frags = append(frags, fragment{name: segMain, binary: mp.binary})
	if p.epilog != nil {
		part, err := b.cachedPart(*p.epilog)
		if err != nil {
			return nil, p, err
		}
		b.sh.epilog = part
		frags = append(frags, fragment{name: part.Name(), binary: part.Binary})
	}
	return frags, p, nil
}

// monolithic compiles every piece of the variant for this key alone.
func (b *build) monolithic() ([]fragment, plan, error) {
	s := b.s
	if b.key.Opt.Flags&OptInlineUniforms != 0 {
		if err := b.specialize(); err != nil {
			return nil, plan{}, err
		}
	}

	var err error
	b.mainLayout, err = abi.StageLayout(s.chip, b.layoutOptions(false))
	if err != nil {
		return nil, plan{}, layoutError(b.sel.Stage(), b.sel.label, err)
	}
	if b.prev != nil {
		b.prevLayout, err = abi.StageLayout(s.chip, abi.LayoutOptions{
			Info:              b.prev.info,
			AsLS:              b.prevFlags.Has(AsLS),
			AsES:              b.prevFlags.Has(AsES),
			AsNGG:             b.prevFlags.Has(AsNGG),
			SamePatchVertices: b.key.Opt.Flags&OptSamePatchVertices != 0,
		})
		if err != nil {
			return nil, plan{}, layoutError(b.prev.Stage(), b.prev.label, err)
		}
	}

	p := b.sel.handler.plan(b)
	var frags []fragment
	if p.prolog != nil {
		bin, err := b.compilePart(*p.prolog)
		if err != nil {
			return nil, p, err
		}
		frags = append(frags, fragment{name: p.prolog.Kind.String(), binary: bin})
	}
	switch {
	case p.cull:
		layout, err := abi.StageLayout(s.chip, b.layoutOptions(true))
		if err != nil {
			return nil, p, layoutError(b.sel.Stage(), b.sel.label, err)
		}
		bin, err := s.compile(b.comp, b.mainRequest(backend.KindCull, layout))
		if err != nil {
			return nil, p, err
		}
		frags = append(frags, fragment{name: segCull, binary: bin})
	case b.prev != nil:
		bin, err := s.compile(b.comp, &backend.Request{
			Label:    b.prev.label,
			Stage:    b.prev.Stage(),
			Kind:     backend.KindMain,
			IR:       b.prev.ir,
			Info:     b.prev.info,
			Spec:     b.prevSpec(),
			Layout:   b.prevLayout,
			Chip:     s.chip,
			WaveSize: uint8(s.chip.WaveSize),
		})
		if err != nil {
			return nil, p, err
		}
		frags = append(frags, fragment{name: segPrevious, binary: bin})
	}
	if p.prolog2 != nil {
		bin, err := b.compilePart(*p.prolog2)
		if err != nil {
			return nil, p, err
		}
		frags = append(frags, fragment{name: p.prolog2.Kind.String(), binary: bin})
	}
	main, err := s.compile(b.comp, b.mainRequest(backend.KindMain, b.mainLayout))
	if err != nil {
		return nil, p, err
	}
	frags = append(frags, fragment{name: segMain, binary: main})
	if p.epilog != nil {
		bin, err := b.compilePart(*p.epilog)
		if err != nil {
			return nil, p, err
		}
		frags = append(frags, fragment{name: p.epilog.Kind.String(), binary: bin})
	}
	return frags, p, nil
}

// specialize replaces the leading uniforms with the key's values.
func (b *build) specialize() error {
	prov := b.s.provider
	if prov == nil {
		return buildError(ErrIRUnavailable, b.sel.Stage(), b.sel.label, nil)
	}
	n := min(int(b.sel.info.NumInlinableUniforms), abi.MaxInlinableUniforms)
	ir, err := prov.InlineUniforms(b.sel.ir.Clone(), b.key.Opt.InlinedUniformValues[:n])
	if err != nil {
		return buildError(ErrIRUnavailable, b.sel.Stage(), b.sel.label, err)
	}
	ir, err = prov.Lower(ir, true)
	if err != nil {
		return buildError(ErrIRUnavailable, b.sel.Stage(), b.sel.label, err)
	}
	b.ir = ir
	return nil
}

func (b *build) layoutOptions(cull bool) abi.LayoutOptions {
	o := abi.LayoutOptions{
		Info:              b.sel.info,
		AsLS:              b.key.Flags.Has(AsLS),
		AsES:              b.key.Flags.Has(AsES),
		AsNGG:             b.key.Flags.Has(AsNGG),
		NGGCull:           cull,
		SamePatchVertices: b.key.Opt.Flags&OptSamePatchVertices != 0,
	}
	if b.prev != nil {
		o.Prev = b.prev.info
	}
	return o
}

func (b *build) mainRequest(kind backend.Kind, layout *abi.Layout) *backend.Request {
	return &backend.Request{
		Label:    b.sel.label,
		Stage:    b.sel.Stage(),
		Kind:     kind,
		IR:       b.ir,
		Info:     b.sel.info,
		Spec:     mainSpec(b.key),
		Layout:   layout,
		Chip:     b.s.chip,
		WaveSize: uint8(b.s.chip.WaveSize),
	}
}

// mainSpec returns every key axis a monolithic main body honors.
func mainSpec(k Key) backend.MainSpec {
	return backend.MainSpec{
		AsLS:              k.Flags.Has(AsLS),
		AsES:              k.Flags.Has(AsES),
		AsNGG:             k.Flags.Has(AsNGG),
		KillOutputs:       k.Opt.KillOutputs,
		KillClipDistances: k.Opt.KillClipDistances,
		KillPointSize:     k.Opt.Flags&OptKillPointSize != 0,
		NGGCulling:        k.Opt.NGGCulling,
		SamePatchVertices: k.Opt.Flags&OptSamePatchVertices != 0,
		VSFixFetch:        k.Mono.VSFixFetch,
		VSFetchOpencode:   k.Mono.VSFetchOpencode,
		FFTCSInputsToCopy: k.Mono.FFTCSInputsToCopy,
		ExportPrimID:      k.Mono.Flags&MonoVSExportPrimID != 0,
	}
}

// prevSpec is the spec of the first half of a merged stage. Vertex fetch
// fixups in the key apply to it, since it is the vertex shader.
func (b *build) prevSpec() backend.MainSpec {
	spec := backend.MainSpec{
		AsLS:              b.prevFlags.Has(AsLS),
		AsES:              b.prevFlags.Has(AsES),
		AsNGG:             b.prevFlags.Has(AsNGG),
		SamePatchVertices: b.key.Opt.Flags&OptSamePatchVertices != 0,
	}
	if b.prev.Stage() == abi.StageVertex {
		spec.VSFixFetch = b.key.Mono.VSFixFetch
		spec.VSFetchOpencode = b.key.Mono.VSFetchOpencode
	}
	return spec
}

// cachedPart returns a shared part from the screen's part cache.
func (b *build) cachedPart(key abi.PartKey) (*Part, error) {
	part, err := b.s.parts.GetOrBuild(b.ctx, key, func() (*Part, error) {
		layout, err := key.Layout(b.s.chip)
		if err != nil {
			return nil, layoutError(key.Stage(), key.Kind.String(), err)
		}
		bin, err := b.s.compile(b.comp, b.partRequest(key, layout))
		if err != nil {
			return nil, err
		}
		return &Part{Key: key, Binary: bin, Layout: layout}, nil
	})
	if err != nil {
		return nil, buildError(ErrBackendFailure, key.Stage(), key.Kind.String(), err)
	}
	return part, nil
}

// compilePart compiles a part for one monolithic variant.
func (b *build) compilePart(key abi.PartKey) (*backend.Binary, error) {
	layout, err := key.Layout(b.s.chip)
	if err != nil {
		return nil, layoutError(key.Stage(), key.Kind.String(), err)
	}
	return b.s.compile(b.comp, b.partRequest(key, layout))
}

func (b *build) partRequest(key abi.PartKey, layout *abi.Layout) *backend.Request {
	return &backend.Request{
		Label:    key.Kind.String(),
		Stage:    key.Stage(),
		Kind:     backend.KindPart,
		Part:     key,
		Layout:   layout,
		Chip:     b.s.chip,
		WaveSize: uint8(b.s.chip.WaveSize),
	}
}

// deriveInfo computes the binding metadata of the variant.
func (b *build) deriveInfo(p *plan) {
	info := b.sel.info
	si := ShaderInfo{
		NumInputSGPRs:      b.mainLayout.NumInputSGPRs(),
		NumInputVGPRs:      b.mainLayout.NumInputVGPRs(),
		FaceVGPRIndex:      -1,
		AncillaryVGPRIndex: -1,
		UsesInstanceID:     info.UsesInstanceID || p.usesInstanceID,
		UsesBaseInstance:   info.UsesBaseInstance,
	}
	// A merged wave is entered with the first half's inputs.
	if b.prevLayout != nil {
		si.NumInputSGPRs = max(si.NumInputSGPRs, b.prevLayout.NumInputSGPRs())
		si.NumInputVGPRs = b.prevLayout.NumInputVGPRs()
		si.UsesInstanceID = si.UsesInstanceID || b.prev.info.UsesInstanceID
		si.UsesBaseInstance = si.UsesBaseInstance || b.prev.info.UsesBaseInstance
	}
	if info.Stage == abi.StageFragment {
		if info.UsesFrontFace {
			si.FaceVGPRIndex = b.mainLayout.Slot(abi.ArgFrontFace)
		}
		if info.UsesSampleID {
			si.AncillaryVGPRIndex = b.mainLayout.Slot(abi.ArgAncillary)
		}
	}
	outputInfo(info, b.key, &si)
	b.info = si
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
	"github.com/gogpu/variant/cache"
	"github.com/gogpu/variant/internal/parallel"
)

// maxInlinedUniformVariants caps the variants of one selector that differ
// only in inlined uniform values. Past the cap, requests are compiled
// without inlining.
const maxInlinedUniformVariants = 5

var errSelectorReleased = fmt.Errorf("%w: selector released", ErrInvalidArgument)

// Selector is one API shader and the variants compiled from it.
//
// The IR and its analysis never change after creation. Main parts are
// compiled lazily, once per set of hardware stage flags, and variants are
// added as they are selected. A Selector is reference counted: it is
// created with one reference, and the variants' GPU memory is released
// when the last reference is dropped.
type Selector struct {
	screen  *Screen
	id      SelectorID
	label   string
	info    *abi.Info
	ir      backend.IR
	irHash  [32]byte
	handler stageHandler

	// ready is signalled when the initial main part compile finishes.
	ready *parallel.Fence

	refs atomic.Int32

	mu       sync.Mutex
	released bool
	variants map[Key]*Shader
	mains    map[KeyFlags]*mainPart
	// inlined counts variants with inlined uniform values.
	inlined int
	// badOptimized holds backend failures of optimized builds that
	// panic in the next Select of their key.
	badOptimized map[Key]error
}

// mainPart is the main body of a split variant, compiled once per
// selector and set of hardware stage flags.
type mainPart struct {
	fence  *parallel.Fence
	binary *backend.Binary
	layout *abi.Layout
}

// ID returns the handle other keys use to name the selector.
func (sel *Selector) ID() SelectorID { return sel.id }

// Label returns the debug label of the source.
func (sel *Selector) Label() string { return sel.label }

// Stage returns the pipeline stage of the shader.
func (sel *Selector) Stage() abi.Stage { return sel.info.Stage }

// Info returns the static analysis of the shader. It must not be modified.
func (sel *Selector) Info() *abi.Info { return sel.info }

// Ready returns the fence of the initial compile.
func (sel *Selector) Ready() *parallel.Fence { return sel.ready }

// Retain adds a reference.
func (sel *Selector) Retain() *Selector {
	sel.refs.Add(1)
	return sel
}

// Release drops a reference. Dropping the last one frees the memory of
// every variant; the selector must not be used afterwards.
func (sel *Selector) Release() {
	n := sel.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("variant: Selector released too many times")
	}

	sel.mu.Lock()
	sel.released = true
	shaders := make([]*Shader, 0, len(sel.variants))
	for _, sh := range sel.variants {
		shaders = append(shaders, sh)
	}
	clear(sel.variants)
	sel.mu.Unlock()

	// Variants still building free themselves when they finish.
	for _, sh := range shaders {
		if sh.fence.IsSignalled() {
			sh.free(sel.screen.uploader)
		}
	}
	sel.screen.unregister(sel)
	Logger().Debug("variant: selector released", "label", sel.label, "variants", len(shaders))
}

// NumVariants returns the number of variants built or building.
func (sel *Selector) NumVariants() int {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	return len(sel.variants)
}

// publish signals a finished variant unless the selector was released.
// Release frees the variants it finds signalled, so the check and the
// signal share the lock: a variant is freed by exactly one side.
func (sel *Selector) publish(sh *Shader) bool {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	if sel.released {
		return false
	}
	sh.fence.Signal(nil)
	return true
}

// capInlinedUniforms drops inlined uniforms from k when the selector
// cannot inline or already has too many inlined variants. sel.mu must be
// held.
func (sel *Selector) capInlinedUniforms(k Key) Key {
	if k.Opt.Flags&OptInlineUniforms == 0 {
		return k
	}
	if sel.info.NumInlinableUniforms == 0 {
		k.clearInlinedUniforms()
		return k
	}
	if _, exists := sel.variants[k]; !exists && sel.inlined >= maxInlinedUniformVariants {
		Logger().Warn("variant: inlined uniform variant cap reached",
			"label", sel.label, "cap", maxInlinedUniformVariants)
		k.clearInlinedUniforms()
	}
	return k
}

// mainPart returns the main part for flags, compiling it with comp if
// nobody has yet. Concurrent callers wait for the first.
func (sel *Selector) mainPart(ctx context.Context, comp backend.Compiler, flags KeyFlags) (*mainPart, error) {
	sel.mu.Lock()
	if mp, ok := sel.mains[flags]; ok {
		sel.mu.Unlock()
		if err := mp.fence.Wait(ctx); err != nil {
			return nil, err
		}
		return mp, nil
	}
	mp := &mainPart{fence: parallel.NewFence()}
	sel.mains[flags] = mp
	sel.mu.Unlock()

	err := sel.compileMainPart(comp, flags, mp)
	if err != nil {
		sel.mu.Lock()
		delete(sel.mains, flags)
		sel.mu.Unlock()
	}
	mp.fence.Signal(err)
	if err != nil {
		return nil, err
	}
	return mp, nil
}

func (sel *Selector) compileMainPart(comp backend.Compiler, flags KeyFlags, mp *mainPart) error {
	s := sel.screen
	layout, err := abi.StageLayout(s.chip, abi.LayoutOptions{
		Info:  sel.info,
		AsLS:  flags.Has(AsLS),
		AsES:  flags.Has(AsES),
		AsNGG: flags.Has(AsNGG),
	})
	if err != nil {
		return layoutError(sel.Stage(), sel.label, err)
	}
	spec := backend.MainSpec{AsLS: flags.Has(AsLS), AsES: flags.Has(AsES), AsNGG: flags.Has(AsNGG)}

	ck := cache.BinaryKey{
		IR:       sel.irHash,
		Stage:    sel.Stage(),
		Kind:     backend.KindMain,
		WaveSize: uint8(s.chip.WaveSize),
		Chip:     s.chip.Name,
		Spec:     spec,
	}
	if bin, ok := s.binaries.Get(ck); ok {
		Logger().Debug("variant: main part cache hit", "label", sel.label, "flags", flags)
		mp.binary, mp.layout = bin, layout
		return nil
	}

	bin, err := s.compile(comp, &backend.Request{
		Label:    sel.label,
		Stage:    sel.Stage(),
		Kind:     backend.KindMain,
		IR:       sel.ir,
		Info:     sel.info,
		Spec:     spec,
		Layout:   layout,
		Chip:     s.chip,
		WaveSize: uint8(s.chip.WaveSize),
	})
	if err != nil {
		return err
	}
	s.binaries.Set(ck, bin)
	Logger().Debug("variant: main part compiled", "label", sel.label, "flags", flags,
		"layout", layout.Signature())
	mp.binary, mp.layout = bin, layout
	return nil
}

// removeVariant drops a failed variant so that a later request builds it
// again.
// removeVariant drops sh from the variant table. A non-nil fatal error
// is raised by the next Select of the key.
func (sel *Selector) removeVariant(sh *Shader, fatal error) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	if cur, ok := sel.variants[sh.key]; ok && cur == sh {
		delete(sel.variants, sh.key)
		if sh.key.Opt.Flags&OptInlineUniforms != 0 {
			sel.inlined--
		}
	}
	if fatal != nil && !sel.released {
		if sel.badOptimized == nil {
			sel.badOptimized = make(map[Key]error)
		}
		sel.badOptimized[sh.key] = fatal
	}
}

func layoutError(stage abi.Stage, label string, err error) error {
	if errors.Is(err, abi.ErrRegisterOverflow) {
		return buildError(ErrResourceOverCommit, stage, label, err)
	}
	return buildError(ErrInvalidArgument, stage, label, err)
}

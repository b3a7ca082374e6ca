// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"errors"

	"github.com/gogpu/variant/internal/parallel"
)

// Select returns the variant of sel for key, building it if needed.
//
// Concurrent calls for the same key build the variant once; the other
// callers wait for it. Keys with optimization bits are compiled in the
// background: until the optimized variant is ready, Select returns the
// variant for key.WithoutOpt().
//
// A backend failure panics unless the screen was created with
// WithPassBadShaders(true). For an optimized variant built in the
// background, the panic happens in the next call for its key. Other
// failures are returned as *BuildError and are not cached: the next call
// builds again.
func (s *Screen) Select(ctx context.Context, sel *Selector, key Key) (*Shader, error) {
	return s.selectVariant(ctx, sel, key, false)
}

// SelectOptimized returns the optimized variant for key, or ErrNotReady
// while it is still compiling. It never falls back to the unoptimized
// variant.
func (s *Screen) SelectOptimized(ctx context.Context, sel *Selector, key Key) (*Shader, error) {
	return s.selectVariant(ctx, sel, key, true)
}

func (s *Screen) selectVariant(ctx context.Context, sel *Selector, key Key, optimizedOnly bool) (*Shader, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if sel == nil || sel.screen != s {
		return nil, ErrInvalidArgument
	}
	if err := key.Validate(sel.Stage(), s.chip); err != nil {
		return nil, err
	}
	// A failed initial compile is retried by the build.
	select {
	case <-sel.ready.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	sel.mu.Lock()
	if sel.released {
		sel.mu.Unlock()
		return nil, errSelectorReleased
	}
	// The cap check and the placeholder insert share the lock.
	key = sel.capInlinedUniforms(key)
	if err, ok := sel.badOptimized[key]; ok {
		delete(sel.badOptimized, key)
		sel.mu.Unlock()
		panic(err)
	}

	// Pure monolithic keys are compiled synchronously even with
	// optimization bits: there is no split variant to fall back to.
	optimized := !key.Opt.IsZero() && key.Mono.IsZero() && !s.opts.forceMono

	if sh, ok := sel.variants[key]; ok {
		sel.mu.Unlock()
		if optimized && !sh.fence.IsSignalled() {
			s.stats.fallbacks.Add(1)
			if optimizedOnly {
				return nil, ErrNotReady
			}
			return s.selectVariant(ctx, sel, key.WithoutOpt(), false)
		}
		if err := sh.fence.Wait(ctx); err != nil {
			return nil, err
		}
		return sh, nil
	}
	sh := newShader(sel, key, optimized)
	sel.variants[key] = sh
	if key.Opt.Flags&OptInlineUniforms != 0 {
		sel.inlined++
	}
	sel.mu.Unlock()

	if optimized {
		s.submitOptimized(sh)
		s.stats.fallbacks.Add(1)
		if optimizedOnly {
			return nil, ErrNotReady
		}
		return s.selectVariant(ctx, sel, key.WithoutOpt(), false)
	}

	comp, err := s.borrowCompiler()
	if err != nil {
		s.fail(sh, err)
		return nil, err
	}
	err = s.buildShader(context.WithoutCancel(ctx), sh, comp)
	s.returnCompiler(comp)
	if err != nil {
		if errors.Is(err, ErrBackendFailure) && !s.opts.passBadShaders {
			panic(err)
		}
		return nil, err
	}
	return sh, nil
}

// submitOptimized compiles an optimized variant on the low priority
// queue. Callers keep using the unoptimized variant meanwhile. A failure
// is logged and the next request tries again, except for a backend
// failure without WithPassBadShaders: that one panics in the next caller
// that asks for the key.
func (s *Screen) submitOptimized(sh *Shader) {
	f := s.low.Submit(func(worker int) error {
		comp, err := s.workerCompiler(s.lowCompilers, worker)
		if err != nil {
			s.fail(sh, err)
			return err
		}
		return s.buildShader(context.Background(), sh, comp)
	})
	// A closed queue never runs the job.
	if f.IsSignalled() && errors.Is(f.Err(), parallel.ErrClosed) {
		s.fail(sh, ErrClosed)
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
	"github.com/gogpu/variant/cache"
	"github.com/gogpu/variant/internal/parallel"
	"github.com/gogpu/variant/upload"
)

// Screen owns everything shared by the shaders of one device: the
// collaborators, the part cache, the main part binary cache and the
// compile queues.
//
// Screen is safe for concurrent use.
type Screen struct {
	opts     screenOptions
	chip     abi.Chip
	backend  backend.Backend
	provider backend.IRProvider
	uploader backend.Uploader

	parts    *PartCache
	binaries *cache.BinaryCache

	normal *parallel.Queue
	low    *parallel.Queue

	// Worker compilers. Entry i is only touched by worker i of its queue.
	normalCompilers []backend.Compiler
	lowCompilers    []backend.Compiler

	// Compilers lent to synchronous builds.
	poolMu sync.Mutex
	pool   []backend.Compiler
	all    []backend.Compiler

	selMu     sync.RWMutex
	selectors map[SelectorID]*Selector
	nextID    atomic.Uint64

	closed atomic.Bool
	stats  counters
}

// NewScreen creates a screen.
//
// Example:
//
//	screen, err := variant.NewScreen(variant.WithChip(abi.Vega10()))
//	if err != nil {
//	    return err
//	}
//	defer screen.Close()
func NewScreen(opts ...ScreenOption) (*Screen, error) {
	o := defaultScreenOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.chip.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	b := o.backend
	if b == nil {
		b = backend.Default()
		if b == nil {
			return nil, backend.ErrBackendNotAvailable
		}
	}
	p := o.provider
	if p == nil {
		p, _ = b.(backend.IRProvider)
	}
	u := o.uploader
	if u == nil {
		u = upload.NewMemory()
	}

	lowWorkers := max(1, o.workers/4)
	s := &Screen{
		opts:            o,
		chip:            o.chip,
		backend:         b,
		provider:        p,
		uploader:        u,
		parts:           NewPartCache(o.partBuildMode),
		binaries:        cache.NewBinaryCache(o.binaryCapacity),
		normal:          parallel.NewQueue("normal", o.workers),
		low:             parallel.NewQueue("low", lowWorkers),
		normalCompilers: make([]backend.Compiler, o.workers),
		lowCompilers:    make([]backend.Compiler, lowWorkers),
		selectors:       make(map[SelectorID]*Selector),
	}
	trackScreen(s)
	Logger().Info("variant: screen created", "chip", s.chip.String(), "backend", b.Name(),
		"workers", o.workers, "part_build", o.partBuildMode.String())
	return s, nil
}

// Chip returns the GPU the screen compiles for.
func (s *Screen) Chip() abi.Chip { return s.chip }

// PartCache returns the screen's part cache.
func (s *Screen) PartCache() *PartCache { return s.parts }

// Close waits for queued compiles and releases the compilers. Selecting
// on a closed screen fails with ErrClosed.
func (s *Screen) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.normal.Close()
	s.low.Close()

	s.poolMu.Lock()
	all := s.all
	s.all, s.pool = nil, nil
	s.poolMu.Unlock()
	for _, c := range all {
		c.Close()
	}
	untrackScreen(s)
	Logger().Info("variant: screen closed", "compilers", len(all))
}

// NewSelector loads src and schedules the compile of its default main
// part on the normal priority queue.
func (s *Screen) NewSelector(src backend.Source) (*Selector, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.provider == nil {
		return nil, buildError(ErrIRUnavailable, src.Stage, src.Label, nil)
	}
	ir, info, err := s.provider.Load(src)
	if err != nil {
		return nil, buildError(ErrIRUnavailable, src.Stage, src.Label, err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if src.Stage != info.Stage {
		return nil, fmt.Errorf("%w: %s source analyzed as %s", ErrInvalidArgument, src.Stage, info.Stage)
	}
	handler, err := newStageHandler(info.Stage)
	if err != nil {
		return nil, err
	}
	ir, err = s.provider.Lower(ir, false)
	if err != nil {
		return nil, buildError(ErrIRUnavailable, info.Stage, src.Label, err)
	}

	sel := &Selector{
		screen:   s,
		id:       SelectorID(s.nextID.Add(1)),
		label:    src.Label,
		info:     info,
		ir:       ir,
		irHash:   ir.Hash(),
		handler:  handler,
		variants: make(map[Key]*Shader),
		mains:    make(map[KeyFlags]*mainPart),
	}
	sel.refs.Store(1)

	s.selMu.Lock()
	s.selectors[sel.id] = sel
	s.selMu.Unlock()

	sel.ready = s.normal.Submit(func(worker int) error {
		comp, err := s.workerCompiler(s.normalCompilers, worker)
		if err != nil {
			return err
		}
		_, err = sel.mainPart(context.Background(), comp, handler.mainFlags(Key{}))
		if err != nil {
			Logger().Warn("variant: initial compile failed", "label", sel.label, "err", err)
		}
		return err
	})
	s.stats.selectors.Add(1)
	Logger().Info("variant: selector created", "label", sel.label, "stage", info.Stage.String(),
		"inputs", info.NumInputs(), "outputs", len(info.Outputs))
	return sel, nil
}

// Selector returns a live selector by id.
func (s *Screen) Selector(id SelectorID) (*Selector, bool) {
	s.selMu.RLock()
	defer s.selMu.RUnlock()
	sel, ok := s.selectors[id]
	return sel, ok
}

func (s *Screen) unregister(sel *Selector) {
	s.selMu.Lock()
	delete(s.selectors, sel.id)
	s.selMu.Unlock()
}

// workerCompiler returns the compiler of one queue worker, creating it on
// first use.
func (s *Screen) workerCompiler(comps []backend.Compiler, worker int) (backend.Compiler, error) {
	if c := comps[worker]; c != nil {
		return c, nil
	}
	c, err := s.newCompiler()
	if err != nil {
		return nil, err
	}
	comps[worker] = c
	return c, nil
}

// borrowCompiler takes a compiler from the free list for a synchronous
// build.
func (s *Screen) borrowCompiler() (backend.Compiler, error) {
	s.poolMu.Lock()
	if n := len(s.pool); n > 0 {
		c := s.pool[n-1]
		s.pool = s.pool[:n-1]
		s.poolMu.Unlock()
		return c, nil
	}
	s.poolMu.Unlock()
	return s.newCompiler()
}

func (s *Screen) returnCompiler(c backend.Compiler) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	if s.closed.Load() {
		return
	}
	s.pool = append(s.pool, c)
}

func (s *Screen) newCompiler() (backend.Compiler, error) {
	c, err := s.backend.NewCompiler(s.chip)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendFailure, s.backend.Name(), err)
	}
	s.poolMu.Lock()
	s.all = append(s.all, c)
	s.poolMu.Unlock()
	return c, nil
}

// compile runs one backend compile and classifies its failure.
func (s *Screen) compile(c backend.Compiler, req *backend.Request) (*backend.Binary, error) {
	s.stats.compiles.Add(1)
	bin, err := c.Compile(req)
	if err != nil {
		return nil, buildError(ErrBackendFailure, req.Stage, req.Label+" ("+req.Kind.String()+")", err)
	}
	return bin, nil
}

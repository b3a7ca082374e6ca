// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/cache"
)

// counters are the live statistics of a Screen.
type counters struct {
	selectors  atomic.Uint64
	variants   atomic.Uint64
	monolithic atomic.Uint64
	optimized  atomic.Uint64
	failures   atomic.Uint64
	fallbacks  atomic.Uint64
	compiles   atomic.Uint64
}

// Stats is a snapshot of screen statistics.
type Stats struct {
	// Selectors counts selectors created; Live those not yet released.
	Selectors uint64
	Live      int

	// Variants counts published variants, of which Monolithic were
	// compiled as one function and Optimized carry optimization bits.
	Variants   uint64
	Monolithic uint64
	Optimized  uint64
	Failures   uint64
	// Fallbacks counts requests answered while an optimized variant was
	// still compiling.
	Fallbacks uint64
	// Compiles counts backend compiles of every kind.
	Compiles uint64

	Parts    [abi.NumPartKinds]PartStats
	Binaries cache.Stats
}

// Stats returns a snapshot of the screen statistics.
func (s *Screen) Stats() Stats {
	s.selMu.RLock()
	live := len(s.selectors)
	s.selMu.RUnlock()
	return Stats{
		Selectors:  s.stats.selectors.Load(),
		Live:       live,
		Variants:   s.stats.variants.Load(),
		Monolithic: s.stats.monolithic.Load(),
		Optimized:  s.stats.optimized.Load(),
		Failures:   s.stats.failures.Load(),
		Fallbacks:  s.stats.fallbacks.Load(),
		Compiles:   s.stats.compiles.Load(),
		Parts:      s.parts.Stats(),
		Binaries:   s.binaries.Stats(),
	}
}

// Format returns a multi-line report with numbers grouped for lang.
func (st Stats) Format(lang language.Tag) string {
	p := message.NewPrinter(lang)
	var sb strings.Builder
	p.Fprintf(&sb, "selectors: %d (%d live)\n", st.Selectors, st.Live)
	p.Fprintf(&sb, "variants:  %d (%d monolithic, %d optimized, %d failed, %d fallbacks)\n",
		st.Variants, st.Monolithic, st.Optimized, st.Failures, st.Fallbacks)
	p.Fprintf(&sb, "compiles:  %d\n", st.Compiles)
	for kind, ps := range st.Parts {
		p.Fprintf(&sb, "  %-10s %d parts, %d hits, %d builds, %d failures\n",
			abi.PartKind(kind).String(), ps.Entries, ps.Hits, ps.Builds, ps.Failures)
	}
	p.Fprintf(&sb, "binaries:  %d cached, %d hits, %d misses, %.1f%% hit rate\n",
		st.Binaries.Len, st.Binaries.Hits, st.Binaries.Misses, st.Binaries.HitRate*100)
	return sb.String()
}

// String formats the statistics in English.
func (st Stats) String() string { return st.Format(language.English) }

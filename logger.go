// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for variant and the collaborators of
// every live Screen. By default, variant produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by variant:
//   - [slog.LevelDebug]: cache hits and misses, argument layouts
//   - [slog.LevelInfo]: selectors created, variants compiled
//   - [slog.LevelWarn]: soft-failed builds, overcommitted shaders, the
//     inlined uniform cap
//
// Example:
//
//	variant.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	screensMu.Lock()
	live := make([]*Screen, 0, len(screens))
	for s := range screens {
		live = append(live, s)
	}
	screensMu.Unlock()
	for _, s := range live {
		s.propagateLogger(l)
	}
}

// Logger returns the current logger used by variant.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends and uploaders that accept a
// logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// screens tracks live screens so SetLogger can reach their collaborators.
var (
	screensMu sync.Mutex
	screens   = make(map[*Screen]struct{})
)

func trackScreen(s *Screen) {
	screensMu.Lock()
	screens[s] = struct{}{}
	screensMu.Unlock()
	s.propagateLogger(Logger())
}

func untrackScreen(s *Screen) {
	screensMu.Lock()
	delete(screens, s)
	screensMu.Unlock()
}

// propagateLogger passes l to every collaborator that implements
// loggerSetter.
func (s *Screen) propagateLogger(l *slog.Logger) {
	for _, c := range []any{s.backend, s.provider, s.uploader} {
		if ls, ok := c.(loggerSetter); ok {
			ls.SetLogger(l)
		}
	}
}

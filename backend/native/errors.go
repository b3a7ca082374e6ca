// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoEntryPoint is returned when a source has no entry point for the
	// requested stage or name.
	ErrNoEntryPoint = errors.New("native: no matching entry point")

	// ErrValidation is returned when naga rejects the lowered module.
	ErrValidation = errors.New("native: validation failed")

	// ErrForeignIR is returned for IR not created by this provider.
	ErrForeignIR = errors.New("native: IR not created by the native provider")

	// ErrNoUniforms is returned when uniform inlining finds no uniform
	// buffer to inline.
	ErrNoUniforms = errors.New("native: no inlinable uniforms")
)

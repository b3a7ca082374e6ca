// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"errors"
	"fmt"

	"github.com/gogpu/variant/abi"
)

// Sentinel errors. A failed build returns a *BuildError that matches one
// of them with errors.Is.
var (
	// ErrInvalidArgument is returned for malformed keys and selectors
	// before any compile work starts.
	ErrInvalidArgument = errors.New("variant: invalid argument")

	// ErrIRUnavailable means the selector has no usable IR.
	ErrIRUnavailable = errors.New("variant: IR unavailable")

	// ErrBackendFailure means code generation rejected the IR.
	ErrBackendFailure = errors.New("variant: backend failure")

	// ErrResourceOverCommit means the linked shader needs more registers
	// or LDS than the hardware has.
	ErrResourceOverCommit = errors.New("variant: resource overcommit")

	// ErrUploadFailure means the linked image could not be placed in GPU
	// memory.
	ErrUploadFailure = errors.New("variant: upload failure")

	// ErrNotReady is returned by SelectOptimized while the optimized
	// variant is still compiling.
	ErrNotReady = errors.New("variant: optimized variant not ready")

	// ErrClosed is returned after Screen.Close.
	ErrClosed = errors.New("variant: screen closed")
)

// BuildError describes a failed variant or part build.
type BuildError struct {
	// Kind is one of the sentinel errors.
	Kind  error
	Stage abi.Stage
	// Label names the shader or part being built.
	Label string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s %s", e.Kind, e.Stage, e.Label)
	}
	return fmt.Sprintf("%v: %s %s: %v", e.Kind, e.Stage, e.Label, e.Err)
}

// Unwrap returns both the kind and the cause.
func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func buildError(kind error, stage abi.Stage, label string, err error) error {
	var be *BuildError
	if errors.As(err, &be) {
		return err
	}
	return &BuildError{Kind: kind, Stage: stage, Label: label, Err: err}
}

// OverCommitError is the diagnostic of ErrResourceOverCommit.
type OverCommitError struct {
	Resource string
	Used     uint32
	Limit    uint32
}

func (e *OverCommitError) Error() string {
	return fmt.Sprintf("%s: %d used, %d available", e.Resource, e.Used, e.Limit)
}

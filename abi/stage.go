// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Stage is a logical pipeline stage.
type Stage uint8

// Pipeline stages in pipeline order.
const (
	StageVertex Stage = iota
	StageTessCtrl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute

	NumStages = int(StageCompute) + 1
)

var stageNames = [NumStages]string{"vs", "tcs", "tes", "gs", "ps", "cs"}

// String returns the short stage name ("vs", "ps", ...).
func (s Stage) String() string {
	if int(s) < NumStages {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return int(s) < NumStages
}

// ShaderStage returns the WebGPU stage flag s is visible to.
// Stages without a WebGPU counterpart report ShaderStageNone.
func (s Stage) ShaderStage() gputypes.ShaderStage {
	switch s {
	case StageVertex:
		return gputypes.ShaderStageVertex
	case StageFragment:
		return gputypes.ShaderStageFragment
	case StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageNone
	}
}

// StageFromShaderStage maps a single WebGPU stage flag to a Stage.
func StageFromShaderStage(s gputypes.ShaderStage) (Stage, error) {
	switch s {
	case gputypes.ShaderStageVertex:
		return StageVertex, nil
	case gputypes.ShaderStageFragment:
		return StageFragment, nil
	case gputypes.ShaderStageCompute:
		return StageCompute, nil
	default:
		return 0, fmt.Errorf("abi: no stage for %v", s)
	}
}

// ParseStage parses a short stage name as produced by Stage.String.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("abi: unknown stage %q", name)
}

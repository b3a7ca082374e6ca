// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"fmt"
)

// Semantic names what an input or output slot carries.
type Semantic uint8

// Semantics. Generic varyings follow SemanticGeneric0 consecutively.
const (
	SemanticNone Semantic = iota
	SemanticPosition
	SemanticPointSize
	SemanticClipDist0
	SemanticClipDist1
	SemanticPrimID
	SemanticLayer
	SemanticViewport
	SemanticColor0
	SemanticColor1
	SemanticBackColor0
	SemanticBackColor1
	SemanticTessOuter
	SemanticTessInner
	SemanticGeneric0

	MaxGenericSlots = 32
)

// Generic returns the semantic of generic varying n.
func Generic(n int) Semantic { return SemanticGeneric0 + Semantic(n) }

// String returns a short semantic name.
func (s Semantic) String() string {
	names := [...]string{
		"none", "pos", "psize", "clip0", "clip1", "primid", "layer", "viewport",
		"col0", "col1", "bcol0", "bcol1", "tessouter", "tessinner",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("generic%d", s-SemanticGeneric0)
}

// Interp is the interpolation mode of a fragment input.
type Interp uint8

// Interpolation modes. InterpColor follows the flat-shade state.
const (
	InterpNone Interp = iota
	InterpFlat
	InterpPerspCenter
	InterpPerspCentroid
	InterpPerspSample
	InterpLinearCenter
	InterpLinearCentroid
	InterpLinearSample
	InterpColor
)

var interpNames = [...]string{"none", "flat", "persp_center", "persp_centroid", "persp_sample",
	"linear_center", "linear_centroid", "linear_sample", "color"}

func (i Interp) String() string {
	if int(i) < len(interpNames) {
		return interpNames[i]
	}
	return fmt.Sprintf("Interp(%d)", uint8(i))
}

// Linear reports whether i interpolates without perspective correction.
func (i Interp) Linear() bool {
	return i == InterpLinearCenter || i == InterpLinearCentroid || i == InterpLinearSample
}

// Slot is one input or output location of a shader.
type Slot struct {
	Semantic Semantic
	Interp   Interp
	// UsageMask has one bit per component that is read or written.
	UsageMask uint8
}

// Info is the static analysis of one source shader. It is computed once
// when the shader is loaded and never changes.
type Info struct {
	Stage Stage

	Inputs  []Slot
	Outputs []Slot

	// NumVertexBuffers is the number of vertex buffers fetched by a VS.
	NumVertexBuffers uint8

	UsesVertexID      bool
	UsesInstanceID    bool
	UsesBaseVertex    bool
	UsesBaseInstance  bool
	UsesDrawID        bool
	UsesPrimID        bool
	UsesInvocationID  bool
	UsesFrontFace     bool
	UsesSampleMaskIn  bool
	UsesSampleID      bool
	UsesDerivatives   bool
	UsesDiscard       bool
	UsesGridSize      bool
	UsesBlockID       [3]bool
	UsesSubgroupInfo  bool
	VariableBlockSize bool

	// ReadsPosition has one bit per gl_FragCoord component.
	ReadsPosition uint8

	// ColorsRead has 4 bits per color input (COLOR0 low, COLOR1 high).
	ColorsRead  uint8
	ColorInterp [2]Interp

	// ColorsWritten has one bit per color target.
	ColorsWritten uint8
	// ColorTypes has 2 bits per color target, a ColorType.
	ColorTypes       uint16
	WritesZ          bool
	WritesStencil    bool
	WritesSamplemask bool

	WritesPosition     bool
	WritesPointSize    bool
	WritesClipDistance uint8

	// StreamoutStride is the per-buffer stride in dwords; zero disables.
	StreamoutStride [4]uint16

	// Workgroup is the compute workgroup size.
	Workgroup [3]uint32

	// LDSBytes is statically declared workgroup memory.
	LDSBytes uint32

	// NumInlinableUniforms is how many leading uniform dwords may be
	// replaced by constants.
	NumInlinableUniforms uint8

	// NeedsVSProlog is set when instance divisors or vertex id unpacking
	// are handled in a prolog.
	NeedsVSProlog bool
}

// NumInputs returns the number of input slots.
func (in *Info) NumInputs() int { return len(in.Inputs) }

// OutputsWritten returns a bitmask of output slots that are written.
func (in *Info) OutputsWritten() uint64 {
	var m uint64
	for i, o := range in.Outputs {
		if o.UsageMask != 0 && i < 64 {
			m |= 1 << uint(i)
		}
	}
	return m
}

// InputSlot returns the input index of a semantic, or -1.
func (in *Info) InputSlot(s Semantic) int {
	for i, o := range in.Inputs {
		if o.Semantic == s {
			return i
		}
	}
	return -1
}

// OutputSlot returns the output index of a semantic, or -1.
func (in *Info) OutputSlot(s Semantic) int {
	for i, o := range in.Outputs {
		if o.Semantic == s {
			return i
		}
	}
	return -1
}

// UsesStreamout reports whether any transform feedback buffer is bound.
func (in *Info) UsesStreamout() bool {
	for _, s := range in.StreamoutStride {
		if s != 0 {
			return true
		}
	}
	return false
}

// Validate checks the analysis for values no layout can represent.
func (in *Info) Validate() error {
	if !in.Stage.Valid() {
		return fmt.Errorf("abi: invalid stage %d", in.Stage)
	}
	if len(in.Inputs) > MaxGenericSlots || len(in.Outputs) > 64 {
		return fmt.Errorf("abi: %s has %d inputs and %d outputs", in.Stage, len(in.Inputs), len(in.Outputs))
	}
	if in.NumInlinableUniforms > MaxInlinableUniforms {
		return fmt.Errorf("abi: %d inlinable uniforms, max %d", in.NumInlinableUniforms, MaxInlinableUniforms)
	}
	if in.Stage == StageCompute && !in.VariableBlockSize &&
		(in.Workgroup[0] == 0 || in.Workgroup[1] == 0 || in.Workgroup[2] == 0) {
		return fmt.Errorf("abi: compute workgroup %v", in.Workgroup)
	}
	return nil
}

// ColorType is the component type of a fragment color output.
type ColorType uint8

// Color output types.
const (
	ColorFloat ColorType = iota
	ColorSint
	ColorUint
)

// ColorTypeOf returns the type of color target mrt.
func (in *Info) ColorTypeOf(mrt int) ColorType {
	return ColorType(in.ColorTypes>>(2*uint(mrt))) & 3
}

// MaxInlinableUniforms is how many uniform dwords a key can carry.
const MaxInlinableUniforms = 4

// MaxVariableThreadsPerBlock bounds variable-size compute workgroups.
const MaxVariableThreadsPerBlock = 1024

// MaxWorkgroupSize returns the largest workgroup a shader of the given
// stage is compiled for. Zero means the stage has no workgroup concept.
func MaxWorkgroupSize(chip Chip, info *Info, asNGG bool) uint32 {
	switch info.Stage {
	case StageVertex, StageTessEval:
		if asNGG {
			return 128
		}
		return 0
	case StageTessCtrl:
		if chip.Gfx >= GFX7 {
			return 128
		}
		return 0
	case StageGeometry:
		if chip.Gfx >= GFX9 {
			return 128
		}
		return 0
	case StageCompute:
		if info.VariableBlockSize {
			return MaxVariableThreadsPerBlock
		}
		return info.Workgroup[0] * info.Workgroup[1] * info.Workgroup[2]
	}
	return 0
}

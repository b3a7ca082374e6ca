// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import "fmt"

// PSInput is the set of fragment system values the rasterizer loads into
// VGPRs. Bits follow the VGPR order of the fragment layout.
type PSInput uint32

// Fragment system value inputs.
const (
	PSInputPerspSample PSInput = 1 << iota
	PSInputPerspCenter
	PSInputPerspCentroid
	PSInputPerspPullModel
	PSInputLinearSample
	PSInputLinearCenter
	PSInputLinearCentroid
	PSInputLineStipple
	PSInputPosX
	PSInputPosY
	PSInputPosZ
	PSInputPosW
	PSInputFrontFace
	PSInputAncillary
	PSInputSampleCoverage
	PSInputPosFixedPt

	// PSInputPerspWeights is every perspective barycentric pair.
	PSInputPerspWeights = PSInputPerspSample | PSInputPerspCenter | PSInputPerspCentroid | PSInputPerspPullModel
	// PSInputLinearWeights is every linear barycentric pair.
	PSInputLinearWeights = PSInputLinearSample | PSInputLinearCenter | PSInputLinearCentroid
)

// Config is the register configuration of one compiled function or of a
// whole linked shader.
type Config struct {
	NumSGPRs uint32
	NumVGPRs uint32

	SpilledSGPRs uint32
	SpilledVGPRs uint32

	// LDSBytes is local data share used per workgroup.
	LDSBytes uint32

	// ScratchBytesPerWave is private memory per wave.
	ScratchBytesPerWave uint32

	// PSInputEna is the set of fragment inputs enabled for the rasterizer;
	// PSInputAddr is the set the code was compiled to address.
	PSInputEna  PSInput
	PSInputAddr PSInput

	// MaxSIMDWaves is the computed occupancy (diagnostic only).
	MaxSIMDWaves uint32
}

// Merge combines the usage of a function that executes in sequence with c
// inside one invocation. Registers are reused between the functions, so
// every count is the maximum of the two, never the sum.
func (c Config) Merge(o Config) Config {
	c.NumSGPRs = max(c.NumSGPRs, o.NumSGPRs)
	c.NumVGPRs = max(c.NumVGPRs, o.NumVGPRs)
	c.SpilledSGPRs = max(c.SpilledSGPRs, o.SpilledSGPRs)
	c.SpilledVGPRs = max(c.SpilledVGPRs, o.SpilledVGPRs)
	c.LDSBytes = max(c.LDSBytes, o.LDSBytes)
	c.ScratchBytesPerWave = max(c.ScratchBytesPerWave, o.ScratchBytesPerWave)
	return c
}

// String returns a one-line summary.
func (c Config) String() string {
	return fmt.Sprintf("sgprs=%d vgprs=%d spilled=%d/%d lds=%d scratch=%d waves=%d",
		c.NumSGPRs, c.NumVGPRs, c.SpilledSGPRs, c.SpilledVGPRs, c.LDSBytes, c.ScratchBytesPerWave, c.MaxSIMDWaves)
}

// MaxSIMDWaves returns how many waves of a shader fit on one SIMD, limited
// by whichever of SGPRs, VGPRs and LDS is most constraining.
//
// numPSInputs is the number of interpolated fragment inputs (their
// attribute data lives in LDS); maxWorkgroup is the value reported by
// MaxWorkgroupSize.
func MaxSIMDWaves(chip Chip, stage Stage, c Config, numPSInputs int, maxWorkgroup uint32) uint32 {
	waves := chip.MaxWavesPerSIMD
	inc := chip.LDSIncrement()
	lds := AlignUp(c.LDSBytes, inc)

	var ldsPerWave uint32
	switch stage {
	case StageFragment:
		ldsPerWave = lds + AlignUp(uint32(numPSInputs)*48, inc)
	case StageCompute:
		if maxWorkgroup > 0 {
			ldsPerWave = lds / DivRoundUp(maxWorkgroup, chip.WaveSize)
		}
	}

	// The SGPR file is not a limit from GFX10 on.
	if c.NumSGPRs > 0 && chip.Gfx < GFX10 {
		waves = min(waves, chip.PhysicalSGPRs/c.NumSGPRs)
	}
	if c.NumVGPRs > 0 {
		vgprs := c.NumVGPRs
		if chip.WaveSize == 32 {
			vgprs = DivRoundUp(vgprs, 2)
		}
		waves = min(waves, chip.PhysicalVGPRs/vgprs)
	}
	if ldsPerWave > 0 {
		waves = min(waves, (chip.LDSPerWorkgroup/4)/ldsPerWave)
	}
	return waves
}

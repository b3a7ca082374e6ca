// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// vccSGPRs are reserved on top of the input SGPRs for the vector
// condition code.
const vccSGPRs = 2

// exprsPerVGPR approximates how many IR values share one live register.
const exprsPerVGPR = 8

// mainConfig estimates the register configuration of a main body or
// culling function.
//
// naga emits SPIR-V, so there is no register allocator to ask. The
// estimate starts from the layout, which is exact, and adds what the body
// needs for values and locals.
func mainConfig(req *backend.Request, m *ir.Module, fn *ir.Function) abi.Config {
	chip := req.Chip
	l := req.Layout
	var c abi.Config

	c.NumSGPRs = min(uint32(l.NumSGPRs)+vccSGPRs, chip.MaxSGPRs)

	vgprs := uint32(l.NumVGPRs)
	if req.Kind == backend.KindMain {
		vgprs += abi.DivRoundUp(uint32(len(fn.Expressions)), exprsPerVGPR)
	}
	var scratch uint32
	for _, lv := range fn.LocalVars {
		size := ir.TypeSize(m, lv.Type)
		if _, ok := m.Types[lv.Type].Inner.(ir.ArrayType); ok {
			// Indexed arrays live in scratch.
			scratch += abi.AlignUp(size, 4)
			continue
		}
		vgprs += abi.DivRoundUp(size, 4)
	}
	vgprs = max(vgprs, uint32(l.NumRetVGPRs))
	if vgprs > chip.MaxVGPRs {
		c.SpilledVGPRs = vgprs - chip.MaxVGPRs
		scratch += 4 * c.SpilledVGPRs
		vgprs = chip.MaxVGPRs
	}
	c.NumVGPRs = vgprs
	c.ScratchBytesPerWave = scratch * chip.WaveSize

	info := req.Info
	c.LDSBytes = abi.AlignUp(info.LDSBytes, chip.LDSIncrement())
	if req.Stage == abi.StageFragment {
		c.PSInputEna = psInputs(info)
		c.PSInputAddr = c.PSInputEna
	}
	c.MaxSIMDWaves = abi.MaxSIMDWaves(chip, req.Stage, c, len(info.Inputs),
		abi.MaxWorkgroupSize(chip, info, req.Spec.AsNGG))
	return c
}

// partConfig is the configuration of a prolog or epilog. Parts have no
// locals and reuse their input registers.
func partConfig(req *backend.Request) abi.Config {
	l := req.Layout
	return abi.Config{
		NumSGPRs: min(uint32(max(l.NumSGPRs, l.NumRetSGPRs))+vccSGPRs, req.Chip.MaxSGPRs),
		NumVGPRs: uint32(max(l.NumVGPRs, l.NumRetVGPRs)),
	}
}

// psInputs returns the rasterizer inputs a fragment body reads.
func psInputs(info *abi.Info) abi.PSInput {
	var ena abi.PSInput
	for _, in := range info.Inputs {
		switch in.Interp {
		case abi.InterpPerspSample:
			ena |= abi.PSInputPerspSample
		case abi.InterpPerspCenter, abi.InterpColor:
			ena |= abi.PSInputPerspCenter
		case abi.InterpPerspCentroid:
			ena |= abi.PSInputPerspCentroid
		case abi.InterpLinearSample:
			ena |= abi.PSInputLinearSample
		case abi.InterpLinearCenter:
			ena |= abi.PSInputLinearCenter
		case abi.InterpLinearCentroid:
			ena |= abi.PSInputLinearCentroid
		}
	}
	pos := [4]abi.PSInput{abi.PSInputPosX, abi.PSInputPosY, abi.PSInputPosZ, abi.PSInputPosW}
	for i, bit := range pos {
		if info.ReadsPosition&(1<<i) != 0 {
			ena |= bit
		}
	}
	if info.UsesFrontFace {
		ena |= abi.PSInputFrontFace
	}
	if info.UsesSampleID {
		ena |= abi.PSInputAncillary
	}
	if info.UsesSampleMaskIn {
		ena |= abi.PSInputSampleCoverage
	}
	return ena
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

// PSEpilogBits specialize the fragment color export.
type PSEpilogBits struct {
	// SPIShaderColFormat packs a 4-bit export format per color target.
	SPIShaderColFormat uint32
	Flags              PSEpilogFlags
	// ColorIsInt8 and ColorIsInt10 mark integer targets that need clamping.
	ColorIsInt8  uint8
	ColorIsInt10 uint8
	// LastCBuf is the highest color target written by a broadcast.
	LastCBuf uint8
	// AlphaFunc is the gputypes.CompareFunction of the alpha test. Zero
	// and CompareFunctionAlways disable the test.
	AlphaFunc uint8
}

// PSEpilogFlags are boolean epilog axes.
type PSEpilogFlags uint32

// Fragment epilog flags.
const (
	EpilogAlphaToOne PSEpilogFlags = 1 << iota
	EpilogPolyLineSmoothing
	EpilogClampColor
)

// Color export formats stored in PSEpilogBits.SPIShaderColFormat.
const (
	ColFormatZero uint32 = iota
	ColFormat32R
	ColFormat32GR
	ColFormat32AR
	ColFormatFP16ABGR
	ColFormatUnorm16ABGR
	ColFormatSnorm16ABGR
	ColFormatUint16ABGR
	ColFormatSint16ABGR
	ColFormat32ABGR
)

// ColFormat returns the export format of color target mrt.
func (p PSEpilogBits) ColFormat(mrt int) uint32 {
	return (p.SPIShaderColFormat >> (4 * uint(mrt))) & 0xf
}

// SetColFormat sets the export format of color target mrt.
func (p *PSEpilogBits) SetColFormat(mrt int, format uint32) {
	shift := 4 * uint(mrt)
	p.SPIShaderColFormat = p.SPIShaderColFormat&^(0xf<<shift) | (format&0xf)<<shift
}

// VSPrologBits specialize vertex input setup.
type VSPrologBits struct {
	// InstanceDivisorIsOne marks attributes indexed by instance id.
	InstanceDivisorIsOne uint16
	// InstanceDivisorIsFetched marks attributes with a divisor loaded
	// from memory.
	InstanceDivisorIsFetched uint16
	Flags                    VSPrologFlags
}

// VSPrologFlags are boolean vertex prolog axes.
type VSPrologFlags uint16

// Vertex prolog flags.
const (
	PrologUnpackInstanceIDFromVertexID VSPrologFlags = 1 << iota
	// PrologLSVGPRFix shifts LS input VGPRs on chips that load them
	// misplaced when the HS has no waves.
	PrologLSVGPRFix
)

// PSPrologBits specialize fragment input setup.
type PSPrologBits struct {
	Flags PSPrologFlags
	// SamplemaskLogPSIter is log2 of the sample shading rate.
	SamplemaskLogPSIter uint16
}

// PSPrologFlags are boolean fragment prolog axes.
type PSPrologFlags uint16

// Fragment prolog flags.
const (
	PrologColorTwoSide PSPrologFlags = 1 << iota
	PrologFlatshadeColors
	PrologPolyStipple
	PrologForcePerspSampleInterp
	PrologForceLinearSampleInterp
	PrologForcePerspCenterInterp
	PrologForceLinearCenterInterp
	PrologBCOptimizeForPersp
	PrologBCOptimizeForLinear
)

// TCSEpilogBits specialize tess factor writes.
type TCSEpilogBits struct {
	// PrimMode is a TessPrim* value.
	PrimMode uint8
	Flags    TCSEpilogFlags
}

// TCSEpilogFlags are boolean tess epilog axes.
type TCSEpilogFlags uint8

// Tess epilog flags.
const (
	EpilogInvoc0TessFactorsAreDef TCSEpilogFlags = 1 << iota
	EpilogTESReadsTessFactors
)

// Tessellation primitive modes.
const (
	TessPrimTriangles uint8 = iota
	TessPrimQuads
	TessPrimIsolines
)

// GSPrologBits specialize geometry input setup.
type GSPrologBits struct {
	Flags GSPrologFlags
}

// GSPrologFlags are boolean geometry prolog axes.
type GSPrologFlags uint8

// Geometry prolog flags.
const (
	PrologTriStripAdjFix GSPrologFlags = 1 << iota
)

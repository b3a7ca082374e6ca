// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"errors"
	"fmt"
)

// GfxLevel is a hardware generation.
type GfxLevel uint8

// Hardware generations.
const (
	GFX6 GfxLevel = iota + 6
	GFX7
	GFX8
	GFX9
	GFX10
	GFX10_3
)

// String returns the generation name.
func (g GfxLevel) String() string {
	if g == GFX10_3 {
		return "gfx10.3"
	}
	return fmt.Sprintf("gfx%d", uint8(g))
}

// Chip holds the register file and memory budgets of one GPU.
// All limits are compile-time constants of the hardware.
type Chip struct {
	Name string
	Gfx  GfxLevel

	// WaveSize is the number of lanes per wave (32 or 64).
	WaveSize uint32

	// MaxSGPRs and MaxVGPRs are the addressable registers of one wave.
	MaxSGPRs uint32
	MaxVGPRs uint32

	// MaxUserSGPRs is how many SGPRs the hardware preloads from user data.
	MaxUserSGPRs uint32

	// PhysicalSGPRs and PhysicalVGPRs are the register files of one SIMD.
	// VGPRs are counted in wave64 units.
	PhysicalSGPRs uint32
	PhysicalVGPRs uint32

	// MaxWavesPerSIMD is the occupancy ceiling in wave64 units.
	MaxWavesPerSIMD uint32

	// LDSPerWorkgroup is the local data share available to one workgroup.
	LDSPerWorkgroup uint32

	// MaxVBDescriptorsInUserSGPRs caps vertex buffer descriptors that are
	// preloaded into SGPRs instead of fetched through a pointer.
	MaxVBDescriptorsInUserSGPRs uint32

	// LSVGPRInitBug marks chips that load LS VGPRs shifted when the HS
	// wave count is zero.
	LSVGPRInitBug bool
}

// ErrInvalidChip is returned by Chip.Validate.
var ErrInvalidChip = errors.New("abi: invalid chip description")

// Polaris10 returns a Polaris-class chip.
func Polaris10() Chip {
	return Chip{
		Name:                        "polaris10",
		Gfx:                         GFX8,
		WaveSize:                    64,
		MaxSGPRs:                    102,
		MaxVGPRs:                    256,
		MaxUserSGPRs:                16,
		PhysicalSGPRs:               800,
		PhysicalVGPRs:               256,
		MaxWavesPerSIMD:             10,
		LDSPerWorkgroup:             64 * 1024,
		MaxVBDescriptorsInUserSGPRs: 1,
	}
}

// Vega10 returns a Vega-class chip.
func Vega10() Chip {
	return Chip{
		Name:                        "vega10",
		Gfx:                         GFX9,
		WaveSize:                    64,
		MaxSGPRs:                    102,
		MaxVGPRs:                    256,
		MaxUserSGPRs:                32,
		PhysicalSGPRs:               800,
		PhysicalVGPRs:               256,
		MaxWavesPerSIMD:             10,
		LDSPerWorkgroup:             64 * 1024,
		MaxVBDescriptorsInUserSGPRs: 5,
		LSVGPRInitBug:               true,
	}
}

// Navi10 returns a Navi-class chip.
func Navi10() Chip {
	return Chip{
		Name:                        "navi10",
		Gfx:                         GFX10,
		WaveSize:                    64,
		MaxSGPRs:                    106,
		MaxVGPRs:                    256,
		MaxUserSGPRs:                32,
		PhysicalSGPRs:               5120,
		PhysicalVGPRs:               512,
		MaxWavesPerSIMD:             20,
		LDSPerWorkgroup:             64 * 1024,
		MaxVBDescriptorsInUserSGPRs: 5,
	}
}

// ChipByName returns a preset by its generation ("gfx8", "gfx9", "gfx10")
// or chip name.
func ChipByName(name string) (Chip, error) {
	for _, c := range []Chip{Polaris10(), Vega10(), Navi10()} {
		if c.Name == name || c.Gfx.String() == name {
			return c, nil
		}
	}
	return Chip{}, fmt.Errorf("%w: unknown chip %q", ErrInvalidChip, name)
}

// HasMergedStages reports whether LS+HS and ES+GS run as one hardware stage.
func (c Chip) HasMergedStages() bool { return c.Gfx >= GFX9 }

// HasNGG reports whether the primitive shader path is available.
func (c Chip) HasNGG() bool { return c.Gfx >= GFX10 }

// LDSIncrement is the allocation granularity of LDS in bytes.
func (c Chip) LDSIncrement() uint32 {
	if c.Gfx >= GFX7 {
		return 512
	}
	return 256
}

// Validate checks that the limits are usable.
func (c Chip) Validate() error {
	switch {
	case c.Gfx < GFX6 || c.Gfx > GFX10_3:
		return fmt.Errorf("%w: generation %d", ErrInvalidChip, c.Gfx)
	case c.WaveSize != 32 && c.WaveSize != 64:
		return fmt.Errorf("%w: wave size %d", ErrInvalidChip, c.WaveSize)
	case c.MaxSGPRs == 0 || c.MaxVGPRs == 0:
		return fmt.Errorf("%w: empty register file", ErrInvalidChip)
	case c.MaxUserSGPRs == 0 || c.MaxUserSGPRs > c.MaxSGPRs:
		return fmt.Errorf("%w: %d user SGPRs", ErrInvalidChip, c.MaxUserSGPRs)
	case c.MaxWavesPerSIMD == 0:
		return fmt.Errorf("%w: zero waves per SIMD", ErrInvalidChip)
	}
	return nil
}

// String returns "name (gen, waveN)".
func (c Chip) String() string {
	return fmt.Sprintf("%s (%s, wave%d)", c.Name, c.Gfx, c.WaveSize)
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"github.com/gogpu/variant/abi"
)

// reconcile computes the configuration of the linked variant. The pieces
// run one after another in the same wave and reuse registers, so every
// resource is the maximum over the pieces.
func (b *build) reconcile(frags []fragment, p *plan) (abi.Config, error) {
	var cfg abi.Config
	for _, f := range frags {
		if f.name == segMain {
			// The rasterizer inputs are the main body's.
			cfg.PSInputEna = f.binary.Config.PSInputEna
			cfg.PSInputAddr = f.binary.Config.PSInputAddr
		}
		cfg = cfg.Merge(f.binary.Config)
	}

	// Two SGPRs for VCC.
	cfg.NumSGPRs = max(cfg.NumSGPRs, uint32(b.info.NumInputSGPRs+2))
	b.sel.handler.reconcile(b, p, &cfg)

	info := b.sel.info
	numPSInputs := 0
	if info.Stage == abi.StageFragment {
		numPSInputs = info.NumInputs()
	}
	wg := abi.MaxWorkgroupSize(b.s.chip, info, b.key.Flags.Has(AsNGG))
	cfg.MaxSIMDWaves = abi.MaxSIMDWaves(b.s.chip, info.Stage, cfg, numPSInputs, wg)

	if err := checkLimits(b.s.chip, cfg); err != nil {
		Logger().Warn("variant: overcommit", "label", b.sel.label, "stage", info.Stage.String(), "err", err)
		return cfg, buildError(ErrResourceOverCommit, info.Stage, b.sel.label, err)
	}
	return cfg, nil
}

// checkLimits rejects a configuration the hardware cannot run.
func checkLimits(chip abi.Chip, cfg abi.Config) error {
	switch {
	case cfg.NumSGPRs > chip.MaxSGPRs:
		return &OverCommitError{Resource: "SGPRs", Used: cfg.NumSGPRs, Limit: chip.MaxSGPRs}
	case cfg.NumVGPRs > chip.MaxVGPRs:
		return &OverCommitError{Resource: "VGPRs", Used: cfg.NumVGPRs, Limit: chip.MaxVGPRs}
	case cfg.LDSBytes > chip.LDSPerWorkgroup:
		return &OverCommitError{Resource: "LDS bytes", Used: cfg.LDSBytes, Limit: chip.LDSPerWorkgroup}
	}
	return nil
}

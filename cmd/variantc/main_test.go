// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/gogpu/variant"
	"github.com/gogpu/variant/abi"
)

func TestKeyOptions(t *testing.T) {
	cmd := &cobra.Command{Use: "key"}
	opts := &keyOptions{}
	opts.bind(cmd)
	if err := cmd.Flags().Parse([]string{"--stage", "vs", "--as", "ngg", "--divisor-one", "2", "--inline", "7,9"}); err != nil {
		t.Fatal(err)
	}

	stage, k, err := opts.key()
	if err != nil {
		t.Fatal(err)
	}
	if stage != abi.StageVertex {
		t.Errorf("stage = %s", stage)
	}
	if k.Flags != variant.AsNGG {
		t.Errorf("flags = %s", k.Flags)
	}
	if k.Part.VSProlog.InstanceDivisorIsOne != 2 {
		t.Errorf("divisor mask = %#x", k.Part.VSProlog.InstanceDivisorIsOne)
	}
	if k.Opt.Flags&variant.OptInlineUniforms == 0 || k.Opt.InlinedUniformValues[1] != 9 {
		t.Errorf("opt = %+v", k.Opt)
	}
	if err := k.Validate(stage, abi.Navi10()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestKeyOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		opts keyOptions
	}{
		{"stage", keyOptions{stage: "xs", primMode: "triangles"}},
		{"hardware stage", keyOptions{stage: "vs", as: []string{"hs"}, primMode: "triangles"}},
		{"color format", keyOptions{stage: "ps", colFormats: []string{"rgb9e5"}, primMode: "triangles"}},
		{"alpha func", keyOptions{stage: "ps", alphaFunc: "sometimes", primMode: "triangles"}},
		{"prim mode", keyOptions{stage: "tcs", primMode: "hexagons"}},
		{"inline", keyOptions{stage: "ps", inline: []uint{1, 2, 3, 4, 5}, primMode: "triangles"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.opts.key(); err == nil {
				t.Error("key() succeeded")
			}
		})
	}
}

func TestKeyOptionsFragment(t *testing.T) {
	o := keyOptions{
		stage:      "ps",
		colFormats: []string{"fp16", "32abgr"},
		alphaFunc:  "always",
		twoSide:    true,
		primMode:   "triangles",
	}
	_, k, err := o.key()
	if err != nil {
		t.Fatal(err)
	}
	e := k.Part.PSEpilog
	if e.ColFormat(0) != abi.ColFormatFP16ABGR || e.ColFormat(1) != abi.ColFormat32ABGR || e.LastCBuf != 1 {
		t.Errorf("epilog = %+v", e)
	}
	if e.AlphaFunc != 0 {
		t.Errorf("always should disable the alpha test, got %d", e.AlphaFunc)
	}
	if k.Part.PSProlog.Flags != abi.PrologColorTwoSide {
		t.Errorf("prolog flags = %#x", k.Part.PSProlog.Flags)
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/variant"
	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// readSource reads a shader file, or standard input for "-".
func readSource(name string) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newCompileCmd(g *globals) *cobra.Command {
	opts := &keyOptions{}
	var (
		entry     string
		disasm    bool
		hex       bool
		stats     bool
		optimized time.Duration
	)
	cmd := &cobra.Command{
		Use:   "compile <shader.wgsl|->",
		Short: "Compile one variant of a WGSL shader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chip, err := g.chipPreset()
			if err != nil {
				return err
			}
			stage, key, err := opts.key()
			if err != nil {
				return err
			}
			code, err := readSource(args[0])
			if err != nil {
				return err
			}

			screen, err := variant.NewScreen(variant.WithChip(chip), variant.WithPassBadShaders(true))
			if err != nil {
				return err
			}
			defer screen.Close()

			sel, err := screen.NewSelector(backend.Source{
				Label:      filepath.Base(args[0]),
				Stage:      stage,
				Code:       code,
				EntryPoint: entry,
			})
			if err != nil {
				return err
			}
			defer sel.Release()

			ctx := cmd.Context()
			sh, err := screen.Select(ctx, sel, key)
			if err != nil {
				return err
			}
			if optimized > 0 && sh.Key() != key {
				if opt, err := waitOptimized(ctx, screen, sel, key, optimized); err == nil {
					sh = opt
				} else {
					fmt.Fprintf(os.Stderr, "variantc: optimized variant: %v\n", err)
				}
			}

			out := newPrinter(os.Stdout, g.language())
			printShader(out, sh, disasm, hex)
			if stats {
				out.header("statistics")
				fmt.Fprint(os.Stdout, screen.Stats().Format(g.language()))
			}
			return nil
		},
	}
	opts.bind(cmd)
	f := cmd.Flags()
	f.StringVarP(&entry, "entry", "e", "", "entry point name")
	f.BoolVar(&disasm, "disasm", false, "print the disassembly of every segment")
	f.BoolVar(&hex, "hex", false, "print the code of every segment as dwords")
	f.BoolVar(&stats, "stats", false, "print screen statistics")
	f.DurationVar(&optimized, "wait-optimized", 0, "wait this long for the optimized variant")
	return cmd
}

// waitOptimized polls until the optimized variant for key is built.
func waitOptimized(ctx context.Context, s *variant.Screen, sel *variant.Selector, key variant.Key,
	timeout time.Duration) (*variant.Shader, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		sh, err := s.SelectOptimized(ctx, sel, key)
		if !errors.Is(err, variant.ErrNotReady) {
			return sh, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}

func printShader(out *printer, sh *variant.Shader, disasm, hex bool) {
	out.header("%s", sh)
	cfg := sh.Config()
	out.printf("registers: %d SGPRs, %d VGPRs, %d waves per SIMD\n", cfg.NumSGPRs, cfg.NumVGPRs, cfg.MaxSIMDWaves)
	if cfg.LDSBytes != 0 || cfg.ScratchBytesPerWave != 0 {
		out.printf("memory:    %d bytes LDS, %d bytes scratch per wave\n", cfg.LDSBytes, cfg.ScratchBytesPerWave)
	}
	if cfg.PSInputEna != 0 {
		out.printf("ps inputs: ena=%#x addr=%#x\n", uint32(cfg.PSInputEna), uint32(cfg.PSInputAddr))
	}
	info := sh.Info()
	out.printf("inputs:    %d SGPRs, %d VGPRs\n", info.NumInputSGPRs, info.NumInputVGPRs)
	if info.NumParamExports != 0 || info.NumPosExports != 0 {
		out.printf("exports:   %d parameters, %d positions\n", info.NumParamExports, info.NumPosExports)
	}
	out.printf("address:   %#x\n", sh.Address())

	img := sh.Image()
	if img == nil {
		return
	}
	out.printf("image:     %d bytes, %d segments\n", img.Size, len(img.Segments))
	for _, seg := range img.Segments {
		out.printf("  %-12s +%#06x %d bytes\n", seg.Name, seg.Offset, seg.Binary.Size())
	}
	for _, seg := range img.Segments {
		if disasm && seg.Binary.Disasm != "" {
			out.header("%s", seg.Name)
			fmt.Fprintln(out.f, seg.Binary.Disasm)
		}
		if hex {
			out.header("%s code", seg.Name)
			out.hexdump(seg.Offset, seg.Binary.Code)
		}
	}
}

// stageInfo loads the analysis of a shader file, or returns an empty
// analysis when there is none.
func stageInfo(provider backend.IRProvider, stage abi.Stage, name, entry string) (*abi.Info, error) {
	if name == "" {
		info := &abi.Info{Stage: stage}
		if stage == abi.StageCompute {
			info.Workgroup = [3]uint32{64, 1, 1}
		}
		return info, nil
	}
	code, err := readSource(name)
	if err != nil {
		return nil, err
	}
	_, info, err := provider.Load(backend.Source{Label: name, Stage: stage, Code: code, EntryPoint: entry})
	return info, err
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/variant"
	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend/native"
)

func newLayoutCmd(g *globals) *cobra.Command {
	opts := &keyOptions{}
	var (
		entry string
		cull  bool
	)
	cmd := &cobra.Command{
		Use:   "layout [shader.wgsl|-]",
		Short: "Print the register layout of a main body",
		Long: "Print the input registers and returned values of the main body a key " +
			"selects. Without a shader the layout of a body with no inputs is printed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chip, err := g.chipPreset()
			if err != nil {
				return err
			}
			stage, key, err := opts.key()
			if err != nil {
				return err
			}
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			info, err := stageInfo(native.NewProvider(), stage, file, entry)
			if err != nil {
				return err
			}
			l, err := abi.StageLayout(chip, abi.LayoutOptions{
				Info:              info,
				AsLS:              key.Flags.Has(variant.AsLS),
				AsES:              key.Flags.Has(variant.AsES),
				AsNGG:             key.Flags.Has(variant.AsNGG),
				NGGCull:           cull,
				SamePatchVertices: key.Opt.Flags&variant.OptSamePatchVertices != 0,
			})
			if err != nil {
				return err
			}
			printLayout(newPrinter(os.Stdout, g.language()), chip, key.Flags, l)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "entry point name")
	cmd.Flags().BoolVar(&cull, "cull", false, "print the layout of the NGG culling function")
	return cmd
}

func printLayout(out *printer, chip abi.Chip, flags variant.KeyFlags, l *abi.Layout) {
	out.header("%s %s as %s", chip, l.Stage, flags)
	out.printf("%d SGPRs, %d VGPRs (%d from a prolog)\n", l.NumSGPRs, l.NumVGPRs, l.NumPrologVGPRs)
	for _, a := range l.Args {
		name := a.Name
		if name == "" {
			name = "-"
		}
		out.printf("  %s%-3d x%d  %s\n", a.File, a.Slot, a.Size, name)
	}
	if len(l.Returns) == 0 {
		return
	}
	out.header("returns: %d SGPRs, %d VGPRs", l.NumRetSGPRs, l.NumRetVGPRs)
	for _, r := range l.Returns {
		out.printf("  %s%-3d %s (%s)\n", r.File, r.Slot, r.Name, r.Stage)
	}
}

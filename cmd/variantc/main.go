// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command variantc compiles WGSL shader variants and prints their layouts
// and keys.
//
//	variantc compile --stage ps --col-format fp16 --two-side shader.wgsl
//	variantc layout --stage vs --as ngg shader.wgsl
//	variantc key --stage ps --alpha-func less
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/gogpu/variant"
	"github.com/gogpu/variant/abi"
)

// globals are the flags shared by every subcommand.
type globals struct {
	chip    string
	lang    string
	verbose bool
}

func (g *globals) chipPreset() (abi.Chip, error) {
	return abi.ChipByName(g.chip)
}

func (g *globals) language() language.Tag {
	tag, err := language.Parse(g.lang)
	if err != nil {
		return language.English
	}
	return tag
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "variantc",
		Short:         "Compile and inspect shader variants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.verbose {
				variant.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.chip, "chip", "gfx10", "target chip (gfx8, gfx9, gfx10)")
	pf.StringVar(&g.lang, "lang", "en", "language tag for number formatting")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log compiles to stderr")

	root.AddCommand(newCompileCmd(g), newLayoutCmd(g), newKeyCmd(g))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "variantc:", err)
		os.Exit(1)
	}
}

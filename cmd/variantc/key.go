// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/variant"
	"github.com/gogpu/variant/abi"
)

// keyOptions are the key axes settable from the command line.
type keyOptions struct {
	stage string
	as    []string
	mono  bool

	divisorOne     uint16
	divisorFetched uint16
	unpackInstance bool

	colFormats []string
	alphaFunc  string
	clamp      bool
	alphaToOne bool

	twoSide   bool
	flatShade bool
	stipple   bool

	primMode    string
	triStripAdj bool

	inline     []uint
	killOutput uint64
}

func (o *keyOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.stage, "stage", "s", "ps", "pipeline stage (vs, tcs, tes, gs, ps, cs)")
	f.StringSliceVar(&o.as, "as", nil, "hardware stage of a vs or tes (ls, es, ngg)")
	f.BoolVar(&o.mono, "mono", false, "compile as one function")
	f.Uint16Var(&o.divisorOne, "divisor-one", 0, "mask of attributes stepped once per instance")
	f.Uint16Var(&o.divisorFetched, "divisor-fetched", 0, "mask of attributes with a fetched divisor")
	f.BoolVar(&o.unpackInstance, "unpack-instance", false, "unpack the instance id from the vertex id")
	f.StringSliceVar(&o.colFormats, "col-format", nil, "export format per color target (32r, 32gr, 32ar, fp16, unorm16, snorm16, uint16, sint16, 32abgr)")
	f.StringVar(&o.alphaFunc, "alpha-func", "", "alpha test (never, less, equal, less-equal, greater, not-equal, greater-equal)")
	f.BoolVar(&o.clamp, "clamp", false, "clamp float colors to [0, 1]")
	f.BoolVar(&o.alphaToOne, "alpha-to-one", false, "export alpha as one")
	f.BoolVar(&o.twoSide, "two-side", false, "select back colors for back faces")
	f.BoolVar(&o.flatShade, "flat", false, "interpolate colors flat")
	f.BoolVar(&o.stipple, "stipple", false, "enable polygon stipple")
	f.StringVar(&o.primMode, "prim-mode", "triangles", "tessellation primitive (triangles, quads, isolines)")
	f.BoolVar(&o.triStripAdj, "tri-strip-adj", false, "triangle strips with adjacency")
	f.UintSliceVar(&o.inline, "inline", nil, "inline the leading uniform dwords with these values")
	f.Uint64Var(&o.killOutput, "kill-outputs", 0, "mask of output slots to remove")
}

var colFormatNames = map[string]uint32{
	"32r":     abi.ColFormat32R,
	"32gr":    abi.ColFormat32GR,
	"32ar":    abi.ColFormat32AR,
	"fp16":    abi.ColFormatFP16ABGR,
	"unorm16": abi.ColFormatUnorm16ABGR,
	"snorm16": abi.ColFormatSnorm16ABGR,
	"uint16":  abi.ColFormatUint16ABGR,
	"sint16":  abi.ColFormatSint16ABGR,
	"32abgr":  abi.ColFormat32ABGR,
}

var compareNames = map[string]gputypes.CompareFunction{
	"never":         gputypes.CompareFunctionNever,
	"less":          gputypes.CompareFunctionLess,
	"equal":         gputypes.CompareFunctionEqual,
	"less-equal":    gputypes.CompareFunctionLessEqual,
	"greater":       gputypes.CompareFunctionGreater,
	"not-equal":     gputypes.CompareFunctionNotEqual,
	"greater-equal": gputypes.CompareFunctionGreaterEqual,
	"always":        gputypes.CompareFunctionAlways,
}

var primModeNames = map[string]uint8{
	"triangles": abi.TessPrimTriangles,
	"quads":     abi.TessPrimQuads,
	"isolines":  abi.TessPrimIsolines,
}

// key builds the key the flags describe.
func (o *keyOptions) key() (abi.Stage, variant.Key, error) {
	var k variant.Key
	stage, err := abi.ParseStage(o.stage)
	if err != nil {
		return 0, k, err
	}

	for _, a := range o.as {
		switch strings.ToLower(a) {
		case "ls":
			k.Flags |= variant.AsLS
		case "es":
			k.Flags |= variant.AsES
		case "ngg":
			k.Flags |= variant.AsNGG
		default:
			return 0, k, fmt.Errorf("unknown hardware stage %q", a)
		}
	}
	if o.mono {
		k.Opt.Flags |= variant.OptPreferMono
	}

	vs := &k.Part.VSProlog
	vs.InstanceDivisorIsOne = o.divisorOne
	vs.InstanceDivisorIsFetched = o.divisorFetched
	if o.unpackInstance {
		vs.Flags |= abi.PrologUnpackInstanceIDFromVertexID
	}

	e := &k.Part.PSEpilog
	for mrt, name := range o.colFormats {
		format, ok := colFormatNames[strings.ToLower(name)]
		if !ok {
			return 0, k, fmt.Errorf("unknown color format %q", name)
		}
		e.SetColFormat(mrt, format)
		e.LastCBuf = uint8(mrt)
	}
	if o.alphaFunc != "" {
		fn, ok := compareNames[strings.ToLower(o.alphaFunc)]
		if !ok {
			return 0, k, fmt.Errorf("unknown alpha function %q", o.alphaFunc)
		}
		if fn != gputypes.CompareFunctionAlways {
			e.AlphaFunc = uint8(fn)
		}
	}
	if o.clamp {
		e.Flags |= abi.EpilogClampColor
	}
	if o.alphaToOne {
		e.Flags |= abi.EpilogAlphaToOne
	}

	ps := &k.Part.PSProlog
	if o.twoSide {
		ps.Flags |= abi.PrologColorTwoSide
	}
	if o.flatShade {
		ps.Flags |= abi.PrologFlatshadeColors
	}
	if o.stipple {
		ps.Flags |= abi.PrologPolyStipple
	}

	prim, ok := primModeNames[strings.ToLower(o.primMode)]
	if !ok {
		return 0, k, fmt.Errorf("unknown primitive mode %q", o.primMode)
	}
	if stage == abi.StageTessCtrl {
		k.Part.TCSEpilog.PrimMode = prim
	}
	if o.triStripAdj {
		k.Part.GSProlog.Flags |= abi.PrologTriStripAdjFix
	}

	if len(o.inline) > 0 {
		if len(o.inline) > abi.MaxInlinableUniforms {
			return 0, k, fmt.Errorf("at most %d inlined uniforms", abi.MaxInlinableUniforms)
		}
		k.Opt.Flags |= variant.OptInlineUniforms
		for i, v := range o.inline {
			k.Opt.InlinedUniformValues[i] = uint32(v)
		}
	}
	k.Opt.KillOutputs = o.killOutput
	return stage, k, nil
}

func newKeyCmd(g *globals) *cobra.Command {
	opts := &keyOptions{}
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the key the flags select",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chip, err := g.chipPreset()
			if err != nil {
				return err
			}
			stage, k, err := opts.key()
			if err != nil {
				return err
			}
			out := newPrinter(os.Stdout, g.language())
			out.header("%s key %s", stage, k)
			if err := k.Validate(stage, chip); err != nil {
				out.warn("%v", err)
			}
			out.printf("hash: %#016x, %d bytes\n", k.Hash(), len(k.Bytes()))
			return k.Dump(os.Stdout, stage)
		},
	}
	opts.bind(cmd)
	return cmd
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package variant builds GPU shader variants.
//
// # Overview
//
// An API shader is loaded once into a [Selector]. Every draw supplies a
// [Key], a fixed-size value describing the pipeline state the shader is
// specialized on: vertex formats, color target formats, whether a vertex
// shader runs in front of tessellation, and so on. [Screen.Select] returns
// the [Shader] for a (Selector, Key) pair, compiling it the first time.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/variant"
//	    _ "github.com/gogpu/variant/backend/native"
//	)
//
//	screen, err := variant.NewScreen()
//	sel, err := screen.NewSelector(backend.Source{Stage: abi.StageFragment, Code: wgsl})
//	defer sel.Release()
//
//	var key variant.Key
//	key.Part.PSEpilog.SetColFormat(0, abi.ColFormatFP16ABGR)
//	sh, err := screen.Select(ctx, sel, key)
//	addr := sh.Address()
//
// # Split and Monolithic Variants
//
// Most variants are assembled from separately compiled pieces: a main
// body compiled once per selector, plus small prologs and epilogs that
// depend only on a few key bits and are shared by every selector of the
// screen through its [PartCache]. Keys that change the main body itself
// (the optimization bits in [OptBits] and the monolithic-only bits in
// [MonoBits]) are compiled as one function. Optimized variants compile
// in the background; until they are ready Select returns the unoptimized
// variant.
//
// # Merged Stages
//
// From GFX9 on, the vertex shader in front of tessellation runs in the
// same wave as the tessellation control shader, and the shader in front
// of a geometry shader runs with it. The key of the second shader names
// the first in [Key.PrevStage], and its variant contains both bodies.
//
// # Concurrency
//
// A Screen is safe for concurrent use. Each variant is built exactly once
// no matter how many goroutines ask for it; the others wait. Canceling
// the context of a waiting call stops the wait, never a started compile.
package variant

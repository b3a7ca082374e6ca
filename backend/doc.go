// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the collaborators of the variant engine: the IR
// provider that loads and transforms shaders, the code generator that
// turns IR into machine code, and the uploader that places linked code in
// GPU memory.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The naga-based backend registers itself on import:
//
//	import _ "github.com/gogpu/variant/backend/native"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Default()
//	c, err := b.NewCompiler(abi.Navi10())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
// # Linking
//
// A compile returns a Binary. Monolithic shaders fuse several binaries
// with Fuse; split shaders place the main body and its parts in one Image
// with NewImage. Relocations of external symbols such as the scratch
// buffer address stay unresolved until Image.Bytes is called at upload.
package backend

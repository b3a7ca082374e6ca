// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"context"
	"errors"

	"github.com/gogpu/variant/abi"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrClosed is returned by a compiler used after Close.
	ErrClosed = errors.New("backend: compiler closed")

	// ErrUnsupported is returned for requests a backend cannot compile.
	ErrUnsupported = errors.New("backend: unsupported request")
)

// Source is an API-level shader handed to an IRProvider.
type Source struct {
	Label string
	Stage abi.Stage
	// Code is the shader text in the provider's input language.
	Code string
	// EntryPoint names the function to load. Empty selects the only
	// entry point of Stage.
	EntryPoint string
}

// IR is an optimizable intermediate representation owned by one
// selector. Implementations must not be mutated after they are handed to
// the engine; transformations return new values.
type IR interface {
	// Hash identifies the IR content. Equal hashes compile to equal code.
	Hash() [32]byte
	// Clone returns a deep copy that can be transformed independently.
	Clone() IR
}

// IRProvider loads and transforms IR.
type IRProvider interface {
	// Load parses src and returns its IR and static analysis.
	Load(src Source) (IR, *abi.Info, error)

	// Lower runs the lowering and optimization passes. Specialize is set
	// when the IR was changed for one variant, for example by inlining
	// uniforms, and the passes should fold the new constants.
	Lower(ir IR, specialize bool) (IR, error)

	// InlineUniforms returns a copy of ir with the leading uniform dwords
	// replaced by values.
	InlineUniforms(ir IR, values []uint32) (IR, error)
}

// Kind is the kind of function a Request compiles.
type Kind uint8

// Request kinds.
const (
	// KindMain is a main body.
	KindMain Kind = iota
	// KindCull is the NGG culling function that runs a vertex body for
	// position only, ahead of the main body.
	KindCull
	// KindPart is a prolog or epilog described by Request.Part.
	KindPart
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindCull:
		return "cull"
	case KindPart:
		return "part"
	}
	return "unknown"
}

// MainSpec are the variant axes a main body is compiled with.
type MainSpec struct {
	AsLS, AsES, AsNGG bool

	// KillOutputs and KillClipDistances drop exports.
	KillOutputs       uint64
	KillClipDistances uint8
	KillPointSize     bool

	NGGCulling        uint8
	SamePatchVertices bool

	// Fetch fixups a monolithic vertex body applies itself.
	VSFixFetch      [16]uint8
	VSFetchOpencode uint32

	// FFTCSInputsToCopy lists the outputs a fixed-function HS copies.
	FFTCSInputsToCopy uint64
	ExportPrimID      bool
}

// Request describes one compile. Backends must return equal binaries for
// equal requests.
type Request struct {
	Label string
	Stage abi.Stage
	Kind  Kind

	// IR and Info are set for KindMain and KindCull.
	IR   IR
	Info *abi.Info
	Spec MainSpec

	// Part is set for KindPart.
	Part abi.PartKey

	// Layout is the register contract of the function.
	Layout   *abi.Layout
	Chip     abi.Chip
	WaveSize uint8
}

// Backend creates compilers.
type Backend interface {
	// Name returns the backend identifier (e.g. "native").
	Name() string

	// NewCompiler returns a compiler context for chip. A compiler is
	// used by one goroutine at a time.
	NewCompiler(chip abi.Chip) (Compiler, error)
}

// Compiler turns IR into machine code.
type Compiler interface {
	Compile(req *Request) (*Binary, error)
	// Close releases the compiler context.
	Close()
}

// Allocation is an uploaded Image.
type Allocation struct {
	// Address is the GPU address of the first segment.
	Address uint64
	Size    uint32
	// Handle is owned by the Uploader that returned the allocation.
	Handle any
}

// Uploader places linked images in GPU-visible memory.
type Uploader interface {
	// Upload resolves the relocations of img through resolve and copies
	// the patched code to the GPU.
	Upload(ctx context.Context, img *Image, resolve Resolver) (*Allocation, error)
	// Free releases an allocation returned by Upload.
	Free(a *Allocation)
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/variant/abi"
)

// External symbols resolved at upload time.
const (
	SymScratchRsrcDword0 = "SCRATCH_RSRC_DWORD0"
	SymScratchRsrcDword1 = "SCRATCH_RSRC_DWORD1"
	SymLDSSize           = "lds_size"
)

// SegmentAlign is the alignment of every segment of an Image.
const SegmentAlign = 256

// Link errors.
var (
	ErrUnresolvedSymbol = errors.New("backend: unresolved symbol")
	ErrBadRelocation    = errors.New("backend: relocation out of range")
)

// Reloc is a 32-bit little-endian value patched at upload time.
type Reloc struct {
	Offset uint32
	Symbol string
}

// Binary is the output of one compile.
type Binary struct {
	// Code is the machine code. Relocated dwords hold zero.
	Code   []byte
	Relocs []Reloc
	// Entry is the symbol of the first instruction.
	Entry  string
	Config abi.Config
	Disasm string
}

// Size returns the code size in bytes.
func (b *Binary) Size() int { return len(b.Code) }

// Fuse concatenates fragments into one function entered at the first
// fragment. Each fragment ends by falling through into the next with its
// return values in place, so the result needs no wrapper code. The
// configuration is the maximum over all fragments.
func Fuse(entry string, fragments ...*Binary) *Binary {
	out := &Binary{Entry: entry}
	var disasm []string
	for _, f := range fragments {
		if f == nil {
			continue
		}
		base := uint32(len(out.Code))
		out.Code = append(out.Code, f.Code...)
		for _, r := range f.Relocs {
			out.Relocs = append(out.Relocs, Reloc{Offset: base + r.Offset, Symbol: r.Symbol})
		}
		out.Config = out.Config.Merge(f.Config)
		if f.Disasm != "" {
			disasm = append(disasm, f.Disasm)
		}
	}
	out.Disasm = strings.Join(disasm, "\n")
	return out
}

// Segment is one binary placed in an Image.
type Segment struct {
	Name   string
	Offset uint32
	Binary *Binary
}

// Image is a set of binaries laid out for one upload. The first segment
// is the entry point; the rest are the separately compiled parts it
// calls.
type Image struct {
	Segments []Segment
	Size     uint32
}

// NewImage places binaries at SegmentAlign-aligned offsets in order.
func NewImage(names []string, binaries []*Binary) *Image {
	img := &Image{}
	var off uint32
	for i, b := range binaries {
		off = abi.AlignUp(off, SegmentAlign)
		img.Segments = append(img.Segments, Segment{Name: names[i], Offset: off, Binary: b})
		off += uint32(len(b.Code))
	}
	img.Size = abi.AlignUp(off, SegmentAlign)
	return img
}

// Segment returns the segment called name.
func (img *Image) Segment(name string) (Segment, bool) {
	for _, s := range img.Segments {
		if s.Name == name {
			return s, true
		}
	}
	return Segment{}, false
}

// Resolver returns the value of an external symbol.
type Resolver func(symbol string) (uint32, bool)

// Bytes returns the image contents with every relocation patched.
func (img *Image) Bytes(resolve Resolver) ([]byte, error) {
	out := make([]byte, img.Size)
	for _, s := range img.Segments {
		code := s.Binary.Code
		copy(out[s.Offset:], code)
		for _, r := range s.Binary.Relocs {
			if int(r.Offset)+4 > len(code) {
				return nil, fmt.Errorf("%w: %s+%#x", ErrBadRelocation, s.Name, r.Offset)
			}
			v, ok := uint32(0), false
			if resolve != nil {
				v, ok = resolve(r.Symbol)
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s in %s", ErrUnresolvedSymbol, r.Symbol, s.Name)
			}
			binary.LittleEndian.PutUint32(out[s.Offset+r.Offset:], v)
		}
	}
	return out, nil
}

// Words returns b as little-endian dwords, padding the tail with zeros.
func Words(b []byte) []uint32 {
	words := make([]uint32, abi.DivRoundUp(len(b), 4))
	for i := range words {
		var w [4]byte
		copy(w[:], b[i*4:])
		words[i] = binary.LittleEndian.Uint32(w[:])
	}
	return words
}

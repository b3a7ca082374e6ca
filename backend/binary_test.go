// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/variant/abi"
)

func TestFuse(t *testing.T) {
	a := &Binary{Code: []byte{1, 2, 3, 4}, Entry: "a", Config: abi.Config{NumSGPRs: 10, NumVGPRs: 4}, Disasm: "a"}
	b := &Binary{
		Code:   make([]byte, 8),
		Relocs: []Reloc{{Offset: 4, Symbol: SymScratchRsrcDword0}},
		Config: abi.Config{NumSGPRs: 6, NumVGPRs: 12, LDSBytes: 512},
		Disasm: "b",
	}
	f := Fuse("entry", a, nil, b)

	if f.Size() != 12 {
		t.Errorf("Size() = %d, want 12", f.Size())
	}
	if len(f.Relocs) != 1 || f.Relocs[0].Offset != 8 {
		t.Errorf("relocs = %+v, want one at offset 8", f.Relocs)
	}
	if f.Config.NumSGPRs != 10 || f.Config.NumVGPRs != 12 || f.Config.LDSBytes != 512 {
		t.Errorf("config = %+v, want max of fragments", f.Config)
	}
	if f.Entry != "entry" || f.Disasm != "a\nb" {
		t.Errorf("entry %q disasm %q", f.Entry, f.Disasm)
	}
}

func TestImageLayout(t *testing.T) {
	img := NewImage([]string{"main", "epilog"}, []*Binary{
		{Code: make([]byte, 300)},
		{Code: make([]byte, 8)},
	})
	if img.Segments[1].Offset != 512 {
		t.Errorf("epilog offset = %d, want 512", img.Segments[1].Offset)
	}
	if img.Size != 768 {
		t.Errorf("Size = %d, want 768", img.Size)
	}
	if s, ok := img.Segment("epilog"); !ok || s.Offset != 512 {
		t.Errorf("Segment(epilog) = %+v, %t", s, ok)
	}
	if _, ok := img.Segment("prolog"); ok {
		t.Error("Segment(prolog) found")
	}
}

func TestImageBytesPatchesRelocations(t *testing.T) {
	img := NewImage([]string{"main"}, []*Binary{{
		Code:   make([]byte, 16),
		Relocs: []Reloc{{Offset: 4, Symbol: SymScratchRsrcDword0}, {Offset: 12, Symbol: SymScratchRsrcDword1}},
	}})
	out, err := img.Bytes(func(sym string) (uint32, bool) {
		switch sym {
		case SymScratchRsrcDword0:
			return 0xdeadbeef, true
		case SymScratchRsrcDword1:
			return 0x1234, true
		}
		return 0, false
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(out[4:]); got != 0xdeadbeef {
		t.Errorf("dword0 = %#x, want 0xdeadbeef", got)
	}
	if got := binary.LittleEndian.Uint32(out[12:]); got != 0x1234 {
		t.Errorf("dword1 = %#x, want 0x1234", got)
	}
}

func TestImageBytesErrors(t *testing.T) {
	unresolved := NewImage([]string{"main"}, []*Binary{{
		Code:   make([]byte, 8),
		Relocs: []Reloc{{Offset: 0, Symbol: "missing"}},
	}})
	if _, err := unresolved.Bytes(nil); !errors.Is(err, ErrUnresolvedSymbol) {
		t.Errorf("err = %v, want ErrUnresolvedSymbol", err)
	}

	outside := NewImage([]string{"main"}, []*Binary{{
		Code:   make([]byte, 8),
		Relocs: []Reloc{{Offset: 6, Symbol: SymLDSSize}},
	}})
	resolve := func(string) (uint32, bool) { return 1, true }
	if _, err := outside.Bytes(resolve); !errors.Is(err, ErrBadRelocation) {
		t.Errorf("err = %v, want ErrBadRelocation", err)
	}
}

func TestWords(t *testing.T) {
	w := Words([]byte{1, 0, 0, 0, 2, 0})
	if len(w) != 2 || w[0] != 1 || w[1] != 2 {
		t.Errorf("Words = %v, want [1 2]", w)
	}
}

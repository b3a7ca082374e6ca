// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package variant

import (
	"github.com/gogpu/variant/abi"
	"github.com/gogpu/variant/backend"
)

// link lays out the fragments, uploads them and records the result on
// the shader. A monolithic variant becomes one segment entered at its
// first fragment; a split variant keeps one segment per fragment.
func (b *build) link(frags []fragment) error {
	var img *backend.Image
	if b.mono {
		bins := make([]*backend.Binary, len(frags))
		for i, f := range frags {
			bins[i] = f.binary
		}
		fused := backend.Fuse(b.sel.label, bins...)
		b.sh.binary = fused
		img = backend.NewImage([]string{segMain}, []*backend.Binary{fused})
	} else {
		names := make([]string, len(frags))
		bins := make([]*backend.Binary, len(frags))
		for i, f := range frags {
			names[i], bins[i] = f.name, f.binary
		}
		img = backend.NewImage(names, bins)
	}
	b.sh.image = img

	alloc, err := b.s.uploader.Upload(b.ctx, img, b.s.resolver(b.sh.config))
	if err != nil {
		return buildError(ErrUploadFailure, b.sel.Stage(), b.sel.label, err)
	}
	b.sh.alloc = alloc
	return nil
}

// resolver returns the values of the external symbols of one shader.
func (s *Screen) resolver(cfg abi.Config) backend.Resolver {
	base := s.opts.scratchBase
	return func(symbol string) (uint32, bool) {
		switch symbol {
		case backend.SymScratchRsrcDword0:
			return uint32(base), true
		case backend.SymScratchRsrcDword1:
			return uint32(base>>32) & 0xffff, true
		case backend.SymLDSSize:
			return cfg.LDSBytes, true
		}
		return 0, false
	}
}

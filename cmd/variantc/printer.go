// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer writes command output. On a terminal headers are bold, warnings
// are yellow and hex dumps fill the window width.
type printer struct {
	f     *os.File
	p     *message.Printer
	tty   bool
	width int
}

func newPrinter(f *os.File, lang language.Tag) *printer {
	pr := &printer{f: f, p: message.NewPrinter(lang), width: 80}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		pr.tty = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			pr.width = w
		}
	}
	return pr
}

func (pr *printer) printf(format string, args ...any) {
	pr.p.Fprintf(pr.f, format, args...)
}

func (pr *printer) styled(style, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if pr.tty {
		line = style + line + "\x1b[0m"
	}
	fmt.Fprintln(pr.f, line)
}

func (pr *printer) header(format string, args ...any) { pr.styled("\x1b[1m", format, args...) }

func (pr *printer) warn(format string, args ...any) { pr.styled("\x1b[33m", "warning: "+format, args...) }

// hexdump prints code as dwords, as many per line as fit.
func (pr *printer) hexdump(base uint32, code []byte) {
	perLine := min(max((pr.width-10)/9, 1), 8)
	for off := 0; off < len(code); off += 4 * perLine {
		fmt.Fprintf(pr.f, "%08x ", base+uint32(off))
		for i := 0; i < perLine && off+4*i < len(code); i++ {
			d := code[off+4*i:]
			var w uint32
			for j := 0; j < 4 && j < len(d); j++ {
				w |= uint32(d[j]) << (8 * j)
			}
			fmt.Fprintf(pr.f, " %08x", w)
		}
		fmt.Fprintln(pr.f)
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"errors"
	"fmt"
	"strings"
)

// File is a register class.
type File uint8

// Register classes.
const (
	SGPR File = iota // scalar, uniform across the wave
	VGPR             // vector, one value per lane
)

func (f File) String() string {
	if f == SGPR {
		return "sgpr"
	}
	return "vgpr"
}

// ArgType is the value type of an argument.
type ArgType uint8

// Argument types.
const (
	ArgInt ArgType = iota
	ArgFloat
	ArgConstPtr
	ArgDescPtr
	ArgImagePtr
)

// Arg is one input argument of a compiled function.
type Arg struct {
	// Name identifies the argument; unused padding has an empty name.
	Name string
	File File
	// Slot is the first register of the argument within its file.
	Slot uint16
	Size uint8
	Type ArgType
}

// Binding is one value a function returns to the next function in the
// chain. Stage names the function that produces it.
type Binding struct {
	Stage Stage
	Name  string
	File  File
	Slot  uint16
}

// Errors reported by the builder.
var (
	// ErrRegisterOverflow is wrapped by *OverflowError.
	ErrRegisterOverflow = errors.New("abi: register file overflow")

	// ErrSlotConflict is wrapped by *SlotConflictError.
	ErrSlotConflict = errors.New("abi: return slot claimed twice")

	// ErrDuplicateArg means two arguments share a name.
	ErrDuplicateArg = errors.New("abi: duplicate argument name")
)

// OverflowError reports a layout that needs more registers than one wave
// can address.
type OverflowError struct {
	Stage Stage
	File  File
	Need  uint32
	Limit uint32
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("abi: %s layout needs %d %ss, limit %d", e.Stage, e.Need, e.File, e.Limit)
}

func (e *OverflowError) Unwrap() error { return ErrRegisterOverflow }

// SlotConflictError reports two bindings for one return register.
type SlotConflictError struct {
	File          File
	Slot          uint16
	First, Second Binding
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("abi: %s %d returned by %s:%s and %s:%s",
		e.File, e.Slot, e.First.Stage, e.First.Name, e.Second.Stage, e.Second.Name)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotConflict }

// Builder assembles a Layout. Arguments are assigned consecutive slots of
// their register file in the order they are added.
//
// Builder records the first error and ignores further calls; Build
// reports it.
type Builder struct {
	chip    Chip
	stage   Stage
	args    []Arg
	returns []Binding
	nsgpr   uint16
	nvgpr   uint16
	rsgpr   uint16
	rvgpr   uint16
	prolog  uint16
	names   map[string]struct{}
	err     error
}

// NewBuilder returns an empty builder for stage on chip.
func NewBuilder(chip Chip, stage Stage) *Builder {
	return &Builder{chip: chip, stage: stage, names: make(map[string]struct{})}
}

// Add appends an argument of size registers.
func (b *Builder) Add(file File, size int, typ ArgType, name string) *Builder {
	if b.err != nil {
		return b
	}
	if name != "" {
		if _, dup := b.names[name]; dup {
			b.err = fmt.Errorf("%w: %s in %s layout", ErrDuplicateArg, name, b.stage)
			return b
		}
		b.names[name] = struct{}{}
	}
	a := Arg{Name: name, File: file, Size: uint8(size), Type: typ}
	if file == SGPR {
		a.Slot = b.nsgpr
		b.nsgpr += uint16(size)
	} else {
		a.Slot = b.nvgpr
		b.nvgpr += uint16(size)
	}
	b.args = append(b.args, a)
	return b
}

// SGPR appends a one-register integer scalar argument.
func (b *Builder) SGPR(name string) *Builder { return b.Add(SGPR, 1, ArgInt, name) }

// VGPR appends a one-register integer vector argument.
func (b *Builder) VGPR(name string) *Builder { return b.Add(VGPR, 1, ArgInt, name) }

// Unused appends n anonymous padding registers.
func (b *Builder) Unused(file File, n int) *Builder {
	for range n {
		b.Add(file, 1, ArgInt, "")
	}
	return b
}

// PadSGPRs pads the scalar file with unused registers up to slot.
func (b *Builder) PadSGPRs(slot int) *Builder {
	if n := slot - int(b.nsgpr); n > 0 {
		b.Unused(SGPR, n)
	}
	return b
}

// NumSGPRs returns the scalar registers allocated so far.
func (b *Builder) NumSGPRs() int { return int(b.nsgpr) }

// NumVGPRs returns the vector registers allocated so far.
func (b *Builder) NumVGPRs() int { return int(b.nvgpr) }

// PrologVGPRs marks the last n vector arguments as values produced by a
// prolog rather than loaded by hardware.
func (b *Builder) PrologVGPRs(n int) *Builder {
	b.prolog += uint16(n)
	return b
}

// Return appends a value to the next slot of file in the return list.
func (b *Builder) Return(file File, name string) *Builder {
	if b.err != nil {
		return b
	}
	r := Binding{Stage: b.stage, Name: name, File: file}
	if file == SGPR {
		r.Slot = b.rsgpr
		b.rsgpr++
	} else {
		r.Slot = b.rvgpr
		b.rvgpr++
	}
	b.returns = append(b.returns, r)
	return b
}

// Returns appends n values named prefix0..prefixN-1.
func (b *Builder) Returns(file File, n int, prefix string) *Builder {
	for i := range n {
		b.Return(file, fmt.Sprintf("%s%d", prefix, i))
	}
	return b
}

// ReturnInputs passes the first n input registers of file through to the
// next function, keeping their argument names.
func (b *Builder) ReturnInputs(file File, n int) *Builder {
	for slot := range n {
		b.Return(file, b.nameAt(file, uint16(slot)))
	}
	return b
}

func (b *Builder) nameAt(file File, slot uint16) string {
	for _, a := range b.args {
		if a.File != file || slot < a.Slot || slot >= a.Slot+uint16(a.Size) {
			continue
		}
		if a.Name != "" && a.Size == 1 {
			return a.Name
		}
		if a.Name != "" {
			return fmt.Sprintf("%s.%d", a.Name, slot-a.Slot)
		}
		break
	}
	return fmt.Sprintf("%s%d", file, slot)
}

// ReturnAt binds a value to a fixed return slot. It is used for values
// forwarded between the halves of a merged stage, which live at a fixed
// offset after the base return list.
func (b *Builder) ReturnAt(file File, slot int, name string) *Builder {
	if b.err != nil {
		return b
	}
	b.returns = append(b.returns, Binding{Stage: b.stage, Name: name, File: file, Slot: uint16(slot)})
	if file == SGPR {
		b.rsgpr = max(b.rsgpr, uint16(slot)+1)
	} else {
		b.rvgpr = max(b.rvgpr, uint16(slot)+1)
	}
	return b
}

// Build validates and returns the layout.
func (b *Builder) Build() (*Layout, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, c := range [...]struct {
		file  File
		need  uint16
		limit uint32
	}{
		{SGPR, max(b.nsgpr, b.rsgpr), b.chip.MaxSGPRs},
		{VGPR, max(b.nvgpr, b.rvgpr), b.chip.MaxVGPRs},
	} {
		if uint32(c.need) > c.limit {
			return nil, &OverflowError{Stage: b.stage, File: c.file, Need: uint32(c.need), Limit: c.limit}
		}
	}
	if err := ValidateBindings(b.returns); err != nil {
		return nil, err
	}
	l := &Layout{
		Stage:          b.stage,
		Args:           append([]Arg(nil), b.args...),
		Returns:        append([]Binding(nil), b.returns...),
		NumSGPRs:       b.nsgpr,
		NumVGPRs:       b.nvgpr,
		NumPrologVGPRs: b.prolog,
		NumRetSGPRs:    b.rsgpr,
		NumRetVGPRs:    b.rvgpr,
	}
	return l, nil
}

// ValidateBindings checks that no two bindings claim the same register.
func ValidateBindings(bindings []Binding) error {
	seen := make(map[[2]uint16]Binding, len(bindings))
	for _, r := range bindings {
		k := [2]uint16{uint16(r.File), r.Slot}
		if prev, ok := seen[k]; ok {
			return &SlotConflictError{File: r.File, Slot: r.Slot, First: prev, Second: r}
		}
		seen[k] = r
	}
	return nil
}

// Layout is the immutable register contract of one compiled function.
type Layout struct {
	Stage   Stage
	Args    []Arg
	Returns []Binding

	NumSGPRs uint16
	NumVGPRs uint16

	// NumPrologVGPRs trailing VGPR arguments are produced by a prolog.
	NumPrologVGPRs uint16

	NumRetSGPRs uint16
	NumRetVGPRs uint16
}

// Lookup returns the argument with the given name.
func (l *Layout) Lookup(name string) (Arg, bool) {
	for _, a := range l.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

// Slot returns the first register of a named argument, or -1.
func (l *Layout) Slot(name string) int {
	if a, ok := l.Lookup(name); ok {
		return int(a.Slot)
	}
	return -1
}

// NumInputSGPRs is the number of scalar inputs.
func (l *Layout) NumInputSGPRs() int { return int(l.NumSGPRs) }

// NumInputVGPRs is the number of hardware-loaded vector inputs.
func (l *Layout) NumInputVGPRs() int { return int(l.NumVGPRs - l.NumPrologVGPRs) }

// ReturnsOf returns the bindings of one register file in slot order.
func (l *Layout) ReturnsOf(file File) []Binding {
	var out []Binding
	for _, r := range l.Returns {
		if r.File == file {
			out = append(out, r)
		}
	}
	return out
}

// Signature is a stable textual form used for hashing and logs.
func (l *Layout) Signature() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(", l.Stage)
	for i, a := range l.Args {
		if i > 0 {
			sb.WriteByte(',')
		}
		name := a.Name
		if name == "" {
			name = "_"
		}
		fmt.Fprintf(&sb, "%s:%s%d", name, a.File, a.Slot)
		if a.Size > 1 {
			fmt.Fprintf(&sb, "x%d", a.Size)
		}
	}
	fmt.Fprintf(&sb, ")->(s%d,v%d)", l.NumRetSGPRs, l.NumRetVGPRs)
	return sb.String()
}

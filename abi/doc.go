// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package abi describes the register-level calling contract between the
// compiled pieces of a shader variant.
//
// A [Layout] is the ordered list of input arguments a compiled function
// receives in scalar (SGPR) and vector (VGPR) registers, plus the ordered
// list of values it hands to the next function in the chain. Layouts are
// produced deterministically by [StageLayout] for main bodies and by the
// part layout functions ([VSPrologLayout], [PSPrologLayout], ...) for
// prologs and epilogs.
//
// The package also carries the per-chip register budgets ([Chip]), the
// static analysis of a source shader ([Info]) and the register
// configuration reported by code generation ([Config]).
package abi

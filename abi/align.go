// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package abi

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// AlignUp rounds v up to the next multiple of n. n must be positive.
func AlignUp[T constraints.Integer](v, n T) T {
	if n <= 0 {
		return v
	}
	return (v + n - 1) / n * n
}

// DivRoundUp returns v / n rounded towards positive infinity.
func DivRoundUp[T constraints.Integer](v, n T) T {
	if n <= 0 {
		return 0
	}
	return (v + n - 1) / n
}

// LastBit returns the 1-based index of the highest set bit, or 0 for 0.
func LastBit[T constraints.Unsigned](v T) int {
	return bits.Len64(uint64(v))
}

// PopCount returns the number of set bits in v.
func PopCount[T constraints.Unsigned](v T) int {
	return bits.OnesCount64(uint64(v))
}

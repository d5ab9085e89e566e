// SPDX-License-Identifier: MIT
/*
Package bitint provides the integer helpers the analysis path leans on:
power-of-two sizing for frames, FFT lengths and queue slots, plus the
bit-reversed index mapping of the radix-2 transform.

Every function is O(1), allocation free and safe to call from the capture
callback.

Usage:

	padded := bitint.NextPowerOfTwo(3000) // 4096
	if !bitint.IsPowerOfTwo(frameSize) { ... }
	stages := bitint.Log2(padded)         // 12
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Subtracting one first keeps exact powers unchanged:
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// SPDX-License-Identifier: MIT
package bitint

import "math/bits"

// Log2 returns the base-2 logarithm of a power of two. For other positive
// values it returns floor(log2(n)). Non-positive input returns -1.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// ReverseBits reverses the low width bits of i. It is the index mapping used
// by the radix-2 FFT input permutation; width must be in [0, 64].
//
//	Input (width=3)  Output
//	1 (001)          4 (100)
//	3 (011)          6 (110)
//	6 (110)          3 (011)
func ReverseBits(i, width int) int {
	if width <= 0 {
		return 0
	}
	return int(bits.Reverse64(uint64(i)) >> (64 - uint(width)))
}

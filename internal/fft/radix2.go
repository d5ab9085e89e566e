// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"math"

	"tuner/pkg/bitint"
)

// BitReverse permutes x in place into bit-reversed index order. len(x) must
// be a power of two. The permutation is its own inverse.
func BitReverse(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
}

// Radix2 is an iterative in-place Cooley-Tukey transform of a fixed
// power-of-two size.
//
// By default each stage starts from a single twiddle exp(-2*pi*i/len) and
// advances it by complex multiplication. That drifts by a few ulps per step,
// which is harmless at the sizes a tuner uses. A precise Radix2 reads every
// twiddle from a table computed once with math.Sincos instead.
type Radix2 struct {
	n        int
	twiddles []complex128 // nil unless precise
}

// NewRadix2 returns a transform of n points. n must be a power of two.
func NewRadix2(n int, precise bool) (*Radix2, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", n)
	}
	r := &Radix2{n: n}
	if precise {
		r.twiddles = make([]complex128, n/2)
		for k := range r.twiddles {
			s, c := math.Sincos(-2 * math.Pi * float64(k) / float64(n))
			r.twiddles[k] = complex(c, s)
		}
	}
	return r, nil
}

// Size returns the number of points.
func (r *Radix2) Size() int { return r.n }

// Transform zero-pads frame into dst and computes its DFT in place.
// len(dst) must equal Size.
func (r *Radix2) Transform(dst []complex128, frame []float32) {
	load(dst, frame)
	r.FFT(dst)
}

// FFT computes the unnormalised forward DFT of x in place.
// len(x) must equal Size.
func (r *Radix2) FFT(x []complex128) {
	_ = x[r.n-1]
	BitReverse(x[:r.n])
	if r.twiddles != nil {
		r.butterfliesTable(x[:r.n])
		return
	}
	butterflies(x[:r.n])
}

func butterflies(x []complex128) {
	n := len(x)
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		s, c := math.Sincos(-2 * math.Pi / float64(size))
		wlen := complex(c, s)
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := range half {
				u := x[start+k]
				v := x[start+k+half] * w
				x[start+k] = u + v
				x[start+k+half] = u - v
				w *= wlen
			}
		}
	}
}

func (r *Radix2) butterfliesTable(x []complex128) {
	n := len(x)
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		stride := n / size
		for start := 0; start < n; start += size {
			for k := range half {
				u := x[start+k]
				v := x[start+k+half] * r.twiddles[k*stride]
				x[start+k] = u + v
				x[start+k+half] = u - v
			}
		}
	}
}

// load copies frame into dst as real values and zeroes the remainder.
func load(dst []complex128, frame []float32) {
	n := min(len(dst), len(frame))
	for i := range n {
		dst[i] = complex(float64(frame[i]), 0)
	}
	clear(dst[n:])
}

// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to a frame before the transform.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = [...]string{
	Hann:            "hann",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	BartlettHann:    "bartletthann",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
	Rectangular:     "rectangular",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann together with an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "hanning" {
		return Hann, nil
	}
	for i, s := range windowNames {
		if s == n {
			return WindowFunc(i), nil
		}
	}
	return Hann, fmt.Errorf("unknown window function %q", name)
}

// NewWindow returns n precomputed coefficients for kind. The Hann window is
// 0.5 - 0.5*cos(2*pi*i/(n-1)).
func NewWindow(kind WindowFunc, n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	if n < 2 {
		return coeffs
	}

	switch kind {
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// ApplyWindow writes src multiplied by coeffs into dst. src is never
// modified. Samples past len(coeffs) are passed through unchanged, and dst is
// filled up to min(len(dst), len(src)).
func ApplyWindow(dst, src []float32, coeffs []float64) {
	n := min(len(dst), len(src))
	m := min(n, len(coeffs))
	for i := range m {
		dst[i] = float32(float64(src[i]) * coeffs[i])
	}
	copy(dst[m:n], src[m:n])
}

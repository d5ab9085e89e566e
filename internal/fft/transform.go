// SPDX-License-Identifier: MIT

// Package fft turns fixed-size audio frames into complex spectra.
//
// The default backend is an in-place radix-2 Cooley-Tukey transform. A
// backend built on gonum's CmplxFFT computes the same unnormalised DFT and is
// selectable at construction. Neither allocates after construction.
package fft

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"tuner/pkg/bitint"
)

// Transformer zero-pads a real frame to Size points and writes its spectrum
// into dst. len(dst) must equal Size.
type Transformer interface {
	Transform(dst []complex128, frame []float32)
	Size() int
}

// Backend selects a Transformer implementation.
type Backend int

const (
	BackendRadix2 Backend = iota
	BackendRadix2Precise
	BackendGonum
)

func (b Backend) String() string {
	switch b {
	case BackendRadix2:
		return "radix2"
	case BackendRadix2Precise:
		return "radix2-precise"
	case BackendGonum:
		return "gonum"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend converts a case-insensitive backend name.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "radix2":
		return BackendRadix2, nil
	case "radix2-precise", "precise":
		return BackendRadix2Precise, nil
	case "gonum":
		return BackendGonum, nil
	default:
		return BackendRadix2, fmt.Errorf("unknown fft backend %q", name)
	}
}

// NewTransformer builds a transform of size points for backend. Size must be
// a power of two; this is the only place it is checked.
func NewTransformer(backend Backend, size int) (Transformer, error) {
	var (
		t   Transformer
		err error
	)
	switch backend {
	case BackendRadix2, BackendRadix2Precise:
		var r *Radix2
		r, err = NewRadix2(size, backend == BackendRadix2Precise)
		t = r
	case BackendGonum:
		var g *Gonum
		g, err = NewGonum(size)
		t = g
	default:
		err = fmt.Errorf("unknown fft backend %d", int(backend))
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Gonum adapts fourier.CmplxFFT to the Transformer interface.
type Gonum struct {
	fft *fourier.CmplxFFT
	n   int
}

// NewGonum returns a gonum backed transform of n points. n must be a power of
// two so that both backends accept the same configurations.
func NewGonum(n int) (*Gonum, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", n)
	}
	return &Gonum{fft: fourier.NewCmplxFFT(n), n: n}, nil
}

func (g *Gonum) Size() int { return g.n }

func (g *Gonum) Transform(dst []complex128, frame []float32) {
	load(dst, frame)
	g.fft.Coefficients(dst, dst)
}

// BinFrequency returns the centre frequency of bin k for a transform of
// paddedSize points.
func BinFrequency(k int, sampleRate float64, paddedSize int) float64 {
	return float64(k) * sampleRate / float64(paddedSize)
}

// Magnitudes writes |spectrum[k]| into dst for k < min(len(dst), len(spectrum)).
func Magnitudes(dst []float64, spectrum []complex128) {
	n := min(len(dst), len(spectrum))
	for k := range n {
		dst[k] = cmplx.Abs(spectrum[k])
	}
}

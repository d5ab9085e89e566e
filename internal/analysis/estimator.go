// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sync/atomic"

	"tuner/internal/fft"
	"tuner/pkg/bitint"
)

// Default plausible instrument range used by the range gate.
const (
	DefaultMinHz = 50.0
	DefaultMaxHz = 2000.0
)

// EstimatorConfig configures a PitchEstimator.
type EstimatorConfig struct {
	SampleRate float64
	PaddedSize int

	// RangeGate suppresses estimates outside [MinHz, MaxHz].
	RangeGate bool
	MinHz     float64
	MaxHz     float64

	// HPSHarmonics enables harmonic product spectrum octave correction
	// when >= 2. It is off by default.
	HPSHarmonics int
}

// PitchEstimator reduces a spectrum to a single fundamental frequency.
// It owns its workspace and must only be used from one goroutine; the
// counters may be read from anywhere.
type PitchEstimator struct {
	cfg  EstimatorConfig
	gate *NoiseGate

	mags []float64 // [0, PaddedSize/2)
	hps  []float64

	cycles   atomic.Uint64
	skipped  atomic.Uint64
	rejected atomic.Uint64
}

// NewPitchEstimator validates cfg and allocates the workspace. gate may be
// nil for an always-open gate.
func NewPitchEstimator(cfg EstimatorConfig, gate *NoiseGate) (*PitchEstimator, error) {
	if !bitint.IsPowerOfTwo(cfg.PaddedSize) || cfg.PaddedSize < 2 {
		return nil, fmt.Errorf("padded size must be a power of 2 >= 2, got %d", cfg.PaddedSize)
	}
	if !(cfg.SampleRate > 0) || math.IsInf(cfg.SampleRate, 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.RangeGate && !(cfg.MinHz >= 0 && cfg.MinHz < cfg.MaxHz) {
		return nil, fmt.Errorf("invalid pitch range [%f, %f]", cfg.MinHz, cfg.MaxHz)
	}
	if cfg.HPSHarmonics < 0 || cfg.HPSHarmonics > cfg.PaddedSize/2 {
		return nil, fmt.Errorf("invalid HPS harmonic count %d", cfg.HPSHarmonics)
	}
	if gate == nil {
		gate = NewNoiseGate(0)
		gate.Disable()
	}

	half := cfg.PaddedSize / 2
	p := &PitchEstimator{
		cfg:  cfg,
		gate: gate,
		mags: make([]float64, half),
	}
	if cfg.HPSHarmonics >= 2 {
		p.hps = make([]float64, half/cfg.HPSHarmonics)
	}
	return p, nil
}

// Gate runs the noise gate on the raw frame. A closed gate counts a skipped
// cycle and clears the magnitude workspace; the caller must not transform
// the frame.
func (p *PitchEstimator) Gate(frame []float32) bool {
	p.cycles.Add(1)
	if p.gate.Open(frame) {
		return true
	}
	p.skipped.Add(1)
	clear(p.mags)
	return false
}

// Estimate returns the fundamental frequency in Hz for spectrum, or 0 when
// there is no plausible pitch. len(spectrum) must be at least PaddedSize/2.
func (p *PitchEstimator) Estimate(spectrum []complex128) float64 {
	fft.Magnitudes(p.mags, spectrum[:len(p.mags)])

	search := p.mags
	if p.hps != nil {
		search = HarmonicProductSpectrum(p.hps, p.mags, p.cfg.HPSHarmonics)
	}

	k := PeakBin(search)
	delta := Interpolate(p.mags, k)
	f := (float64(k) + delta) * p.cfg.SampleRate / float64(p.cfg.PaddedSize)

	if !(f > 0) || math.IsInf(f, 0) {
		return 0
	}
	if p.cfg.RangeGate && (f < p.cfg.MinHz || f > p.cfg.MaxHz) {
		p.rejected.Add(1)
		return 0
	}
	return f
}

// Magnitudes returns the workspace filled by the last Estimate. It is
// overwritten by the next cycle.
func (p *PitchEstimator) Magnitudes() []float64 { return p.mags }

// NoiseGate returns the gate consulted by Gate.
func (p *PitchEstimator) NoiseGate() *NoiseGate { return p.gate }

// Cycles is the number of frames offered to Gate.
func (p *PitchEstimator) Cycles() uint64 { return p.cycles.Load() }

// Skipped is the number of frames the noise gate kept from the transform.
func (p *PitchEstimator) Skipped() uint64 { return p.skipped.Load() }

// Rejected is the number of estimates dropped by the range gate.
func (p *PitchEstimator) Rejected() uint64 { return p.rejected.Load() }

// PeakBin returns the index of the largest value in mags. Ties resolve to
// the lowest index. An empty slice returns 0.
func PeakBin(mags []float64) int {
	peak := 0
	for k := 1; k < len(mags); k++ {
		if mags[k] > mags[peak] {
			peak = k
		}
	}
	return peak
}

// Interpolate returns the parabolic sub-bin offset of the peak at k:
//
//	delta = 0.5*(L-R)/(L-2C+R)
//
// Neighbours outside mags count as 0. A degenerate parabola yields 0, and
// the offset is clamped to [-0.5, 0.5].
func Interpolate(mags []float64, k int) float64 {
	if k < 0 || k >= len(mags) {
		return 0
	}
	var l, r float64
	c := mags[k]
	if k > 0 {
		l = mags[k-1]
	}
	if k+1 < len(mags) {
		r = mags[k+1]
	}

	den := l - 2*c + r
	if math.Abs(den) < 1e-12 {
		return 0
	}
	delta := 0.5 * (l - r) / den
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0
	}
	return max(-0.5, min(0.5, delta))
}

// HarmonicProductSpectrum multiplies mags with its copies decimated by 2..h
// and writes the product into dst, which must hold len(mags)/h values. It
// returns dst[:len(mags)/h]. h < 2 copies mags unchanged.
func HarmonicProductSpectrum(dst, mags []float64, h int) []float64 {
	if h < 2 {
		n := copy(dst, mags)
		return dst[:n]
	}
	n := min(len(mags)/h, len(dst))
	for k := range n {
		prod := mags[k]
		for m := 2; m <= h; m++ {
			prod *= mags[k*m]
		}
		dst[k] = prod
	}
	return dst[:n]
}

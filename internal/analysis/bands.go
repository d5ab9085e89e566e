// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// Spectrum display defaults: 20 Hz to 5 kHz on a -100..0 dBFS scale.
const (
	DefaultBandMinHz = 20.0
	DefaultBandMaxHz = 5000.0
	DefaultFloorDB   = -100.0
)

// Band is one display column covering the bins [Lo, Hi].
type Band struct {
	LowHz  float64
	HighHz float64
	Lo, Hi int
}

// SpectrumBands reduces a magnitude spectrum to a fixed number of
// logarithmically spaced bands in dBFS, smoothed over time. It is meant for
// visualisers and is not safe for concurrent use.
type SpectrumBands struct {
	bands     []Band
	levels    []float64 // smoothed dB per band
	scale     float64
	smoothing float64
	floorDB   float64
}

// NewSpectrumBands lays out count bands between minHz and maxHz for a
// transform of paddedSize points. scale converts raw magnitudes to linear
// amplitude (see Engine.MagnitudeScale). smoothing in [0, 1) weights the
// previous level.
func NewSpectrumBands(count int, minHz, maxHz, sampleRate float64, paddedSize int, scale, smoothing float64) (*SpectrumBands, error) {
	if count <= 0 {
		return nil, fmt.Errorf("band count must be positive, got %d", count)
	}
	if !(minHz > 0 && minHz < maxHz) {
		return nil, fmt.Errorf("invalid band range [%f, %f]", minHz, maxHz)
	}
	if smoothing < 0 || smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", smoothing)
	}

	binHz := sampleRate / float64(paddedSize)
	lastBin := paddedSize/2 - 1
	ratio := math.Pow(maxHz/minHz, 1/float64(count))

	b := &SpectrumBands{
		bands:     make([]Band, count),
		levels:    make([]float64, count),
		scale:     scale,
		smoothing: smoothing,
		floorDB:   DefaultFloorDB,
	}
	lo := minHz
	for i := range b.bands {
		hi := lo * ratio
		first := min(int(math.Ceil(lo/binHz)), lastBin)
		last := min(max(int(math.Floor(hi/binHz)), first), lastBin)
		b.bands[i] = Band{LowHz: lo, HighHz: hi, Lo: first, Hi: last}
		b.levels[i] = b.floorDB
		lo = hi
	}
	return b, nil
}

// Bands returns the band layout.
func (b *SpectrumBands) Bands() []Band { return b.bands }

// Update folds one magnitude spectrum into the band levels and returns them.
// Each band takes the peak bin, converted with 20*log10(mag+1e-6) and
// floored at -100 dB. The returned slice is reused by the next call.
func (b *SpectrumBands) Update(mags []float64) []float64 {
	for i, band := range b.bands {
		peak := 0.0
		for k := band.Lo; k <= band.Hi && k < len(mags); k++ {
			peak = max(peak, mags[k])
		}
		db := max(20*math.Log10(peak*b.scale+1e-6), b.floorDB)
		b.levels[i] = b.smoothing*b.levels[i] + (1-b.smoothing)*db
	}
	return b.levels
}

// Normalized writes each level mapped from [floor, 0] dB onto [0, 1] into dst.
func (b *SpectrumBands) Normalized(dst []float64) {
	for i := range min(len(dst), len(b.levels)) {
		v := (b.levels[i] - b.floorDB) / -b.floorDB
		dst[i] = max(0, min(1, v))
	}
}

// Reset drops the smoothing history.
func (b *SpectrumBands) Reset() {
	for i := range b.levels {
		b.levels[i] = b.floorDB
	}
}

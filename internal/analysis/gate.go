// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"
)

// DefaultGateThreshold is the peak amplitude below which a frame is silence.
const DefaultGateThreshold = 0.01

// NoiseGate decides whether a frame is loud enough to analyse. Enable,
// Disable and SetThreshold may be called from any goroutine while Open runs
// on the analysis goroutine.
type NoiseGate struct {
	disabled  atomic.Bool
	threshold atomic.Uint64 // float64 bits
}

// NewNoiseGate returns an enabled gate with the given threshold.
func NewNoiseGate(threshold float64) *NoiseGate {
	g := &NoiseGate{}
	g.SetThreshold(threshold)
	return g
}

func (g *NoiseGate) Enable()  { g.disabled.Store(false) }
func (g *NoiseGate) Disable() { g.disabled.Store(true) }

// Enabled reports whether the gate is active.
func (g *NoiseGate) Enabled() bool { return !g.disabled.Load() }

// SetThreshold sets the peak amplitude threshold, clamped to [0, 1] where 0
// is always open and 1 only passes full-scale peaks.
func (g *NoiseGate) SetThreshold(threshold float64) {
	if math.IsNaN(threshold) || threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	g.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current threshold.
func (g *NoiseGate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// Open reports whether frame should be analysed. A disabled gate is always
// open.
func (g *NoiseGate) Open(frame []float32) bool {
	if g.disabled.Load() {
		return true
	}
	return float64(MaxAbs(frame)) >= g.Threshold()
}

// MaxAbs returns the largest absolute sample value in frame.
func MaxAbs(frame []float32) float32 {
	var peak float32
	for _, s := range frame {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// SPDX-License-Identifier: MIT
package analysis

import "math"

// RMS returns the root mean square of frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// OnsetDetector flags a new pluck when the frame level rises above a floor
// by at least a fixed ratio over the previous frame.
type OnsetDetector struct {
	threshold float64
	ratio     float64
	last      float64
}

// NewOnsetDetector returns a detector that fires when the RMS exceeds
// threshold and grows by more than ratio since the previous frame.
func NewOnsetDetector(threshold, ratio float64) *OnsetDetector {
	return &OnsetDetector{threshold: threshold, ratio: ratio}
}

// Detect feeds one frame level and reports whether it is an onset.
func (d *OnsetDetector) Detect(level float64) bool {
	onset := level > d.threshold && (d.last == 0 || level/d.last > d.ratio)
	d.last = level
	return onset
}

// Reset forgets the previous level.
func (d *OnsetDetector) Reset() { d.last = 0 }

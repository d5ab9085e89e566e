// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"tuner/pkg/utils"
)

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(square) = %v, want 0.5", got)
	}

	sine := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.8)
	if got := RMS(sine); math.Abs(got-0.8/math.Sqrt2) > 0.01 {
		t.Errorf("RMS(sine) = %v, want about %v", got, 0.8/math.Sqrt2)
	}
}

func TestOnsetDetector(t *testing.T) {
	d := NewOnsetDetector(0.02, 2)

	steps := []struct {
		level float64
		onset bool
	}{
		{0.001, false}, // below floor
		{0.1, true},    // jump from near silence
		{0.12, false},  // sustain
		{0.08, false},  // decay
		{0.5, true},    // re-pluck
		{0.01, false},
	}
	for i, s := range steps {
		if got := d.Detect(s.level); got != s.onset {
			t.Errorf("step %d level %.3f: Detect() = %v, want %v", i, s.level, got, s.onset)
		}
	}

	d.Reset()
	if !d.Detect(0.03) {
		t.Error("first loud frame after Reset should be an onset")
	}
}

// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"tuner/internal/fft"
	"tuner/pkg/utils"
)

func hannScale(n int) float64 {
	var sum float64
	for _, c := range fft.NewWindow(fft.Hann, n) {
		sum += c
	}
	return 2 / sum
}

func TestSpectrumBandsLayout(t *testing.T) {
	b, err := NewSpectrumBands(32, DefaultBandMinHz, DefaultBandMaxHz, testSampleRate, testPaddedSize, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	bands := b.Bands()
	if len(bands) != 32 {
		t.Fatalf("len(Bands()) = %d, want 32", len(bands))
	}
	if bands[0].LowHz != DefaultBandMinHz {
		t.Errorf("first band starts at %v, want %v", bands[0].LowHz, DefaultBandMinHz)
	}
	if math.Abs(bands[31].HighHz-DefaultBandMaxHz) > 1e-6 {
		t.Errorf("last band ends at %v, want %v", bands[31].HighHz, DefaultBandMaxHz)
	}
	for i, band := range bands {
		if band.Lo > band.Hi {
			t.Errorf("band %d: Lo %d > Hi %d", i, band.Lo, band.Hi)
		}
		if i > 0 && band.LowHz != bands[i-1].HighHz {
			t.Errorf("band %d is not contiguous with band %d", i, i-1)
		}
		if band.Hi >= testPaddedSize/2 {
			t.Errorf("band %d reaches past Nyquist: %d", i, band.Hi)
		}
	}
}

func TestSpectrumBandsLevels(t *testing.T) {
	p := newTestEstimator(t, false, 0)
	frame := utils.GenerateSineWave(testFrameSize, testSampleRate, 1000, 0.5)
	p.Estimate(spectrumOf(t, frame))

	b, err := NewSpectrumBands(32, DefaultBandMinHz, DefaultBandMaxHz, testSampleRate, testPaddedSize, hannScale(testFrameSize), 0)
	if err != nil {
		t.Fatal(err)
	}
	levels := b.Update(p.Magnitudes())

	hit := -1
	for i, band := range b.Bands() {
		if 1000 >= band.LowHz && 1000 < band.HighHz {
			hit = i
		}
	}
	if hit < 0 {
		t.Fatal("no band covers 1000 Hz")
	}

	want := 20 * math.Log10(0.5)
	if math.Abs(levels[hit]-want) > 1.5 {
		t.Errorf("band %d level = %.2f dB, want about %.2f dB", hit, levels[hit], want)
	}
	if levels[0] > -60 {
		t.Errorf("lowest band level = %.2f dB, want below -60", levels[0])
	}

	norm := make([]float64, len(levels))
	b.Normalized(norm)
	for i, v := range norm {
		if v < 0 || v > 1 {
			t.Errorf("Normalized()[%d] = %v outside [0, 1]", i, v)
		}
	}
	if math.Abs(norm[hit]-(levels[hit]+100)/100) > 1e-9 {
		t.Errorf("Normalized()[%d] = %v, want %v", hit, norm[hit], (levels[hit]+100)/100)
	}
}

func TestSpectrumBandsSmoothing(t *testing.T) {
	b, err := NewSpectrumBands(1, 100, 200, testSampleRate, testPaddedSize, 1, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	mags := make([]float64, testPaddedSize/2)
	for k := range mags {
		mags[k] = 0.1 // -20 dB
	}

	got := b.Update(mags)[0]
	want := 0.5*DefaultFloorDB + 0.5*20*math.Log10(0.1+1e-6)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("first Update() = %v, want %v", got, want)
	}

	b.Reset()
	if got := b.Update(make([]float64, testPaddedSize/2))[0]; got != DefaultFloorDB {
		t.Errorf("silent Update() after Reset = %v, want floor %v", got, DefaultFloorDB)
	}
}

func TestNewSpectrumBandsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		min, max  float64
		smoothing float64
	}{
		{"Zero count", 0, 20, 5000, 0},
		{"Inverted range", 8, 5000, 20, 0},
		{"Zero min", 8, 0, 5000, 0},
		{"Smoothing one", 8, 20, 5000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSpectrumBands(tt.count, tt.min, tt.max, testSampleRate, testPaddedSize, 1, tt.smoothing); err == nil {
				t.Error("NewSpectrumBands() error = nil, want error")
			}
		})
	}
}

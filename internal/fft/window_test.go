// SPDX-License-Identifier: MIT
package fft

import (
	"math"
	"testing"
)

func TestNewWindowHann(t *testing.T) {
	for _, n := range []int{2, 5, 16, 2048} {
		coeffs := NewWindow(Hann, n)
		if len(coeffs) != n {
			t.Fatalf("len = %d, want %d", len(coeffs), n)
		}
		for i, c := range coeffs {
			want := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
			if math.Abs(c-want) > 1e-12 {
				t.Fatalf("N=%d: coeff[%d] = %g, want %g", n, i, c, want)
			}
		}
		if math.Abs(coeffs[0]) > 1e-12 || math.Abs(coeffs[n-1]) > 1e-12 {
			t.Errorf("N=%d: endpoints %g, %g, want 0", n, coeffs[0], coeffs[n-1])
		}
	}

	// Odd lengths peak at exactly 1 in the middle.
	if c := NewWindow(Hann, 5)[2]; math.Abs(c-1) > 1e-12 {
		t.Errorf("centre coeff = %g, want 1", c)
	}
}

func TestNewWindowKinds(t *testing.T) {
	const n = 64
	for kind := Hann; kind <= Rectangular; kind++ {
		t.Run(kind.String(), func(t *testing.T) {
			coeffs := NewWindow(kind, n)
			for i, c := range coeffs {
				if math.IsNaN(c) || c < -1e-9 || c > 1+1e-9 {
					t.Fatalf("coeff[%d] = %g out of [0,1]", i, c)
				}
			}
			// Symmetric windows.
			for i := range n / 2 {
				if math.Abs(coeffs[i]-coeffs[n-1-i]) > 1e-9 {
					t.Fatalf("asymmetric at %d: %g vs %g", i, coeffs[i], coeffs[n-1-i])
				}
			}
		})
	}

	if got := NewWindow(Rectangular, 8); got[0] != 1 || got[7] != 1 {
		t.Errorf("rectangular window not flat: %v", got)
	}
	if got := NewWindow(Hann, 1); len(got) != 1 || got[0] != 1 {
		t.Errorf("single-point window = %v, want [1]", got)
	}
}

func TestApplyWindowLeavesSourceIntact(t *testing.T) {
	src := []float32{1, 1, 1, 1, 1}
	dst := make([]float32, len(src))
	coeffs := NewWindow(Hann, len(src))

	ApplyWindow(dst, src, coeffs)

	for i, v := range src {
		if v != 1 {
			t.Errorf("src[%d] mutated to %g", i, v)
		}
	}
	want := []float32{0, 0.5, 1, 0.5, 0}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Errorf("dst[%d] = %g, want %g", i, dst[i], want[i])
		}
	}
}

func TestApplyWindowShortCoefficients(t *testing.T) {
	src := []float32{2, 2, 2, 2}
	dst := make([]float32, 4)
	ApplyWindow(dst, src, []float64{0.5, 0.5})
	want := []float32{1, 1, 2, 2}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %g, want %g", i, dst[i], want[i])
		}
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{" blackman ", Blackman, false},
		{"BlackmanNuttall", BlackmanNuttall, false},
		{"bartletthann", BartlettHann, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"rectangular", Rectangular, false},
		{"kaiser", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyWindowZeroAllocs(t *testing.T) {
	src := sine(testFrameSize, testSampleRate, 440, 0.5)
	dst := make([]float32, testFrameSize)
	coeffs := NewWindow(Hann, testFrameSize)
	allocs := testing.AllocsPerRun(100, func() {
		ApplyWindow(dst, src, coeffs)
	})
	if allocs > 0 {
		t.Errorf("ApplyWindow allocated %.1f", allocs)
	}
}

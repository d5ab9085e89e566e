// SPDX-License-Identifier: MIT

// Package utils holds signal generators and recorders shared by tests and
// the synthetic input sources.
package utils

import (
	"math"
	"math/rand/v2"
)

// GenerateSineWave returns size samples of a sine at frequency with peak
// amplitude amp.
func GenerateSineWave(size int, sampleRate, frequency, amp float64) []float32 {
	buffer := make([]float32, size)
	FillSineWave(buffer, 0, sampleRate, frequency, amp)
	return buffer
}

// FillSineWave writes a sine into buffer starting at sample offset and
// returns the offset following the last written sample.
func FillSineWave(buffer []float32, offset int, sampleRate, frequency, amp float64) int {
	for i := range buffer {
		t := float64(offset+i) / sampleRate
		buffer[i] = float32(amp * math.Sin(2*math.Pi*frequency*t))
	}
	return offset + len(buffer)
}

// GenerateComplexWave returns a tone at fundamental with its second and
// third harmonics at 0.5, 0.3 and 0.2 of full scale.
func GenerateComplexWave(size int, sampleRate, fundamental float64) []float32 {
	return GenerateHarmonics(size, sampleRate, fundamental, 0.5, 0.3, 0.2)
}

// GenerateHarmonics sums sines at fundamental*(i+1) with the given
// amplitudes.
func GenerateHarmonics(size int, sampleRate, fundamental float64, amps ...float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		var v float64
		for h, a := range amps {
			v += a * math.Sin(2*math.Pi*fundamental*float64(h+1)*tm)
		}
		buffer[i] = float32(v)
	}
	return buffer
}

// GenerateNoise returns uniform white noise in [-amp, amp]. The same seed
// yields the same samples.
func GenerateNoise(size int, amp float64, seed uint64) []float32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(amp * (2*r.Float64() - 1))
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

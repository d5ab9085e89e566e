// SPDX-License-Identifier: MIT
package config

import (
	"tuner/internal/analysis"
	"tuner/internal/fft"
)

// EngineConfig converts the analysis and framing sections into an engine
// configuration at the given sample rate.
func (c *Config) EngineConfig(sampleRate float64) (analysis.Config, error) {
	window, err := fft.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return analysis.Config{}, err
	}
	backend, err := fft.ParseBackend(c.Analysis.FFTBackend)
	if err != nil {
		return analysis.Config{}, err
	}

	ec := analysis.DefaultConfig(sampleRate)
	ec.FrameSize = c.Audio.FrameSize
	ec.PaddedSize = c.Audio.PaddedSize
	ec.Window = window
	ec.Backend = backend
	ec.GateThreshold = c.Analysis.GateThreshold
	ec.GateDisabled = !c.Analysis.GateEnabled
	ec.RangeGate = c.Analysis.RangeGate
	ec.MinHz = c.Analysis.MinHz
	ec.MaxHz = c.Analysis.MaxHz
	ec.HPSHarmonics = c.Analysis.HPSHarmonics
	ec.ReferencePitch = c.Analysis.ReferencePitch
	return ec, ec.Validate()
}

// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	applog "tuner/internal/log"
)

// ToneConfig describes a synthetic test signal.
type ToneConfig struct {
	SampleRate float64
	FrameSize  int
	Frequency  float64
	// Harmonics are relative amplitudes of partials 2, 3, ... on top of the
	// fundamental.
	Harmonics []float64
	Noise     float64 // white noise amplitude
	Volume    float64 // linear gain, 0 is silent
	Pacing    Pacing
}

// ToneSource renders a beep streamer graph into frames so the pipeline can
// run without hardware.
type ToneSource struct {
	cfg      ToneConfig
	streamer beep.Streamer
	frames   uint64
}

// NewToneSource builds the oscillator mix for cfg.
func NewToneSource(cfg ToneConfig) (*ToneSource, error) {
	if !(cfg.SampleRate > 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.FrameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}
	if !(cfg.Frequency > 0) || cfg.Frequency >= cfg.SampleRate/2 {
		return nil, fmt.Errorf("tone frequency %f outside (0, %f)", cfg.Frequency, cfg.SampleRate/2)
	}

	sr := beep.SampleRate(int(math.Round(cfg.SampleRate)))
	parts := []beep.Streamer{newSine(sr, cfg.Frequency)}
	for i, amp := range cfg.Harmonics {
		f := cfg.Frequency * float64(i+2)
		if f >= cfg.SampleRate/2 {
			break
		}
		parts = append(parts, newVolume(newSine(sr, f), amp))
	}
	if cfg.Noise > 0 {
		parts = append(parts, newVolume(&noise{rng: rand.New(rand.NewPCG(1, 2))}, cfg.Noise))
	}

	return &ToneSource{
		cfg:      cfg,
		streamer: newVolume(beep.Mix(parts...), cfg.Volume),
	}, nil
}

func (s *ToneSource) SampleRate() float64 { return s.cfg.SampleRate }

// Frames is the number of frames rendered so far.
func (s *ToneSource) Frames() uint64 { return s.frames }

// Render fills frame with the next samples of the left channel.
func (s *ToneSource) Render(frame []float32, scratch [][2]float64) {
	n, _ := s.streamer.Stream(scratch[:len(frame)])
	for i := range n {
		frame[i] = float32(scratch[i][0])
	}
	clear(frame[n:])
}

// Run renders frames until ctx is done.
func (s *ToneSource) Run(ctx context.Context, sink FrameSink) error {
	p := newPacer(s.cfg.Pacing, s.cfg.FrameSize, s.cfg.SampleRate)
	defer p.stop()

	frame := make([]float32, s.cfg.FrameSize)
	scratch := make([][2]float64, s.cfg.FrameSize)

	applog.Infof("ToneSource: Generating %.2f Hz at %.0f Hz (%d harmonics, noise %.3f, volume %.2f)",
		s.cfg.Frequency, s.cfg.SampleRate, len(s.cfg.Harmonics), s.cfg.Noise, s.cfg.Volume)

	for {
		s.Render(frame, scratch)
		if !p.deliver(ctx, sink, frame) {
			return nil
		}
		s.frames++
	}
}

// sine is an endless oscillator with a wrapped phase accumulator.
type sine struct {
	step  float64
	phase float64
}

func newSine(sr beep.SampleRate, freq float64) *sine {
	return &sine{step: freq / float64(sr)}
}

func (o *sine) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		v := math.Sin(2 * math.Pi * o.phase)
		samples[i][0] = v
		samples[i][1] = v
		o.phase += o.step
		o.phase -= math.Floor(o.phase) // Keep in [0, 1)
	}
	return len(samples), true
}

func (o *sine) Err() error { return nil }

type noise struct {
	rng *rand.Rand
}

func (s *noise) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		v := s.rng.Float64()*2 - 1
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (s *noise) Err() error { return nil }

// newVolume scales s linearly. math.Log2(0) is -Inf, so 0 is silent.
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

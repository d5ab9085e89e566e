// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	applog "tuner/internal/log"
)

// CaptureConfig selects and configures the live input device.
type CaptureConfig struct {
	DeviceID   int    // DefaultDeviceID for the system default
	DeviceHint string // name substring, wins over DeviceID
	SampleRate float64
	FrameSize  int
	Channels   int // channels opened, 0 for all the device has
	Channel    int // zero-based channel analysed
	LowLatency bool
}

// Capture is a live PortAudio input Source. The stream callback extracts
// one channel into a preallocated frame and pushes it without blocking.
type Capture struct {
	device     *portaudio.DeviceInfo
	sampleRate float64
	frameSize  int
	channels   int
	channel    int
	latency    time.Duration

	frame []float32

	callbacks atomic.Uint64
	overflows atomic.Uint64
	rejected  atomic.Uint64
}

// NewCapture resolves the device and validates the channel layout.
// PortAudio must be initialized.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	var (
		device *portaudio.DeviceInfo
		err    error
	)
	if cfg.DeviceHint != "" {
		device, err = FindDevice(cfg.DeviceHint)
	} else {
		device, err = InputDevice(cfg.DeviceID)
	}
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrNoDevice
	}

	channels := cfg.Channels
	if channels == 0 {
		channels = device.MaxInputChannels
	}
	if channels < 1 || channels > device.MaxInputChannels {
		return nil, fmt.Errorf("device %q has %d input channels, %d requested", device.Name, device.MaxInputChannels, channels)
	}
	if cfg.Channel < 0 || cfg.Channel >= channels {
		return nil, fmt.Errorf("channel %d out of range for %d channels", cfg.Channel, channels)
	}
	if cfg.FrameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = device.DefaultSampleRate
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	return &Capture{
		device:     device,
		sampleRate: sampleRate,
		frameSize:  cfg.FrameSize,
		channels:   channels,
		channel:    cfg.Channel,
		latency:    latency,
		frame:      make([]float32, cfg.FrameSize),
	}, nil
}

// SampleRate is the rate the stream is opened at.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// DeviceName is the resolved device name.
func (c *Capture) DeviceName() string { return c.device.Name }

// Overflows counts callbacks PortAudio flagged with lost input.
func (c *Capture) Overflows() uint64 { return c.overflows.Load() }

// Callbacks counts stream callbacks delivered.
func (c *Capture) Callbacks() uint64 { return c.callbacks.Load() }

// Rejected counts frames the sink refused.
func (c *Capture) Rejected() uint64 { return c.rejected.Load() }

// Run opens and starts the input stream, then blocks until ctx is done.
func (c *Capture) Run(ctx context.Context, sink FrameSink) error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   c.device,
			Channels: c.channels,
			Latency:  c.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   nil, // No output device
			Channels: 0,
		},
		FramesPerBuffer: c.frameSize,
		SampleRate:      c.sampleRate,
		Flags:           portaudio.ClipOff,
	}

	callback := func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		c.process(in, flags, sink)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %q: %w", c.device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	applog.Infof("Capture: Streaming from %q (%d ch, using ch %d, %.0f Hz, %d frames, latency %s)",
		c.device.Name, c.channels, c.channel, c.sampleRate, c.frameSize, c.latency)

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	applog.Infof("Capture: Stopped after %d callbacks (%d overflows, %d frames dropped)",
		c.callbacks.Load(), c.overflows.Load(), c.rejected.Load())
	return nil
}

// process is the stream callback body. It must not block, allocate or log.
func (c *Capture) process(in []float32, flags portaudio.StreamCallbackFlags, sink FrameSink) {
	c.callbacks.Add(1)
	if flags&portaudio.InputOverflow != 0 {
		c.overflows.Add(1)
	}
	ExtractChannel(c.frame, in, c.channels, c.channel)
	if !sink.TryPush(c.frame) {
		c.rejected.Add(1)
	}
}

// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "tuner/internal/log"
)

// ErrInvalidWAV is returned for files the decoder cannot read as PCM WAV.
var ErrInvalidWAV = errors.New("audio: not a valid PCM WAV file")

// WAVSource streams one channel of a PCM WAV file as frames.
type WAVSource struct {
	path       string
	file       *os.File
	decoder    *wav.Decoder
	sampleRate float64
	channels   int
	channel    int
	bitDepth   int
	frameSize  int
	pacing     Pacing

	frames int
}

// OpenWAV opens path and reads its header. The caller must Close the
// source.
func OpenWAV(path string, frameSize, channel int, pacing Pacing) (*WAVSource, error) {
	if frameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidWAV, path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	channels := int(d.NumChans)
	if channel < 0 || channel >= channels {
		f.Close()
		return nil, fmt.Errorf("channel %d out of range, %s has %d channels", channel, path, channels)
	}

	return &WAVSource{
		path:       path,
		file:       f,
		decoder:    d,
		sampleRate: float64(d.SampleRate),
		channels:   channels,
		channel:    channel,
		bitDepth:   int(d.BitDepth),
		frameSize:  frameSize,
		pacing:     pacing,
	}, nil
}

func (s *WAVSource) SampleRate() float64 { return s.sampleRate }

// Channels is the channel count of the file.
func (s *WAVSource) Channels() int { return s.channels }

// Frames is the number of frames delivered by Run.
func (s *WAVSource) Frames() int { return s.frames }

// Close releases the file.
func (s *WAVSource) Close() error { return s.file.Close() }

// Run decodes the file to the end. A trailing partial frame is delivered
// zero padded.
func (s *WAVSource) Run(ctx context.Context, sink FrameSink) error {
	p := newPacer(s.pacing, s.frameSize, s.sampleRate)
	defer p.stop()

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: s.channels, SampleRate: int(s.sampleRate)},
		Data:   make([]int, s.frameSize*s.channels),
	}
	frame := make([]float32, s.frameSize)
	scale, offset := sampleScale(s.bitDepth)

	fill := 0
	for ctx.Err() == nil {
		n, err := s.decoder.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", s.path, err)
		}
		if n == 0 {
			break
		}
		for i := s.channel; i < n; i += s.channels {
			frame[fill] = float32((float64(buf.Data[i]) - offset) * scale)
			fill++
			if fill == s.frameSize {
				if !p.deliver(ctx, sink, frame) {
					return nil
				}
				s.frames++
				fill = 0
			}
		}
	}

	if fill > 0 && ctx.Err() == nil {
		clear(frame[fill:])
		if p.deliver(ctx, sink, frame) {
			s.frames++
		}
	}
	applog.Infof("WAVSource: Finished %s after %d frames", s.path, s.frames)
	return nil
}

// sampleScale maps decoded integers onto [-1, 1). 8-bit WAV is unsigned.
func sampleScale(bitDepth int) (scale, offset float64) {
	if bitDepth == 8 {
		return 1.0 / 128, 128
	}
	return 1.0 / float64(goaudio.IntMaxSignedValue(bitDepth)+1), 0
}

// SPDX-License-Identifier: MIT

// Package audio produces mono float32 frames for the analysis queue from a
// live PortAudio device, a WAV file or a synthetic tone.
package audio

import (
	"context"
	"time"
)

// FrameSink accepts frames without blocking. *queue.FrameQueue satisfies it.
type FrameSink interface {
	TryPush(frame []float32) bool
}

// Source produces frames until its input ends or ctx is cancelled. Run
// returns nil in both cases; the caller closes the sink.
type Source interface {
	SampleRate() float64
	Run(ctx context.Context, sink FrameSink) error
}

// Pacing decides how file and synthetic sources hand frames to the sink.
type Pacing int

const (
	// PaceRealtime emits one frame per frame period and drops it when the
	// sink is full, like a live device.
	PaceRealtime Pacing = iota
	// PaceBlocking emits frames as fast as the sink accepts them and never
	// drops.
	PaceBlocking
)

const retryBackoff = time.Millisecond

// pacer delivers frames according to a Pacing.
type pacer struct {
	pacing Pacing
	ticker *time.Ticker
}

func newPacer(pacing Pacing, frameSize int, sampleRate float64) *pacer {
	p := &pacer{pacing: pacing}
	if pacing == PaceRealtime {
		period := time.Duration(float64(frameSize) / sampleRate * float64(time.Second))
		p.ticker = time.NewTicker(max(period, time.Millisecond))
	}
	return p
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

// deliver hands frame to sink. It returns false when ctx ends first.
func (p *pacer) deliver(ctx context.Context, sink FrameSink, frame []float32) bool {
	if p.pacing == PaceRealtime {
		select {
		case <-p.ticker.C:
		case <-ctx.Done():
			return false
		}
		sink.TryPush(frame)
		return true
	}

	// Wait for room first so a full queue does not count drops.
	if q, ok := sink.(interface {
		Capacity() int
		ReadAvailable() int
	}); ok {
		for q.ReadAvailable() >= q.Capacity() {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return false
			}
		}
	}
	for !sink.TryPush(frame) {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

// ExtractChannel copies channel ch of an interleaved buffer into dst.
// Missing samples are zero.
func ExtractChannel(dst, interleaved []float32, channels, ch int) {
	if channels == 1 {
		n := copy(dst, interleaved)
		clear(dst[n:])
		return
	}
	for i := range dst {
		idx := i*channels + ch
		if idx < len(interleaved) {
			dst[i] = interleaved[idx]
		} else {
			dst[i] = 0
		}
	}
}

// SPDX-License-Identifier: MIT
package analysis

import "tuner/internal/note"

// Result is published to the Sink once per analysed frame.
type Result struct {
	Sequence  uint64 `json:"seq"`
	Timestamp int64  `json:"ts"` // nanoseconds since epoch
	// Frequency is the estimated fundamental in Hz, 0 when there is no pitch.
	Frequency float64   `json:"frequency"`
	Note      note.Info `json:"note"`
	// Gated is true when the frame was below the noise gate and never
	// reached the transform.
	Gated bool `json:"gated"`
	// Level is the RMS of the raw frame on a [-1, 1] scale.
	Level float64 `json:"level"`
	// Onset is true when the level jumped enough to look like a new pluck.
	Onset bool `json:"onset"`
	// Magnitudes is the half spectrum of this cycle. It aliases engine
	// memory and is only valid for the duration of Consume.
	Magnitudes []float64 `json:"-"`
}

// Voiced reports whether a pitch was found.
func (r Result) Voiced() bool { return r.Frequency > 0 }

// Sink receives results on the analysis goroutine. Consume must return
// quickly; slow consumers buffer on their own side.
type Sink interface {
	Consume(Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result)

func (f SinkFunc) Consume(r Result) { f(r) }

// MultiSink fans a result out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Consume(r Result) {
	for _, s := range m {
		s.Consume(r)
	}
}

// SpectrumProvider serves the most recent magnitude spectrum to pull-based
// consumers that run on their own schedule.
type SpectrumProvider interface {
	// MagnitudesInto copies the latest magnitudes into dst, which must hold
	// exactly SpectrumSize values.
	MagnitudesInto(dst []float64) error
	SpectrumSize() int
	BinFrequency(k int) float64
	SampleRate() float64
}

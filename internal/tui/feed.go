// SPDX-License-Identifier: MIT
package tui

import (
	"sync/atomic"

	"tuner/internal/analysis"
	"tuner/internal/note"
)

// Reading is a display snapshot of one result. It owns its data.
type Reading struct {
	Sequence  uint64
	Frequency float64
	Note      note.Info
	Level     float64
	Gated     bool
	Onset     bool
	// Bands holds normalised spectrum bar heights in [0, 1], or nil when
	// the feed has no band reducer.
	Bands []float64
}

// Feed is an analysis.Sink that hands readings to a display goroutine over
// a buffered channel. A full channel drops the reading.
type Feed struct {
	ch      chan Reading
	bands   *analysis.SpectrumBands
	dropped atomic.Uint64
}

// NewFeed creates a feed holding up to size pending readings. When bands
// is non-nil every reading carries the reduced spectrum.
func NewFeed(size int, bands *analysis.SpectrumBands) *Feed {
	if size <= 0 {
		size = 1
	}
	return &Feed{ch: make(chan Reading, size), bands: bands}
}

// NewReading copies the display fields of r.
func NewReading(r analysis.Result) Reading {
	return Reading{
		Sequence:  r.Sequence,
		Frequency: r.Frequency,
		Note:      r.Note,
		Level:     r.Level,
		Gated:     r.Gated,
		Onset:     r.Onset,
	}
}

// SetBands attaches a band reducer. It must be called before the engine
// feeding f starts.
func (f *Feed) SetBands(bands *analysis.SpectrumBands) {
	f.bands = bands
}

// Consume implements analysis.Sink. It runs on the analysis goroutine.
func (f *Feed) Consume(r analysis.Result) {
	rd := NewReading(r)
	if f.bands != nil && r.Magnitudes != nil {
		f.bands.Update(r.Magnitudes)
		rd.Bands = make([]float64, len(f.bands.Bands()))
		f.bands.Normalized(rd.Bands)
	}
	select {
	case f.ch <- rd:
	default:
		f.dropped.Add(1)
	}
}

// C is the channel readings arrive on.
func (f *Feed) C() <-chan Reading { return f.ch }

// Dropped is the number of readings lost to a full channel.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

var _ analysis.Sink = (*Feed)(nil)

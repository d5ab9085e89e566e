// SPDX-License-Identifier: MIT

// Package transport publishes analysis results outside the process.
package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"tuner/internal/analysis"
	"tuner/internal/note"
)

// Transport sends processed data or events. Implementations are safe for
// concurrent use and must not block the caller for long.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message is the wire form of an analysis.Result. It owns all of its
// data, so it can outlive the Consume call that produced it.
type Message struct {
	Sequence  uint64    `json:"seq"`
	Timestamp int64     `json:"ts"`
	Frequency float64   `json:"frequency"`
	Note      note.Info `json:"note"`
	Display   string    `json:"display"`
	Gated     bool      `json:"gated"`
	Level     float64   `json:"level"`
	Onset     bool      `json:"onset"`
}

// NewMessage copies the scalar fields of r.
func NewMessage(r analysis.Result) Message {
	return Message{
		Sequence:  r.Sequence,
		Timestamp: r.Timestamp,
		Frequency: r.Frequency,
		Note:      r.Note,
		Display:   r.Note.String(),
		Gated:     r.Gated,
		Level:     r.Level,
		Onset:     r.Onset,
	}
}

// ResultSink feeds analysis results to a Transport, at most rate messages
// per second. Onsets always pass so a new pluck is never throttled away.
type ResultSink struct {
	t        Transport
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time

	sent      atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
}

// NewResultSink wraps t. A rate <= 0 forwards every result.
func NewResultSink(t Transport, rate float64) *ResultSink {
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	return &ResultSink{t: t, interval: interval, now: time.Now}
}

// Consume implements analysis.Sink.
func (s *ResultSink) Consume(r analysis.Result) {
	if !s.admit(r.Onset) {
		s.throttled.Add(1)
		return
	}
	if err := s.t.Send(NewMessage(r)); err != nil {
		s.failed.Add(1)
		return
	}
	s.sent.Add(1)
}

func (s *ResultSink) admit(force bool) bool {
	if s.interval == 0 {
		return true
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now
	return true
}

// Sent is the number of messages handed to the transport.
func (s *ResultSink) Sent() uint64 { return s.sent.Load() }

// Throttled is the number of results skipped by the rate limit.
func (s *ResultSink) Throttled() uint64 { return s.throttled.Load() }

// Failed is the number of sends the transport rejected.
func (s *ResultSink) Failed() uint64 { return s.failed.Load() }

var _ analysis.Sink = (*ResultSink)(nil)

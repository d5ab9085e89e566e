// SPDX-License-Identifier: MIT

// Package observe provides the tuner's OpenTelemetry metrics and the
// Prometheus bridge that serves them on /metrics.
//
// Tests should build Metrics with NewMetrics and a MeterProvider backed by
// a ManualReader to avoid cross-test pollution.
package observe

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tuner/internal/analysis"
	"tuner/internal/queue"
)

// meterName is the instrumentation scope of every tuner metric.
const meterName = "tuner"

// cycleBuckets are in seconds. A 2048 frame at 44.1 kHz leaves ~46 ms per
// cycle; anything near that is an overrun.
var cycleBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// centsBuckets cover the absolute detune, 0 to 50 cents.
var centsBuckets = []float64{1, 2, 5, 10, 20, 30, 40, 50}

// Metrics holds all metric instruments. Everything here is safe for
// concurrent use.
type Metrics struct {
	// CycleDuration tracks the time of one analysis cycle.
	CycleDuration metric.Float64Histogram

	// Results counts published results by outcome: voiced, unvoiced or
	// gated.
	Results metric.Int64Counter

	// Onsets counts detected plucks.
	Onsets metric.Int64Counter

	// Detune tracks the absolute cents deviation of voiced results.
	Detune metric.Float64Histogram

	meter metric.Meter

	voiced   metric.MeasurementOption
	unvoiced metric.MeasurementOption
	gated    metric.MeasurementOption
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{
		meter:    m,
		voiced:   outcome("voiced"),
		unvoiced: outcome("unvoiced"),
		gated:    outcome("gated"),
	}

	if met.CycleDuration, err = m.Float64Histogram("tuner.analysis.cycle.duration",
		metric.WithDescription("Time spent analysing one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Results, err = m.Int64Counter("tuner.analysis.results",
		metric.WithDescription("Results published, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Onsets, err = m.Int64Counter("tuner.analysis.onsets",
		metric.WithDescription("Note onsets detected."),
	); err != nil {
		return nil, err
	}
	if met.Detune, err = m.Float64Histogram("tuner.note.detune",
		metric.WithDescription("Absolute deviation from the nearest note."),
		metric.WithUnit("{cent}"),
		metric.WithExplicitBucketBoundaries(centsBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func outcome(v string) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", v)))
}

// ObserveCycle records one cycle duration. Pass it to
// analysis.Engine.ObserveCycles.
func (m *Metrics) ObserveCycle(d time.Duration) {
	m.CycleDuration.Record(context.Background(), d.Seconds())
}

// Consume implements analysis.Sink.
func (m *Metrics) Consume(r analysis.Result) {
	ctx := context.Background()
	switch {
	case r.Gated:
		m.Results.Add(ctx, 1, m.gated)
	case r.Voiced():
		m.Results.Add(ctx, 1, m.voiced)
		m.Detune.Record(ctx, math.Abs(r.Note.Cents))
	default:
		m.Results.Add(ctx, 1, m.unvoiced)
	}
	if r.Onset {
		m.Onsets.Add(ctx, 1)
	}
}

// QueueStats is satisfied by *queue.FrameQueue.
type QueueStats interface {
	Stats() queue.Stats
}

// RegisterQueue exports the frame queue counters, read at collection time.
func (m *Metrics) RegisterQueue(q QueueStats) (metric.Registration, error) {
	pushed, err := m.meter.Int64ObservableCounter("tuner.queue.pushed",
		metric.WithDescription("Frames accepted by the frame queue."))
	if err != nil {
		return nil, err
	}
	dropped, err := m.meter.Int64ObservableCounter("tuner.queue.dropped",
		metric.WithDescription("Frames dropped because the queue was full or closed."))
	if err != nil {
		return nil, err
	}
	popped, err := m.meter.Int64ObservableCounter("tuner.queue.popped",
		metric.WithDescription("Frames taken by the analysis loop."))
	if err != nil {
		return nil, err
	}
	depth, err := m.meter.Int64ObservableGauge("tuner.queue.depth",
		metric.WithDescription("Frames waiting in the queue."))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := q.Stats()
		o.ObserveInt64(pushed, int64(s.Pushed))
		o.ObserveInt64(dropped, int64(s.Dropped))
		o.ObserveInt64(popped, int64(s.Popped))
		o.ObserveInt64(depth, int64(s.Depth))
		return nil
	}, pushed, dropped, popped, depth)
}

// EstimatorStats is satisfied by *analysis.PitchEstimator.
type EstimatorStats interface {
	Cycles() uint64
	Skipped() uint64
	Rejected() uint64
}

// RegisterEstimator exports the pitch estimator counters.
func (m *Metrics) RegisterEstimator(e EstimatorStats) (metric.Registration, error) {
	cycles, err := m.meter.Int64ObservableCounter("tuner.estimator.cycles",
		metric.WithDescription("Frames that reached the estimator."))
	if err != nil {
		return nil, err
	}
	skipped, err := m.meter.Int64ObservableCounter("tuner.estimator.skipped",
		metric.WithDescription("Frames closed by the noise gate."))
	if err != nil {
		return nil, err
	}
	rejected, err := m.meter.Int64ObservableCounter("tuner.estimator.rejected",
		metric.WithDescription("Estimates outside the frequency range gate."))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(cycles, int64(e.Cycles()))
		o.ObserveInt64(skipped, int64(e.Skipped()))
		o.ObserveInt64(rejected, int64(e.Rejected()))
		return nil
	}, cycles, skipped, rejected)
}

// CaptureStats is satisfied by *audio.Capture.
type CaptureStats interface {
	Callbacks() uint64
	Overflows() uint64
	Rejected() uint64
}

// RegisterCapture exports the live capture counters.
func (m *Metrics) RegisterCapture(c CaptureStats) (metric.Registration, error) {
	callbacks, err := m.meter.Int64ObservableCounter("tuner.capture.callbacks",
		metric.WithDescription("Audio callbacks received from the device."))
	if err != nil {
		return nil, err
	}
	overflows, err := m.meter.Int64ObservableCounter("tuner.capture.overflows",
		metric.WithDescription("Callbacks flagged with an input overflow."))
	if err != nil {
		return nil, err
	}
	rejected, err := m.meter.Int64ObservableCounter("tuner.capture.rejected",
		metric.WithDescription("Frames the queue refused."))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(callbacks, int64(c.Callbacks()))
		o.ObserveInt64(overflows, int64(c.Overflows()))
		o.ObserveInt64(rejected, int64(c.Rejected()))
		return nil
	}, callbacks, overflows, rejected)
}

var _ analysis.Sink = (*Metrics)(nil)

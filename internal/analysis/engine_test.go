// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tuner/internal/queue"
	"tuner/pkg/utils"
)

const waitTimeout = 5 * time.Second

func newTestEngine(t *testing.T, sink Sink) (*Engine, *queue.FrameQueue) {
	t.Helper()
	q, err := queue.New(testFrameSize, queue.DefaultSlots)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(DefaultConfig(testSampleRate), q, sink)
	if err != nil {
		t.Fatal(err)
	}
	return e, q
}

func TestNewEngineValidation(t *testing.T) {
	q, _ := queue.New(testFrameSize, 4)

	tests := []struct {
		name   string
		mutate func(*Config)
		q      *queue.FrameQueue
	}{
		{"Frame not power of two", func(c *Config) { c.FrameSize = 2000 }, q},
		{"Padded not power of two", func(c *Config) { c.PaddedSize = 5000 }, q},
		{"Padded smaller than frame", func(c *Config) { c.PaddedSize = 1024 }, q},
		{"Zero sample rate", func(c *Config) { c.SampleRate = 0 }, q},
		{"Nil queue", func(c *Config) {}, nil},
		{"Queue frame mismatch", func(c *Config) { c.FrameSize = 1024 }, q},
		{"Bad pitch range", func(c *Config) { c.MinHz = 3000 }, q},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testSampleRate)
			tt.mutate(&cfg)
			if _, err := NewEngine(cfg, tt.q, nil); err == nil {
				t.Error("NewEngine() error = nil, want error")
			}
		})
	}
}

func TestEngineEstimatesSine(t *testing.T) {
	var rec utils.Recorder[Result]
	e, q := newTestEngine(t, SinkFunc(rec.Add))

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	frame := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	for range 4 {
		if !q.TryPush(frame) {
			t.Fatal("TryPush() rejected a frame on an empty queue")
		}
	}
	if !rec.WaitFor(4, waitTimeout) {
		t.Fatalf("got %d results, want 4", rec.Len())
	}

	for i, r := range rec.Values() {
		if r.Sequence != uint64(i+1) {
			t.Errorf("result %d: Sequence = %d, want %d", i, r.Sequence, i+1)
		}
		if r.Gated || !r.Voiced() {
			t.Fatalf("result %d: gated=%v voiced=%v", i, r.Gated, r.Voiced())
		}
		if math.Abs(r.Frequency-440) > testBinHz {
			t.Errorf("result %d: Frequency = %.2f, want about 440", i, r.Frequency)
		}
		if r.Note.Name != "A" || r.Note.Octave != 4 || r.Note.MIDI != 69 {
			t.Errorf("result %d: Note = %+v, want A4", i, r.Note)
		}
	}

	mags := make([]float64, e.SpectrumSize())
	if err := e.MagnitudesInto(mags); err != nil {
		t.Fatal(err)
	}
	peak := PeakBin(mags)
	if math.Abs(e.BinFrequency(peak)-440) > testBinHz {
		t.Errorf("latest spectrum peaks at %.2f Hz, want about 440", e.BinFrequency(peak))
	}
	if amp := mags[peak] * e.MagnitudeScale(); math.Abs(amp-0.5) > 0.05 {
		t.Errorf("scaled peak = %.3f, want about 0.5", amp)
	}
}

func TestEngineGatesSilence(t *testing.T) {
	var rec utils.Recorder[Result]
	e, q := newTestEngine(t, SinkFunc(rec.Add))

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	silence := make([]float32, testFrameSize)
	for range 3 {
		q.TryPush(silence)
	}
	if !rec.WaitFor(3, waitTimeout) {
		t.Fatalf("got %d results, want 3", rec.Len())
	}

	for i, r := range rec.Values() {
		if !r.Gated || r.Voiced() {
			t.Errorf("result %d: gated=%v voiced=%v, want gated and unvoiced", i, r.Gated, r.Voiced())
		}
		if r.Note.MIDI != -1 {
			t.Errorf("result %d: Note.MIDI = %d, want -1", i, r.Note.MIDI)
		}
	}
	if got := e.Estimator().Skipped(); got != 3 {
		t.Errorf("Skipped() = %d, want 3", got)
	}
}

func TestEngineLifecycle(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if e.State() != StateIdle {
		t.Fatalf("initial State() = %s, want idle", e.State())
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() on idle engine = %v, want nil", err)
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !e.Running() {
		t.Errorf("State() = %s after Start, want running", e.State())
	}
	if err := e.Start(ctx); !errors.Is(err, ErrNotIdle) {
		t.Errorf("second Start() = %v, want ErrNotIdle", err)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %s after Stop, want idle", e.State())
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done() not closed after Stop returned")
	}

	// Restart after a clean stop.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestEngineExitsWhenQueueCloses(t *testing.T) {
	var rec utils.Recorder[Result]
	e, q := newTestEngine(t, SinkFunc(rec.Add))

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	frame := utils.GenerateSineWave(testFrameSize, testSampleRate, 220, 0.5)
	q.TryPush(frame)
	q.TryPush(frame)
	q.Close()

	select {
	case <-e.Done():
	case <-time.After(waitTimeout):
		t.Fatal("engine did not exit after queue close")
	}
	if rec.Len() != 2 {
		t.Errorf("got %d results, want the 2 frames queued before close", rec.Len())
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %s, want idle", e.State())
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() after self exit = %v", err)
	}
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-e.Done():
	case <-time.After(waitTimeout):
		t.Fatal("engine did not exit after context cancel")
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %s, want idle", e.State())
	}
}

func TestEngineObserveCycles(t *testing.T) {
	var rec utils.Recorder[time.Duration]
	e, q := newTestEngine(t, nil)
	e.ObserveCycles(rec.Add)

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	q.TryPush(make([]float32, testFrameSize))
	if !rec.WaitFor(1, waitTimeout) {
		t.Fatal("cycle observer never called")
	}
	if e.Published() != 1 {
		t.Errorf("Published() = %d, want 1", e.Published())
	}
}

func TestEngineSpectrumProvider(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if e.SpectrumSize() != testPaddedSize/2 {
		t.Errorf("SpectrumSize() = %d, want %d", e.SpectrumSize(), testPaddedSize/2)
	}
	if err := e.MagnitudesInto(make([]float64, 10)); err == nil {
		t.Error("MagnitudesInto() with short slice: error = nil")
	}
	if got := e.BinFrequency(-1); got != 0 {
		t.Errorf("BinFrequency(-1) = %v, want 0", got)
	}
	if got := e.BinFrequency(testPaddedSize / 2); got != 0 {
		t.Errorf("BinFrequency(N/2) = %v, want 0", got)
	}
	if got := e.BinFrequency(10); math.Abs(got-10*testBinHz) > 1e-9 {
		t.Errorf("BinFrequency(10) = %v, want %v", got, 10*testBinHz)
	}
	if e.SampleRate() != testSampleRate {
		t.Errorf("SampleRate() = %v", e.SampleRate())
	}
}

func TestEngineProcessZeroAllocs(t *testing.T) {
	e, _ := newTestEngine(t, SinkFunc(func(Result) {}))
	copy(e.frame, utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5))

	allocs := testing.AllocsPerRun(50, e.process)
	if allocs != 0 {
		t.Errorf("process() allocated %.1f times per cycle, want 0", allocs)
	}
}

func BenchmarkEngineProcess(b *testing.B) {
	q, _ := queue.New(testFrameSize, queue.DefaultSlots)
	e, err := NewEngine(DefaultConfig(testSampleRate), q, nil)
	if err != nil {
		b.Fatal(err)
	}
	copy(e.frame, utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5))

	b.ReportAllocs()
	for b.Loop() {
		e.process()
	}
}

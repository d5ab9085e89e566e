// SPDX-License-Identifier: MIT

// Package analysis turns queued audio frames into pitch and note results.
//
// One Engine owns one analysis goroutine. Each cycle pops a frame, gates it,
// windows a private copy, transforms it, estimates the fundamental, maps it
// to a note and hands the Result to a Sink, all on that goroutine.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tuner/internal/fft"
	applog "tuner/internal/log"
	"tuner/internal/note"
	"tuner/internal/queue"
	"tuner/pkg/bitint"
)

// State is the engine lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrNotIdle = errors.New("analysis: engine is not idle")
)

// Onset detection defaults.
const (
	DefaultOnsetThreshold = 0.02
	DefaultOnsetRatio     = 2.0
)

// Config holds every engine parameter. Zero fields are not defaulted; start
// from DefaultConfig.
type Config struct {
	SampleRate float64
	FrameSize  int
	PaddedSize int

	Window  fft.WindowFunc
	Backend fft.Backend

	GateThreshold float64
	GateDisabled  bool

	RangeGate    bool
	MinHz        float64
	MaxHz        float64
	HPSHarmonics int

	// ReferencePitch is the A4 frequency used for note mapping.
	ReferencePitch float64
}

// DefaultConfig returns the standard tuner configuration at sampleRate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:     sampleRate,
		FrameSize:      2048,
		PaddedSize:     4096,
		Window:         fft.Hann,
		Backend:        fft.BackendRadix2,
		GateThreshold:  DefaultGateThreshold,
		RangeGate:      true,
		MinHz:          DefaultMinHz,
		MaxHz:          DefaultMaxHz,
		ReferencePitch: note.A4,
	}
}

// Validate checks the size invariants: both sizes are powers of two and the
// padded size is at least the frame size.
func (c Config) Validate() error {
	if !bitint.IsPowerOfTwo(c.FrameSize) {
		return fmt.Errorf("frame size must be a power of 2, got %d", c.FrameSize)
	}
	if !bitint.IsPowerOfTwo(c.PaddedSize) {
		return fmt.Errorf("padded size must be a power of 2, got %d", c.PaddedSize)
	}
	if c.PaddedSize < c.FrameSize {
		return fmt.Errorf("padded size %d is smaller than frame size %d", c.PaddedSize, c.FrameSize)
	}
	if !(c.SampleRate > 0) {
		return fmt.Errorf("sample rate must be positive, got %f", c.SampleRate)
	}
	return nil
}

// Engine drives one analysis cycle per queued frame.
type Engine struct {
	cfg       Config
	queue     *queue.FrameQueue
	sink      Sink
	transform fft.Transformer
	estimator *PitchEstimator
	onset     *OnsetDetector
	mapper    note.Mapper

	// Workspace owned by the analysis goroutine.
	frame    []float32
	windowed []float32
	spectrum []complex128
	coeffs   []float64
	magScale float64
	seq      uint64

	observe func(time.Duration)

	latestMu sync.RWMutex
	latest   []float64

	mu     sync.Mutex // serialises Start and Stop
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Uint64
}

// NewEngine validates cfg and preallocates every buffer the loop uses.
// The queue frame size must match cfg.FrameSize.
func NewEngine(cfg Config, q *queue.FrameQueue, sink Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, errors.New("analysis: nil frame queue")
	}
	if q.FrameSize() != cfg.FrameSize {
		return nil, fmt.Errorf("queue frame size %d does not match engine frame size %d", q.FrameSize(), cfg.FrameSize)
	}
	if sink == nil {
		sink = SinkFunc(func(Result) {})
	}

	transform, err := fft.NewTransformer(cfg.Backend, cfg.PaddedSize)
	if err != nil {
		return nil, err
	}

	gate := NewNoiseGate(cfg.GateThreshold)
	if cfg.GateDisabled {
		gate.Disable()
	}
	estimator, err := NewPitchEstimator(EstimatorConfig{
		SampleRate:   cfg.SampleRate,
		PaddedSize:   cfg.PaddedSize,
		RangeGate:    cfg.RangeGate,
		MinHz:        cfg.MinHz,
		MaxHz:        cfg.MaxHz,
		HPSHarmonics: cfg.HPSHarmonics,
	}, gate)
	if err != nil {
		return nil, err
	}

	coeffs := fft.NewWindow(cfg.Window, cfg.FrameSize)
	var gain float64
	for _, c := range coeffs {
		gain += c
	}

	applog.Infof("AnalysisEngine: Initializing (Frame: %d, Padded: %d, SampleRate: %.1f Hz, Window: %s, Backend: %s, HPS: %d)",
		cfg.FrameSize, cfg.PaddedSize, cfg.SampleRate, cfg.Window, cfg.Backend, cfg.HPSHarmonics)

	return &Engine{
		cfg:       cfg,
		queue:     q,
		sink:      sink,
		transform: transform,
		estimator: estimator,
		onset:     NewOnsetDetector(DefaultOnsetThreshold, DefaultOnsetRatio),
		mapper:    note.Mapper{A4: cfg.ReferencePitch},
		frame:     make([]float32, cfg.FrameSize),
		windowed:  make([]float32, cfg.FrameSize),
		spectrum:  make([]complex128, cfg.PaddedSize),
		coeffs:    coeffs,
		magScale:  2 / gain,
		latest:    make([]float64, cfg.PaddedSize/2),
	}, nil
}

// ObserveCycles registers fn to receive the duration of every analysis
// cycle. It must be called before Start.
func (e *Engine) ObserveCycles(fn func(time.Duration)) {
	e.observe = fn
}

// Start launches the analysis goroutine. It fails unless the engine is idle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("%w: %s", ErrNotIdle, e.State())
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.onset.Reset()

	go e.run(loopCtx, e.done)
	applog.Infof("AnalysisEngine: Started")
	return nil
}

// Stop asks the loop to exit after its current cycle and waits for it.
// Stopping an idle engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}
	applog.Debugf("AnalysisEngine: Stopping...")
	e.cancel()
	<-e.done
	e.state.Store(int32(StateIdle))
	applog.Infof("AnalysisEngine: Stopped after %d results (%d gated)", e.published.Load(), e.estimator.Skipped())
	return nil
}

// Done is closed when the current loop exits, either through Stop or
// because the queue was closed and drained. It is nil before the first
// Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// State returns the lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Running reports whether the loop is consuming frames.
func (e *Engine) Running() bool { return e.State() == StateRunning }

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		// Fails under Stop, which owns the Stopping to Idle transition.
		e.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))
		close(done)
	}()

	for ctx.Err() == nil {
		if err := e.queue.Pop(ctx, e.frame); err != nil {
			if errors.Is(err, queue.ErrClosed) {
				applog.Infof("AnalysisEngine: Input closed, analysis loop exiting")
			}
			return
		}
		e.process()
	}
}

// process runs one cycle over e.frame and publishes the result.
func (e *Engine) process() {
	start := time.Now()
	e.seq++

	level := RMS(e.frame)
	r := Result{
		Sequence:  e.seq,
		Timestamp: start.UnixNano(),
		Level:     level,
		Onset:     e.onset.Detect(level),
		Note:      note.Unvoiced,
	}

	if e.estimator.Gate(e.frame) {
		fft.ApplyWindow(e.windowed, e.frame, e.coeffs)
		e.transform.Transform(e.spectrum, e.windowed)
		r.Frequency = e.estimator.Estimate(e.spectrum)
		r.Note = e.mapper.FreqToNote(r.Frequency)
	} else {
		r.Gated = true
	}
	r.Magnitudes = e.estimator.Magnitudes()

	e.latestMu.Lock()
	copy(e.latest, r.Magnitudes)
	e.latestMu.Unlock()

	e.sink.Consume(r)
	e.published.Add(1)

	if e.observe != nil {
		e.observe(time.Since(start))
	}
}

// MagnitudesInto copies the latest magnitude spectrum into dst.
func (e *Engine) MagnitudesInto(dst []float64) error {
	e.latestMu.RLock()
	defer e.latestMu.RUnlock()
	if len(dst) != len(e.latest) {
		return fmt.Errorf("destination length %d does not match spectrum size %d", len(dst), len(e.latest))
	}
	copy(dst, e.latest)
	return nil
}

// SpectrumSize is the number of meaningful bins, PaddedSize/2.
func (e *Engine) SpectrumSize() int { return len(e.latest) }

// BinFrequency returns the centre frequency of bin k, or 0 when k is out of
// range.
func (e *Engine) BinFrequency(k int) float64 {
	if k < 0 || k >= len(e.latest) {
		return 0
	}
	return fft.BinFrequency(k, e.cfg.SampleRate, e.cfg.PaddedSize)
}

func (e *Engine) SampleRate() float64 { return e.cfg.SampleRate }

// MagnitudeScale converts raw magnitudes of this engine's windowed frames
// to linear peak amplitude, so a full-scale sine reads about 1.
func (e *Engine) MagnitudeScale() float64 { return e.magScale }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Estimator exposes the pitch estimator for its gate and counters.
func (e *Engine) Estimator() *PitchEstimator { return e.estimator }

// Published is the number of results handed to the sink.
func (e *Engine) Published() uint64 { return e.published.Load() }

var _ SpectrumProvider = (*Engine)(nil)

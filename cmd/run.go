// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"tuner/internal/analysis"
	"tuner/internal/audio"
	"tuner/internal/config"
	"tuner/internal/health"
	applog "tuner/internal/log"
	"tuner/internal/observe"
	"tuner/internal/queue"
	"tuner/internal/server"
	"tuner/internal/transport"
	"tuner/internal/transport/udp"
	"tuner/internal/tui"
	"tuner/pkg/build"
)

const (
	feedSize       = 16
	webSocketSlots = 64
	toneSampleRate = 44100
	shutdownWait   = 5 * time.Second
)

// Tone mix used by --tone: a plucked-string-like set of partials over a
// little noise.
var (
	toneHarmonics = []float64{0.5, 0.25, 0.12}
	toneNoise     = 0.005
	toneVolume    = 0.5
)

// pipeline is one run of source, queue, engine and sinks.
type pipeline struct {
	cfg     *config.Config
	source  audio.Source
	name    string
	capture *audio.Capture
	display string
	out     io.Writer
	logFile string
	// offline prints every result in order on the analysis goroutine.
	offline bool
}

// runLive analyses a device, or a synthetic tone with --tone, until ctx is
// done or the display quits.
func runLive(ctx context.Context, cfg *config.Config, opts *options, out io.Writer) error {
	p := &pipeline{
		cfg:     cfg,
		out:     out,
		display: resolveDisplay(cfg.Display.Mode),
		logFile: opts.logFile,
	}

	if opts.tone > 0 {
		rate := cfg.Audio.SampleRate
		if rate == 0 {
			rate = toneSampleRate
		}
		src, err := audio.NewToneSource(audio.ToneConfig{
			SampleRate: rate,
			FrameSize:  cfg.Audio.FrameSize,
			Frequency:  opts.tone,
			Harmonics:  toneHarmonics,
			Noise:      toneNoise,
			Volume:     toneVolume,
			Pacing:     audio.PaceRealtime,
		})
		if err != nil {
			return err
		}
		p.source = src
		p.name = fmt.Sprintf("tone %.2f Hz", opts.tone)
		return p.run(ctx)
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	capture, err := audio.NewCapture(audio.CaptureConfig{
		DeviceID:   cfg.Audio.InputDevice,
		DeviceHint: cfg.Audio.DeviceHint,
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		Channels:   cfg.Audio.InputChannels,
		Channel:    cfg.Audio.Channel,
		LowLatency: cfg.Audio.LowLatency,
	})
	if err != nil {
		return err
	}
	p.source = capture
	p.capture = capture
	p.name = capture.DeviceName()
	return p.run(ctx)
}

// runAnalyze prints the notes of a WAV file as fast as the engine goes.
func runAnalyze(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	src, err := audio.OpenWAV(path, cfg.Audio.FrameSize, cfg.Audio.Channel, audio.PaceBlocking)
	if err != nil {
		return err
	}
	defer src.Close()

	p := &pipeline{
		cfg:     cfg,
		source:  src,
		name:    path,
		display: config.DisplayLine,
		out:     out,
		offline: true,
	}
	return p.run(ctx)
}

// resolveDisplay picks the terminal UI when stdout is a terminal.
func resolveDisplay(mode string) string {
	if mode != config.DisplayAuto {
		return mode
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return config.DisplayTUI
	}
	return config.DisplayLine
}

func (p *pipeline) run(ctx context.Context) error {
	cfg := p.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.display == config.DisplayTUI {
		restore, err := redirectLogs(p.logFile)
		if err != nil {
			return err
		}
		defer restore()
	}

	ec, err := cfg.EngineConfig(p.source.SampleRate())
	if err != nil {
		return err
	}
	q, err := queue.New(ec.FrameSize, cfg.Audio.QueueSlots)
	if err != nil {
		return err
	}

	// Telemetry
	var mp metric.MeterProvider = otel.GetMeterProvider()
	var provider *observe.Provider
	if cfg.Transport.HTTPAddr != "" {
		info := build.GetBuildFlags()
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    info.Name,
			ServiceVersion: info.Version,
			Commit:         info.Commit,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownWait)
			defer scancel()
			if err := provider.Shutdown(sctx); err != nil {
				applog.Warnf("Observe: Shutdown failed: %v", err)
			}
		}()
		mp = provider.MeterProvider
	}
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return err
	}

	// Sinks
	sinks := analysis.MultiSink{metrics}

	var feed *tui.Feed
	switch {
	case p.offline:
		printer := tui.NewLinePrinter(p.out)
		printer.Newline = true
		sinks = append(sinks, analysis.SinkFunc(func(r analysis.Result) {
			if err := printer.Print(tui.NewReading(r)); err != nil {
				applog.Errorf("LinePrinter: %v", err)
			}
		}))
	case p.display == config.DisplayTUI || p.display == config.DisplayLine:
		feed = tui.NewFeed(feedSize, nil)
		sinks = append(sinks, feed)
	}

	var ws *transport.WebSocketTransport
	if cfg.Transport.HTTPAddr != "" {
		ws = transport.NewWebSocketTransport(webSocketSlots)
		defer ws.Close()
		sinks = append(sinks, transport.NewResultSink(ws, cfg.Transport.WebSocketRate))
	}
	if applog.GetLevel() == applog.LevelDebug {
		sinks = append(sinks, transport.NewResultSink(transport.NewLoggingTransport(), 0))
	}

	// Engine
	engine, err := analysis.NewEngine(ec, q, sinks)
	if err != nil {
		return err
	}
	engine.ObserveCycles(metrics.ObserveCycle)

	if feed != nil && cfg.Display.Visual && p.display == config.DisplayTUI {
		bands, err := analysis.NewSpectrumBands(cfg.Display.Bands, analysis.DefaultBandMinHz, analysis.DefaultBandMaxHz,
			ec.SampleRate, ec.PaddedSize, engine.MagnitudeScale(), cfg.Display.Smoothing)
		if err != nil {
			return err
		}
		feed.SetBands(bands)
	}

	regs, err := p.registerMetrics(metrics, q, engine)
	if err != nil {
		return err
	}
	defer func() {
		for _, reg := range regs {
			if err := reg.Unregister(); err != nil {
				applog.Debugf("Observe: Unregister failed: %v", err)
			}
		}
	}()

	var publisher *udp.UDPPublisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		if publisher, err = udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, engine); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := engine.Start(gctx); err != nil {
		return err
	}

	// The engine stops on its own once a finished source's queue drains.
	// Either way the rest of the pipeline follows it down.
	g.Go(func() error {
		select {
		case <-engine.Done():
		case <-gctx.Done():
		}
		err := engine.Stop()
		cancel()
		return err
	})

	g.Go(func() error {
		defer q.Close()
		if err := p.source.Run(gctx, q); err != nil {
			return fmt.Errorf("input %s: %w", p.name, err)
		}
		return nil
	})

	if feed != nil {
		g.Go(func() error {
			defer cancel()
			if p.display == config.DisplayTUI {
				return tui.RunTuner(gctx, feed.C(), tui.TunerOptions{
					Source: p.name,
					Gate:   engine.Estimator().NoiseGate(),
					Visual: cfg.Display.Visual,
				})
			}
			return tui.NewLinePrinter(p.out).Run(gctx, feed.C())
		})
	}

	if cfg.Transport.HTTPAddr != "" {
		srv := server.New(server.Config{
			Addr:      cfg.Transport.HTTPAddr,
			WebSocket: ws,
			Metrics:   provider.Handler(),
			Health:    health.New(health.Engine(engine), health.Input(q)),
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}

	applog.Infof("Tuner: Running on %s (display %s)", p.name, p.display)
	err = g.Wait()
	applog.Infof("Tuner: Stopped after %d results, %d frames dropped", engine.Published(), q.Dropped())
	return err
}

func (p *pipeline) registerMetrics(m *observe.Metrics, q *queue.FrameQueue, engine *analysis.Engine) ([]metric.Registration, error) {
	var regs []metric.Registration
	reg, err := m.RegisterQueue(q)
	if err != nil {
		return nil, err
	}
	regs = append(regs, reg)

	if reg, err = m.RegisterEstimator(engine.Estimator()); err != nil {
		return regs, err
	}
	regs = append(regs, reg)

	if p.capture != nil {
		if reg, err = m.RegisterCapture(p.capture); err != nil {
			return regs, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// redirectLogs keeps log lines off the terminal UI. They go to path when
// set and are discarded otherwise.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

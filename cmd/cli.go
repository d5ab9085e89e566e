// SPDX-License-Identifier: MIT

// Package cmd holds the tuner's command line: the live tuner, device
// listing and offline WAV analysis.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tuner/internal/audio"
	"tuner/internal/config"
	applog "tuner/internal/log"
	"tuner/internal/tui"
	"tuner/pkg/build"
)

// options holds flag values. Only flags the user set override the config
// file.
type options struct {
	configPath string
	logLevel   string
	verbose    bool
	logFile    string

	deviceID   int
	hint       string
	sampleRate float64
	channels   int
	channel    int
	lowLatency bool
	frameSize  int
	paddedSize int

	gate      float64
	noGate    bool
	hps       int
	reference float64
	backend   string

	tone    float64
	display string
	visual  bool
	http    string
	udp     string

	interactive bool
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return runLive(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := opts.load(cmd.Flags().Changed); err != nil {
				return err
			}
			return listDevices(cmd, opts.interactive)
		},
	}
	listCmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false,
		"Browse devices and pick a configuration")
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Print the detected notes of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(analyzeCmd)

	// General Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "",
		"Path to a YAML config file. Default searches config.yaml, tuner.yaml")
	pf.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn or error")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&opts.logFile, "log-file", "",
		"Write logs to this file. The terminal UI discards logs otherwise")

	// Analysis Configuration
	pf.IntVarP(&opts.frameSize, "frame-size", "b", config.DefaultFrameSize,
		"Samples per analysis frame, a power of 2")
	pf.IntVar(&opts.paddedSize, "padded-size", config.DefaultPaddedSize,
		"Transform length, a power of 2 >= frame size")
	pf.IntVar(&opts.channel, "channel", 0,
		"Zero-based input channel to analyse")
	pf.Float64Var(&opts.gate, "gate", config.DefaultGateThreshold,
		"Noise gate threshold, peak amplitude in [0, 1]")
	pf.BoolVar(&opts.noGate, "no-gate", false,
		"Analyse every frame regardless of level")
	pf.IntVar(&opts.hps, "hps", 0,
		"Harmonic product spectrum harmonics, 0 disables")
	pf.Float64Var(&opts.reference, "reference", config.DefaultReferencePitch,
		"Reference pitch of A4 in Hz")
	pf.StringVar(&opts.backend, "fft", config.DefaultFFTBackend,
		"FFT backend: radix2, radix2-precise or gonum")

	// Audio Device Configuration
	f := rootCmd.Flags()
	f.IntVarP(&opts.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	f.StringVar(&opts.hint, "hint", "",
		"Select the first input device whose name contains this text")
	f.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate in Hz, 0 uses the device default")
	f.IntVarP(&opts.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to open on the device")
	f.BoolVarP(&opts.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	f.Float64Var(&opts.tone, "tone", 0,
		"Analyse a synthetic tone of this frequency instead of a device")

	// Output Configuration
	f.StringVar(&opts.display, "display", config.DefaultDisplayMode,
		"Display: auto, tui, line or none")
	f.BoolVar(&opts.visual, "visual", false,
		"Show the spectrum bars")
	f.StringVar(&opts.http, "http", "",
		"Serve /ws, /metrics, /healthz and /readyz on this address")
	f.StringVar(&opts.udp, "udp", "",
		"Publish spectrum packets over UDP to this address")

	return rootCmd
}

// load reads the config file, applies the flags the user set and the log
// level, then validates the result.
func (o *options) load(changed func(string) bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	o.apply(cfg, changed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
	return cfg, nil
}

func (o *options) apply(cfg *config.Config, changed func(string) bool) {
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if o.verbose {
		cfg.Debug = true
	}

	if changed("device") {
		cfg.Audio.InputDevice = o.deviceID
	}
	if changed("hint") {
		cfg.Audio.DeviceHint = o.hint
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if changed("channels") {
		cfg.Audio.InputChannels = o.channels
	}
	if changed("channel") {
		cfg.Audio.Channel = o.channel
		cfg.Audio.InputChannels = max(cfg.Audio.InputChannels, o.channel+1)
	}
	if o.lowLatency {
		cfg.Audio.LowLatency = true
	}
	if changed("frame-size") {
		cfg.Audio.FrameSize = o.frameSize
		cfg.Audio.PaddedSize = max(cfg.Audio.PaddedSize, o.frameSize)
	}
	if changed("padded-size") {
		cfg.Audio.PaddedSize = o.paddedSize
	}

	if changed("gate") {
		cfg.Analysis.GateThreshold = o.gate
	}
	if o.noGate {
		cfg.Analysis.GateEnabled = false
	}
	if changed("hps") {
		cfg.Analysis.HPSHarmonics = o.hps
	}
	if changed("reference") {
		cfg.Analysis.ReferencePitch = o.reference
	}
	if changed("fft") {
		cfg.Analysis.FFTBackend = o.backend
	}

	if changed("display") {
		cfg.Display.Mode = o.display
	}
	if o.visual {
		cfg.Display.Visual = true
	}
	if changed("http") {
		cfg.Transport.HTTPAddr = o.http
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = o.udp != ""
		if o.udp != "" {
			cfg.Transport.UDPTargetAddress = o.udp
		}
	}
}

func listDevices(cmd *cobra.Command, interactive bool) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if !interactive {
		return audio.ListDevices(cmd.OutOrStdout())
	}

	sel, err := tui.RunDeviceBrowser()
	if err != nil {
		return err
	}
	if sel == nil {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s --device %d --sample-rate %.0f --channels %d --channel %d\n",
		cmd.Root().Name(), sel.Device.ID, sel.SampleRate, sel.Channel+1, sel.Channel)
	return nil
}

// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the tuner configuration.
const (
	DefaultLogLevel      = "info"
	DefaultDeviceID      = MinDeviceID // system default input
	DefaultSampleRate    = 0           // use the device default rate
	DefaultFrameSize     = 2048
	DefaultPaddedSize    = 4096
	DefaultInputChannels = 1
	DefaultQueueSlots    = 8

	DefaultGateThreshold  = 0.01
	DefaultMinHz          = 50.0
	DefaultMaxHz          = 2000.0
	DefaultWindow         = "hann"
	DefaultFFTBackend     = "radix2"
	DefaultReferencePitch = 440.0

	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultWebSocketRate    = 30.0

	DefaultDisplayMode = "auto"
	DefaultBands       = 48
	DefaultSmoothing   = 0.6

	MinDeviceID     = -1 // -1 represents system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxFrameSize    = 65536
	MinReference    = 400.0
	MaxReference    = 480.0
	MaxHPSHarmonics = 8
)

// Display modes.
const (
	DisplayAuto = "auto" // tui on a terminal, line printer otherwise
	DisplayTUI  = "tui"
	DisplayLine = "line"
	DisplayNone = "none"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Transport TransportConfig `yaml:"transport"`
	Display   DisplayConfig   `yaml:"display"`
}

// AudioConfig holds capture and framing settings.
type AudioConfig struct {
	InputDevice   int     `yaml:"input_device"`   // PortAudio device index, -1 for default.
	DeviceHint    string  `yaml:"device_hint"`    // Substring of the device name; wins over input_device.
	SampleRate    float64 `yaml:"sample_rate"`    // 0 uses the device default rate.
	FrameSize     int     `yaml:"frame_size"`     // Samples per analysis frame, power of 2.
	PaddedSize    int     `yaml:"padded_size"`    // Transform length, power of 2 >= frame_size.
	InputChannels int     `yaml:"input_channels"` // Channels opened on the device.
	Channel       int     `yaml:"channel"`        // Zero-based channel analysed.
	QueueSlots    int     `yaml:"queue_slots"`    // Frame queue depth, power of 2.
	LowLatency    bool    `yaml:"low_latency"`    // Request the device's low input latency.
}

// AnalysisConfig holds pitch estimation settings.
type AnalysisConfig struct {
	GateEnabled    bool    `yaml:"gate_enabled"`
	GateThreshold  float64 `yaml:"gate_threshold"` // Peak amplitude in [0, 1].
	RangeGate      bool    `yaml:"range_gate"`
	MinHz          float64 `yaml:"min_hz"`
	MaxHz          float64 `yaml:"max_hz"`
	HPSHarmonics   int     `yaml:"hps_harmonics"` // 0 disables the harmonic product spectrum.
	Window         string  `yaml:"window"`
	FFTBackend     string  `yaml:"fft_backend"`     // "radix2", "radix2-precise" or "gonum".
	ReferencePitch float64 `yaml:"reference_pitch"` // A4 in Hz.
}

// TransportConfig holds settings for publishing results off the process.
type TransportConfig struct {
	HTTPAddr         string        `yaml:"http_addr"`          // Serves /ws, /metrics, /healthz and /readyz. Empty disables.
	WebSocketRate    float64       `yaml:"websocket_rate"`     // Max results per second per broadcast, 0 for unlimited.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending spectrum data over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// DisplayConfig holds terminal output settings.
type DisplayConfig struct {
	Mode      string  `yaml:"mode"`      // auto, tui, line or none.
	Visual    bool    `yaml:"visual"`    // Show the spectrum bars.
	Bands     int     `yaml:"bands"`     // Spectrum bar count.
	Smoothing float64 `yaml:"smoothing"` // Bar smoothing in [0, 1).
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:   DefaultDeviceID,
			SampleRate:    DefaultSampleRate,
			FrameSize:     DefaultFrameSize,
			PaddedSize:    DefaultPaddedSize,
			InputChannels: DefaultInputChannels,
			QueueSlots:    DefaultQueueSlots,
		},
		Analysis: AnalysisConfig{
			GateEnabled:    true,
			GateThreshold:  DefaultGateThreshold,
			RangeGate:      true,
			MinHz:          DefaultMinHz,
			MaxHz:          DefaultMaxHz,
			Window:         DefaultWindow,
			FFTBackend:     DefaultFFTBackend,
			ReferencePitch: DefaultReferencePitch,
		},
		Transport: TransportConfig{
			WebSocketRate:    DefaultWebSocketRate,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Display: DisplayConfig{
			Mode:      DefaultDisplayMode,
			Bands:     DefaultBands,
			Smoothing: DefaultSmoothing,
		},
	}
}

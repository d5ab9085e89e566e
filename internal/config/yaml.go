// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tuner/internal/fft"
	applog "tuner/internal/log"
	"tuner/pkg/bitint"
)

// candidates are searched in order when LoadConfig gets an empty path.
var candidates = []string{
	"config.yaml",
	"tuner.yaml",
}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches the default locations and falls back to built-in
// defaults. Environment overrides are applied after the file, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and joins the problems found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		add("audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	}
	if a.SampleRate != 0 && (a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate) {
		add("audio.sample_rate must be 0 or within [%d, %d], got %g", MinSampleRate, MaxSampleRate, a.SampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FrameSize) || a.FrameSize > MaxFrameSize {
		add("audio.frame_size must be a power of 2 <= %d, got %d", MaxFrameSize, a.FrameSize)
	}
	if !bitint.IsPowerOfTwo(a.PaddedSize) || a.PaddedSize < a.FrameSize {
		add("audio.padded_size must be a power of 2 >= frame_size, got %d", a.PaddedSize)
	}
	if a.InputChannels < 1 {
		add("audio.input_channels must be >= 1, got %d", a.InputChannels)
	}
	if a.Channel < 0 || a.Channel >= a.InputChannels {
		add("audio.channel must be within [0, %d), got %d", a.InputChannels, a.Channel)
	}
	if !bitint.IsPowerOfTwo(a.QueueSlots) {
		add("audio.queue_slots must be a power of 2, got %d", a.QueueSlots)
	}

	an := c.Analysis
	if an.GateThreshold < 0 || an.GateThreshold > 1 {
		add("analysis.gate_threshold must be within [0, 1], got %g", an.GateThreshold)
	}
	if an.RangeGate && !(an.MinHz >= 0 && an.MinHz < an.MaxHz) {
		add("analysis.min_hz must be below analysis.max_hz, got [%g, %g]", an.MinHz, an.MaxHz)
	}
	if an.HPSHarmonics < 0 || an.HPSHarmonics > MaxHPSHarmonics {
		add("analysis.hps_harmonics must be within [0, %d], got %d", MaxHPSHarmonics, an.HPSHarmonics)
	}
	if _, err := fft.ParseWindowFunc(an.Window); err != nil {
		add("analysis.window: %w", err)
	}
	if _, err := fft.ParseBackend(an.FFTBackend); err != nil {
		add("analysis.fft_backend: %w", err)
	}
	if an.ReferencePitch < MinReference || an.ReferencePitch > MaxReference {
		add("analysis.reference_pitch must be within [%g, %g], got %g", MinReference, MaxReference, an.ReferencePitch)
	}

	t := c.Transport
	if t.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(t.HTTPAddr); err != nil {
			add("transport.http_addr %q: %w", t.HTTPAddr, err)
		}
	}
	if t.WebSocketRate < 0 {
		add("transport.websocket_rate must be >= 0, got %g", t.WebSocketRate)
	}
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			add("transport.udp_target_address %q appears invalid: %w", t.UDPTargetAddress, err)
		}
		if t.UDPSendInterval <= 0 {
			add("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	d := c.Display
	switch d.Mode {
	case DisplayAuto, DisplayTUI, DisplayLine, DisplayNone:
	default:
		add("display.mode %q is not one of auto, tui, line, none", d.Mode)
	}
	if d.Bands < 1 {
		add("display.bands must be >= 1, got %d", d.Bands)
	}
	if d.Smoothing < 0 || d.Smoothing >= 1 {
		add("display.smoothing must be within [0, 1), got %g", d.Smoothing)
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the loaded file.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("Config: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("Config: Overriding log_level from env: %s", val)
	}
	// ENV_DEVICE_HINT
	if val, ok := os.LookupEnv("ENV_DEVICE_HINT"); ok {
		cfg.Audio.DeviceHint = val
		applog.Infof("Config: Overriding audio.device_hint from env: %s", val)
	}
	// ENV_HTTP_ADDR
	if val, ok := os.LookupEnv("ENV_HTTP_ADDR"); ok {
		cfg.Transport.HTTPAddr = val
		applog.Infof("Config: Overriding transport.http_addr from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("Config: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Infof("Config: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"tuner/internal/config"
	"tuner/pkg/build"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestApplyOverridesOnlyChangedFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.DeviceHint = "from file"
	cfg.Analysis.ReferencePitch = 442

	opts := &options{
		deviceID:  3,
		hint:      "ignored",
		frameSize: 4096,
		reference: 440,
		udp:       "127.0.0.1:7000",
		visual:    true,
	}
	opts.apply(&cfg, changedSet("device", "frame-size", "udp"))

	if cfg.Audio.InputDevice != 3 {
		t.Errorf("InputDevice = %d, want 3", cfg.Audio.InputDevice)
	}
	if cfg.Audio.DeviceHint != "from file" {
		t.Errorf("DeviceHint = %q, want the file value", cfg.Audio.DeviceHint)
	}
	if cfg.Analysis.ReferencePitch != 442 {
		t.Errorf("ReferencePitch = %v, want the file value", cfg.Analysis.ReferencePitch)
	}
	if cfg.Audio.FrameSize != 4096 || cfg.Audio.PaddedSize != 4096 {
		t.Errorf("frame/padded = %d/%d, want 4096/4096", cfg.Audio.FrameSize, cfg.Audio.PaddedSize)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("udp = %v %q", cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress)
	}
	if !cfg.Display.Visual {
		t.Error("Visual not set")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestApplyChannelWidensInput(t *testing.T) {
	cfg := config.Default()
	opts := &options{channel: 1}
	opts.apply(&cfg, changedSet("channel"))
	if cfg.Audio.Channel != 1 || cfg.Audio.InputChannels != 2 {
		t.Errorf("channel %d of %d", cfg.Audio.Channel, cfg.Audio.InputChannels)
	}
}

func TestResolveDisplayExplicit(t *testing.T) {
	for _, mode := range []string{config.DisplayTUI, config.DisplayLine, config.DisplayNone} {
		if got := resolveDisplay(mode); got != mode {
			t.Errorf("resolveDisplay(%q) = %q", mode, got)
		}
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := build.GetBuildFlags().String(); !strings.Contains(out.String(), want) {
		t.Errorf("version output %q does not contain %q", out.String(), want)
	}
}

func TestRejectsInvalidFlags(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"analyze", "missing.wav", "--frame-size", "1000"})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "frame_size") {
		t.Errorf("err = %v, want a frame_size validation error", err)
	}
}

// writeTone writes n samples of a mono 16-bit sine at freq.
func writeTone(t *testing.T, freq float64, n int) string {
	t.Helper()
	const rate = 44100
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	for i := range n {
		buf.Data[i] = int(math.Round(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/rate)))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeWAV(t *testing.T) {
	path := writeTone(t, 440, 20*config.DefaultFrameSize)

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"analyze", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want one per frame:\n%s", len(lines), out.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "\tA4\t") {
			t.Errorf("line %q is not A4", line)
		}
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"analyze", filepath.Join(t.TempDir(), "none.wav")})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"warn", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	for _, hidden := range []string{"debug 1", "info 2"} {
		if strings.Contains(out, hidden) {
			t.Errorf("output contains %q below the level: %s", hidden, out)
		}
	}
	for _, shown := range []string{"level=WARN", "warn 3", "level=ERROR", "error 4"} {
		if !strings.Contains(out, shown) {
			t.Errorf("output missing %q: %s", shown, out)
		}
	}
}

func TestSetLevelDebugShowsEverything(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelDebug)

	if GetLevel() != LevelDebug {
		t.Fatalf("GetLevel() = %v, want DEBUG", GetLevel())
	}
	Debugf("Engine: frame %d", 7)
	if !strings.Contains(buf.String(), "level=DEBUG") || !strings.Contains(buf.String(), "Engine: frame 7") {
		t.Errorf("debug line missing: %s", buf.String())
	}
}

func TestFatalfAlwaysLogsAndExits(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelFatal)

	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Fatalf("cannot open %s", "device")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "level=FATAL") || !strings.Contains(buf.String(), "cannot open device") {
		t.Errorf("fatal line missing: %s", buf.String())
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" || LogLevel(42).String() != "UNKNOWN" {
		t.Error("unexpected LogLevel.String() output")
	}
}

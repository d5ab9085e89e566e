// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. Messages are formatted
// printf style and written through a log/slog text handler so they carry a
// timestamp and level key.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// slogLevel maps onto slog. Fatal sits above Error.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// --- Global Logger State ---

var (
	currentLevel atomic.Uint32
	levelVar     slog.LevelVar
	logger       atomic.Pointer[slog.Logger]

	// exit is swapped in tests.
	exit = os.Exit
)

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all log output to w. The terminal UI uses this to keep
// log lines from tearing the display.
func SetOutput(w io.Writer) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &levelVar,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl > slog.LevelError {
					return slog.String(slog.LevelKey, LevelFatal.String())
				}
			}
			return a
		},
	})
	logger.Store(slog.New(h))
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	levelVar.Set(level.slogLevel())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Logger returns the underlying structured logger for code that prefers
// key/value attributes.
func Logger() *slog.Logger {
	return logger.Load()
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func logf(level LogLevel, format string, v ...any) {
	if !shouldLog(level) && level != LevelFatal {
		return
	}
	logger.Load().Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, v...))
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { logf(LevelDebug, format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { logf(LevelInfo, format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { logf(LevelWarn, format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { logf(LevelError, format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	logf(LevelFatal, format, v...)
	exit(1)
}

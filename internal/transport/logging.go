// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"log/slog"

	applog "tuner/internal/log"
)

// LoggingTransport writes every message to the application logger at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a LoggingTransport on the shared logger.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	logger := applog.Logger()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	m, ok := data.(Message)
	if !ok {
		logger.Debug("LoggingTransport: Received", "data", data)
		return nil
	}
	if m.Gated {
		logger.Debug("LoggingTransport: Gated", "seq", m.Sequence, "level", m.Level)
		return nil
	}
	logger.Debug("LoggingTransport: Result",
		"seq", m.Sequence,
		"note", m.Display,
		"hz", m.Frequency,
		"cents", m.Note.Cents,
		"level", m.Level,
		"onset", m.Onset,
	)
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)

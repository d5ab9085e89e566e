// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"io"
)

// clearTail overwrites what a longer previous line left behind.
const clearTail = "\t                     "

// LinePrinter writes the tuner bar as plain text, for output that is not an
// interactive terminal.
type LinePrinter struct {
	w io.Writer
	// Newline ends every line with '\n' instead of redrawing in place
	// with '\r', and skips unvoiced readings.
	Newline bool
}

// NewLinePrinter creates a printer writing to w.
func NewLinePrinter(w io.Writer) *LinePrinter {
	return &LinePrinter{w: w}
}

// Print writes one reading.
func (p *LinePrinter) Print(rd Reading) error {
	if p.Newline {
		if !rd.Note.Voiced() {
			return nil
		}
		_, err := fmt.Fprintln(p.w, Line(rd.Note, rd.Frequency))
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s%s\r", Line(rd.Note, rd.Frequency), clearTail)
	return err
}

// Run prints readings until ctx is done or the channel is closed. Readings
// already buffered when ctx ends are still printed.
func (p *LinePrinter) Run(ctx context.Context, readings <-chan Reading) error {
	defer func() {
		if !p.Newline {
			fmt.Fprintln(p.w)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return p.drain(readings)
		case rd, ok := <-readings:
			if !ok {
				return nil
			}
			if err := p.Print(rd); err != nil {
				return fmt.Errorf("writing tuner line: %w", err)
			}
		}
	}
}

func (p *LinePrinter) drain(readings <-chan Reading) error {
	for {
		select {
		case rd, ok := <-readings:
			if !ok {
				return nil
			}
			if err := p.Print(rd); err != nil {
				return fmt.Errorf("writing tuner line: %w", err)
			}
		default:
			return nil
		}
	}
}

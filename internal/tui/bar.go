// SPDX-License-Identifier: MIT

// Package tui renders tuner results on a terminal: a bubbletea tuner view,
// a plain line printer for non-interactive output and a device browser.
package tui

import (
	"fmt"
	"strings"

	"tuner/internal/note"
)

// BarWidth is the width of the cents bar in columns.
const BarWidth = 50

// MarkerPosition maps a cents deviation onto a bar of width columns. The
// centre column is in tune and ±100 cents would reach the edges.
func MarkerPosition(cents float64, width int) int {
	center := width / 2
	pos := center + int(cents/100*(float64(width)/2))
	return max(0, min(width-1, pos))
}

// CentsBar draws the tuning bar: '-' fill, '|' at the centre and '*' at the
// marker. Unvoiced input draws the bare fill.
func CentsBar(info note.Info, width int) string {
	bar := []byte(strings.Repeat("-", width))
	if !info.Voiced() {
		return string(bar)
	}
	bar[width/2] = '|'
	bar[MarkerPosition(info.Cents, width)] = '*'
	return string(bar)
}

// Line formats one result for the line printer, e.g.
// "-------...|---*...\tA4\t440".
func Line(info note.Info, frequency float64) string {
	bar := CentsBar(info, BarWidth)
	if !info.Voiced() {
		return bar
	}
	return fmt.Sprintf("%s\t%s\t%.0f", bar, info, frequency)
}

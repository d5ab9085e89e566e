// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tuner/internal/analysis"
)

var (
	noteStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	inTuneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	closeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E8C547")).Bold(true)
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0533D")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
)

// Detune thresholds in cents for the note colour.
const (
	inTuneCents = 5.0
	closeCents  = 15.0

	gateStep     = 1.25
	spectrumRows = 8
)

type tunerKeys struct {
	Quit     key.Binding
	Visual   key.Binding
	GateUp   key.Binding
	GateDown key.Binding
	GateOff  key.Binding
}

func (k tunerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.GateUp, k.GateDown, k.GateOff, k.Visual, k.Quit}
}

func (k tunerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultTunerKeys = tunerKeys{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Visual:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "spectrum")),
	GateUp:   key.NewBinding(key.WithKeys("+", "=", "up"), key.WithHelp("+/-", "gate")),
	GateDown: key.NewBinding(key.WithKeys("-", "_", "down")),
	GateOff:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gate on/off")),
}

type readingMsg Reading

type feedClosedMsg struct{}

// TunerOptions configures the tuner view.
type TunerOptions struct {
	// Source names the input, e.g. the device name.
	Source string
	// Gate is adjusted from the keyboard when set.
	Gate *analysis.NoiseGate
	// Visual starts with the spectrum bars shown.
	Visual bool
}

// TunerModel is the bubbletea model of the tuner screen.
type TunerModel struct {
	readings <-chan Reading
	opts     TunerOptions
	keys     tunerKeys
	help     help.Model

	reading Reading
	have    bool
	visual  bool
}

// NewTunerModel creates a model fed from readings.
func NewTunerModel(readings <-chan Reading, opts TunerOptions) TunerModel {
	return TunerModel{
		readings: readings,
		opts:     opts,
		keys:     defaultTunerKeys,
		help:     help.New(),
		visual:   opts.Visual,
	}
}

func waitForReading(ch <-chan Reading) tea.Cmd {
	return func() tea.Msg {
		rd, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return readingMsg(rd)
	}
}

// Init starts listening for readings.
func (m TunerModel) Init() tea.Cmd {
	return waitForReading(m.readings)
}

// Update handles readings, resizes and keys.
func (m TunerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case readingMsg:
		m.reading = Reading(msg)
		m.have = true
		return m, waitForReading(m.readings)

	case feedClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Visual):
			m.visual = !m.visual
		case key.Matches(msg, m.keys.GateUp):
			if g := m.opts.Gate; g != nil {
				g.SetThreshold(max(g.Threshold(), 0.0001) * gateStep)
			}
		case key.Matches(msg, m.keys.GateDown):
			if g := m.opts.Gate; g != nil {
				g.SetThreshold(g.Threshold() / gateStep)
			}
		case key.Matches(msg, m.keys.GateOff):
			if g := m.opts.Gate; g != nil {
				if g.Enabled() {
					g.Disable()
				} else {
					g.Enable()
				}
			}
		}
	}
	return m, nil
}

// View renders the screen.
func (m TunerModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Tuner"))
	if m.opts.Source != "" {
		sb.WriteString(" ")
		sb.WriteString(infoStyle.Render(m.opts.Source))
	}
	sb.WriteString("\n\n")

	rd := m.reading
	switch {
	case !m.have:
		sb.WriteString(dimStyle.Render("Listening..."))
		sb.WriteString("\n\n")
		sb.WriteString(dimStyle.Render(CentsBar(rd.Note, BarWidth)))
	case rd.Note.Voiced():
		style := detuneStyle(rd.Note.Cents)
		sb.WriteString(style.Inherit(noteStyle).Render(rd.Note.String()))
		sb.WriteString(fmt.Sprintf("  %+6.1f cents  %8.2f Hz", rd.Note.Cents, rd.Frequency))
		sb.WriteString("\n\n")
		sb.WriteString(renderBar(rd.Note.Cents))
	default:
		sb.WriteString(dimStyle.Inherit(noteStyle).Render("-"))
		sb.WriteString("\n\n")
		sb.WriteString(dimStyle.Render(CentsBar(rd.Note, BarWidth)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(infoStyle.Render(m.statusLine()))
	sb.WriteString("\n")

	if m.visual {
		sb.WriteString("\n")
		if rd.Bands == nil {
			sb.WriteString(dimStyle.Render("spectrum unavailable"))
		} else {
			sb.WriteString(barStyle.Render(SpectrumView(rd.Bands, spectrumRows)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m TunerModel) statusLine() string {
	level := fmt.Sprintf("level %6.1f dBFS", LevelDB(m.reading.Level))
	g := m.opts.Gate
	if g == nil {
		return level
	}
	state := "on"
	if !g.Enabled() {
		state = "off"
	}
	return fmt.Sprintf("%s   gate %.4f (%s)", level, g.Threshold(), state)
}

func detuneStyle(cents float64) lipgloss.Style {
	switch a := math.Abs(cents); {
	case a < inTuneCents:
		return inTuneStyle
	case a < closeCents:
		return closeStyle
	default:
		return offStyle
	}
}

// renderBar colours the marker of the cents bar by detune.
func renderBar(cents float64) string {
	pos := MarkerPosition(cents, BarWidth)
	bar := []rune(strings.Repeat("-", BarWidth))
	bar[BarWidth/2] = '|'
	left, right := string(bar[:pos]), string(bar[pos+1:])
	return barStyle.Render(left) + detuneStyle(cents).Render("*") + barStyle.Render(right)
}

// LevelDB converts an RMS level to dBFS, floored at -100.
func LevelDB(level float64) float64 {
	if level <= 0 {
		return analysis.DefaultFloorDB
	}
	return max(20*math.Log10(level), analysis.DefaultFloorDB)
}

var partialBlocks = []rune(" ▁▂▃▄▅▆▇█")

// SpectrumView draws bar heights in [0, 1] as rows of block characters,
// top row first.
func SpectrumView(bands []float64, rows int) string {
	var sb strings.Builder
	for row := rows - 1; row >= 0; row-- {
		for _, v := range bands {
			h := max(0, min(1, v)) * float64(rows)
			switch {
			case h >= float64(row+1):
				sb.WriteRune(partialBlocks[8])
			case h > float64(row):
				sb.WriteRune(partialBlocks[int((h-float64(row))*8)])
			default:
				sb.WriteRune(' ')
			}
		}
		if row > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// RunTuner runs the tuner screen until the user quits, the feed closes or
// ctx is done. Cancellation is not an error.
func RunTuner(ctx context.Context, readings <-chan Reading, opts TunerOptions, progOpts ...tea.ProgramOption) error {
	progOpts = append([]tea.ProgramOption{tea.WithContext(ctx)}, progOpts...)
	p := tea.NewProgram(NewTunerModel(readings, opts), progOpts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tuner/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Common sample rates offered on the configuration screen.
var commonSampleRates = []float64{44100, 48000, 88200, 96000}

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyLeft   = key.NewBinding(key.WithKeys("left", "h"))
	keyRight  = key.NewBinding(key.WithKeys("right", "l"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyEscape = key.NewBinding(key.WithKeys("esc"))
)

// Selection is the device configuration chosen in the browser.
type Selection struct {
	Device     audio.Device
	SampleRate float64
	Channel    int
}

// DeviceListModel is the bubbletea model for browsing input devices.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	availableSampleRates []float64
	sampleRateIndex      int
	channel              int

	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a browser over the host's input devices.
func NewDeviceListModel() DeviceListModel {
	return newDeviceListModel(inputDevices)
}

func newDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch, activeScreen: ListScreen}
}

// inputDevices lists the devices a tuner can capture from.
func inputDevices() ([]audio.Device, error) {
	all, err := audio.HostDevices()
	if err != nil {
		return nil, err
	}
	inputs := all[:0]
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

// Init fetches the devices.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Update handles input and updates the model.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.devices) > 0 {
					m.openConfig()
				}
			}

		case ConfigScreen:
			device := m.devices[m.selectedIndex]
			switch {
			case key.Matches(msg, keyEscape):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, keyDown):
				if m.sampleRateIndex < len(m.availableSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, keyLeft):
				if m.channel > 0 {
					m.channel--
				}
			case key.Matches(msg, keyRight):
				if m.channel < device.MaxInputChannels-1 {
					m.channel++
				}
			case key.Matches(msg, keyEnter):
				m.selection = &Selection{
					Device:     device,
					SampleRate: m.availableSampleRates[m.sampleRateIndex],
					Channel:    m.channel,
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// openConfig switches to the configuration screen for the selected device,
// preselecting its default rate.
func (m *DeviceListModel) openConfig() {
	device := m.devices[m.selectedIndex]
	m.activeScreen = ConfigScreen
	m.channel = 0

	m.availableSampleRates = append([]float64(nil), commonSampleRates...)
	m.sampleRateIndex = -1
	for i, rate := range m.availableSampleRates {
		if rate == device.DefaultSampleRate {
			m.sampleRateIndex = i
			break
		}
	}
	if m.sampleRateIndex < 0 {
		m.availableSampleRates = append([]float64{device.DefaultSampleRate}, m.availableSampleRates...)
		m.sampleRateIndex = 0
	}
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Sample rate • ←/→: Channel • Enter: Use • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.DeviceType())
		deviceInfo += fmt.Sprintf("    Host API: %s\n", device.HostAPI)
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")
	for i, rate := range m.availableSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	fmt.Fprintf(&sb, "\nChannel: %d of %d\n", m.channel+1, device.MaxInputChannels)
	return sb.String()
}

// Selection returns the confirmed choice, or nil when the user quit.
func (m DeviceListModel) Selection() *Selection {
	return m.selection
}

// RunDeviceBrowser runs the browser and returns the chosen device
// configuration, or nil if the user quit without choosing.
func RunDeviceBrowser(opts ...tea.ProgramOption) (*Selection, error) {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(NewDeviceListModel(), opts...).Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(DeviceListModel); ok {
		return m.Selection(), nil
	}
	return nil, nil
}

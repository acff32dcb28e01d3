// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const refreshInterval = 250 * time.Millisecond

// Operator limits per mode, applied before the value reaches the shaper
var modeLimits = map[vesc.Mode]float64{
	vesc.ModeCurrent: 60,
	vesc.ModeBrake:   60,
	vesc.ModeDuty:    0.95,
	vesc.ModeRPM:     100000,
}

// Focus states
const (
	focusModeList = iota
	focusTargetInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// modeItem is a selectable command mode
type modeItem struct {
	mode vesc.Mode
}

// Implement list.Item interface
func (i modeItem) Title() string { return strings.ToUpper(i.mode.String()) }
func (i modeItem) Description() string {
	limit := modeLimits[i.mode]
	if unit := i.mode.Unit(); unit != "" {
		return fmt.Sprintf("±%g %s", limit, unit)
	}
	return fmt.Sprintf("±%g", limit)
}
func (i modeItem) FilterValue() string { return i.mode.String() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Mode selection
	modeList list.Model

	// Monitoring
	stats         vesc.Statistics
	events        eventLog
	lastTelemetry *vesc.Telemetry

	// Control
	targetInput  textinput.Model
	focusedField int
	armed        bool
	activeMode   vesc.Mode
	activeTarget float64
	output       float64

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connected      bool
	connectedAt    time.Time
	connectionLost bool
	sendFailing    bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlTelemetryMsg struct {
	telemetry        vesc.Telemetry
	validationErrors []vesc.ValidationError
}

type controlBatchMsg struct {
	messages []controlTelemetryMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

type connectFailedMsg struct {
	err     error
	retryIn time.Duration
}

type sendFailedMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	// Initialize text input for the target value
	ti := textinput.New()
	ti.Placeholder = "0"
	ti.CharLimit = 10
	ti.Width = 12

	// Initialize mode list
	items := make([]list.Item, len(vesc.Modes))
	for i, mode := range vesc.Modes {
		items[i] = modeItem{mode: mode}
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	modeList := list.New(items, delegate, 24, 10)
	modeList.Title = "Mode"
	modeList.SetShowStatusBar(false)
	modeList.SetShowHelp(false)
	modeList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		modeList:     modeList,
		stats:        *vesc.NewStatistics(),
		events:       newEventLog(100),
		targetInput:  ti,
		focusedField: focusModeList,
		activeMode:   connMgr.session.link.Mode(),
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		link := m.connMgr.session.link
		m.stats = link.Statistics()
		m.output = link.Output()
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, data := range msg.messages {
			m.processTelemetry(data)
		}

	case reconnectedMsg:
		m.connected = true
		m.connectionLost = false
		m.sendFailing = false
		m.connectedAt = time.Now()
		m.connInfo = msg.connInfo
		m.events.add("Connected to "+msg.connInfo, false)

	case connectionLostMsg:
		m.connected = false
		m.connectionLost = true
		m.synchronized = false
		m.armed = false
		m.events.add("Connection lost, output disarmed", true)

	case connectFailedMsg:
		m.connected = false
		m.events.addf(true, "%v (retry in %s)", msg.err, msg.retryIn)

	case sendFailedMsg:
		if !m.sendFailing {
			m.sendFailing = true
			m.events.addf(true, "Send failed: %v", msg.err)
		}
	}

	return m, nil
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.disarm()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.armed {
			m.disarm()
			m.events.add("Stopped", false)
		}
		return m, nil

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "s":
		if m.focusedField != focusTargetInput {
			if m.armed {
				m.disarm()
				m.events.add("Stopped", false)
			}
			return m, nil
		}

	case "up", "k", "down", "j":
		if m.focusedField == focusModeList {
			m.modeList, _ = m.modeList.Update(msg)
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focusedField == focusTargetInput {
		var cmd tea.Cmd
		m.targetInput, cmd = m.targetInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	m.modeList, _ = m.modeList.Update(msg)

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	maxFocus := focusButton

	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusTargetInput {
		m.targetInput.Focus()
	} else {
		m.targetInput.Blur()
	}

	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focusedField {
	case focusModeList:
		m.selectMode()

	case focusTargetInput:
		// Enter in the input updates the target if already armed
		if m.armed {
			m.arm()
		}

	case focusButton:
		if m.armed {
			m.disarm()
			m.events.add("Disarmed", false)
		} else {
			m.arm()
		}
	}

	return m, nil
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	status := m.connInfo
	switch {
	case m.connectionLost:
		status = styles.warn.Render("RECONNECTING...")
	case !m.connected:
		status = styles.warn.Render("CONNECTING...")
	}
	header := styles.title.Render("VESCLINK CONTROL") + " " +
		styles.dim.Render(fmt.Sprintf("| %s | q=quit Tab=switch Esc=stop", status))
	if m.connected {
		header += "\n " + styles.pair("Connected:", formatUptime(time.Since(m.connectedAt)))
	}

	const listWidth = 26
	listBox := styles.box
	if m.focusedField == focusModeList {
		listBox = styles.focusedBox
	}
	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		listBox.Width(listWidth).Render(m.modeList.View()),
		" ",
		styles.box.Width(m.width-listWidth-6).Render(m.controlPanel()))

	full := styles.box.Width(m.width - 4)
	return strings.Join([]string{
		header,
		panels,
		full.Render(m.statusLine()),
		full.Render(styles.label.Render("TELEMETRY") + "\n" + m.telemetrySummary()),
		m.events.render(8, m.width-4, "15:04:05.000"),
	}, "\n\n")
}

// withUnit appends the active mode's unit, if any
func (m controlModel) withUnit(s string) string {
	if unit := m.activeMode.Unit(); unit != "" {
		return s + " " + unit
	}
	return s
}

func (m controlModel) controlPanel() string {
	target := m.targetInput.View()
	if m.focusedField != focusTargetInput {
		val := m.targetInput.Value()
		if val == "" {
			val = m.targetInput.Placeholder
		}
		target = "[" + val + "]"
	}

	cfg := m.connMgr.session.link.ShaperConfig()
	lines := []string{
		styles.pair("Mode:", strings.ToUpper(m.activeMode.String())),
		styles.label.Render("Target:") + " " + m.withUnit(target),
		styles.pair("Output:", m.withUnit(fmt.Sprintf("%.3f", m.output))),
		styles.dim.Render(fmt.Sprintf("alpha %.2f  slew %g/s  deadband %.2f  send %s  idle-zero %s",
			cfg.FilterAlpha, cfg.MaxSlewPerSecond, cfg.DeadbandFraction, cfg.SendInterval, cfg.IdleZero)),
		"",
	}

	button, label := styles.button, "[ Arm ]"
	if m.focusedField == focusButton {
		button = styles.focusedButton
	}
	if m.armed {
		label = "[ Disarm ]"
		lines = append(lines, styles.bad.Render(fmt.Sprintf("ARMED %s %g", m.activeMode, m.activeTarget)))
	}
	return strings.Join(append(lines, button.Render(label)), "\n")
}

func (m controlModel) statusLine() string {
	return strings.Join([]string{
		styles.pair("Sent:", fmt.Sprintf("%d (%.1f/s)", m.stats.FramesSent, m.stats.SendRate)),
		styles.pair("Lines:", fmt.Sprint(m.stats.LinesParsed)),
		styles.counter("Errors:", m.stats.ErrorCount()),
		styles.pair("Rate:", fmt.Sprintf("%.1f lines/s", m.stats.LineRate)),
	}, "  ")
}

// Telemetry fields shown in the control view, in display order
var controlTelemetryFields = []string{
	"voltage", "erpm", "duty", "avg_input_current", "avg_motor_current", "temp_mosfet", "temp_motor", "fault_code",
}

func (m controlModel) telemetrySummary() string {
	if m.lastTelemetry == nil {
		return styles.dim.Render("No telemetry data")
	}
	return telemetryGrid(m.lastTelemetry, controlTelemetryFields, 4)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processTelemetry(msg controlTelemetryMsg) {
	if !m.synchronized {
		m.synchronized = true
		m.events.add("Receiving telemetry", false)
	}

	t := msg.telemetry
	m.lastTelemetry = &t

	for _, verr := range msg.validationErrors {
		m.events.addf(true, "%s: %s", verr.Type, verr.Message)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) selectMode() {
	item, ok := m.modeList.SelectedItem().(modeItem)
	if !ok || item.mode == m.activeMode {
		return
	}

	if m.armed {
		m.disarm()
	}
	m.connMgr.session.link.SetMode(item.mode)
	m.activeMode = item.mode
	m.events.addf(false, "Mode set to %s", item.mode)
}

func (m *controlModel) arm() {
	if !m.connected {
		m.events.add("Cannot arm: not connected", true)
		return
	}

	valueStr := m.targetInput.Value()
	if valueStr == "" {
		valueStr = m.targetInput.Placeholder
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		m.events.addf(true, "Invalid target value: %s", valueStr)
		return
	}

	limit := modeLimits[m.activeMode]
	if value < -limit || value > limit {
		m.events.addf(true, "%s target must be between %g and %g", m.activeMode, -limit, limit)
		return
	}

	m.connMgr.setCommand(true, value)
	m.armed = true
	m.activeTarget = value
	m.events.addf(false, "Armed %s at %g", m.activeMode, value)
}

func (m *controlModel) disarm() {
	m.connMgr.setCommand(false, 0)
	m.armed = false
	m.activeTarget = 0
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 8 {
		listHeight = 8
	}
	m.modeList.SetSize(24, listHeight)
}

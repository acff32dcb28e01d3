// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	tea "github.com/charmbracelet/bubbletea"
)

// model is the monitor view: link status, parser statistics and recent events
type model struct {
	session       *session
	statsInterval int
	showAll       bool
	stats         vesc.Statistics
	events        eventLog
	synchronized  bool
	state         vesc.LinkState
	connectedAt   time.Time
	width         int
	height        int
	quitting      bool
	lastTelemetry *vesc.Telemetry
}

type tickMsg time.Time

type telemetryMsg struct {
	telemetry        vesc.Telemetry
	validationErrors []vesc.ValidationError
}

type linkStateMsg struct {
	state vesc.LinkState
}

type connectResultMsg struct {
	err error
}

func initialModel(s *session, statsInterval int, showAll bool) model {
	return model{
		session:       s,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         *vesc.NewStatistics(),
		events:        newEventLog(100),
		state:         vesc.StateIdle,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen, connectCmd(m.session))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// connectCmd connects the session's link off the UI goroutine
func connectCmd(s *session) tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{err: s.connect(context.Background())}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		m.stats = m.session.link.Statistics()
		return m, tickCmd()

	case connectResultMsg:
		if msg.err != nil {
			m.events.addf(true, "Connect failed: %v", msg.err)
		}

	case linkStateMsg:
		m.state = msg.state
		switch msg.state {
		case vesc.StateConnected:
			m.connectedAt = time.Now()
			m.events.add("Connected to "+m.session.info, false)
		case vesc.StateDisconnected:
			m.synchronized = false
			m.events.add("Disconnected", true)
		}

	case telemetryMsg:
		m.onTelemetry(msg)
	}

	return m, nil
}

func (m *model) onTelemetry(msg telemetryMsg) {
	if !m.synchronized {
		m.synchronized = true
		m.events.add("First telemetry line received", false)
	}
	t := msg.telemetry
	m.lastTelemetry = &t

	for _, verr := range msg.validationErrors {
		m.events.addf(true, "%s: %s", verr.Type, verr.Message)
	}
	if len(msg.validationErrors) == 0 && m.showAll {
		m.events.add(vesc.FormatTelemetryLine(&t), false)
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	filter := "anomalies only"
	if m.showAll {
		filter = "all snapshots"
	}

	sections := []string{
		styles.title.Render("VESCLINK MONITOR") + "\n" +
			styles.dim.Render(fmt.Sprintf("%s | %s | q to quit", m.session.info, filter)),
		m.linkStatus(),
		styles.box.Render(m.statsPanel()),
	}
	if m.lastTelemetry != nil {
		sections = append(sections, styles.box.Render(telemetryGrid(m.lastTelemetry, nil, 2)))
	}

	rows := m.height - 24
	if rows < 5 {
		rows = 5
	}
	sections = append(sections, m.events.render(rows, m.width-4, "01/02/06 15:04:05.000"))

	return strings.Join(sections, "\n\n")
}

func (m model) linkStatus() string {
	switch {
	case m.state != vesc.StateConnected:
		return styles.warn.Render(fmt.Sprintf("⏳ Link %s", m.state))
	case !m.synchronized:
		return styles.warn.Render("⏳ Waiting for telemetry...")
	}
	return styles.value.Render("✓ Receiving telemetry") +
		styles.dim.Render(" (connected for "+formatUptime(time.Since(m.connectedAt))+")")
}

func (m model) statsPanel() string {
	st := m.stats
	lines := []string{
		strings.Join([]string{
			styles.pair("Lines:", fmt.Sprint(st.LinesParsed)),
			styles.pair("Notifications:", fmt.Sprintf("%d (%d bytes)", st.Notifications, st.NotifyBytes)),
			styles.counter("Errors:", st.ErrorCount()),
		}, "   "),
	}

	if st.LinesTruncated+st.InvalidValues+st.MalformedTokens+st.UnknownKeys > 0 {
		lines = append(lines, styles.counter("Truncated:", st.LinesTruncated)+styles.dim.Render(fmt.Sprintf(
			" invalid %d, malformed %d, unknown %d", st.InvalidValues, st.MalformedTokens, st.UnknownKeys)))
	}
	if st.Anomalies > 0 {
		lines = append(lines, styles.label.Render("Anomalous:")+" "+styles.warn.Render(fmt.Sprint(st.Anomalies))+
			styles.dim.Render(fmt.Sprintf(" voltage %d, duty %d, erpm %d, temp %d, faults %d",
				st.VoltageOOR, st.DutyOOR, st.HighERPM, st.TempOOR, st.Faults)))
	}

	errRate := styles.value.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errRate = styles.bad.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	lines = append(lines, styles.pair("Line Rate:", fmt.Sprintf("%.1f lines/s", st.LineRate))+"   "+
		styles.label.Render("Error Rate:")+" "+errRate)

	return strings.Join(lines, "\n")
}

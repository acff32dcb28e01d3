// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/charmbracelet/lipgloss"
)

// palette is the lipgloss style set shared by the monitor and control views
type palette struct {
	title         lipgloss.Style
	dim           lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	bad           lipgloss.Style
	warn          lipgloss.Style
	box           lipgloss.Style
	focusedBox    lipgloss.Style
	button        lipgloss.Style
	focusedButton lipgloss.Style
}

func newPalette() palette {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return palette{
		title:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1),
		dim:           lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		bad:           lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warn:          lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:           box,
		focusedBox:    box.BorderForeground(lipgloss.Color("12")),
		button:        button,
		focusedButton: button.Background(lipgloss.Color("10")),
	}
}

var styles = newPalette()

// pair renders a label followed by its value
func (p palette) pair(label, value string) string {
	return p.label.Render(label) + " " + p.value.Render(value)
}

// counter renders n, highlighted when non-zero
func (p palette) counter(label string, n uint64) string {
	if n > 0 {
		return p.label.Render(label) + " " + p.bad.Render(fmt.Sprintf("%d", n))
	}
	return p.pair(label, "0")
}

// ============================================================
// Event log
// ============================================================

type logEntry struct {
	at      time.Time
	message string
	isError bool
}

// eventLog keeps the most recent events for display
type eventLog struct {
	entries []logEntry
	limit   int
}

func newEventLog(limit int) eventLog {
	return eventLog{limit: limit}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, logEntry{at: time.Now(), message: message, isError: isError})
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

func (l *eventLog) addf(isError bool, format string, args ...interface{}) {
	l.add(fmt.Sprintf(format, args...), isError)
}

// last returns the newest entry, or the zero entry when empty
func (l eventLog) last() logEntry {
	if len(l.entries) == 0 {
		return logEntry{}
	}
	return l.entries[len(l.entries)-1]
}

// render draws the newest rows entries in a box of the given width
func (l eventLog) render(rows, width int, layout string) string {
	if len(l.entries) == 0 {
		return styles.box.Width(width).Render(styles.dim.Render("  (no events yet)"))
	}

	start := len(l.entries) - rows
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(l.entries)-start)
	for _, e := range l.entries[start:] {
		mark := styles.warn.Render("ℹ")
		text := e.message
		if e.isError {
			mark = styles.bad.Render("✗")
			text = styles.bad.Render(text)
		}
		lines = append(lines, styles.dim.Render(e.at.Format(layout))+" "+mark+" "+text)
	}
	return styles.box.Width(width).Render(strings.Join(lines, "\n"))
}

// ============================================================
// Telemetry
// ============================================================

// telemetryGrid renders the named set fields of a snapshot, perRow per line.
// An empty names list renders every field.
func telemetryGrid(t *vesc.Telemetry, names []string, perRow int) string {
	if len(names) == 0 {
		names = vesc.FieldNames()
	}

	var cells []string
	for _, name := range names {
		if v, ok := t.Field(name); ok && vesc.IsSet(v) {
			cells = append(cells, styles.pair(name+":", vesc.FormatFieldValue(name, v)))
		}
	}
	if len(cells) == 0 {
		return styles.dim.Render("(no fields)")
	}

	var rows []string
	for i := 0; i < len(cells); i += perRow {
		end := i + perRow
		if end > len(cells) {
			end = len(cells)
		}
		rows = append(rows, strings.Join(cells[i:end], "   "))
	}
	return strings.Join(rows, "\n")
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	total := int64(d / time.Second)
	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	var parts []string
	for _, u := range units {
		n := total / u.size
		total %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"strings"
)

// FormatPacket formats a decoded frame into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp().Format("15:04:05.000")
	form := "short"
	if p.IsLong() {
		form = "long"
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d %s crc=0x%04X\n",
		timestamp, FormatCommandID(p.CommandID()), p.CommandID(), p.Length(), form, p.CRC())

	if cmd, err := ParseCommand(p.Payload()); err == nil {
		result += FormatCommand(cmd)
	} else if p.Length() > 0 {
		result += "  Payload: " + FormatHex(p.Payload()) + "\n"
	}

	return result
}

// FormatCommand formats a decoded motor command
func FormatCommand(c Command) string {
	switch c.ID {
	case CommSetCurrent:
		return fmt.Sprintf("  Current: %.3f A (raw %d)\n", c.Value, c.Raw)
	case CommSetCurrentBrake:
		return fmt.Sprintf("  Brake Current: %.3f A (raw %d)\n", c.Value, c.Raw)
	case CommSetDuty:
		return fmt.Sprintf("  Duty: %.5f (raw %d)\n", c.Value, c.Raw)
	case CommSetRPM:
		return fmt.Sprintf("  ERPM: %d\n", c.Raw)
	}
	return fmt.Sprintf("  Value: %d\n", c.Raw)
}

// FormatCommandID returns the human-readable name for a command ID
func FormatCommandID(id uint8) string {
	switch id {
	case CommSetDuty:
		return "SET_DUTY"
	case CommSetCurrent:
		return "SET_CURRENT"
	case CommSetCurrentBrake:
		return "SET_CURRENT_BRAKE"
	case CommSetRPM:
		return "SET_RPM"
	default:
		return "UNKNOWN"
	}
}

// FormatFaultCode returns the firmware name of a fault code
func FormatFaultCode(code int) string {
	names := []string{
		"NONE",
		"OVER_VOLTAGE",
		"UNDER_VOLTAGE",
		"DRV",
		"ABS_OVER_CURRENT",
		"OVER_TEMP_FET",
		"OVER_TEMP_MOTOR",
		"GATE_DRIVER_OVER_VOLTAGE",
		"GATE_DRIVER_UNDER_VOLTAGE",
		"MCU_UNDER_VOLTAGE",
		"BOOTING_FROM_WATCHDOG_RESET",
	}
	if code >= 0 && code < len(names) {
		return names[code]
	}
	return "UNKNOWN"
}

// FormatHex formats bytes as space separated hex
func FormatHex(data []byte) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	return s.String()
}

// FormatTelemetry formats the set fields of a snapshot, one per line
func FormatTelemetry(t *Telemetry) string {
	timestamp := t.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] TELEMETRY fields=%d\n", timestamp, t.SetCount())

	for _, name := range FieldNames() {
		v, _ := t.Field(name)
		if !IsSet(v) {
			continue
		}
		result += fmt.Sprintf("  %-20s %s\n", name+":", FormatFieldValue(name, v))
	}

	return result
}

// FormatTelemetryLine formats the set fields of a snapshot on a single line
func FormatTelemetryLine(t *Telemetry) string {
	parts := []string{}
	for _, name := range FieldNames() {
		v, _ := t.Field(name)
		if IsSet(v) {
			parts = append(parts, fmt.Sprintf("%s=%s", name, FormatFieldValue(name, v)))
		}
	}
	if len(parts) == 0 {
		return "(no fields)"
	}
	return strings.Join(parts, " ")
}

// FormatFieldValue formats a field value with its unit
func FormatFieldValue(name string, v float64) string {
	switch name {
	case "voltage":
		return fmt.Sprintf("%.2f V", v)
	case "erpm", "tachometer", "tachometer_abs", "controller_id":
		return fmt.Sprintf("%.0f", v)
	case "duty":
		return fmt.Sprintf("%.1f%%", v*100)
	case "avg_input_current", "avg_motor_current", "current_in", "current_motor":
		return fmt.Sprintf("%.2f A", v)
	case "temp_mosfet", "temp_motor", "temp_mos_1", "temp_mos_2", "temp_mos_3", "temp_pcb":
		return fmt.Sprintf("%.1f°C", v)
	case "watt_hours", "watt_hours_charged", "battery_wh":
		return fmt.Sprintf("%.2f Wh", v)
	case "amp_hours", "amp_hours_charged":
		return fmt.Sprintf("%.3f Ah", v)
	case "speed_kmh":
		return fmt.Sprintf("%.1f km/h", v)
	case "battery_level":
		return fmt.Sprintf("%.0f%%", v*100)
	case "fault_code":
		return fmt.Sprintf("%s (%d)", FormatFaultCode(int(v)), int(v))
	}
	return fmt.Sprintf("%g", v)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"math"
	"time"
)

// Telemetry is one parsed sample of the controller's operating parameters.
// Fields not present in the source line hold NaN; use IsSet to test them.
type Telemetry struct {
	Voltage         float64
	ERPM            float64
	Duty            float64
	AvgInputCurrent float64
	AvgMotorCurrent float64
	TempMosfet      float64
	TempMotor       float64

	CurrentIn        float64
	CurrentMotor     float64
	WattHours        float64
	WattHoursCharged float64
	AmpHours         float64
	AmpHoursCharged  float64
	SpeedKmh         float64
	Position         float64
	Tachometer       float64
	TachometerAbs    float64
	TempMos1         float64
	TempMos2         float64
	TempMos3         float64
	TempPCB          float64
	BatteryLevel     float64
	BatteryWh        float64
	FaultCode        float64
	ControllerID     float64
	PIDPos           float64

	Timestamp time.Time
}

// telemetryField binds a canonical field name to its storage
type telemetryField struct {
	name string
	ptr  func(t *Telemetry) *float64
}

// telemetryFields lists every field in display order
var telemetryFields = []telemetryField{
	{"voltage", func(t *Telemetry) *float64 { return &t.Voltage }},
	{"erpm", func(t *Telemetry) *float64 { return &t.ERPM }},
	{"duty", func(t *Telemetry) *float64 { return &t.Duty }},
	{"avg_input_current", func(t *Telemetry) *float64 { return &t.AvgInputCurrent }},
	{"avg_motor_current", func(t *Telemetry) *float64 { return &t.AvgMotorCurrent }},
	{"temp_mosfet", func(t *Telemetry) *float64 { return &t.TempMosfet }},
	{"temp_motor", func(t *Telemetry) *float64 { return &t.TempMotor }},
	{"current_in", func(t *Telemetry) *float64 { return &t.CurrentIn }},
	{"current_motor", func(t *Telemetry) *float64 { return &t.CurrentMotor }},
	{"watt_hours", func(t *Telemetry) *float64 { return &t.WattHours }},
	{"watt_hours_charged", func(t *Telemetry) *float64 { return &t.WattHoursCharged }},
	{"amp_hours", func(t *Telemetry) *float64 { return &t.AmpHours }},
	{"amp_hours_charged", func(t *Telemetry) *float64 { return &t.AmpHoursCharged }},
	{"speed_kmh", func(t *Telemetry) *float64 { return &t.SpeedKmh }},
	{"position", func(t *Telemetry) *float64 { return &t.Position }},
	{"tachometer", func(t *Telemetry) *float64 { return &t.Tachometer }},
	{"tachometer_abs", func(t *Telemetry) *float64 { return &t.TachometerAbs }},
	{"temp_mos_1", func(t *Telemetry) *float64 { return &t.TempMos1 }},
	{"temp_mos_2", func(t *Telemetry) *float64 { return &t.TempMos2 }},
	{"temp_mos_3", func(t *Telemetry) *float64 { return &t.TempMos3 }},
	{"temp_pcb", func(t *Telemetry) *float64 { return &t.TempPCB }},
	{"battery_level", func(t *Telemetry) *float64 { return &t.BatteryLevel }},
	{"battery_wh", func(t *Telemetry) *float64 { return &t.BatteryWh }},
	{"fault_code", func(t *Telemetry) *float64 { return &t.FaultCode }},
	{"controller_id", func(t *Telemetry) *float64 { return &t.ControllerID }},
	{"pid_pos", func(t *Telemetry) *float64 { return &t.PIDPos }},
}

// NewTelemetry returns a snapshot with every field unset
func NewTelemetry(timestamp time.Time) Telemetry {
	t := Telemetry{Timestamp: timestamp}
	for _, f := range telemetryFields {
		*f.ptr(&t) = math.NaN()
	}
	return t
}

// IsSet reports whether a field value was present in the parsed line
func IsSet(v float64) bool {
	return !math.IsNaN(v)
}

// FieldNames returns the canonical field names in display order
func FieldNames() []string {
	names := make([]string, len(telemetryFields))
	for i, f := range telemetryFields {
		names[i] = f.name
	}
	return names
}

// Fields returns the set fields keyed by canonical name
func (t *Telemetry) Fields() map[string]float64 {
	fields := make(map[string]float64)
	for _, f := range telemetryFields {
		if v := *f.ptr(t); IsSet(v) {
			fields[f.name] = v
		}
	}
	return fields
}

// Field returns a field by canonical name
func (t *Telemetry) Field(name string) (float64, bool) {
	for _, f := range telemetryFields {
		if f.name == name {
			return *f.ptr(t), true
		}
	}
	return math.NaN(), false
}

// SetField sets a field by canonical name
func (t *Telemetry) SetField(name string, v float64) bool {
	for _, f := range telemetryFields {
		if f.name == name {
			*f.ptr(t) = v
			return true
		}
	}
	return false
}

// SetCount returns the number of set fields
func (t *Telemetry) SetCount() int {
	n := 0
	for _, f := range telemetryFields {
		if IsSet(*f.ptr(t)) {
			n++
		}
	}
	return n
}

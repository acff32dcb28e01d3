// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
)

// ============================================================
// Remote Command Tests
// ============================================================

func TestParseRemoteCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		mode    vesc.Mode
		value   float64
		wantErr bool
	}{
		{"current", `{"mode":"current","value":2.5}`, vesc.ModeCurrent, 2.5, false},
		{"brake", `{"mode":"brake","value":3}`, vesc.ModeBrake, 3, false},
		{"duty upper case", `{"mode":"DUTY","value":-0.25}`, vesc.ModeDuty, -0.25, false},
		{"rpm", `{"mode":"rpm","value":1500}`, vesc.ModeRPM, 1500, false},
		{"zero value", `{"mode":"current","value":0}`, vesc.ModeCurrent, 0, false},
		{"missing value", `{"mode":"current"}`, 0, 0, true},
		{"unknown mode", `{"mode":"torque","value":1}`, 0, 0, true},
		{"missing mode", `{"value":1}`, 0, 0, true},
		{"not json", `current=1`, 0, 0, true},
		{"wrong type", `{"mode":"current","value":"1"}`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, value, err := parseRemoteCommand([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tt.mode {
				t.Errorf("mode = %s, want %s", mode, tt.mode)
			}
			if value != tt.value {
				t.Errorf("value = %v, want %v", value, tt.value)
			}
		})
	}
}

// ============================================================
// Telemetry JSON Tests
// ============================================================

func TestTelemetryJSON(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	snapshot := vesc.NewTelemetry(ts)
	snapshot.Voltage = 42.1
	snapshot.ERPM = 1500
	snapshot.FaultCode = 0

	data, err := telemetryJSON(&snapshot)
	if err != nil {
		t.Fatalf("telemetryJSON failed: %v", err)
	}

	var body map[string]float64
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("output is not a JSON object of numbers: %v (%s)", err, data)
	}

	want := map[string]float64{
		"voltage":    42.1,
		"erpm":       1500,
		"fault_code": 0,
		"timestamp":  1_700_000_000_123,
	}
	if len(body) != len(want) {
		t.Errorf("got %d keys, want %d: %s", len(body), len(want), data)
	}
	for k, v := range want {
		if got, ok := body[k]; !ok || got != v {
			t.Errorf("%s = %v (present %v), want %v", k, got, ok, v)
		}
	}
}

func TestTelemetryJSON_Empty(t *testing.T) {
	snapshot := vesc.NewTelemetry(time.UnixMilli(5))

	data, err := telemetryJSON(&snapshot)
	if err != nil {
		t.Fatalf("telemetryJSON failed: %v", err)
	}
	if string(data) != `{"timestamp":5}` {
		t.Errorf("got %s", data)
	}
}

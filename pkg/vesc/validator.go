// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyVoltage AnomalyType = iota
	AnomalyDuty
	AnomalyHighERPM
	AnomalyTemperature
	AnomalyFault
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyVoltage:
		return "voltage"
	case AnomalyDuty:
		return "duty"
	case AnomalyHighERPM:
		return "high ERPM"
	case AnomalyTemperature:
		return "temperature"
	case AnomalyFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Plausibility limits
const (
	MinVoltage     = 0.0
	MaxVoltage     = 100.0
	MaxERPM        = 150000.0
	MinTemperature = -40.0
	MaxTemperature = 150.0
)

// ValidationError represents a telemetry plausibility failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateTelemetry checks the set fields of a snapshot for implausible values.
// Returns a slice of validation errors (empty if the snapshot is plausible)
func ValidateTelemetry(t *Telemetry) []ValidationError {
	errors := []ValidationError{}

	if IsSet(t.Voltage) && (t.Voltage < MinVoltage || t.Voltage > MaxVoltage) {
		errors = append(errors, ValidationError{
			Type:    AnomalyVoltage,
			Message: fmt.Sprintf("Voltage out of range (%.2f V, valid: %.0f to %.0f V)", t.Voltage, MinVoltage, MaxVoltage),
			Details: map[string]interface{}{"value": t.Voltage, "min": MinVoltage, "max": MaxVoltage},
		})
	}

	if IsSet(t.Duty) && math.Abs(t.Duty) > 1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyDuty,
			Message: fmt.Sprintf("Duty out of range (%.3f, valid: -1 to 1)", t.Duty),
			Details: map[string]interface{}{"value": t.Duty},
		})
	}

	if IsSet(t.ERPM) && math.Abs(t.ERPM) > MaxERPM {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighERPM,
			Message: fmt.Sprintf("High ERPM (%.0f, max %.0f)", t.ERPM, MaxERPM),
			Details: map[string]interface{}{"value": t.ERPM, "max": MaxERPM},
		})
	}

	for _, name := range []string{"temp_mosfet", "temp_motor", "temp_mos_1", "temp_mos_2", "temp_mos_3", "temp_pcb"} {
		v, _ := t.Field(name)
		if IsSet(v) && (v < MinTemperature || v > MaxTemperature) {
			errors = append(errors, ValidationError{
				Type:    AnomalyTemperature,
				Message: fmt.Sprintf("%s out of range (%.1f°C, valid: %.0f to %.0f°C)", name, v, MinTemperature, MaxTemperature),
				Details: map[string]interface{}{"field": name, "value": v, "min": MinTemperature, "max": MaxTemperature},
			})
		}
	}

	if IsSet(t.FaultCode) && t.FaultCode != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyFault,
			Message: fmt.Sprintf("Controller fault %s (%d)", FormatFaultCode(int(t.FaultCode)), int(t.FaultCode)),
			Details: map[string]interface{}{"code": int(t.FaultCode)},
		})
	}

	return errors
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"strings"
)

// Mode selects how the shaped command value is interpreted and transmitted
type Mode int

// Command mode values
const (
	ModeCurrent Mode = iota
	ModeBrake
	ModeDuty
	ModeRPM
)

// Modes lists every command mode in wire order
var Modes = []Mode{ModeCurrent, ModeBrake, ModeDuty, ModeRPM}

// Clamp forces out-of-range mode values into the valid range
func (m Mode) Clamp() Mode {
	if m < ModeCurrent {
		return ModeCurrent
	}
	if m > ModeRPM {
		return ModeRPM
	}
	return m
}

func (m Mode) String() string {
	switch m {
	case ModeCurrent:
		return "current"
	case ModeBrake:
		return "brake"
	case ModeDuty:
		return "duty"
	case ModeRPM:
		return "rpm"
	default:
		return "unknown"
	}
}

// Unit returns the engineering unit of values in this mode
func (m Mode) Unit() string {
	switch m {
	case ModeCurrent, ModeBrake:
		return "A"
	case ModeRPM:
		return "RPM"
	default:
		return ""
	}
}

// ParseMode parses a mode name (case-insensitive)
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ModeCurrent, fmt.Errorf("unknown mode %q (use current, brake, duty or rpm)", s)
}

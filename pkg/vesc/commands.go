// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Command builder functions create the payloads understood by the VESC
// firmware. Every payload is a command ID followed by a big-endian int32.
// Values are scaled, rounded half away from zero, and saturated to int32.

// Command is a decoded motor command payload
type Command struct {
	ID    uint8
	Raw   int32
	Value float64 // Raw divided by the command's scale
}

// EncodeSetCurrent creates a COMM_SET_CURRENT payload (amps * 1000)
func EncodeSetCurrent(amps float64) []byte {
	return encodeScaled(CommSetCurrent, amps, currentScale)
}

// EncodeSetBrake creates a COMM_SET_CURRENT_BRAKE payload.
// The brake current is always sent as a positive magnitude.
func EncodeSetBrake(amps float64) []byte {
	return encodeScaled(CommSetCurrentBrake, math.Abs(amps), currentScale)
}

// EncodeSetRPM creates a COMM_SET_RPM payload (unscaled ERPM)
func EncodeSetRPM(rpm float64) []byte {
	return encodeScaled(CommSetRPM, rpm, rpmScale)
}

// EncodeSetDuty creates a COMM_SET_DUTY payload (duty * 100000)
func EncodeSetDuty(duty float64) []byte {
	return encodeScaled(CommSetDuty, duty, dutyScale)
}

// EncodeCommand creates the payload matching a command mode
func EncodeCommand(mode Mode, value float64) []byte {
	switch mode.Clamp() {
	case ModeBrake:
		return EncodeSetBrake(value)
	case ModeDuty:
		return EncodeSetDuty(value)
	case ModeRPM:
		return EncodeSetRPM(value)
	default:
		return EncodeSetCurrent(value)
	}
}

// ParseCommand decodes a payload created by one of the Encode functions
func ParseCommand(payload []byte) (Command, error) {
	if len(payload) != 5 {
		return Command{}, fmt.Errorf("command payload length %d (expected 5)", len(payload))
	}

	scale, ok := commandScale(payload[0])
	if !ok {
		return Command{}, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, payload[0])
	}

	raw := int32(binary.BigEndian.Uint32(payload[1:]))
	return Command{
		ID:    payload[0],
		Raw:   raw,
		Value: float64(raw) / scale,
	}, nil
}

func commandScale(id uint8) (float64, bool) {
	switch id {
	case CommSetCurrent, CommSetCurrentBrake:
		return currentScale, true
	case CommSetDuty:
		return dutyScale, true
	case CommSetRPM:
		return rpmScale, true
	}
	return 0, false
}

func encodeScaled(id uint8, value, scale float64) []byte {
	payload := make([]byte, 5)
	payload[0] = id
	binary.BigEndian.PutUint32(payload[1:], uint32(scaleToInt32(value, scale)))
	return payload
}

// scaleToInt32 multiplies, rounds half away from zero and saturates
func scaleToInt32(value, scale float64) int32 {
	v := math.Round(value * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vesc implements the command and telemetry core for talking to a
// VESC-class motor controller over a byte-stream link.
//
// It provides the VESC packet framing (length prefix, CRC16, terminator),
// the motor command payloads, a command shaper that turns a raw setpoint
// into a rate-limited output, a tolerant key=value telemetry line parser,
// and a link controller that ties them to a Transport.
package vesc

import "time"

// Protocol framing bytes
const (
	ShortFrameStart = 0x02 // 1-byte length field
	LongFrameStart  = 0x03 // 2-byte big-endian length field
	FrameEnd        = 0x03
)

// Frame size limits
const (
	ShortFrameMaxPayload = 255
	MaxPayloadSize       = 65535
	shortFrameOverhead   = 5 // start + len + crc(2) + end
	longFrameOverhead    = 6 // start + len(2) + crc(2) + end
)

// Command IDs (COMM_PACKET_ID) used by this package
const (
	CommSetDuty         = 0x05
	CommSetCurrent      = 0x06
	CommSetCurrentBrake = 0x07
	CommSetRPM          = 0x08
)

// Payload scaling applied before int32 conversion
const (
	currentScale = 1000.0
	dutyScale    = 100000.0
	rpmScale     = 1.0
)

// Shaper defaults
const (
	DefaultDeadbandFraction = 0.06
	DefaultFilterAlpha      = 0.20
	DefaultMaxSlewPerSecond = 4.0
	DefaultSendInterval     = 50 * time.Millisecond
	DefaultIdleZero         = 150 * time.Millisecond

	MaxDeadbandFraction = 0.49
)

// Link defaults
const (
	DefaultLineBufferSize = 256
	DefaultMaxFrameSize   = 512
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLengthHigh
	stateLengthLow
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// LinkState is the connection lifecycle state of a Link
type LinkState int

// Link state values
const (
	StateIdle LinkState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

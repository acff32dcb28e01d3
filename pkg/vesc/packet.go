// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "time"

// Packet represents a decoded VESC frame
type Packet struct {
	payload   []byte
	crc       uint16
	long      bool
	timestamp time.Time
}

// NewPacket creates a packet around a payload. The CRC is computed.
func NewPacket(payload []byte) *Packet {
	return &Packet{
		payload:   payload,
		crc:       CalculateCRC(payload),
		long:      len(payload) > ShortFrameMaxPayload,
		timestamp: time.Now(),
	}
}

// Payload returns the packet payload (command ID followed by data)
func (p *Packet) Payload() []byte {
	return p.payload
}

// Length returns the payload length
func (p *Packet) Length() int {
	return len(p.payload)
}

// CommandID returns the first payload byte, or 0 for an empty payload
func (p *Packet) CommandID() uint8 {
	if len(p.payload) == 0 {
		return 0
	}
	return p.payload[0]
}

// CRC returns the packet's CRC value
func (p *Packet) CRC() uint16 {
	return p.crc
}

// IsLong returns true if the packet used long-form (2-byte length) framing
func (p *Packet) IsLong() bool {
	return p.long
}

// Timestamp returns the packet's decode timestamp
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

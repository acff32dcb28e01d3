// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// Encoder encodes VESC packets for transmission.
type Encoder struct{}

// NewEncoder creates a new VESC packet encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes a Packet to wire format.
func (e *Encoder) Encode(p *Packet) ([]byte, error) {
	return EncodeFrame(p.Payload())
}

// FrameSize returns the wire size of a frame carrying n payload bytes.
func FrameSize(n int) int {
	if n <= ShortFrameMaxPayload {
		return n + shortFrameOverhead
	}
	return n + longFrameOverhead
}

// EncodeFrame wraps a payload in VESC framing:
//
//	short: 0x02 len         payload crc_hi crc_lo 0x03
//	long:  0x03 len_hi len_lo payload crc_hi crc_lo 0x03
//
// The CRC covers the payload only.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, FrameSize(len(payload)))
	if len(payload) <= ShortFrameMaxPayload {
		frame = append(frame, ShortFrameStart, byte(len(payload)))
	} else {
		frame = append(frame, LongFrameStart, byte(len(payload)>>8), byte(len(payload)))
	}
	frame = append(frame, payload...)

	crc := CalculateCRC(payload)
	frame = append(frame, byte(crc>>8), byte(crc&0xFF), FrameEnd)

	return frame, nil
}

// MustEncodeFrame encodes a payload, panicking on error.
// Use only with payloads known to be in range, such as command payloads.
func MustEncodeFrame(payload []byte) []byte {
	frame, err := EncodeFrame(payload)
	if err != nil {
		panic(fmt.Sprintf("vesc: encode error: %v", err))
	}
	return frame
}

// ParseFrame decodes exactly one complete frame.
func ParseFrame(frame []byte) (*Packet, error) {
	d := NewDecoder(MaxPayloadSize)
	for i, b := range frame {
		packet, err := d.DecodeByte(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if packet != nil {
			if i != len(frame)-1 {
				return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, len(frame)-1-i)
			}
			return packet, nil
		}
	}
	return nil, fmt.Errorf("%w: incomplete frame", ErrInvalidFrame)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"time"
)

// Decoder implements the VESC frame decoder state machine
type Decoder struct {
	state      int
	maxPayload int
	length     int
	long       bool
	payload    []byte
	crc        uint16
	rawBuffer  []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a new frame decoder accepting payloads up to maxPayload bytes
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}
	return &Decoder{
		state:      stateIdle,
		maxPayload: maxPayload,
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.length = 0
	d.long = false
	d.payload = nil
	d.crc = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes of the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder is reset and ready for the
// next start byte.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		switch b {
		case ShortFrameStart:
			d.Reset()
			d.state = stateLengthLow
		case LongFrameStart:
			d.Reset()
			d.long = true
			d.state = stateLengthHigh
		default:
			// Waiting for a start byte
			return nil, nil
		}
		d.rawBuffer = append(d.rawBuffer, b)
		return nil, nil

	case stateLengthHigh:
		d.rawBuffer = append(d.rawBuffer, b)
		d.length = int(b) << 8
		d.state = stateLengthLow
		return nil, nil

	case stateLengthLow:
		d.rawBuffer = append(d.rawBuffer, b)
		d.length |= int(b)
		if d.length > d.maxPayload {
			length := d.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", length, d.maxPayload)
		}
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.rawBuffer = append(d.rawBuffer, b)
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.rawBuffer = append(d.rawBuffer, b)
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.rawBuffer = append(d.rawBuffer, b)
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		if b != FrameEnd {
			d.Reset()
			return nil, fmt.Errorf("invalid terminator: 0x%02X", b)
		}

		calculatedCRC := CalculateCRC(d.payload)
		if d.crc != calculatedCRC {
			err := fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculatedCRC, d.crc)
			d.Reset()
			return nil, err
		}

		packet := &Packet{
			payload:   d.payload,
			crc:       d.crc,
			long:      d.long,
			timestamp: time.Now(),
		}
		d.Reset()
		return packet, nil

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", state)
	}
}

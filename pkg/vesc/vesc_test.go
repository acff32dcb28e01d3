// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// makePayload returns n bytes of a repeating pattern
func makePayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	return payload
}

// decodeAll feeds every byte to a decoder and collects packets and errors
func decodeAll(d *Decoder, data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		packet, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if packet != nil {
			packets = append(packets, packet)
		}
	}
	return packets, errs
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != 0 {
		t.Errorf("CRC of empty data should be 0, got 0x%04X", crc)
	}
	if crc := CalculateCRC(nil); crc != 0 {
		t.Errorf("CRC of nil data should be 0, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // CRC-16/XMODEM check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
		{
			name:     "single 0x01 byte",
			data:     []byte{0x01},
			expected: 0x1021,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := EncodeSetCurrent(-2.5)
	crc1 := CalculateCRC(data)
	crc2 := CalculateCRC(data)
	if crc1 != crc2 {
		t.Errorf("CRC should be deterministic: 0x%04X != 0x%04X", crc1, crc2)
	}
}

func TestCalculateCRC_SingleBitFlips(t *testing.T) {
	data := []byte{0x06, 0xFF, 0xFF, 0xF6, 0x3C, 0x42, 0x00, 0x81}
	base := CalculateCRC(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			if crc := CalculateCRC(flipped); crc == base {
				t.Errorf("flipping byte %d bit %d did not change CRC (0x%04X)", i, bit, crc)
			}
		}
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Lengths(t *testing.T) {
	tests := []struct {
		length int
		header byte
		long   bool
	}{
		{0, ShortFrameStart, false},
		{1, ShortFrameStart, false},
		{255, ShortFrameStart, false},
		{256, LongFrameStart, true},
		{65535, LongFrameStart, true},
	}

	for _, tt := range tests {
		payload := makePayload(tt.length)
		frame, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("len %d: encode error: %v", tt.length, err)
		}

		if frame[0] != tt.header {
			t.Errorf("len %d: header 0x%02X, expected 0x%02X", tt.length, frame[0], tt.header)
		}
		if len(frame) != FrameSize(tt.length) {
			t.Errorf("len %d: frame size %d, expected %d", tt.length, len(frame), FrameSize(tt.length))
		}
		if frame[len(frame)-1] != FrameEnd {
			t.Errorf("len %d: terminator 0x%02X, expected 0x%02X", tt.length, frame[len(frame)-1], FrameEnd)
		}

		crc := CalculateCRC(payload)
		gotCRC := uint16(frame[len(frame)-3])<<8 | uint16(frame[len(frame)-2])
		if gotCRC != crc {
			t.Errorf("len %d: CRC bytes 0x%04X, expected 0x%04X", tt.length, gotCRC, crc)
		}

		var body []byte
		if tt.long {
			if n := int(frame[1])<<8 | int(frame[2]); n != tt.length {
				t.Errorf("len %d: long length field %d", tt.length, n)
			}
			body = frame[3 : len(frame)-3]
		} else {
			if int(frame[1]) != tt.length {
				t.Errorf("len %d: short length field %d", tt.length, frame[1])
			}
			body = frame[2 : len(frame)-3]
		}
		if !bytes.Equal(body, payload) {
			t.Errorf("len %d: payload not copied verbatim", tt.length)
		}
	}
}

func TestEncodeFrame_SetCurrent(t *testing.T) {
	frame := MustEncodeFrame(EncodeSetCurrent(-2.5))
	// -2500 = 0xFFFFF63C
	expectedPrefix := []byte{0x02, 0x05, 0x06, 0xFF, 0xFF, 0xF6, 0x3C}
	if !bytes.Equal(frame[:7], expectedPrefix) {
		t.Errorf("frame prefix % X, expected % X", frame[:7], expectedPrefix)
	}
	if len(frame) != 10 {
		t.Errorf("frame length %d, expected 10", len(frame))
	}
}

func TestEncodeFrame_TooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestMustEncodeFrame_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for oversized payload")
		}
	}()
	MustEncodeFrame(make([]byte, MaxPayloadSize+1))
}

func TestEncoder_Packet(t *testing.T) {
	packet := NewPacket(EncodeSetRPM(1500))
	frame, err := NewEncoder().Encode(packet)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if !bytes.Equal(frame, MustEncodeFrame(packet.Payload())) {
		t.Error("Encoder.Encode should match EncodeFrame")
	}
	if packet.CRC() != CalculateCRC(packet.Payload()) {
		t.Error("NewPacket should compute the payload CRC")
	}
	if packet.CommandID() != CommSetRPM {
		t.Errorf("CommandID 0x%02X, expected 0x%02X", packet.CommandID(), CommSetRPM)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 5, 255, 256, 1000, 65535} {
		payload := makePayload(n)
		frame := MustEncodeFrame(payload)

		packets, errs := decodeAll(NewDecoder(MaxPayloadSize), frame)
		if len(errs) != 0 {
			t.Fatalf("len %d: decode errors: %v", n, errs)
		}
		if len(packets) != 1 {
			t.Fatalf("len %d: expected 1 packet, got %d", n, len(packets))
		}
		p := packets[0]
		if !bytes.Equal(p.Payload(), payload) {
			t.Errorf("len %d: payload mismatch", n)
		}
		if p.IsLong() != (n > ShortFrameMaxPayload) {
			t.Errorf("len %d: IsLong = %v", n, p.IsLong())
		}
		if p.Length() != n {
			t.Errorf("len %d: Length = %d", n, p.Length())
		}
	}
}

func TestDecoder_SkipsNoiseBetweenFrames(t *testing.T) {
	var stream []byte
	stream = append(stream, 0xFF, 0x00, 0x42)
	stream = append(stream, MustEncodeFrame(EncodeSetCurrent(1))...)
	stream = append(stream, 0x99)
	stream = append(stream, MustEncodeFrame(EncodeSetDuty(0.5))...)

	packets, errs := decodeAll(NewDecoder(0), stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if packets[0].CommandID() != CommSetCurrent || packets[1].CommandID() != CommSetDuty {
		t.Errorf("unexpected command IDs 0x%02X, 0x%02X", packets[0].CommandID(), packets[1].CommandID())
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	frame := MustEncodeFrame(EncodeSetCurrent(3))
	frame[len(frame)-2] ^= 0xFF

	packets, errs := decodeAll(NewDecoder(0), frame)
	if len(packets) != 0 {
		t.Error("corrupted frame should not decode")
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "CRC mismatch") {
		t.Errorf("expected CRC mismatch error, got %v", errs)
	}
}

func TestDecoder_BadTerminator(t *testing.T) {
	frame := MustEncodeFrame(EncodeSetCurrent(3))
	frame[len(frame)-1] = 0x7E

	_, errs := decodeAll(NewDecoder(0), frame)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "invalid terminator") {
		t.Errorf("expected terminator error, got %v", errs)
	}
}

func TestDecoder_LengthLimit(t *testing.T) {
	frame := MustEncodeFrame(makePayload(64))

	_, errs := decodeAll(NewDecoder(32), frame)
	if len(errs) == 0 || !strings.Contains(errs[0].Error(), "invalid length") {
		t.Errorf("expected length error, got %v", errs)
	}
}

func TestDecoder_RecoversAfterError(t *testing.T) {
	bad := MustEncodeFrame(EncodeSetCurrent(1))
	bad[3] ^= 0x01
	good := MustEncodeFrame(EncodeSetRPM(-500))

	d := NewDecoder(0)
	decodeAll(d, bad)
	packets, errs := decodeAll(d, good)
	if len(errs) != 0 || len(packets) != 1 {
		t.Fatalf("decoder did not recover: packets=%d errs=%v", len(packets), errs)
	}
}

func TestDecoder_RawBytes(t *testing.T) {
	frame := MustEncodeFrame(EncodeSetCurrent(1))
	d := NewDecoder(0)
	for _, b := range frame[:4] {
		d.DecodeByte(b)
	}
	if !bytes.Equal(d.GetRawBytes(), frame[:4]) {
		t.Errorf("raw bytes % X, expected % X", d.GetRawBytes(), frame[:4])
	}
	d.Reset()
	if len(d.GetRawBytes()) != 0 {
		t.Error("Reset should clear raw bytes")
	}
}

func TestParseFrame(t *testing.T) {
	frame := MustEncodeFrame(EncodeSetBrake(2))
	p, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CommandID() != CommSetCurrentBrake {
		t.Errorf("CommandID 0x%02X", p.CommandID())
	}

	if _, err := ParseFrame(frame[:len(frame)-1]); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("truncated frame: expected ErrInvalidFrame, got %v", err)
	}
	if _, err := ParseFrame(append(frame, 0x00)); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("trailing byte: expected ErrInvalidFrame, got %v", err)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket_Command(t *testing.T) {
	p := NewPacket(EncodeSetCurrent(-2.5))
	out := FormatPacket(p)
	if !strings.Contains(out, "SET_CURRENT (0x06)") {
		t.Errorf("missing command name: %q", out)
	}
	if !strings.Contains(out, "-2.500 A") {
		t.Errorf("missing decoded value: %q", out)
	}
}

func TestFormatPacket_UnknownPayload(t *testing.T) {
	p := NewPacket([]byte{0x04, 0xAA})
	out := FormatPacket(p)
	if !strings.Contains(out, "UNKNOWN") || !strings.Contains(out, "04 AA") {
		t.Errorf("unexpected format: %q", out)
	}
}

func TestFormatFaultCode(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{0, "NONE"},
		{1, "OVER_VOLTAGE"},
		{5, "OVER_TEMP_FET"},
		{10, "BOOTING_FROM_WATCHDOG_RESET"},
		{11, "UNKNOWN"},
		{-1, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := FormatFaultCode(tt.code); got != tt.expected {
			t.Errorf("FormatFaultCode(%d) = %s, expected %s", tt.code, got, tt.expected)
		}
	}
}

func TestFormatTelemetry(t *testing.T) {
	tel := ParseTelemetryLine("volt=42.1,erpm=1500,duty=0.25,tmos=55,fault=2")

	out := FormatTelemetry(&tel)
	for _, want := range []string{"fields=5", "42.10 V", "1500", "25.0%", "55.0°C", "UNDER_VOLTAGE (2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatTelemetry missing %q in %q", want, out)
		}
	}

	line := FormatTelemetryLine(&tel)
	if !strings.HasPrefix(line, "voltage=42.10 V erpm=1500 duty=25.0%") {
		t.Errorf("unexpected line format: %q", line)
	}

	empty := NewTelemetry(tel.Timestamp)
	if FormatTelemetryLine(&empty) != "(no fields)" {
		t.Errorf("empty snapshot formatted as %q", FormatTelemetryLine(&empty))
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateTelemetry_Plausible(t *testing.T) {
	tel := ParseTelemetryLine("volt=42.1,erpm=1500,duty=0.3,tmos=55,tmot=40,fault=0")
	if errs := ValidateTelemetry(&tel); len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", errs)
	}
}

func TestValidateTelemetry_Unset(t *testing.T) {
	tel := NewTelemetry(time.Now())
	if errs := ValidateTelemetry(&tel); len(errs) != 0 {
		t.Errorf("unset fields should never be anomalies, got %v", errs)
	}
}

func TestValidateTelemetry_Anomalies(t *testing.T) {
	tests := []struct {
		line     string
		expected AnomalyType
	}{
		{"volt=120", AnomalyVoltage},
		{"volt=-1", AnomalyVoltage},
		{"duty=1.5", AnomalyDuty},
		{"erpm=-200000", AnomalyHighERPM},
		{"tmos=180", AnomalyTemperature},
		{"tpcb=-60", AnomalyTemperature},
		{"fault=4", AnomalyFault},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tel := ParseTelemetryLine(tt.line)
			errs := ValidateTelemetry(&tel)
			if len(errs) != 1 {
				t.Fatalf("expected 1 anomaly, got %d: %v", len(errs), errs)
			}
			if errs[0].Type != tt.expected {
				t.Errorf("anomaly %s, expected %s", errs[0].Type, tt.expected)
			}
			if errs[0].Error() == "" {
				t.Error("anomaly message should not be empty")
			}
		})
	}
}

func TestStatistics_RecordValidation(t *testing.T) {
	s := NewStatistics()
	tel := ParseTelemetryLine("volt=120,tmos=200,fault=1")
	s.RecordValidation(ValidateTelemetry(&tel))

	if s.Anomalies != 3 || s.VoltageOOR != 1 || s.TempOOR != 1 || s.Faults != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if !strings.Contains(s.String(), "Anomalies:") {
		t.Error("String should report anomalies")
	}

	s.Reset()
	if s.Anomalies != 0 {
		t.Error("Reset should clear counters")
	}
}

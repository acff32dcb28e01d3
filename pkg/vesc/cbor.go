// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Telemetry recordings are CBOR sequences of [unix-ms, {field-index: value}].
// Field indexes follow FieldNames order; unset fields are omitted.

type telemetryRecord struct {
	_         struct{} `cbor:",toarray"`
	Timestamp int64
	Fields    map[int]float64
}

// MarshalTelemetryCBOR encodes one snapshot as a CBOR record
func MarshalTelemetryCBOR(t *Telemetry) ([]byte, error) {
	data, err := cbor.Marshal(toRecord(t))
	if err != nil {
		return nil, fmt.Errorf("failed to encode telemetry: %w", err)
	}
	return data, nil
}

// UnmarshalTelemetryCBOR decodes one CBOR record into a snapshot
func UnmarshalTelemetryCBOR(data []byte) (Telemetry, error) {
	var rec telemetryRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Telemetry{}, fmt.Errorf("failed to decode telemetry: %w", err)
	}
	return fromRecord(rec)
}

// TelemetryWriter appends snapshots to a CBOR sequence
type TelemetryWriter struct {
	enc *cbor.Encoder
}

// NewTelemetryWriter creates a writer on w
func NewTelemetryWriter(w io.Writer) *TelemetryWriter {
	return &TelemetryWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one snapshot
func (w *TelemetryWriter) Write(t *Telemetry) error {
	return w.enc.Encode(toRecord(t))
}

// TelemetryReader reads snapshots from a CBOR sequence
type TelemetryReader struct {
	dec *cbor.Decoder
}

// NewTelemetryReader creates a reader on r
func NewTelemetryReader(r io.Reader) *TelemetryReader {
	return &TelemetryReader{dec: cbor.NewDecoder(r)}
}

// Read returns the next snapshot, or io.EOF at the end of the sequence
func (r *TelemetryReader) Read() (Telemetry, error) {
	var rec telemetryRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Telemetry{}, io.EOF
		}
		return Telemetry{}, fmt.Errorf("failed to decode telemetry: %w", err)
	}
	return fromRecord(rec)
}

func toRecord(t *Telemetry) telemetryRecord {
	rec := telemetryRecord{
		Timestamp: t.Timestamp.UnixMilli(),
		Fields:    make(map[int]float64),
	}
	for i, f := range telemetryFields {
		if v := *f.ptr(t); IsSet(v) {
			rec.Fields[i] = v
		}
	}
	return rec
}

func fromRecord(rec telemetryRecord) (Telemetry, error) {
	t := NewTelemetry(time.UnixMilli(rec.Timestamp))
	for i, v := range rec.Fields {
		if i < 0 || i >= len(telemetryFields) {
			return Telemetry{}, fmt.Errorf("field index out of range: %d", i)
		}
		*telemetryFields[i].ptr(&t) = v
	}
	return t, nil
}

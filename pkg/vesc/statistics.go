// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"time"
)

// Statistics tracks link traffic and telemetry quality
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Outbound
	FramesSent  uint64
	WriteErrors uint64

	// Inbound
	Notifications   uint64
	NotifyBytes     uint64
	LinesParsed     uint64
	LinesTruncated  uint64
	UnknownKeys     uint64
	InvalidValues   uint64
	MalformedTokens uint64

	// Validation
	Anomalies  uint64
	VoltageOOR uint64
	DutyOOR    uint64
	HighERPM   uint64
	TempOOR    uint64
	Faults     uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	SendRate  float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordSend counts a transmission attempt
func (s *Statistics) RecordSend(err error) {
	if err != nil {
		s.WriteErrors++
	} else {
		s.FramesSent++
	}
	s.LastUpdateTime = time.Now()
}

// RecordNotify counts a raw notification
func (s *Statistics) RecordNotify(n int) {
	s.Notifications++
	s.NotifyBytes += uint64(n)
	s.LastUpdateTime = time.Now()
}

// RecordLine counts a parsed telemetry line
func (s *Statistics) RecordLine(res ParseResult, truncated bool) {
	s.LinesParsed++
	if truncated {
		s.LinesTruncated++
	}
	s.UnknownKeys += uint64(res.Unknown)
	s.InvalidValues += uint64(res.Invalid)
	s.MalformedTokens += uint64(res.Malformed)
	s.LastUpdateTime = time.Now()
}

// RecordValidation counts validation anomalies
func (s *Statistics) RecordValidation(errors []ValidationError) {
	for _, err := range errors {
		s.Anomalies++
		switch err.Type {
		case AnomalyVoltage:
			s.VoltageOOR++
		case AnomalyDuty:
			s.DutyOOR++
		case AnomalyHighERPM:
			s.HighERPM++
		case AnomalyTemperature:
			s.TempOOR++
		case AnomalyFault:
			s.Faults++
		}
	}
}

// ErrorCount returns the total of all error counters
func (s *Statistics) ErrorCount() uint64 {
	return s.WriteErrors + s.LinesTruncated + s.InvalidValues + s.MalformedTokens + s.Anomalies
}

// CalculateRates calculates line, send and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.LinesParsed) / elapsed
		s.SendRate = float64(s.FramesSent) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	result += fmt.Sprintf("Notifications:   %8d (%d bytes)\n", s.Notifications, s.NotifyBytes)
	result += fmt.Sprintf("Lines Parsed:    %8d\n", s.LinesParsed)

	if s.LinesTruncated > 0 {
		result += fmt.Sprintf("Truncated Lines: %8d\n", s.LinesTruncated)
	}
	if s.UnknownKeys > 0 {
		result += fmt.Sprintf("Unknown Keys:    %8d\n", s.UnknownKeys)
	}
	if s.InvalidValues > 0 {
		result += fmt.Sprintf("Invalid Values:  %8d\n", s.InvalidValues)
	}
	if s.MalformedTokens > 0 {
		result += fmt.Sprintf("Malformed Tokens:%8d\n", s.MalformedTokens)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
		if s.VoltageOOR > 0 {
			result += fmt.Sprintf("  Voltage:          %5d\n", s.VoltageOOR)
		}
		if s.DutyOOR > 0 {
			result += fmt.Sprintf("  Duty:             %5d\n", s.DutyOOR)
		}
		if s.HighERPM > 0 {
			result += fmt.Sprintf("  High ERPM:        %5d\n", s.HighERPM)
		}
		if s.TempOOR > 0 {
			result += fmt.Sprintf("  Temperature:      %5d\n", s.TempOOR)
		}
		if s.Faults > 0 {
			result += fmt.Sprintf("  Faults:           %5d\n", s.Faults)
		}
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Send Rate:       %8.1f frames/sec\n", s.SendRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

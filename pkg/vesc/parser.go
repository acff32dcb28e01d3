// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"strconv"
	"strings"
	"time"
)

// Telemetry line grammar:
//
//	line  = field *( ("," / ";") field )
//	field = key "=" value
//
// Keys are trimmed and matched case-sensitively against keySynonyms.
// Unknown keys and tokens without "=" are ignored.

// keySynonyms maps every accepted key to a canonical field name
var keySynonyms = map[string]string{
	"volt":               "voltage",
	"voltage":            "voltage",
	"erpm":               "erpm",
	"rpm":                "erpm",
	"duty":               "duty",
	"ain":                "avg_input_current",
	"avginputcurrent":    "avg_input_current",
	"amot":               "avg_motor_current",
	"avgmotorcurrent":    "avg_motor_current",
	"tmos":               "temp_mosfet",
	"tempmosfet":         "temp_mosfet",
	"tmot":               "temp_motor",
	"tempmotor":          "temp_motor",
	"iin":                "current_in",
	"current_in":         "current_in",
	"imot":               "current_motor",
	"current_motor":      "current_motor",
	"wh":                 "watt_hours",
	"watt_hours":         "watt_hours",
	"whc":                "watt_hours_charged",
	"watt_hours_charged": "watt_hours_charged",
	"ah":                 "amp_hours",
	"amp_hours":          "amp_hours",
	"ahc":                "amp_hours_charged",
	"amp_hours_charged":  "amp_hours_charged",
	"speed":              "speed_kmh",
	"speed_kmh":          "speed_kmh",
	"pos":                "position",
	"position":           "position",
	"tach":               "tachometer",
	"tachometer":         "tachometer",
	"tacha":              "tachometer_abs",
	"tachometer_abs":     "tachometer_abs",
	"tmos1":              "temp_mos_1",
	"temp_mos_1":         "temp_mos_1",
	"tmos2":              "temp_mos_2",
	"temp_mos_2":         "temp_mos_2",
	"tmos3":              "temp_mos_3",
	"temp_mos_3":         "temp_mos_3",
	"tpcb":               "temp_pcb",
	"temp_pcb":           "temp_pcb",
	"batt":               "battery_level",
	"battery_level":      "battery_level",
	"battwh":             "battery_wh",
	"battery_wh":         "battery_wh",
	"fault":              "fault_code",
	"fault_code":         "fault_code",
	"id":                 "controller_id",
	"controller_id":      "controller_id",
	"pidpos":             "pid_pos",
	"pid_pos":            "pid_pos",
}

// ParseOptions controls telemetry parsing tolerance
type ParseOptions struct {
	// StrictNumbers leaves a field unset when its value is not a complete
	// number. When false, the longest numeric prefix is used and a value
	// without one reads as 0, matching the controller firmware's atof.
	StrictNumbers bool
}

// ParseResult summarizes what a line contained
type ParseResult struct {
	Fields    int // recognized key=value pairs written
	Unknown   int // key=value pairs with an unrecognized key
	Invalid   int // recognized keys whose value was not a complete number
	Malformed int // non-empty tokens without "="
}

// Parser turns telemetry lines into snapshots
type Parser struct {
	opts ParseOptions
	now  func() time.Time
}

// NewParser creates a parser stamping snapshots with time.Now
func NewParser(opts ParseOptions) *Parser {
	return &Parser{opts: opts, now: time.Now}
}

// Options returns the parser options
func (p *Parser) Options() ParseOptions {
	return p.opts
}

// Parse parses one telemetry line. It never fails: malformed tokens are
// skipped and whatever was recognized is returned.
func (p *Parser) Parse(line string) (Telemetry, ParseResult) {
	t := NewTelemetry(p.now())
	var res ParseResult

	for len(line) > 0 {
		var token string
		if i := strings.IndexAny(line, ",;"); i >= 0 {
			token, line = line[:i], line[i+1:]
		} else {
			token, line = line, ""
		}
		if token == "" {
			continue
		}
		p.parseToken(&t, &res, token)
	}

	return t, res
}

func (p *Parser) parseToken(t *Telemetry, res *ParseResult, token string) {
	key, value, ok := strings.Cut(token, "=")
	if !ok {
		res.Malformed++
		return
	}

	name, known := keySynonyms[trimSpace(key)]
	if !known {
		res.Unknown++
		return
	}

	v, complete := parseNumber(value)
	if !complete {
		res.Invalid++
		if p.opts.StrictNumbers {
			return
		}
	}

	t.SetField(name, v)
	res.Fields++
}

// ParseTelemetryLine parses a line with default (permissive) options
func ParseTelemetryLine(line string) Telemetry {
	t, _ := NewParser(ParseOptions{}).Parse(line)
	return t
}

// trimSpace trims ASCII control characters and spaces from both ends
func trimSpace(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
}

// parseNumber parses the longest numeric prefix of s after leading
// whitespace. It returns 0 when there is no numeric prefix. complete is true
// when the whole trimmed value was consumed.
func parseNumber(s string) (v float64, complete bool) {
	s = trimSpace(s)
	n := numericPrefix(s)
	if n == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:n], 64)
	if err != nil {
		// Out of range: ParseFloat returns ±Inf with the error
		return v, false
	}
	return v, n == len(s)
}

// numericPrefix returns the length of the longest prefix of s matching
// [+-]digits[.digits][(e|E)[+-]digits]
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

// LineBuffer reassembles newline-terminated lines from fragmented
// notifications. It holds at most capacity-1 bytes per line; further bytes
// are dropped until the next newline.
type LineBuffer struct {
	buf       []byte
	capacity  int
	truncated bool
}

// NewLineBuffer creates a line buffer. Capacity values below 2 are raised to 2.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &LineBuffer{
		buf:      make([]byte, 0, capacity-1),
		capacity: capacity,
	}
}

// Line is a completed line
type Line struct {
	Text      string
	Truncated bool // bytes were dropped because the line overflowed
}

// Write feeds bytes and returns any lines completed by them.
// '\r' is ignored; '\n' completes a non-empty line.
func (lb *LineBuffer) Write(data []byte) []Line {
	var lines []Line
	for _, c := range data {
		switch c {
		case '\r':
		case '\n':
			if len(lb.buf) > 0 {
				lines = append(lines, Line{Text: string(lb.buf), Truncated: lb.truncated})
			}
			lb.Reset()
		default:
			if len(lb.buf) < lb.capacity-1 {
				lb.buf = append(lb.buf, c)
			} else {
				lb.truncated = true
			}
		}
	}
	return lines
}

// Len returns the number of buffered bytes of the line in progress
func (lb *LineBuffer) Len() int {
	return len(lb.buf)
}

// Capacity returns the configured capacity
func (lb *LineBuffer) Capacity() int {
	return lb.capacity
}

// Reset discards the line in progress
func (lb *LineBuffer) Reset() {
	lb.buf = lb.buf[:0]
	lb.truncated = false
}

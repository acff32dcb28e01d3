// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "errors"

var (
	// ErrPayloadTooLarge is returned when a payload does not fit the long frame length field
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrFrameTooLarge is returned when a frame would exceed the link's frame buffer
	ErrFrameTooLarge = errors.New("frame exceeds maximum frame size")

	// ErrNotConnected is returned when sending on a link that is not connected
	ErrNotConnected = errors.New("link not connected")

	// ErrAlreadyConnected is returned by Connect while connecting or connected
	ErrAlreadyConnected = errors.New("link already connecting or connected")

	// ErrConnectAborted is returned when Disconnect is called during Connect
	ErrConnectAborted = errors.New("connect aborted by disconnect")

	// ErrInvalidFrame is returned by ParseFrame for malformed frames
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnknownCommand is returned by ParseCommand for unsupported command IDs
	ErrUnknownCommand = errors.New("unknown command")
)

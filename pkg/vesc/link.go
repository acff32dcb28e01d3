// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport is the byte-stream link to a controller.
//
// Connect blocks until the link is usable or fails; it should honor ctx
// cancellation. Write hands one frame to the link without retrying.
// Notifications and link loss are reported to the handler given to
// Subscribe, possibly from another goroutine. A transport that reports link
// loss has already released its session.
type Transport interface {
	Connect(ctx context.Context, identifier string) error
	Write(frame []byte) error
	Subscribe(h TransportHandler)
	Disconnect() error
}

// TransportHandler receives asynchronous events from a Transport
type TransportHandler interface {
	HandleNotify(data []byte)
	HandleLinkLost(err error)
}

// LinkConfig holds the link buffer sizes and initial shaping/parsing settings
type LinkConfig struct {
	LineBufferSize int // telemetry line capacity, longer lines are truncated
	MaxFrameSize   int // largest frame Send will hand to the transport
	Shaper         ShaperConfig
	Parse          ParseOptions
}

// DefaultLinkConfig returns the default link configuration
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		LineBufferSize: DefaultLineBufferSize,
		MaxFrameSize:   DefaultMaxFrameSize,
		Shaper:         DefaultShaperConfig(),
	}
}

// Link coordinates the connection lifecycle, drives the command shaper on
// each tick, transmits shaped commands and turns notifications into
// telemetry snapshots.
//
// All methods are safe for concurrent use. Observers are called
// synchronously from the triggering call (Tick, Connect, Disconnect or a
// transport notification) without the link lock held.
type Link struct {
	mu sync.Mutex

	transport  Transport
	state      LinkState
	identifier string
	session    uint64
	cancel     context.CancelFunc
	lostErr    error // link loss reported while Connecting

	shaper   *Shaper
	parser   *Parser
	lines    *LineBuffer
	maxFrame int
	lastSend time.Time
	stats    *Statistics

	logger *zap.SugaredLogger
	now    func() time.Time

	telemetryFns  []func(Telemetry)
	rawFns        []func([]byte)
	connectFns    []func()
	disconnectFns []func()
	transmitFns   []func([]byte)
}

// NewLink creates a link in the Idle state and subscribes it to transport
func NewLink(transport Transport, cfg LinkConfig) *Link {
	if cfg.LineBufferSize <= 0 {
		cfg.LineBufferSize = DefaultLineBufferSize
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}

	l := &Link{
		transport: transport,
		state:     StateIdle,
		parser:    NewParser(cfg.Parse),
		lines:     NewLineBuffer(cfg.LineBufferSize),
		maxFrame:  cfg.MaxFrameSize,
		stats:     NewStatistics(),
		logger:    zap.NewNop().Sugar(),
		now:       time.Now,
	}
	l.shaper = NewShaper(cfg.Shaper, l.now())
	transport.Subscribe(l)
	return l
}

// SetLogger sets the logger used for lifecycle and transmission events
func (l *Link) SetLogger(logger *zap.SugaredLogger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	l.logger = logger
}

// SetClock replaces the time source used by SetTarget and telemetry stamps
func (l *Link) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.parser.now = now
	l.shaper.Reset(now())
}

// ============================================================
// Observers
// ============================================================

// OnTelemetry registers an observer for parsed telemetry snapshots.
// The snapshot is a copy; observers must not assume it outlives the call.
func (l *Link) OnTelemetry(fn func(Telemetry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.telemetryFns = append(l.telemetryFns, fn)
}

// OnRawNotify registers an observer for every raw notification, called
// before line reassembly. The slice must not be retained.
func (l *Link) OnRawNotify(fn func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rawFns = append(l.rawFns, fn)
}

// OnConnect registers an observer for Connecting -> Connected
func (l *Link) OnConnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectFns = append(l.connectFns, fn)
}

// OnDisconnect registers an observer for every transition into Disconnected,
// including failed connection attempts
func (l *Link) OnDisconnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectFns = append(l.disconnectFns, fn)
}

// OnTransmit registers an observer for frames successfully written
func (l *Link) OnTransmit(fn func(frame []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transmitFns = append(l.transmitFns, fn)
}

// ============================================================
// Lifecycle
// ============================================================

// State returns the current link state
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsConnected returns true in the Connected state
func (l *Link) IsConnected() bool {
	return l.State() == StateConnected
}

// Identifier returns the identifier of the last connection attempt
func (l *Link) Identifier() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identifier
}

// Connect moves Idle or Disconnected to Connecting and blocks on the
// transport. Success lands in Connected; any failure lands in Disconnected
// and notifies the disconnect observers.
func (l *Link) Connect(ctx context.Context, identifier string) error {
	l.mu.Lock()
	if l.state == StateConnecting || l.state == StateConnected {
		l.mu.Unlock()
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	l.session++
	session := l.session
	l.cancel = cancel
	l.identifier = identifier
	l.state = StateConnecting
	l.lostErr = nil
	l.lines.Reset()
	logger := l.logger
	l.mu.Unlock()

	logger.Infow("connecting", "identifier", identifier)
	err := l.transport.Connect(ctx, identifier)
	cancel()

	l.mu.Lock()
	if l.session != session || l.state != StateConnecting {
		// Disconnect ran while the transport was connecting
		l.mu.Unlock()
		if err == nil {
			_ = l.transport.Disconnect()
		}
		return ErrConnectAborted
	}
	l.cancel = nil
	if err == nil && l.lostErr != nil {
		// The transport released the session before Connect returned
		err = fmt.Errorf("link lost: %w", l.lostErr)
	}
	l.lostErr = nil

	if err != nil {
		fns := l.enterDisconnected()
		l.mu.Unlock()
		logger.Warnw("connect failed", "identifier", identifier, "error", err)
		notify(fns)
		return fmt.Errorf("connect %s: %w", identifier, err)
	}

	l.state = StateConnected
	l.lastSend = time.Time{}
	fns := append([]func(){}, l.connectFns...)
	l.mu.Unlock()

	logger.Infow("connected", "identifier", identifier)
	notify(fns)
	return nil
}

// Disconnect tears down the link from Connecting or Connected. It does not
// wait for in-flight operations. It is a no-op in Idle and Disconnected.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.state != StateConnecting && l.state != StateConnected {
		l.mu.Unlock()
		return nil
	}
	wasConnected := l.state == StateConnected
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	fns := l.enterDisconnected()
	logger := l.logger
	l.mu.Unlock()

	logger.Infow("disconnected", "reason", "requested")

	var err error
	if wasConnected {
		err = l.transport.Disconnect()
	}
	notify(fns)
	return err
}

// HandleLinkLost implements TransportHandler. A loss reported while
// Connecting fails the pending Connect.
func (l *Link) HandleLinkLost(err error) {
	l.mu.Lock()
	if l.state == StateConnecting {
		l.lostErr = err
		l.mu.Unlock()
		return
	}
	if l.state != StateConnected {
		l.mu.Unlock()
		return
	}
	fns := l.enterDisconnected()
	logger := l.logger
	l.mu.Unlock()

	logger.Warnw("link lost", "error", err)
	notify(fns)
}

// enterDisconnected must be called with mu held. It returns the observers
// to notify once the lock is released.
func (l *Link) enterDisconnected() []func() {
	l.state = StateDisconnected
	l.lines.Reset()
	return append([]func(){}, l.disconnectFns...)
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// ============================================================
// Inbound
// ============================================================

// HandleNotify implements TransportHandler. Raw observers see the bytes
// first; the bytes are then reassembled into lines and each complete line is
// parsed and delivered to the telemetry observers.
func (l *Link) HandleNotify(data []byte) {
	l.mu.Lock()
	if l.state != StateConnecting && l.state != StateConnected {
		l.mu.Unlock()
		return
	}
	l.stats.RecordNotify(len(data))
	rawFns := append([]func([]byte){}, l.rawFns...)
	l.mu.Unlock()

	for _, fn := range rawFns {
		fn(data)
	}

	l.mu.Lock()
	if l.state != StateConnecting && l.state != StateConnected {
		// Disconnected from a raw observer
		l.mu.Unlock()
		return
	}

	var snapshots []Telemetry
	for _, line := range l.lines.Write(data) {
		t, res := l.parser.Parse(line.Text)
		l.stats.RecordLine(res, line.Truncated)
		l.stats.RecordValidation(ValidateTelemetry(&t))
		if line.Truncated {
			l.logger.Debugw("telemetry line truncated", "capacity", l.lines.Capacity())
		}
		if res.Invalid > 0 || res.Malformed > 0 {
			l.logger.Debugw("telemetry tolerance", "line", line.Text, "invalid", res.Invalid, "malformed", res.Malformed)
		}
		snapshots = append(snapshots, t)
	}
	telemetryFns := append([]func(Telemetry){}, l.telemetryFns...)
	l.mu.Unlock()

	for _, t := range snapshots {
		for _, fn := range telemetryFns {
			fn(t)
		}
	}
}

// ============================================================
// Outbound
// ============================================================

// Tick advances the shaper to now and, when connected and the send interval
// has elapsed, transmits the shaped command. It returns whether a frame was
// written and the transport's write error, if any. A failed write is not
// retried; the next eligible tick sends again.
func (l *Link) Tick(now time.Time) (bool, error) {
	l.mu.Lock()
	out := l.shaper.Tick(now)
	if l.state != StateConnected {
		l.mu.Unlock()
		return false, nil
	}
	if !l.lastSend.IsZero() && now.Sub(l.lastSend) < l.shaper.Config().SendInterval {
		l.mu.Unlock()
		return false, nil
	}
	l.lastSend = now
	mode := l.shaper.Mode()
	l.mu.Unlock()

	if err := l.write(MustEncodeFrame(EncodeCommand(mode, out))); err != nil {
		return false, err
	}
	return true, nil
}

// Send frames a payload and writes it to the transport, bypassing the
// shaper. Payloads whose frame exceeds the link's MaxFrameSize are rejected.
func (l *Link) Send(payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	l.mu.Lock()
	maxFrame := l.maxFrame
	connected := l.state == StateConnected
	l.mu.Unlock()

	if len(frame) > maxFrame {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(frame), maxFrame)
	}
	if !connected {
		return ErrNotConnected
	}
	return l.write(frame)
}

func (l *Link) write(frame []byte) error {
	err := l.transport.Write(frame)

	l.mu.Lock()
	l.stats.RecordSend(err)
	logger := l.logger
	fns := append([]func([]byte){}, l.transmitFns...)
	l.mu.Unlock()

	if err != nil {
		logger.Warnw("write failed", "error", err)
		return err
	}

	logger.Debugw("frame sent", "frame", FormatHex(frame))
	for _, fn := range fns {
		fn(frame)
	}
	return nil
}

// ============================================================
// Command and configuration
// ============================================================

// SetMode selects the command mode
func (l *Link) SetMode(mode Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetMode(mode)
}

// Mode returns the selected command mode
func (l *Link) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shaper.Mode()
}

// SetTarget sets the user setpoint and refreshes the idle-zero timer
func (l *Link) SetTarget(value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetTarget(value, l.now())
}

// Target returns the last setpoint
func (l *Link) Target() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shaper.Target()
}

// Output returns the most recently shaped output value
func (l *Link) Output() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shaper.Output()
}

// SetSendInterval sets the minimum time between transmissions
func (l *Link) SetSendInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetSendInterval(d)
}

// SetIdleZero sets how long a target stays valid without being refreshed
func (l *Link) SetIdleZero(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetIdleZero(d)
}

// SetFilterAlpha sets the low-pass coefficient, clamped to [0, 1]
func (l *Link) SetFilterAlpha(alpha float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetFilterAlpha(alpha)
}

// SetMaxSlewPerSecond sets the slew limit, clamped to >= 0
func (l *Link) SetMaxSlewPerSecond(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetMaxSlewPerSecond(v)
}

// SetDeadbandFraction sets the deadband, clamped to [0, 0.49]
func (l *Link) SetDeadbandFraction(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shaper.SetDeadbandFraction(v)
}

// ShaperConfig returns the effective shaping configuration
func (l *Link) ShaperConfig() ShaperConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shaper.Config()
}

// SetParseOptions replaces the telemetry parse options
func (l *Link) SetParseOptions(opts ParseOptions) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parser.opts = opts
}

// Statistics returns a snapshot of the link statistics
func (l *Link) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := *l.stats
	s.CalculateRates()
	return s
}

// ResetStatistics zeroes the link statistics
func (l *Link) ResetStatistics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Reset()
}

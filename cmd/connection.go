// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// Text and binary messages are both delivered as notification bytes.
type WebSocketConnection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		// Buffer the message and return what fits
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("VESCLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// isWebSocketIdentifier reports whether an identifier names a WebSocket URL
func isWebSocketIdentifier(identifier string) bool {
	return strings.HasPrefix(identifier, "ws://") || strings.HasPrefix(identifier, "wss://")
}

//////////////////////////////////////////////////////////////
// Stream Transport
//////////////////////////////////////////////////////////////

// StreamTransport implements vesc.Transport over a serial port or WebSocket.
// The identifier passed to Connect is a WebSocket URL or a serial device.
type StreamTransport struct {
	baudRate      int
	username      string
	password      string
	skipSSLVerify bool
	logger        *zap.SugaredLogger

	mu      sync.Mutex
	conn    Connection
	handler vesc.TransportHandler
}

// Connect opens the identified connection and starts the reader goroutine
func (t *StreamTransport) Connect(ctx context.Context, identifier string) error {
	var conn Connection
	var err error
	if isWebSocketIdentifier(identifier) {
		conn, err = OpenWebSocketConnection(ctx, identifier, t.username, t.password, t.skipSSLVerify)
	} else {
		conn, err = OpenSerialConnection(identifier, t.baudRate)
	}
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		conn.Close()
		return ctx.Err()
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	handler := t.handler
	t.mu.Unlock()

	go t.readLoop(conn, handler)
	return nil
}

// readLoop delivers notifications until the connection fails or is closed
func (t *StreamTransport) readLoop(conn Connection, handler vesc.TransportHandler) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 && handler != nil {
			handler.HandleNotify(buf[:n])
		}
		if err == nil {
			continue
		}

		t.mu.Lock()
		current := t.conn == conn
		if current {
			t.conn = nil
		}
		t.mu.Unlock()

		// A closed-by-Disconnect connection is not a link loss
		if !current {
			return
		}
		t.logger.Debugw("read failed", "error", err)
		conn.Close()
		if handler != nil {
			handler.HandleLinkLost(err)
		}
		return
	}
}

// Write sends one frame
func (t *StreamTransport) Write(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return vesc.ErrNotConnected
	}
	_, err := conn.Write(frame)
	return err
}

// Subscribe sets the handler for notifications and link loss
func (t *StreamTransport) Subscribe(h vesc.TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Disconnect closes the connection; the reader goroutine exits on its own
func (t *StreamTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connectionTarget resolves the connection flags into a transport
// identifier and a human-readable description
func connectionTarget() (string, string, error) {
	if wsURL != "" {
		return wsURL, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}
	if portName != "" {
		return portName, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}
	return "", "", errors.New("either --port or --url must be specified")
}

// newStreamTransport builds a transport from the connection flags.
// The WebSocket password is resolved here so that reconnects never prompt.
func newStreamTransport(logger *zap.SugaredLogger) (*StreamTransport, error) {
	t := &StreamTransport{
		baudRate:      baudRate,
		username:      wsUsername,
		skipSSLVerify: wsNoSSLVerify,
		logger:        logger,
	}
	if wsURL != "" && wsUsername != "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		t.password = password
	}
	return t, nil
}

// session bundles the link with what the commands need to report on it
type session struct {
	link       *vesc.Link
	identifier string
	info       string
	logger     *zap.SugaredLogger
}

// newSession builds a link on the flag-selected transport without connecting
// it, so commands can register observers first
func newSession(quiet bool) (*session, error) {
	logger, err := newLogger(quiet)
	if err != nil {
		return nil, err
	}

	identifier, info, err := connectionTarget()
	if err != nil {
		return nil, err
	}

	transport, err := newStreamTransport(logger)
	if err != nil {
		return nil, err
	}

	link := vesc.NewLink(transport, linkConfig())
	link.SetLogger(logger)

	return &session{
		link:       link,
		identifier: identifier,
		info:       info,
		logger:     logger,
	}, nil
}

// connect connects the session's link
func (s *session) connect(ctx context.Context) error {
	return s.link.Connect(ctx, s.identifier)
}

// close disconnects the link and flushes the logger
func (s *session) close() {
	s.link.Disconnect()
	s.logger.Sync()
}

// waitForDisconnect returns a channel closed the first time the link
// reports Disconnected
func (s *session) waitForDisconnect() <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	s.link.OnDisconnect(func() {
		once.Do(func() { close(done) })
	})
	return done
}

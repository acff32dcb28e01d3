// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const (
	driveInterval     = 10 * time.Millisecond // shaping tick, well below the send interval
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	telemetryBatchDur = 50 * time.Millisecond
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for commanding a VESC",
	Long: `Command a VESC motor controller via an interactive terminal UI.

Pick a command mode, enter a target value and arm the output. While armed the
target is refreshed continuously and shaped frames are sent at the send
interval. Disarming stops the refresh, so the idle-zero timeout brings the
output back to zero.

Features:
  - Mode selection (current, brake, duty, rpm)
  - Arm/disarm with immediate stop on 's' or Esc
  - Real-time telemetry display
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager handles connection lifecycle, reconnection and the
// periodic shaping tick
type connectionManager struct {
	session *session
	p       *tea.Program
	done    chan struct{}
	lost    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	armed  bool
	target float64
}

func newConnectionManager(s *session) *connectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	cm := &connectionManager{
		session: s,
		done:    make(chan struct{}),
		lost:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.link.OnDisconnect(func() {
		select {
		case cm.lost <- struct{}{}:
		default:
		}
	})

	return cm
}

// setCommand updates the value refreshed by the drive loop
func (cm *connectionManager) setCommand(armed bool, target float64) {
	cm.mu.Lock()
	cm.armed = armed
	cm.target = target
	cm.mu.Unlock()

	if !armed {
		cm.session.link.SetTarget(0)
	}
}

func (cm *connectionManager) command() (bool, float64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.armed, cm.target
}

func runControl(cmd *cobra.Command, args []string) error {
	s, err := newSession(true)
	if err != nil {
		return err
	}

	cm := newConnectionManager(s)

	// Create TUI model with connection manager
	m := initialControlModel(cm, s.info)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	cm.forwardTelemetry()

	go cm.connectLoop()
	go cm.driveLoop()

	_, runErr := p.Run()

	cm.shutdown()
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

func (cm *connectionManager) shutdown() {
	close(cm.done) // Signal goroutines to stop
	cm.cancel()
	cm.session.close()
}

// forwardTelemetry batches telemetry snapshots into the TUI at a fixed rate
func (cm *connectionManager) forwardTelemetry() {
	batchChan := make(chan controlTelemetryMsg, 100)

	cm.session.link.OnTelemetry(func(t vesc.Telemetry) {
		select {
		case batchChan <- controlTelemetryMsg{
			telemetry:        t,
			validationErrors: vesc.ValidateTelemetry(&t),
		}:
		default:
		}
	})

	go func() {
		ticker := time.NewTicker(telemetryBatchDur)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-ticker.C:
				var batch controlBatchMsg

				// Drain all available messages from batch channel
			drainLoop:
				for {
					select {
					case msg := <-batchChan:
						batch.messages = append(batch.messages, msg)
					default:
						break drainLoop
					}
				}

				if len(batch.messages) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()
}

// connectLoop keeps the link connected, reconnecting with exponential
// backoff whenever it drops
func (cm *connectionManager) connectLoop() {
	backoff := initialBackoff

	for {
		err := cm.session.connect(cm.ctx)
		if err == nil {
			backoff = initialBackoff
			cm.p.Send(reconnectedMsg{connInfo: cm.session.info})

			select {
			case <-cm.done:
				return
			case <-cm.lost:
			}

			// Drop the output until an operator re-arms on the new link
			cm.setCommand(false, 0)
			cm.p.Send(connectionLostMsg{})
		} else {
			cm.p.Send(connectFailedMsg{err: err, retryIn: backoff})
		}

		// A failed attempt also reports a disconnect
		select {
		case <-cm.lost:
		default:
		}

		select {
		case <-cm.done:
			return
		case <-time.After(backoff):
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// driveLoop refreshes the armed target and ticks the link
func (cm *connectionManager) driveLoop() {
	ticker := time.NewTicker(driveInterval)
	defer ticker.Stop()

	link := cm.session.link
	for {
		select {
		case <-cm.done:
			return
		case now := <-ticker.C:
			if armed, target := cm.command(); armed {
				link.SetTarget(target)
			}
			if _, err := link.Tick(now); err != nil {
				cm.p.Send(sendFailedMsg{err: err})
			}
		}
	}
}

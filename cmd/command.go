// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/spf13/cobra"
)

var (
	commandMode     string
	commandValue    float64
	commandDuration time.Duration
	commandTimeout  int
	commandQuiet    bool
)

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Hold a motor command for a fixed time, then let it return to zero",
	Long: `Send a shaped motor command for --duration and then stop refreshing it.

The target is refreshed on every tick while the command is held. Once the hold
ends, the idle-zero timeout drives the output back to zero and the command
waits until a zero frame has been sent. Each transmitted frame is decoded and
printed.

Exit codes:
  0 - Command held and returned to zero
  1 - Send failures, or no zero frame before the timeout
  2 - Connection error`,
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
	commandCmd.Flags().StringVar(&commandMode, "mode", "current", "Command mode (current, brake, duty, rpm)")
	commandCmd.Flags().Float64Var(&commandValue, "value", 0, "Target value in mode units")
	commandCmd.Flags().DurationVar(&commandDuration, "duration", 2*time.Second, "How long to hold the target")
	commandCmd.Flags().IntVar(&commandTimeout, "timeout", 5, "Timeout in seconds to connect and to return to zero")
	commandCmd.Flags().BoolVarP(&commandQuiet, "quiet", "q", false, "Only print the summary")
}

// transmitLog tracks the frames a link has sent
type transmitLog struct {
	mu        sync.Mutex
	frames    int
	lastValue float64
	haveValue bool
}

func (t *transmitLog) record(cmd vesc.Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	t.lastValue = cmd.Value
	t.haveValue = true
}

// zeroSent reports whether the most recent frame commanded zero
func (t *transmitLog) zeroSent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.haveValue && t.lastValue == 0
}

func runCommand(cmd *cobra.Command, args []string) error {
	mode, err := vesc.ParseMode(commandMode)
	if err != nil {
		return err
	}

	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	link := s.link
	link.SetMode(mode)

	var sent transmitLog
	link.OnTransmit(func(frame []byte) {
		packet, err := vesc.ParseFrame(frame)
		if err != nil {
			return
		}
		c, err := vesc.ParseCommand(packet.Payload())
		if err != nil {
			return
		}
		sent.record(c)
		if !commandQuiet {
			fmt.Print(vesc.FormatPacket(packet))
		}
	})

	timeout := time.Duration(commandTimeout) * time.Second

	fmt.Printf("VESCLink - Command\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Command: %s %g %s for %s\n\n", mode, commandValue, mode.Unit(), commandDuration)

	connectCtx, cancel := context.WithTimeout(context.Background(), timeout)
	err = s.connect(connectCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		s.close()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	lost := s.waitForDisconnect()

	ticker := time.NewTicker(driveInterval)
	defer ticker.Stop()

	start := time.Now()
	holdUntil := start.Add(commandDuration)
	deadline := holdUntil.Add(timeout)
	sendErrors := 0
	interrupted := false

	for {
		var now time.Time
		select {
		case <-ctx.Done():
			// Stop holding right away and wait for zero
			if !interrupted {
				interrupted = true
				holdUntil = time.Now()
				deadline = holdUntil.Add(timeout)
			}
			ctx = context.Background()
			continue
		case <-lost:
			fmt.Fprintf(os.Stderr, "Connection lost\n")
			s.close()
			os.Exit(2)
		case now = <-ticker.C:
		}

		holding := now.Before(holdUntil)
		if holding {
			link.SetTarget(commandValue)
		}

		if _, err := link.Tick(now); err != nil {
			sendErrors++
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		}

		if !holding && sent.zeroSent() {
			break
		}
		if now.After(deadline) {
			break
		}
	}

	stats := link.Statistics()

	// Summary
	fmt.Printf("\n--- Command statistics ---\n")
	fmt.Printf("%d frames sent, %d send errors, %d telemetry lines, %s elapsed\n",
		stats.FramesSent, stats.WriteErrors, stats.LinesParsed, time.Since(start).Round(time.Millisecond))

	if !sent.zeroSent() {
		fmt.Fprintf(os.Stderr, "TIMEOUT: output did not return to zero within %d seconds\n", commandTimeout)
		s.close()
		os.Exit(1)
	}
	if sendErrors > 0 {
		s.close()
		os.Exit(1)
	}
	return nil
}

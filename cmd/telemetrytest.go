// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/spf13/cobra"
)

var (
	telemetryTestTimeout int
)

var telemetryTestCmd = &cobra.Command{
	Use:   "telemetry_test",
	Short: "Test connection by waiting for a telemetry line",
	Long: `Wait for a telemetry line on the connection until timeout.

This command connects to a serial port or WebSocket and waits for a complete
telemetry line with at least one recognized field. Partial lines and lines
without known fields are ignored.

Exit codes:
  0 - Telemetry received before timeout
  1 - Timeout reached without receiving telemetry
  2 - Connection error

Useful for testing connectivity to the controller or a WebSocket bridge.`,
	RunE: runTelemetryTest,
}

func init() {
	rootCmd.AddCommand(telemetryTestCmd)
	telemetryTestCmd.Flags().IntVar(&telemetryTestTimeout, "timeout", 10, "Timeout in seconds to wait for telemetry")
}

func runTelemetryTest(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	telemetryChan := make(chan vesc.Telemetry, 1)
	s.link.OnTelemetry(func(t vesc.Telemetry) {
		if t.SetCount() == 0 {
			return
		}
		select {
		case telemetryChan <- t:
		default:
		}
	})
	lost := s.waitForDisconnect()

	timeout := time.Duration(telemetryTestTimeout) * time.Second

	fmt.Printf("VESCLink - Telemetry Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds\n", telemetryTestTimeout)
	fmt.Printf("Waiting for telemetry...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		s.close()
		os.Exit(2)
	}

	select {
	case t := <-telemetryChan:
		stats := s.link.Statistics()
		fmt.Printf("SUCCESS: Received telemetry\n")
		fmt.Printf("  Fields: %d\n", t.SetCount())
		fmt.Printf("  Lines: %d (%d truncated)\n", stats.LinesParsed, stats.LinesTruncated)
		fmt.Print(vesc.FormatTelemetry(&t))
		s.close()
		os.Exit(0)

	case <-lost:
		fmt.Fprintf(os.Stderr, "Connection lost\n")
		s.close()
		os.Exit(2)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No telemetry received within %d seconds\n", telemetryTestTimeout)
		s.close()
		os.Exit(1)
	}

	return nil
}

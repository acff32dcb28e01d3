// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
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
	recordOut   string
	recordCount int
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record telemetry snapshots to a CBOR file",
	Long: `Record every telemetry snapshot received from the controller to a file.

Snapshots are written as a CBOR sequence that the replay command reads back.
Recording stops on Ctrl+C, when the connection is lost, or after --count
snapshots.

Supports both serial and WebSocket connections.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "", "Output file (required)")
	recordCmd.Flags().IntVar(&recordCount, "count", 0, "Stop after this many snapshots (0 for no limit)")
	recordCmd.MarkFlagRequired("out")
}

func runRecord(cmd *cobra.Command, args []string) error {
	f, err := os.Create(recordOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", recordOut, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	writer := vesc.NewTelemetryWriter(buf)

	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		mu       sync.Mutex
		written  int
		writeErr error
	)
	full := make(chan struct{})

	s.link.OnTelemetry(func(t vesc.Telemetry) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil || (recordCount > 0 && written >= recordCount) {
			return
		}
		if err := writer.Write(&t); err != nil {
			writeErr = err
			s.logger.Errorw("recording failed", "error", err)
			stop()
			return
		}
		written++
		if recordCount > 0 && written == recordCount {
			close(full)
		}
	})
	lost := s.waitForDisconnect()

	if err := s.connect(ctx); err != nil {
		return err
	}

	fmt.Printf("Recording telemetry from %s to %s (Ctrl+C to stop)...\n", s.info, recordOut)
	start := time.Now()

	select {
	case <-ctx.Done():
	case <-lost:
		fmt.Fprintf(os.Stderr, "Connection lost\n")
	case <-full:
	}

	s.link.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if err := buf.Flush(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", recordOut, writeErr)
	}

	fmt.Printf("Recorded %d snapshots in %s\n", written, time.Since(start).Round(time.Millisecond))
	return nil
}

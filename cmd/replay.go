// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/spf13/cobra"
)

var (
	replayValidate bool
	replayRealtime bool
	replayOneLine  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print telemetry from a recording",
	Long: `Print the telemetry snapshots stored in a file written by the record command.

With --validate, each snapshot is checked for implausible values and a
statistics summary is printed at the end. With --realtime, snapshots are
printed with their original spacing.

Does not open a connection.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayValidate, "validate", false, "Validate each snapshot")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Replay with original timing")
	replayCmd.Flags().BoolVar(&replayOneLine, "line", false, "Print one line per snapshot")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	reader := vesc.NewTelemetryReader(bufio.NewReader(f))
	stats := vesc.NewStatistics()

	var previous time.Time
	count := 0
	for {
		t, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("snapshot %d: %w", count+1, err)
		}
		count++

		if replayRealtime && !previous.IsZero() {
			if gap := t.Timestamp.Sub(previous); gap > 0 {
				time.Sleep(gap)
			}
		}
		previous = t.Timestamp

		if replayOneLine {
			fmt.Println(vesc.FormatTelemetryLine(&t))
		} else {
			fmt.Print(vesc.FormatTelemetry(&t))
		}

		if replayValidate {
			validationErrors := vesc.ValidateTelemetry(&t)
			stats.RecordValidation(validationErrors)
			if len(validationErrors) > 0 {
				printValidationErrors(&t, validationErrors)
			}
		}
	}

	fmt.Printf("\n%d snapshots\n", count)
	if replayValidate {
		fmt.Printf("%d anomalous (voltage: %d, duty: %d, high ERPM: %d, temp: %d, faults: %d)\n",
			stats.Anomalies, stats.VoltageOOR, stats.DutyOOR, stats.HighERPM, stats.TempOOR, stats.Faults)
	}
	return nil
}

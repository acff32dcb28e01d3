// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor telemetry for anomalies and link errors",
	Long: `Track telemetry quality and implausible values with statistics.

This command validates each telemetry snapshot and detects:
  - Out-of-range voltage, duty cycle and temperatures
  - Excessive ERPM
  - Controller fault codes
  - Truncated lines, unknown keys and unparseable values

By default, only anomalies are displayed. Use --show-all to display every
snapshot too.

Snapshots are validated in real-time, with anomalies highlighted immediately
and periodic statistics summaries displayed at configurable intervals.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all snapshots (not just anomalies)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, err := newSession(useTUI)
	if err != nil {
		return err
	}
	defer s.close()

	if useTUI {
		return runMonitorTUI(s)
	}
	return runMonitorText(s)
}

// printValidationErrors prints the anomalies of a snapshot in highlighted format
func printValidationErrors(t *vesc.Telemetry, errors []vesc.ValidationError) {
	timestamp := t.Timestamp.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %d issue(s)\n", timestamp, len(errors))

	for i, err := range errors {
		switch err.Type {
		case vesc.AnomalyFault:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case vesc.AnomalyTemperature:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if field, ok := err.Details["field"].(string); ok {
				fmt.Printf("    field=%s\n", field)
			}

		case vesc.AnomalyHighERPM, vesc.AnomalyVoltage, vesc.AnomalyDuty:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  %s\n\n", vesc.FormatTelemetryLine(t))
}

// runMonitorText runs the monitor in text mode
func runMonitorText(s *session) error {
	fmt.Printf("VESCLink - Telemetry Monitor\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All snapshots\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	telemetryChan := make(chan vesc.Telemetry, 64)
	s.link.OnTelemetry(func(t vesc.Telemetry) {
		select {
		case telemetryChan <- t:
		default:
			s.logger.Warnw("monitor falling behind, snapshot dropped")
		}
	})
	disconnected := s.waitForDisconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.connect(ctx); err != nil {
		return err
	}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	first := true
	for {
		select {
		case t := <-telemetryChan:
			if first {
				first = false
				fmt.Printf("[SYNC] First telemetry line received\n\n")
			}

			validationErrors := vesc.ValidateTelemetry(&t)
			if len(validationErrors) > 0 {
				printValidationErrors(&t, validationErrors)
			} else if showAll {
				fmt.Printf("[%s] %s\n", t.Timestamp.Format("15:04:05.000"), vesc.FormatTelemetryLine(&t))
			}

		case <-statsTicker.C:
			stats := s.link.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-disconnected:
			fmt.Printf("\nConnection lost\n")
			stats := s.link.Statistics()
			fmt.Print(stats.String())
			return nil

		case <-ctx.Done():
			stats := s.link.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}

// runMonitorTUI runs the monitor in TUI mode
func runMonitorTUI(s *session) error {
	m := initialModel(s, statsInterval, showAll)
	p := tea.NewProgram(m)

	s.link.OnTelemetry(func(t vesc.Telemetry) {
		p.Send(telemetryMsg{telemetry: t, validationErrors: vesc.ValidateTelemetry(&t)})
	})
	s.link.OnConnect(func() { p.Send(linkStateMsg{state: vesc.StateConnected}) })
	s.link.OnDisconnect(func() { p.Send(linkStateMsg{state: vesc.StateDisconnected}) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

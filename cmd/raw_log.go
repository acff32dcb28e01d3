// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/spf13/cobra"
)

var rawLogFrames bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw notifications and parsed telemetry",
	Long: `Continuously display every notification received from the controller link.

Each notification is shown as hex with its printable text, followed by the
telemetry snapshot parsed from every completed line.

With --frames, inbound bytes are also run through the VESC frame decoder,
which is useful on links that echo command frames back.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogFrames, "frames", false, "Decode inbound VESC frames")
}

// printableText returns data as a quoted string with non-printable bytes escaped
func printableText(data []byte) string {
	return strconv.QuoteToASCII(string(data))
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	decoder := vesc.NewDecoder(vesc.DefaultMaxFrameSize)

	s.link.OnRawNotify(func(data []byte) {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Printf("[%s] RX %d bytes: %s\n", timestamp, len(data), vesc.FormatHex(data))
		fmt.Printf("  Text: %s\n", printableText(data))

		if !rawLogFrames {
			return
		}
		for _, b := range data {
			packet, err := decoder.DecodeByte(b)
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				fmt.Print(vesc.FormatPacket(packet))
			}
		}
	})
	s.link.OnTelemetry(func(t vesc.Telemetry) {
		fmt.Print(vesc.FormatTelemetry(&t))
		fmt.Println()
	})
	disconnected := s.waitForDisconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("VESCLink - Raw Log\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := s.connect(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-disconnected:
		s.logger.Infow("connection closed")
	}
	return nil
}

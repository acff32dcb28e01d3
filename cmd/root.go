// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	debugLogging bool
	logFile      string

	// Shaping and parsing flags
	sendInterval  time.Duration
	idleZero      time.Duration
	filterAlpha   float64
	maxSlew       float64
	deadband      float64
	strictNumbers bool
)

var rootCmd = &cobra.Command{
	Use:   "vesclink",
	Short: "VESC Motor Controller Link",
	Long: `VESCLink - A CLI tool for commanding VESC motor controllers over a byte-stream
link and monitoring the telemetry lines they send back.

Commands are shaped (mode clamp, deadband, low-pass filter, slew limit,
idle-zero) and sent as VESC frames at a fixed interval. Telemetry arrives as
key=value text lines.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the VESCLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Logs go to stderr. TUI commands discard them unless --log-file is given.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file")

	// Shaping and parsing flags
	defaults := vesc.DefaultShaperConfig()
	rootCmd.PersistentFlags().DurationVar(&sendInterval, "send-interval", defaults.SendInterval, "Minimum time between command frames")
	rootCmd.PersistentFlags().DurationVar(&idleZero, "idle-zero", defaults.IdleZero, "Force output to zero when the target is older than this")
	rootCmd.PersistentFlags().Float64Var(&filterAlpha, "alpha", defaults.FilterAlpha, "Low-pass filter coefficient (0-1, 1 disables filtering)")
	rootCmd.PersistentFlags().Float64Var(&maxSlew, "slew", defaults.MaxSlewPerSecond, "Maximum output change per second")
	rootCmd.PersistentFlags().Float64Var(&deadband, "deadband", defaults.DeadbandFraction, "Targets smaller than this magnitude are sent as zero")
	rootCmd.PersistentFlags().BoolVar(&strictNumbers, "strict-numbers", false, "Leave telemetry fields unset when their value is not a number")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the zap logger selected by the logging flags.
// quiet discards logs unless --log-file is set (for TUI commands).
func newLogger(quiet bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debugLogging {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	switch {
	case logFile != "":
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	case quiet:
		return zap.NewNop().Sugar(), nil
	default:
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Sugar(), nil
}

// linkConfig returns the link configuration selected by the shaping flags
func linkConfig() vesc.LinkConfig {
	cfg := vesc.DefaultLinkConfig()
	cfg.Shaper = vesc.ShaperConfig{
		DeadbandFraction: deadband,
		FilterAlpha:      filterAlpha,
		MaxSlewPerSecond: maxSlew,
		SendInterval:     sendInterval,
		IdleZero:         idleZero,
	}
	cfg.Parse = vesc.ParseOptions{StrictNumbers: strictNumbers}
	return cfg
}

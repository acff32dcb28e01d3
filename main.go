// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// VESCLink - VESC Motor Controller Link
//
// A CLI tool for sending shaped motor commands to VESC controllers and
// monitoring the telemetry lines they report.

package main

import (
	"os"

	"github.com/Thermoquad/vesclink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

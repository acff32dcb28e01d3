// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "github.com/sigurn/crc16"

// CRC-16-CCITT with zero initial value, MSB first, no final XOR
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CalculateCRC computes the VESC packet checksum for the given payload
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import (
	"fmt"
	"time"
)

// FormatFrame returns a human-readable description of a forward frame
func FormatFrame(f ForwardFrame) string {
	if IsSpecial(f[0]) {
		return fmt.Sprintf("%s data=0x%02X", SpecialCommand(f[0]), f[1])
	}

	addrType, value, command := ParseAddr(f[0])
	if !command {
		return fmt.Sprintf("DAPC %s level=%s", FormatAddress(addrType, value), FormatLevel(f[1]))
	}
	return fmt.Sprintf("%s %s", FormatAddress(addrType, value), StandardCommand(f[1]))
}

// FormatAddress returns a compact address label such as "A05" or "G03"
func FormatAddress(addrType AddressType, value byte) string {
	switch addrType {
	case ShortAddress:
		return fmt.Sprintf("A%02d", value)
	case GroupAddress:
		return fmt.Sprintf("G%02d", value)
	case BroadcastUnaddressed:
		return "BC-UNADDR"
	default:
		return "BC"
	}
}

// FormatLevel formats an arc power level
func FormatLevel(level byte) string {
	if level == Mask {
		return "MASK"
	}
	return fmt.Sprintf("%d", level)
}

// FormatTransfer formats one bus transfer as a log line
func FormatTransfer(ts time.Time, f ForwardFrame, m Mode) string {
	return fmt.Sprintf("[%s] >> %s  %-10s %s\n", ts.Format("15:04:05.000"), f, m, FormatFrame(f))
}

// FormatReply formats the reply to a with-reply frame as a log line
func FormatReply(ts time.Time, f ForwardFrame, b BackFrame) string {
	return fmt.Sprintf("[%s] << %s  reply to %s\n", ts.Format("15:04:05.000"), b, FormatFrame(f))
}

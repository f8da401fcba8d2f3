// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

// parseTarget reads a bus address: a short address 0-63, gN for group N,
// "all" or "unaddressed"
func parseTarget(s string) (dali.AddressType, byte, error) {
	switch strings.ToLower(s) {
	case "all", "broadcast":
		return dali.BroadcastAll, 0, nil
	case "unaddressed":
		return dali.BroadcastUnaddressed, 0, nil
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(s), "g"); ok {
		n, err := strconv.ParseUint(rest, 10, 8)
		if err != nil || n > dali.MaxGroupAddress {
			return 0, 0, fmt.Errorf("invalid group %q (g0 to g%d)", s, dali.MaxGroupAddress)
		}
		return dali.GroupAddress, byte(n), nil
	}

	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || n > dali.MaxShortAddress {
		return 0, 0, fmt.Errorf("invalid short address %q (0 to %d)", s, dali.MaxShortAddress)
	}
	return dali.ShortAddress, byte(n), nil
}

// parseByte reads a decimal or 0x-prefixed byte
func parseByte(name, s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return byte(n), nil
}

// parseBytes reads each argument as a byte
func parseBytes(name string, args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, a := range args {
		b, err := parseByte(name, a)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

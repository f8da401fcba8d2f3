// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test <hex>",
	Short: "Encode a forward frame or decode a receive window offline",
	Long: `Exercise the bus codec without a bus.

Two bytes of hex are taken as a forward frame: the frame is described and
its TE timeline printed for every transmit mode.

Longer input is taken as a raw receive window of TE samples. The forward
frame at its start and the back frame in the reply region are decoded.

Examples:
  dalistat frame_test FEC8
  dalistat frame_test "$(cat window.hex)"`,
	Args: cobra.ExactArgs(1),
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	raw, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(args[0]))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	if len(raw) == 2 {
		encodeFrame(dali.ForwardFrame{raw[0], raw[1]})
		return nil
	}
	return decodeWindow(raw)
}

func encodeFrame(f dali.ForwardFrame) {
	fmt.Printf("Frame:   %s\n", f)
	fmt.Printf("Meaning: %s\n\n", dali.FormatFrame(f))

	te := manchester.Encode(f[:])
	fmt.Printf("TE timeline (%d bytes):\n%s\n", len(te), formatTE(te))

	for _, m := range []dali.Mode{dali.ModeNoReply, dali.ModeWithReply, dali.ModeTwice, dali.ModeDAPC} {
		tx, rx := m.BufferLens()
		fmt.Printf("  %-10s tx=%3d rx=%3d\n", m, tx, rx)
	}
}

func decodeWindow(window []byte) error {
	fmt.Printf("Window: %d bytes\n\n", len(window))

	payload, consumed, err := manchester.DecodeForwardFrame(window, 2)
	if err != nil {
		fmt.Printf("Forward frame: \033[1;31m%v\033[0m\n", err)
	} else {
		f := dali.ForwardFrame{payload[0], payload[1]}
		fmt.Printf("Forward frame: %s  %s (%d bytes)\n", f, dali.FormatFrame(f), consumed)
	}

	if len(window) <= dali.ForwardRegion {
		fmt.Printf("Back frame:    no reply region\n")
		return nil
	}
	data, status := manchester.DecodeBackFrame(window[dali.ForwardRegion:], len(window)-dali.ForwardRegion)
	if status == manchester.ValidData {
		fmt.Printf("Back frame:    0x%02X\n", data)
	} else {
		fmt.Printf("Back frame:    %s\n", status)
	}
	return nil
}

// formatTE prints TE samples 16 per line
func formatTE(te []byte) string {
	var s strings.Builder
	for i := 0; i < len(te); i += 16 {
		end := min(i+16, len(te))
		fmt.Fprintf(&s, "  %04X  % X\n", i, te[i:end])
	}
	return s.String()
}

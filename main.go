// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Dalistat - DALI Bus Controller
//
// A CLI tool for commissioning, controlling and monitoring DALI control
// gear through a Manchester bit-bang bus interface.

package main

import (
	"os"

	"github.com/Thermoquad/dalistat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/config"
)

// version is reported by --version and in every log line
const version = "0.4.0"

var (
	configPath string
	logLevel   string

	// Bus selection
	transportName string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "dalistat",
	Short: "DALI bus master and driver telemetry collector",
	Long: `Dalistat - A single-master DALI controller for LED drivers.

Addresses and identifies the control gear on a DALI bus, sets light levels,
reads and writes memory banks, commissions new gear and polls D4i, Dexal
and SR drivers for power and energy.

Bus transports:
  Simulated: --transport sim
  Serial:    --transport bridge --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --transport bridge --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the DALISTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&transportName, "transport", "t", "", "Bus transport (bridge or sim)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Bus interface serial port")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Bus interface WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads the configuration file and applies command line flags
// on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Bus.Transport = transportName
	}
	if flags.Changed("port") {
		cfg.Bridge.Port = portName
		if !flags.Changed("transport") {
			cfg.Bus.Transport = "bridge"
		}
	}
	if flags.Changed("baud") {
		cfg.Bridge.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Bridge.URL = wsURL
		if !flags.Changed("transport") {
			cfg.Bus.Transport = "bridge"
		}
	}
	if flags.Changed("username") {
		cfg.Bridge.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Bridge.NoSSLVerify = wsNoSSLVerify
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return cfg, cfg.Validate()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

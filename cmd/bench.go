// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/config"
	"github.com/Thermoquad/dalistat/pkg/bench"
)

var benchTimeout time.Duration

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send bench protocol requests to a running controller",
	Long: `Talk to a controller that serves the bench protocol.

Each request is a fixed six byte frame. The controller runs the request on
its own bus and answers with any data followed by 0x55.

The controller is reached over the serial port from --port (or bench.port in
the configuration file), or over WebSocket with --url.`,
}

var benchReadCmd = &cobra.Command{
	Use:   "read_mb <addr> <bank> <index> <len>",
	Short: "Read memory bank locations",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseBytes("argument", args)
		if err != nil {
			return err
		}
		return withBench(cmd, func(ctx context.Context, c *bench.Client) error {
			data, err := c.ReadMemBank(ctx, v[0], v[1], v[2], v[3])
			if err != nil {
				return err
			}
			fmt.Print(hex.Dump(data))
			return nil
		})
	},
}

var benchWriteCmd = &cobra.Command{
	Use:   "write_mb <addr> <bank> <index> <len> <value>",
	Short: "Write <value> to <len> memory bank locations",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseBytes("argument", args)
		if err != nil {
			return err
		}
		return withBench(cmd, func(ctx context.Context, c *bench.Client) error {
			return c.WriteMemBank(ctx, v[0], v[1], v[2], v[3], v[4])
		})
	},
}

var benchDAPCCmd = &cobra.Command{
	Use:   "dapc <addr> <level>",
	Short: "Set a level; addresses above 63 broadcast",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseBytes("argument", args)
		if err != nil {
			return err
		}
		return withBench(cmd, func(ctx context.Context, c *bench.Client) error {
			return c.SetDAPC(ctx, v[0], v[1])
		})
	},
}

var benchCommissionCmd = &cobra.Command{
	Use:   "commission <addr> <tune>",
	Short: "Commission the only gear on the controller's bus",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseBytes("argument", args)
		if err != nil {
			return err
		}
		return withBench(cmd, func(ctx context.Context, c *bench.Client) error {
			return c.Commission(ctx, v[0], v[1])
		})
	},
}

var benchPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Wait until the controller sees control gear",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBench(cmd, func(ctx context.Context, c *bench.Client) error {
			return c.Poll(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.AddCommand(benchReadCmd, benchWriteCmd, benchDAPCCmd, benchCommissionCmd, benchPollCmd)
	benchCmd.PersistentFlags().DurationVar(&benchTimeout, "timeout", bench.DefaultTimeout, "Response timeout")
}

// withBench connects to the controller and runs f with a client
func withBench(cmd *cobra.Command, f func(context.Context, *bench.Client) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	target := config.BridgeConfig{
		Port: cfg.Bench.Port,
		Baud: cfg.Bench.Baud,
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		target.Port = portName
	}
	if flags.Changed("baud") {
		target.Baud = baudRate
	}
	if flags.Changed("url") {
		target.URL = wsURL
		target.Username = wsUsername
		target.NoSSLVerify = wsNoSSLVerify
	}

	conn, info, err := OpenConnection(cmd.Context(), target)
	if err != nil {
		return err
	}
	defer conn.Close()

	start := time.Now()
	if err := f(cmd.Context(), bench.NewClient(conn, benchTimeout)); err != nil {
		return fmt.Errorf("%s: %w", info, err)
	}
	fmt.Printf("OK (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/logging"
	"github.com/Thermoquad/dalistat/pkg/bridge"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the bus interface and report round-trip times",
	Long: `Send ping requests to the bus interface and print the uptime it reports
with the round-trip time of each request.

Exit status is non-zero when no ping was answered.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 4, "Number of pings")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "Time between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, info, err := OpenConnection(cmd.Context(), cfg.Bridge)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)
	defer log.Close()

	t := bridge.New(conn, bridge.WithLogger(log.Logger))
	defer t.Close()

	fmt.Printf("Dalistat - Ping\n")
	fmt.Printf("Connection: %s\n\n", info)

	answered := 0
	var total time.Duration
	for i := 0; i < pingCount; i++ {
		if i > 0 {
			time.Sleep(pingInterval)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		start := time.Now()
		uptime, err := t.Ping(ctx)
		rtt := time.Since(start)
		cancel()

		if err != nil {
			fmt.Printf("ping %d: \033[1;31m%v\033[0m\n", i+1, err)
			continue
		}
		answered++
		total += rtt
		fmt.Printf("ping %d: rtt=%s uptime=%s\n", i+1, rtt.Round(time.Microsecond), formatUptime(uptime))
	}

	fmt.Printf("\n%d/%d answered", answered, pingCount)
	if answered > 0 {
		fmt.Printf(", average rtt %s", (total / time.Duration(answered)).Round(time.Microsecond))
	}
	fmt.Println()

	if answered == 0 {
		return fmt.Errorf("no ping answered")
	}
	return nil
}

// formatUptime renders an uptime as days, hours, minutes and seconds
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %02ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

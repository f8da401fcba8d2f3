// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/config"
	"github.com/Thermoquad/dalistat/internal/daemon"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for setting levels and watching drivers",
	Long: `Control the DALI bus via an interactive terminal UI.

Features:
  - Driver list from the stored network table, plus broadcast
  - Direct arc power level entry (0-254)
  - Live bus statistics
  - Telemetry of the selected driver, polled in the background
  - Event log of finished and failed tasks

Tab switches between the driver list, the level input and the send button.
Arrow keys navigate the driver list. Logging is disabled while the TUI runs.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true, func(c *config.Config) {
		c.Logging.Output = "none"
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	d := daemon.New(s.sched, s.cfg.Bus.TickInterval,
		daemon.WithStore(s.store),
		daemon.WithTelemetry(s.cfg.Telemetry.Interval, s.cfg.Telemetry.Drivers))
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	m := initialControlModel(s.sched, s.stats, s.info)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()

	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

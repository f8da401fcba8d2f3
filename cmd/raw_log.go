// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/daemon"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
)

var rawLogErrorsOnly bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display every bus transfer in human-readable format",
	Long: `Run the controller and print every forward frame as it is sent, followed
by the decoded reply of each query.

Telemetry is polled as in the daemon so that the log shows live traffic.
Replies that decode as corrupt or incomplete are highlighted. With
--errors-only, only those are shown.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogErrorsOnly, "errors-only", false, "Only show corrupt or incomplete replies")
}

// trafficPrinter writes bus traffic to stdout
type trafficPrinter struct {
	errorsOnly bool
}

func (p trafficPrinter) FrameSent(f dali.ForwardFrame, m dali.Mode) {
	if p.errorsOnly {
		return
	}
	fmt.Print(dali.FormatTransfer(time.Now(), f, m))
}

func (p trafficPrinter) ReplyReceived(f dali.ForwardFrame, b dali.BackFrame) {
	switch b.Status {
	case manchester.Corrupt, manchester.Incomplete:
		fmt.Printf("\033[1;31m%s\033[0m", dali.FormatReply(time.Now(), f, b))
	default:
		if !p.errorsOnly {
			fmt.Print(dali.FormatReply(time.Now(), f, b))
		}
	}
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()
	s.link.AddObserver(trafficPrinter{errorsOnly: rawLogErrorsOnly})

	fmt.Printf("Dalistat - Raw Bus Log\n")
	fmt.Printf("Bus: %s\n", s.info)
	fmt.Printf("Drivers: %d\n", s.sched.Drivers())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(s.sched, s.cfg.Bus.TickInterval,
		daemon.WithLogger(s.log.Logger),
		daemon.WithTelemetry(s.cfg.Telemetry.Interval, s.cfg.Telemetry.Drivers))
	err = d.Run(ctx)

	fmt.Printf("\n%s", s.stats.String())
	return err
}

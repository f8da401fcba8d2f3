// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/daemon"
	"github.com/Thermoquad/dalistat/internal/metrics"
	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/bench"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

var autoAddress bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller daemon",
	Long: `Run the bus controller until interrupted.

The daemon opens the bus, loads the network table from the table store and
ticks the scheduler every bus.tick_interval. Every identified driver is
polled once per telemetry.interval; each reading is published to MQTT and
InfluxDB when those are enabled, and exported on /metrics.

When bench.port is set, bench requests arriving on that serial port are run
on the bus. A finished identification, whether requested over the bench
port or run with --auto-address, replaces the stored table.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&autoAddress, "auto-address", false, "Address and identify the bus when no table is stored")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()
	log := s.log

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("dalistat starting", "bus", s.info, "drivers", s.sched.Drivers(), "table", s.store.Path())

	opts := []daemon.Option{
		daemon.WithLogger(log.With("component", "daemon").Logger),
		daemon.WithStore(s.store),
		daemon.WithTelemetry(s.cfg.Telemetry.Interval, s.cfg.Telemetry.Drivers),
		daemon.WithRecorder(s.recorder),
	}
	if autoAddress && s.sched.Drivers() == 0 {
		log.Info("no drivers known, addressing the bus")
		opts = append(opts, daemon.WithStartup(&scheduler.Address{}, &scheduler.Identify{}))
	}

	pub := publish.NewPublisher(log.With("component", "publish").Logger)
	defer pub.Close()
	if s.cfg.MQTT.Enabled {
		m, err := publish.ConnectMQTT(s.cfg.MQTT, s.cfg.MQTTBrokerURL(), log.With("component", "mqtt").Logger)
		if err != nil {
			return err
		}
		pub.Add(m)
	}
	if s.cfg.InfluxDB.Enabled {
		i, err := publish.ConnectInflux(ctx, s.cfg.InfluxDB, log.With("component", "influxdb").Logger)
		if err != nil {
			return err
		}
		pub.Add(i)
	}
	if pub.Len() > 0 {
		opts = append(opts, daemon.WithSink(pub))
	}

	if s.cfg.Bench.Port != "" {
		conn, err := OpenSerialConnection(s.cfg.Bench.Port, s.cfg.Bench.Baud)
		if err != nil {
			return err
		}
		defer conn.Close()

		srv := bench.NewServer(s.sched, conn, log.With("component", "bench").Logger)
		go func() {
			if err := srv.Serve(ctx, conn); err != nil && ctx.Err() == nil {
				log.Error("bench port failed", "error", err)
			}
		}()
		opts = append(opts, daemon.WithBench(srv))
		log.Info("bench server listening", "port", s.cfg.Bench.Port)
	}

	if s.cfg.Metrics.Listen != "" {
		stopMetrics := serveMetrics(s.cfg.Metrics.Listen, func(err error) {
			log.Error("metrics server failed", "error", err)
		})
		defer stopMetrics()
		log.Info("metrics listening", "addr", s.cfg.Metrics.Listen)
	}

	return daemon.New(s.sched, s.cfg.Bus.TickInterval, opts...).Run(ctx)
}

// serveMetrics exposes /metrics on addr and returns a function that shuts
// the listener down
func serveMetrics(addr string, onError func(error)) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onError(err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

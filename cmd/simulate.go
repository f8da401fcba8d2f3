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

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/daemon"
	"github.com/Thermoquad/dalistat/internal/logging"
	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/bridge"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

var (
	simGear  int
	simSeed  int64
	simServe string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Address, identify and measure a simulated bus",
	Long: `Run the addressing and identification flow against virtual gear and
measure every identified driver.

The gear are D4i, Dexal and plain DALI in turn, with random addresses drawn
from --seed. Nothing is saved.

With --serve, the simulated bus is instead offered to other dalistat
instances over WebSocket at ws://<addr>/bus, using the same framing as a
real bus interface:

  dalistat simulate --serve :8080
  dalistat run --url ws://localhost:8080/bus`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simGear, "gear", 3, "Number of virtual gear")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Random address seed")
	simulateCmd.Flags().StringVar(&simServe, "serve", "", "Serve the bus over WebSocket on this address")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simGear < 0 || simGear > dali.MaxShortAddress+1 {
		return fmt.Errorf("--gear must be between 0 and %d", dali.MaxShortAddress+1)
	}
	bus := simbus.New(simbus.Fleet(simGear, simSeed), simbus.WithLogLimit(1024))

	if simServe != "" {
		return serveBus(cmd.Context(), bus)
	}

	stats := dali.NewStatistics()
	sched := scheduler.New(dali.NewLink(bus, stats))
	ctx := cmd.Context()
	const tick = time.Millisecond

	fmt.Printf("Dalistat - Simulation\n")
	fmt.Printf("Gear: %d (seed %d)\n\n", simGear, simSeed)

	start := time.Now()
	r, err := daemon.RunTask(ctx, sched, &scheduler.Address{}, tick)
	if err != nil {
		fmt.Printf("Address: \033[1;31m%v\033[0m\n", err)
	}
	fmt.Printf("Address:  %d gear in %s\n", r.Count, time.Since(start).Round(time.Millisecond))

	start = time.Now()
	r, err = daemon.RunTask(ctx, sched, &scheduler.Identify{}, tick)
	if err != nil {
		fmt.Printf("Identify: \033[1;31m%v\033[0m\n", err)
	}
	fmt.Printf("Identify: %d driver(s) in %s\n\n", r.Count, time.Since(start).Round(time.Millisecond))
	printTable(sched)
	fmt.Println()

	for i := 0; i < sched.Drivers(); i++ {
		for _, t := range []scheduler.Task{
			&scheduler.GetPower{Index: i},
			&scheduler.GetEnergy{Index: i},
			&scheduler.GetOutputVoltage{Index: i},
			&scheduler.GetOutputCurrent{Index: i},
			&scheduler.GetGearTemperature{Index: i},
		} {
			if _, err := daemon.RunTask(ctx, sched, t, tick); err != nil {
				fmt.Printf("driver %d: %s failed: %v\n", i, t.Kind(), err)
			}
		}
		printMeasurement(publish.Snapshot(sched, i, time.Now()))
	}

	fmt.Printf("\n%s", stats.String())
	return nil
}

// serveBus offers bus to bridge clients over WebSocket until interrupted
func serveBus(ctx context.Context, bus dali.Transport) error {
	log := logging.NewWithWriter(os.Stderr, "info", "text", version)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := bridge.NewServer(bus, log.Logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bus", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		log.Info("client connected", "remote", r.RemoteAddr)
		err = srv.Serve(ctx, &WebSocketConnection{conn: conn})
		log.Info("client disconnected", "remote", r.RemoteAddr, "error", err)
	})

	httpSrv := &http.Server{Addr: simServe, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdown)
	}()

	fmt.Printf("Serving %d simulated gear on ws://%s/bus\n", simGear, simServe)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

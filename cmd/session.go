// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/config"
	"github.com/Thermoquad/dalistat/internal/daemon"
	"github.com/Thermoquad/dalistat/internal/logging"
	"github.com/Thermoquad/dalistat/internal/metrics"
	"github.com/Thermoquad/dalistat/internal/store"
	"github.com/Thermoquad/dalistat/pkg/bridge"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

// session is an open bus with a scheduler on top
type session struct {
	cfg      *config.Config
	log      *logging.Logger
	info     string
	bus      dali.Transport
	closer   io.Closer
	stats    *dali.Statistics
	recorder *metrics.Recorder
	link     *dali.Link
	sched    *scheduler.Scheduler
	store    *store.Store
}

// openBus creates the transport selected by cfg
func openBus(ctx context.Context, cfg *config.Config, log *logging.Logger) (dali.Transport, string, io.Closer, error) {
	switch cfg.Bus.Transport {
	case "sim":
		bus := simbus.New(simbus.Fleet(cfg.Bus.SimGear, time.Now().UnixNano()),
			simbus.WithReplyDelay(cfg.Bus.ReplyDelay),
			simbus.WithLogLimit(1024))
		return bus, fmt.Sprintf("Simulated bus: %d gear", cfg.Bus.SimGear), nil, nil

	case "bridge":
		conn, info, err := OpenConnection(ctx, cfg.Bridge)
		if err != nil {
			return nil, "", nil, err
		}
		t := bridge.New(conn,
			bridge.WithTimeout(cfg.Bridge.Timeout),
			bridge.WithLogger(log.With("component", "bridge").Logger))
		return t, info, t, nil
	}
	return nil, "", nil, fmt.Errorf("unknown transport %q", cfg.Bus.Transport)
}

// openSession opens the bus and, with withStore, the network table store.
// A stored table is loaded into the scheduler. adjust may change the
// configuration before anything is opened.
func openSession(cmd *cobra.Command, withStore bool, adjust ...func(*config.Config)) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	for _, f := range adjust {
		f(cfg)
	}
	log := logging.New(cfg.Logging, version)

	bus, info, closer, err := openBus(cmd.Context(), cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		log:      log,
		info:     info,
		bus:      bus,
		closer:   closer,
		stats:    dali.NewStatistics(),
		recorder: metrics.NewRecorder(),
	}
	s.link = dali.NewLink(bus, s.stats, s.recorder)
	s.sched = scheduler.New(s.link,
		scheduler.WithLogger(log.With("component", "scheduler").Logger),
		scheduler.WithTaskObserver(s.recorder))

	if withStore {
		if err := s.openStore(cmd.Context()); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) openStore(ctx context.Context) error {
	st, err := store.Open(ctx, store.Config{
		Path:        s.cfg.Table.Path,
		WALMode:     s.cfg.Table.WALMode,
		BusyTimeout: s.cfg.Table.BusyTimeout,
	})
	if err != nil {
		return err
	}
	s.store = st

	image, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoTable):
		s.log.Info("no stored network table", "path", st.Path())
		return nil
	case err != nil:
		s.log.Warn("stored network table rejected", "error", err)
		return nil
	}
	if err := s.sched.LoadTable(image); err != nil {
		s.log.Warn("stored network table rejected", "error", err)
		return nil
	}
	s.log.Info("network table loaded", "drivers", s.sched.Drivers())
	return nil
}

// run submits t and ticks until it finishes
func (s *session) run(ctx context.Context, t scheduler.Task) (scheduler.Result, error) {
	return daemon.RunTask(ctx, s.sched, t, s.cfg.Bus.TickInterval)
}

// Close releases the store, the transport and the log file
func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.closer != nil {
		s.closer.Close()
	}
	s.log.Close()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package daemon runs the scheduler tick loop together with everything
// that feeds it or consumes its results: the bench server, telemetry
// polling, measurement publishing and network table persistence.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/bench"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

// TableStore persists the network table image
type TableStore interface {
	Save(ctx context.Context, image []byte, session string) error
}

// MeasurementRecorder receives every finished driver measurement
type MeasurementRecorder interface {
	DriverMeasured(index int, family string, watts float32, energy uint64)
}

// Option configures a Daemon
type Option func(*Daemon)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		d.log = l
	}
}

// WithBench answers bench requests through srv
func WithBench(srv *bench.Server) Option {
	return func(d *Daemon) {
		d.bench = srv
	}
}

// WithStore saves the network table to st whenever identification
// finishes
func WithStore(st TableStore) Option {
	return func(d *Daemon) {
		d.store = st
	}
}

// WithTelemetry polls up to drivers drivers every interval
func WithTelemetry(interval time.Duration, drivers int) Option {
	return func(d *Daemon) {
		d.pollInterval = interval
		d.pollDrivers = drivers
	}
}

// WithSink publishes every polled driver to sink
func WithSink(sink publish.Sink) Option {
	return func(d *Daemon) {
		d.sink = sink
	}
}

// WithRecorder reports every polled driver to r
func WithRecorder(r MeasurementRecorder) Option {
	return func(d *Daemon) {
		d.recorder = r
	}
}

// WithStartup queues tasks to run, in order, before polling starts.
// Addressing followed by identification brings up an empty network.
func WithStartup(tasks ...scheduler.Task) Option {
	return func(d *Daemon) {
		d.startup = append(d.startup, tasks...)
	}
}

// Daemon owns the tick loop
type Daemon struct {
	sched *scheduler.Scheduler
	log   *slog.Logger
	tick  time.Duration

	bench    *bench.Server
	store    TableStore
	sink     publish.Sink
	recorder MeasurementRecorder

	pollInterval time.Duration
	pollDrivers  int
	poller       *Poller

	startup []scheduler.Task
	job     *job

	seen  uint64
	saves uint64
}

// New creates a daemon ticking sched every tick
func New(sched *scheduler.Scheduler, tick time.Duration, opts ...Option) *Daemon {
	d := &Daemon{
		sched: sched,
		log:   slog.New(slog.DiscardHandler),
		tick:  tick,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pollInterval > 0 && d.pollDrivers > 0 {
		d.poller = NewPoller(sched, d.pollInterval, d.pollDrivers, d.measured, d.log)
	}
	return d
}

// Run ticks until ctx is done
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("daemon started", "tick", d.tick, "drivers", d.sched.Drivers())
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("daemon stopped")
			return nil
		case now := <-ticker.C:
			d.Step(ctx, now)
		}
	}
}

// Step runs one tick of the loop
func (d *Daemon) Step(ctx context.Context, now time.Time) {
	d.sched.Tick()
	d.checkCompleted(ctx)

	if d.bench != nil {
		if err := d.bench.Tick(); err != nil {
			d.log.Warn("bench response failed", "error", err)
		}
	}

	if d.runStartup() {
		return
	}
	if d.poller != nil {
		d.poller.Step(now)
	}
}

// runStartup reports whether startup tasks are still outstanding
func (d *Daemon) runStartup() bool {
	if d.job != nil {
		r, ok := d.job.result(d.sched)
		if !ok {
			return true
		}
		d.job = nil
		if r.Err != nil {
			d.log.Error("startup task failed", "task", r.Kind, "error", r.Err)
		} else {
			d.log.Info("startup task complete", "task", r.Kind, "count", r.Count)
		}
	}
	if len(d.startup) == 0 {
		return false
	}
	if d.sched.IsTaskRunning() {
		return true
	}

	j, err := submit(d.sched, d.startup[0])
	switch {
	case err == nil:
		d.job = j
		d.startup = d.startup[1:]
	case retryable(err):
	default:
		d.log.Error("startup task rejected", "task", d.startup[0].Kind(), "error", err)
		d.startup = d.startup[1:]
	}
	return true
}

// checkCompleted saves the table after identification, whoever asked for
// it
func (d *Daemon) checkCompleted(ctx context.Context) {
	c := d.sched.Completed()
	if c == d.seen {
		return
	}
	d.seen = c

	r := d.sched.LastResult()
	if r.Kind != scheduler.KindIdentify || d.store == nil {
		return
	}
	session := uuid.NewString()
	if err := d.store.Save(ctx, d.sched.TableImage(), session); err != nil {
		d.log.Error("network table not saved", "error", err)
		return
	}
	d.saves++
	d.log.Info("network table saved", "drivers", r.Count, "session", session)
}

func (d *Daemon) measured(index int, now time.Time) {
	m := publish.Snapshot(d.sched, index, now)
	if d.recorder != nil {
		d.recorder.DriverMeasured(m.Index, m.Family, m.PowerWatts, m.Energy)
	}
	if d.sink != nil {
		if err := d.sink.Publish(m); err != nil && !errors.Is(err, publish.ErrNotConnected) {
			d.log.Warn("measurement not published", "index", index, "error", err)
		}
	}
	d.log.Debug("driver measured", "index", index, "family", m.Family, "watts", m.PowerWatts, "energy", m.Energy)
}

// Saves counts network table saves
func (d *Daemon) Saves() uint64 {
	return d.saves
}

// Poller returns the telemetry poller, or nil when polling is off
func (d *Daemon) Poller() *Poller {
	return d.poller
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package daemon

import (
	"log/slog"
	"time"

	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

// pollTasks are run for every driver in a polling round
var pollTasks = []func(i int) scheduler.Task{
	func(i int) scheduler.Task { return &scheduler.GetPower{Index: i} },
	func(i int) scheduler.Task { return &scheduler.GetEnergy{Index: i} },
	func(i int) scheduler.Task { return &scheduler.GetOutputVoltage{Index: i} },
	func(i int) scheduler.Task { return &scheduler.GetOutputCurrent{Index: i} },
	func(i int) scheduler.Task { return &scheduler.GetGearTemperature{Index: i} },
}

// Poller reads the measurements of every identified driver once per
// interval, one task at a time, and reports each driver when its round is
// done.
type Poller struct {
	sched    *scheduler.Scheduler
	log      *slog.Logger
	interval time.Duration
	drivers  int
	measured func(index int, now time.Time)

	next   time.Time
	active bool
	count  int
	index  int
	step   int
	job    *job
	rounds uint64
}

// NewPoller creates a poller for up to drivers drivers
func NewPoller(sched *scheduler.Scheduler, interval time.Duration, drivers int, measured func(int, time.Time), log *slog.Logger) *Poller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		sched:    sched,
		log:      log,
		interval: interval,
		drivers:  drivers,
		measured: measured,
	}
}

// Step is called once per tick, after Scheduler.Tick
func (p *Poller) Step(now time.Time) {
	if p.job != nil {
		r, ok := p.job.result(p.sched)
		if !ok {
			return
		}
		p.job = nil
		if r.Err != nil {
			p.log.Warn("measurement failed", "task", r.Kind, "index", p.index, "error", r.Err)
		}
		p.advance(now)
		return
	}

	if !p.active {
		if now.Before(p.next) {
			return
		}
		p.count = min(p.drivers, p.sched.Drivers())
		if p.count == 0 {
			p.next = now.Add(p.interval)
			return
		}
		p.active = true
		p.index, p.step = 0, 0
	}

	if p.sched.IsTaskRunning() {
		return
	}
	j, err := submit(p.sched, pollTasks[p.step](p.index))
	if err != nil {
		if !retryable(err) {
			p.log.Warn("measurement rejected", "index", p.index, "error", err)
			p.advance(now)
		}
		return
	}
	p.job = j
}

func (p *Poller) advance(now time.Time) {
	p.step++
	if p.step < len(pollTasks) {
		return
	}
	if p.measured != nil {
		p.measured(p.index, now)
	}
	p.step = 0
	p.index++
	if p.index >= p.count {
		p.active = false
		p.rounds++
		p.next = now.Add(p.interval)
	}
}

// Rounds counts completed polling rounds
func (p *Poller) Rounds() uint64 {
	return p.rounds
}

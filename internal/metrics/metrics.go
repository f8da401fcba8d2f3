// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports bus and driver metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

var (
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dali_frames_sent_total",
			Help: "Forward frames put on the bus, by mode",
		},
		[]string{"mode"})

	backFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dali_back_frames_total",
			Help: "Reply windows decoded, by status",
		},
		[]string{"status"})

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dali_tasks_total",
			Help: "Finished scheduler tasks",
		},
		[]string{"kind", "outcome"})

	taskTicks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dali_task_ticks",
			Help:    "Scheduler ticks spent per task",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		})

	driverPower = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dali_driver_power_watts",
			Help: "Last active power reading of a driver",
		},
		[]string{"index", "family"})

	driverEnergy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dali_driver_energy",
			Help: "Last raw energy counter of a driver",
		},
		[]string{"index"})

	lastCommission = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dali_last_commission_timestamp",
			Help: "Unix time of the last finished commissioning",
		})
)

func init() {
	prometheus.MustRegister(framesSent)
	prometheus.MustRegister(backFrames)
	prometheus.MustRegister(tasks)
	prometheus.MustRegister(taskTicks)
	prometheus.MustRegister(driverPower)
	prometheus.MustRegister(driverEnergy)
	prometheus.MustRegister(lastCommission)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder feeds the collectors. Attach it to a dali.Link as an Observer
// and to a Scheduler as a TaskObserver.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a Recorder
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) FrameSent(_ dali.ForwardFrame, m dali.Mode) {
	framesSent.WithLabelValues(m.String()).Inc()
}

func (r *Recorder) ReplyReceived(_ dali.ForwardFrame, b dali.BackFrame) {
	backFrames.WithLabelValues(b.Status.String()).Inc()
}

func (r *Recorder) TaskFinished(res scheduler.Result, ticks int) {
	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
	}
	tasks.WithLabelValues(res.Kind.String(), outcome).Inc()
	taskTicks.Observe(float64(ticks))
	if res.Kind == scheduler.KindCommission {
		lastCommission.Set(float64(r.now().Unix()))
	}
}

// DriverMeasured records the readings of driver index. A negative watts
// value means the driver does not report power and is not exported.
func (r *Recorder) DriverMeasured(index int, family string, watts float32, energy uint64) {
	idx := strconv.Itoa(index)
	if watts >= 0 {
		driverPower.WithLabelValues(idx, family).Set(float64(watts))
	}
	driverEnergy.WithLabelValues(idx).Set(float64(energy))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

func TestRecorder_LinkTraffic(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 4
	link := dali.NewLink(simbus.New([]*simbus.Gear{g}), NewRecorder())

	before := testutil.ToFloat64(framesSent.WithLabelValues("with_reply"))
	validBefore := testutil.ToFloat64(backFrames.WithLabelValues("valid"))

	link.SendStandardWithReply(dali.ShortAddress, 4, dali.QueryControlGearPresent)
	if err := link.Flush(); err != nil {
		t.Fatal(err)
	}
	link.Reply()

	if got := testutil.ToFloat64(framesSent.WithLabelValues("with_reply")) - before; got != 1 {
		t.Errorf("with_reply frames = %v, want 1", got)
	}
	if got := testutil.ToFloat64(backFrames.WithLabelValues("valid")) - validBefore; got != 1 {
		t.Errorf("valid replies = %v, want 1", got)
	}
}

func TestRecorder_Tasks(t *testing.T) {
	r := NewRecorder()
	r.now = func() time.Time { return time.Unix(1700000000, 0) }

	okBefore := testutil.ToFloat64(tasks.WithLabelValues("set_level", "ok"))
	errBefore := testutil.ToFloat64(tasks.WithLabelValues("read_memory_bank", "error"))

	r.TaskFinished(scheduler.Result{Kind: scheduler.KindSetLevel}, 1)
	r.TaskFinished(scheduler.Result{Kind: scheduler.KindReadMemoryBank, Err: errors.New("no reply")}, 9)
	r.TaskFinished(scheduler.Result{Kind: scheduler.KindCommission}, 40)

	if got := testutil.ToFloat64(tasks.WithLabelValues("set_level", "ok")) - okBefore; got != 1 {
		t.Errorf("set_level ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tasks.WithLabelValues("read_memory_bank", "error")) - errBefore; got != 1 {
		t.Errorf("read_memory_bank error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(lastCommission); got != 1700000000 {
		t.Errorf("last commission = %v", got)
	}
}

func TestRecorder_DriverMeasured(t *testing.T) {
	r := NewRecorder()
	r.DriverMeasured(0, "D4i", 30.5, 1234)
	r.DriverMeasured(1, "DALI", -1, 0xFFFFFFFFFFFF)

	if got := testutil.ToFloat64(driverPower.WithLabelValues("0", "D4i")); got != 30.5 {
		t.Errorf("power = %v, want 30.5", got)
	}
	if got := testutil.ToFloat64(driverEnergy.WithLabelValues("0")); got != 1234 {
		t.Errorf("energy = %v, want 1234", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `dali_driver_power_watts{family="D4i",index="0"} 30.5`) {
		t.Error("D4i power missing from /metrics")
	}
	if strings.Contains(body, `dali_driver_power_watts{family="DALI"`) {
		t.Error("generic driver must not export power")
	}
}

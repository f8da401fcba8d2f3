// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package daemon

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

type memStore struct {
	images   [][]byte
	sessions []string
}

func (m *memStore) Save(_ context.Context, image []byte, session string) error {
	m.images = append(m.images, image)
	m.sessions = append(m.sessions, session)
	return nil
}

type sink struct {
	got []publish.Measurement
}

func (s *sink) Publish(m publish.Measurement) error {
	s.got = append(s.got, m)
	return nil
}

func (s *sink) Close() error { return nil }

type recorder struct {
	calls int
}

func (r *recorder) DriverMeasured(int, string, float32, uint64) { r.calls++ }

func TestDaemon_BringsUpNetworkAndPublishes(t *testing.T) {
	d4i := simbus.NewD4iGear(0x000010, 30, 5000)
	dexal := simbus.NewDexalGear(0x000020, 20, 700)
	sched := scheduler.New(dali.NewLink(simbus.New([]*simbus.Gear{dexal, d4i})))

	st := &memStore{}
	out := &sink{}
	rec := &recorder{}
	d := New(sched, 25*time.Millisecond,
		WithStartup(&scheduler.Address{}, &scheduler.Identify{}),
		WithStore(st),
		WithTelemetry(time.Minute, gear.MaxDrivers),
		WithSink(out),
		WithRecorder(rec),
	)

	now := time.Unix(1700000000, 0)
	for i := 0; len(out.got) < 2; i++ {
		if i > 50000 {
			t.Fatalf("only %d measurements after %d ticks", len(out.got), i)
		}
		d.Step(context.Background(), now)
		now = now.Add(25 * time.Millisecond)
	}

	if len(st.images) != 1 || d.Saves() != 1 {
		t.Fatalf("table saved %d times", len(st.images))
	}
	if err := gear.Validate(st.images[0]); err != nil {
		t.Errorf("saved image: %v", err)
	}
	if st.sessions[0] == "" {
		t.Error("empty session id")
	}

	m := out.got[0]
	if m.Index != 0 || m.Family != "D4i" {
		t.Fatalf("first measurement: %+v", m)
	}
	if math.Abs(float64(m.PowerWatts-30)) > 0.01 {
		t.Errorf("D4i power = %v W, want 30", m.PowerWatts)
	}
	if m.Energy != 5000 || m.Voltage != 230 || m.Current != 350 || m.Temperature != 41 {
		t.Errorf("D4i readings: %+v", m)
	}

	if out.got[1].Family != "Dexal" || !out.got[1].HasPower() {
		t.Errorf("second measurement: %+v", out.got[1])
	}
	if rec.calls != 2 {
		t.Errorf("recorder calls = %d", rec.calls)
	}
	if d.Poller().Rounds() != 1 {
		t.Errorf("rounds = %d", d.Poller().Rounds())
	}
}

func TestPoller_IdleWithoutDrivers(t *testing.T) {
	bus := simbus.New(nil)
	sched := scheduler.New(dali.NewLink(bus))
	p := NewPoller(sched, time.Second, gear.MaxDrivers, nil, nil)

	now := time.Unix(0, 0)
	for i := 0; i < 100; i++ {
		sched.Tick()
		p.Step(now)
		now = now.Add(100 * time.Millisecond)
	}
	if len(bus.Transfers()) != 0 || p.Rounds() != 0 {
		t.Errorf("transfers=%d rounds=%d", len(bus.Transfers()), p.Rounds())
	}
}

func TestRunTask(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 3
	sched := scheduler.New(dali.NewLink(simbus.New([]*simbus.Gear{g})))

	r, err := RunTask(context.Background(), sched,
		&scheduler.SetLevel{AddrType: dali.ShortAddress, Addr: 3, Level: 120}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != scheduler.KindSetLevel || g.Level != 120 {
		t.Errorf("result %+v, gear level %d", r, g.Level)
	}

	r, err = RunTask(context.Background(), sched, &scheduler.PollForControlGear{}, time.Millisecond)
	if err != nil || r.Kind != scheduler.KindPollForControlGear {
		t.Errorf("poll: %+v %v", r, err)
	}
}

func TestRunTask_Cancelled(t *testing.T) {
	sched := scheduler.New(dali.NewLink(simbus.New(nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunTask(ctx, sched, &scheduler.PollForControlGear{}, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

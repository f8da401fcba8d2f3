// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sequence

import (
	"testing"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

type stepper interface {
	Step(l *dali.Link) dali.Progress
}

func tick(t *testing.T, link *dali.Link, s stepper) dali.Progress {
	t.Helper()
	p := s.Step(link)
	if link.Pending() {
		if err := link.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	return p
}

func runToDone(t *testing.T, link *dali.Link, s stepper) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if tick(t, link, s) == dali.Done {
			return
		}
	}
	t.Fatal("sequence never finished")
}

func TestPoll_WaitsForGear(t *testing.T) {
	bus := simbus.New(nil)
	link := dali.NewLink(bus)

	var p Poll
	for i := 0; i < 10; i++ {
		if tick(t, link, &p) == dali.Done {
			t.Fatal("poll finished on an empty bus")
		}
	}

	bus.Attach(simbus.NewGear(1))
	runToDone(t, link, &p)
}

func TestAssign(t *testing.T) {
	g := simbus.NewGear(1)
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	a := Assign{Value: dali.ProgramAddress(12)}
	runToDone(t, link, &a)
	if g.Short != 12 {
		t.Errorf("expected short 12, got %d", g.Short)
	}

	log := bus.Transfers()
	if len(log) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(log))
	}
	if log[1].Frames[0] != (dali.ForwardFrame{0xFF, byte(dali.SetShortAddress)}) || !log[1].Twice {
		t.Errorf("expected SET SHORT ADDRESS twice to broadcast, got %+v", log[1])
	}
}

func TestSingleAddress_Readdresses(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 40
	link := dali.NewLink(simbus.New([]*simbus.Gear{g}))

	s := SingleAddress{Addr: 7}
	runToDone(t, link, &s)
	if g.Short != 7 {
		t.Errorf("expected short 7, got %d", g.Short)
	}
}

func TestCommission(t *testing.T) {
	g := simbus.NewGear(1)
	g.SetBank(TuneBank, make([]byte, 8))
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	c := NewCommission(3, 0x35)
	runToDone(t, link, &c)

	if g.Short != 3 {
		t.Errorf("expected short 3, got %d", g.Short)
	}
	if g.Banks[TuneBank][TuneOffset] != 0x35 {
		t.Errorf("expected tune byte 0x35, got 0x%02X", g.Banks[TuneBank][TuneOffset])
	}
	if g.Level != ReadyLevel {
		t.Errorf("expected level %d, got %d", ReadyLevel, g.Level)
	}

	confirm := dali.BuildDAPC(dali.ShortAddress, 3, ConfirmLevel)
	found := false
	for _, tr := range bus.Transfers() {
		if tr.Frames[0] == confirm {
			found = true
		}
	}
	if !found {
		t.Error("confirmation DAPC not sent")
	}
}

func TestNewCommission_ClampsAddress(t *testing.T) {
	c := NewCommission(100, 1)
	if c.Addr != dali.MaxShortAddress || c.Single.Addr != dali.MaxShortAddress {
		t.Errorf("expected address clamped to %d, got %d", dali.MaxShortAddress, c.Addr)
	}
}

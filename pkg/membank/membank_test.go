// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package membank

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

type stepper interface {
	Step(l *dali.Link) dali.Progress
}

// run ticks s until it is done, flushing after every step the way the
// scheduler does
func run(t *testing.T, link *dali.Link, s stepper) int {
	t.Helper()
	for ticks := 1; ticks < 10000; ticks++ {
		done := s.Step(link)
		if link.Pending() {
			if err := link.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
		}
		if done == dali.Done {
			return ticks
		}
	}
	t.Fatal("operation never finished")
	return 0
}

func newBankGear(short byte) *simbus.Gear {
	g := simbus.NewGear(1)
	g.Short = short
	g.SetBank(202, []byte{0x0C, 0x00, 0x00, 0x01, 0xFD, 0x00, 0x00, 0x00, 0x12, 0x34, 0x56, 0xFE, 0x00, 0x00, 0x03, 0xE8})
	return g
}

// ============================================================
// Read
// ============================================================

func TestRead_Sequential(t *testing.T) {
	g := newBankGear(2)
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	r := NewRead(dali.ShortAddress, 2, 202, 12, 4)
	run(t, link, &r)

	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(r.Data(), []byte{0x00, 0x00, 0x03, 0xE8}) {
		t.Errorf("expected 00 00 03 E8, got % X", r.Data())
	}

	// DTR1, DTR0 and one read per byte, no re-selection
	log := bus.Transfers()
	if len(log) != 6 {
		t.Fatalf("expected 6 transfers, got %d", len(log))
	}
	if log[0].Frames[0] != (dali.ForwardFrame{byte(dali.SetDTR1), 202}) {
		t.Errorf("first frame: got %s", log[0].Frames[0])
	}
	if log[1].Frames[0] != (dali.ForwardFrame{byte(dali.SetDTR0), 12}) {
		t.Errorf("second frame: got %s", log[1].Frames[0])
	}
	for _, tr := range log[2:] {
		if tr.Frames[0] != (dali.ForwardFrame{0x05, byte(dali.ReadMemoryLocation)}) {
			t.Errorf("expected read to A02, got %s", tr.Frames[0])
		}
	}
}

func TestRead_ZeroLength(t *testing.T) {
	link := dali.NewLink(simbus.New([]*simbus.Gear{newBankGear(0)}))
	r := NewRead(dali.ShortAddress, 0, 202, 0, 0)
	run(t, link, &r)
	if len(r.Data()) != 0 || r.Err() != nil {
		t.Errorf("expected empty successful read, got % X %v", r.Data(), r.Err())
	}
}

func TestRead_RetriesLostReply(t *testing.T) {
	g := newBankGear(1)
	dropped := 0
	g.ReplyHook = func(f dali.ForwardFrame, reply byte) (byte, bool) {
		// lose the first answer for location 9
		if f[1] == byte(dali.ReadMemoryLocation) && g.DTR0 == 10 && dropped == 0 {
			dropped++
			return 0, false
		}
		return reply, true
	}
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	r := NewRead(dali.ShortAddress, 1, 202, 8, 4)
	run(t, link, &r)

	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if !bytes.Equal(r.Data(), []byte{0x12, 0x34, 0x56, 0xFE}) {
		t.Errorf("expected 12 34 56 FE, got % X", r.Data())
	}
	if dropped != 1 {
		t.Errorf("expected one dropped reply, got %d", dropped)
	}
	if n := bus.Count(byte(dali.SetDTR1)); n != 2 {
		t.Errorf("expected offset to be selected twice, got %d", n)
	}
}

func TestRead_GivesUp(t *testing.T) {
	g := newBankGear(1)
	g.Silent = true
	link := dali.NewLink(simbus.New([]*simbus.Gear{g}))

	r := NewRead(dali.ShortAddress, 1, 202, 0, 2)
	run(t, link, &r)

	if !errors.Is(r.Err(), ErrReadFailed) {
		t.Errorf("expected ErrReadFailed, got %v", r.Err())
	}
	if r.Retries != MaxReadRetries+1 {
		t.Errorf("expected %d attempts, got %d", MaxReadRetries+1, r.Retries)
	}
}

func TestRead_ValueCopyResumes(t *testing.T) {
	link := dali.NewLink(simbus.New([]*simbus.Gear{newBankGear(0)}))
	r := NewRead(dali.ShortAddress, 0, 202, 8, 6)

	for i := 0; i < 4; i++ {
		r.Step(link)
		if link.Pending() {
			_ = link.Flush()
		}
	}

	saved := r
	r = Read{} // the original slot is reused by someone else

	run(t, link, &saved)
	if !bytes.Equal(saved.Data(), []byte{0x12, 0x34, 0x56, 0xFE, 0x00, 0x00}) {
		t.Errorf("resumed copy read % X", saved.Data())
	}
}

// ============================================================
// Write
// ============================================================

func TestUnlockWriteLock(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 4
	g.SetBank(2, make([]byte, 8))
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	u := NewUnlockWriteLock(dali.ShortAddress, 4, 2, 3, []byte{0xAA, 0xBB})
	run(t, link, &u)

	if !bytes.Equal(g.Banks[2][3:5], []byte{0xAA, 0xBB}) {
		t.Errorf("expected AA BB at 3, got % X", g.Banks[2][3:5])
	}
	if g.Banks[2][LockIndex] != LockValue {
		t.Errorf("bank not relocked: lock byte 0x%02X", g.Banks[2][LockIndex])
	}

	enable := dali.ForwardFrame{0x09, byte(dali.EnableWriteMemory)}
	want := []dali.ForwardFrame{
		{byte(dali.SetDTR1), 2},
		{byte(dali.SetDTR0), LockIndex},
		enable,
		{byte(dali.WriteMemoryLocation), UnlockValue},
		{byte(dali.SetDTR0), 3},
		enable,
		{byte(dali.WriteMemoryLocation), 0xAA},
		{byte(dali.WriteMemoryLocation), 0xBB},
		{byte(dali.SetDTR0), LockIndex},
		enable,
		{byte(dali.WriteMemoryLocation), LockValue},
	}
	log := bus.Transfers()
	if len(log) != len(want) {
		t.Fatalf("expected %d transfers, got %d", len(want), len(log))
	}
	for i, f := range want {
		if log[i].Frames[0] != f {
			t.Errorf("transfer %d: expected %s, got %s", i, f, log[i].Frames[0])
		}
	}
	if !log[2].Twice || !log[5].Twice || !log[9].Twice {
		t.Error("ENABLE WRITE MEMORY must be sent twice")
	}
}

func TestUnlockWriteLock_Empty(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 0
	g.SetBank(2, make([]byte, 8))
	link := dali.NewLink(simbus.New([]*simbus.Gear{g}))

	u := NewUnlockWriteLock(dali.ShortAddress, 0, 2, 3, nil)
	run(t, link, &u)
	if g.Banks[2][LockIndex] != LockValue {
		t.Errorf("bank not relocked: lock byte 0x%02X", g.Banks[2][LockIndex])
	}
}

func TestNewWrite_Truncates(t *testing.T) {
	w := NewWrite(make([]byte, 300))
	if w.Len != MaxLen {
		t.Errorf("expected %d, got %d", MaxLen, w.Len)
	}
}

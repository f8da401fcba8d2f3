// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

func run(t *testing.T, link *dali.Link, op *Op, locks *Locks) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		done := op.Step(link, locks)
		if link.Pending() {
			if err := link.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
		}
		if done == dali.Done {
			return
		}
	}
	t.Fatalf("%s op never finished", op.Quantity)
}

func bank(n int, at int, data ...byte) []byte {
	b := make([]byte, n)
	copy(b[at:], data)
	return b
}

func d4iGear(short byte) *simbus.Gear {
	g := simbus.NewGear(1)
	g.Short = short
	b202 := bank(0x10, 0x04, 0xFE, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0xFF, 0x00, 0x00, 0x03, 0xE8)
	g.SetBank(202, b202)
	g.SetBank(205, bank(0x1C, 0x1B, 85))
	g.SetBank(206, bank(0x16, 0x12, 0x00, 0xE6, 0x01, 0xF4))
	return g
}

// ============================================================
// D4i
// ============================================================

func TestD4i_Readings(t *testing.T) {
	link := dali.NewLink(simbus.New([]*simbus.Gear{d4iGear(3)}))
	r := For(gear.FamilyD4i)

	tests := []struct {
		name string
		op   Op
		want uint64
	}{
		{"power", r.Power(3), 1000},
		{"energy", r.Energy(3), 0x000001020304},
		{"voltage", r.Voltage(3), 230},
		{"current", r.Current(3), 500},
		{"temperature", r.Temperature(3), 85},
		{"run time", r.RunTime(3), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := tt.op
			run(t, link, &op, nil)
			if op.Err() != nil {
				t.Fatalf("unexpected error: %v", op.Err())
			}
			if op.Value != tt.want {
				t.Errorf("got %d, want %d", op.Value, tt.want)
			}
		})
	}
}

func TestD4i_Units(t *testing.T) {
	link := dali.NewLink(simbus.New([]*simbus.Gear{d4iGear(0)}))
	r := For(gear.FamilyD4i)

	op := r.Units(0)
	run(t, link, &op, nil)

	var rec gear.DriverRecord
	r.ApplyUnits(&rec, op.Data())
	if rec.EnergyUnit != 0.01 {
		t.Errorf("energy unit: got %v, want 0.01", rec.EnergyUnit)
	}
	if rec.PowerUnit != 0.1 {
		t.Errorf("power unit: got %v, want 0.1", rec.PowerUnit)
	}
}

func TestD4iScale(t *testing.T) {
	tests := []struct {
		in   int8
		want float32
	}{
		{-6, 0.000001},
		{-1, 0.1},
		{0, 1},
		{3, 1000},
		{5, 100000},
		{6, 100000},
		{7, 0},
		{-7, 0},
	}
	for _, tt := range tests {
		if got := D4iScale(tt.in); got != tt.want {
			t.Errorf("D4iScale(%d): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ============================================================
// Dexal
// ============================================================

func TestDexal_Readings(t *testing.T) {
	g := simbus.NewGear(1)
	g.Short = 1
	g.SetBank(30, bank(9, 6, 0x00, 0x0C, 0x80))
	g.SetBank(36, bank(9, 5, 0x00, 0x01, 0x00, 0x00))
	g.SetBank(29, bank(10, 5, 0x00, 0x10, 0x00, 42, 70))
	link := dali.NewLink(simbus.New([]*simbus.Gear{g}))
	r := Dexal{}

	tests := []struct {
		name string
		op   Op
		want uint64
	}{
		{"power", r.Power(1), 0x0C80},
		{"energy", r.Energy(1), 0x10000},
		{"run time", r.RunTime(1), 0x1000},
		{"temperature", r.Temperature(1), 42},
		{"max case temperature", r.MaxCaseTemperature(1), 70},
		{"voltage", r.Voltage(1), 0},
		{"current", r.Current(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := tt.op
			run(t, link, &op, nil)
			if op.Value != tt.want {
				t.Errorf("got %d, want %d", op.Value, tt.want)
			}
		})
	}

	// 0x0C80 at 1/64 W is 50 W
	if w := float32(0x0C80) * gear.DexalPowerUnit; w != 50 {
		t.Errorf("expected 50 W, got %v", w)
	}
}

func TestDexal_UnitsAreStatic(t *testing.T) {
	op := Dexal{}.Units(0)
	if !op.Immediate {
		t.Fatal("expected an immediate op")
	}
	var rec gear.DriverRecord
	Dexal{}.ApplyUnits(&rec, nil)
	if rec.PowerUnit != gear.DexalPowerUnit || rec.EnergyUnit != gear.DexalEnergyUnit {
		t.Errorf("got %v %v", rec.PowerUnit, rec.EnergyUnit)
	}
}

// ============================================================
// SR
// ============================================================

func srGear(short byte) *simbus.Gear {
	g := simbus.NewGear(1)
	g.Short = short
	g.SetBank(67, make([]byte, 14))
	b68 := make([]byte, 23)
	copy(b68[4:], []byte{0x00, 0x00, 0x00, 0x00, 0x27, 0x10})
	b68[16] = 0xFF // 0.1
	copy(b68[17:], []byte{0x00, 0x00, 0x01, 0x90})
	b68[21] = 0x00
	b68[22] = 0xFD
	g.SetBank(68, b68)
	return g
}

func TestSR_UnlocksBeforeFirstRead(t *testing.T) {
	g := srGear(5)
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)
	var locks Locks

	op := SR{}.Power(5)
	run(t, link, &op, &locks)

	if op.Value != 400 {
		t.Errorf("power: got %d, want 400", op.Value)
	}
	if !locks.Unlocked(5) {
		t.Error("expected address 5 to be marked unlocked")
	}
	if !bytes.Equal(g.Banks[67][7:14], SRPassword) {
		t.Errorf("password not written: % X", g.Banks[67][7:14])
	}

	// the password bank is selected before the power bank
	log := bus.Transfers()
	if log[0].Frames[0] != (dali.ForwardFrame{byte(dali.SetDTR1), 67}) {
		t.Errorf("first frame: got %s", log[0].Frames[0])
	}
	first68 := -1
	for i, tr := range log {
		if tr.Frames[0] == (dali.ForwardFrame{byte(dali.SetDTR1), 68}) {
			first68 = i
			break
		}
	}
	if first68 < 11 {
		t.Errorf("bank 68 selected at transfer %d, before the unlock finished", first68)
	}

	// a second read skips the unlock
	bus.ClearLog()
	op = SR{}.Energy(5)
	run(t, link, &op, &locks)
	if op.Value != 10000 {
		t.Errorf("energy: got %d, want 10000", op.Value)
	}
	if n := bus.Count(byte(dali.SetDTR1)); n != 1 {
		t.Errorf("expected one bank selection, got %d", n)
	}
}

func TestSR_Units(t *testing.T) {
	link := dali.NewLink(simbus.New([]*simbus.Gear{srGear(2)}))
	var locks Locks

	op := SR{}.Units(2)
	run(t, link, &op, &locks)

	var rec gear.DriverRecord
	SR{}.ApplyUnits(&rec, op.Data())
	if rec.PowerUnit != 0.1 || rec.EnergyUnit != 1 || rec.ResetEnergyUnit != 0.001 {
		t.Errorf("got units %v %v %v", rec.PowerUnit, rec.EnergyUnit, rec.ResetEnergyUnit)
	}
}

func TestSRUnit(t *testing.T) {
	tests := []struct {
		code byte
		want float32
	}{
		{0x00, 1},
		{0x05, 100000},
		{0x06, 0},
		{0xFF, 0.1},
		{0xFA, 0.000001},
		{0xF9, 0},
		{0x80, 0},
	}
	for _, tt := range tests {
		if got := SRUnit(tt.code); got != tt.want {
			t.Errorf("SRUnit(0x%02X): got %v, want %v", tt.code, got, tt.want)
		}
	}
}

// ============================================================
// Generic
// ============================================================

func TestGeneric_Sentinels(t *testing.T) {
	bus := simbus.New(nil)
	link := dali.NewLink(bus)
	r := For(gear.FamilyDali)

	for _, op := range []Op{r.Power(0), r.Energy(0), r.Voltage(0), r.Temperature(0)} {
		if op.Step(link, nil) != dali.Done {
			t.Errorf("%s: expected immediate completion", op.Quantity)
		}
	}
	if p := r.Power(0); p.Value != NoPower {
		t.Errorf("power sentinel: got 0x%X", p.Value)
	}
	if e := r.Energy(0); e.Value != NoEnergy {
		t.Errorf("energy sentinel: got 0x%X", e.Value)
	}
	if link.Pending() || len(bus.Transfers()) != 0 {
		t.Error("generic ops must not touch the bus")
	}
}

func TestLocks(t *testing.T) {
	var k Locks
	for _, a := range []byte{0, 31, 32, 63} {
		if k.Unlocked(a) {
			t.Errorf("%d unlocked before Set", a)
		}
		k.Set(a)
		if !k.Unlocked(a) {
			t.Errorf("%d locked after Set", a)
		}
	}
	if k.Unlocked(1) || k.Unlocked(33) {
		t.Error("neighbouring addresses changed")
	}
	if k.Set(64) || k.Unlocked(64) {
		t.Error("address 64 accepted")
	}
	k.Reset()
	if k.Unlocked(0) {
		t.Error("Reset kept a lock bit")
	}
}

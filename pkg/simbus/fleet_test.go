// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simbus

import (
	"encoding/binary"
	"testing"

	"github.com/Thermoquad/dalistat/pkg/gear"
)

func classify(t *testing.T, g *Gear) gear.Family {
	t.Helper()
	bank0, ok := g.Banks[0]
	if !ok {
		t.Fatal("gear has no bank 0")
	}
	m, err := gear.ParseMemoryBank0(bank0[gear.Bank0From:])
	if err != nil {
		t.Fatalf("parse bank 0: %v", err)
	}
	rec := gear.DriverRecord{Bank0: m}
	gear.Classify(&rec)
	return rec.Family
}

func TestFleet_CyclesFamilies(t *testing.T) {
	fleet := Fleet(6, 1)
	if len(fleet) != 6 {
		t.Fatalf("len = %d, want 6", len(fleet))
	}

	want := []gear.Family{
		gear.FamilyD4i, gear.FamilyDexal, gear.FamilyDali,
		gear.FamilyD4i, gear.FamilyDexal, gear.FamilyDali,
	}
	for i, g := range fleet {
		if got := classify(t, g); got != want[i] {
			t.Errorf("gear %d family = %v, want %v", i, got, want[i])
		}
		if g.Random > maxRandomAddress {
			t.Errorf("gear %d random 0x%X exceeds 24 bits", i, g.Random)
		}
	}
}

func TestFleet_SeedIsDeterministic(t *testing.T) {
	a := Fleet(4, 42)
	b := Fleet(4, 42)
	for i := range a {
		if a[i].Random != b[i].Random {
			t.Errorf("gear %d random differs: 0x%X vs 0x%X", i, a[i].Random, b[i].Random)
		}
	}
}

func TestNewD4iGear_Banks(t *testing.T) {
	g := NewD4iGear(0x123, 30, 5000)

	b202 := g.Banks[202]
	if got := binary.BigEndian.Uint32(b202[0x0C:]); got != 300 {
		t.Errorf("power = %d, want 300", got)
	}
	if int8(b202[0x0B]) != -1 {
		t.Errorf("power scale = %d, want -1", int8(b202[0x0B]))
	}
	var e [8]byte
	copy(e[2:], b202[0x05:0x0B])
	if got := binary.BigEndian.Uint64(e[:]); got != 5000 {
		t.Errorf("energy = %d, want 5000", got)
	}
	if got := binary.BigEndian.Uint16(g.Banks[206][0x12:]); got != 230 {
		t.Errorf("voltage = %d, want 230", got)
	}
	if got := g.Banks[205][0x1B]; got != 41 {
		t.Errorf("temperature = %d, want 41", got)
	}
}

func TestNewDexalGear_Banks(t *testing.T) {
	g := NewDexalGear(0x456, 20, 1234)

	b30 := g.Banks[30]
	p := uint32(b30[6])<<16 | uint32(b30[7])<<8 | uint32(b30[8])
	if p != 1280 {
		t.Errorf("power = %d, want 1280", p)
	}
	if got := binary.BigEndian.Uint32(g.Banks[36][5:]); got != 1234 {
		t.Errorf("energy = %d, want 1234", got)
	}
	if got := g.Banks[29][8]; got != 38 {
		t.Errorf("temperature = %d, want 38", got)
	}
}

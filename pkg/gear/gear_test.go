// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gear

import (
	"bytes"
	"errors"
	"testing"
)

func sampleTable() NetworkTable {
	var t NetworkTable
	t.Count = 2
	t.Drivers[0] = DriverRecord{
		Bank0: MemoryBank0{
			GTIN:     GTIN{0x00, 0x0A, 0xBD, 0xE8, 0x23, 0xEC},
			Firmware: Version{1, 4},
			IDNumber: [IDNumLen]byte{1, 2, 3, 4, 5, 6, 7, 8},
			Hardware: Version{2, 0},
			Part101:  0x08,
		},
		Family:          FamilyD4i,
		ShortAddress:    0,
		RatedWattage:    30,
		PowerUnit:       0.1,
		EnergyUnit:      1,
		ResetEnergyUnit: 1,
	}
	t.Drivers[1] = DriverRecord{
		Family:       FamilyDexal,
		ShortAddress: 1,
		RatedWattage: 85,
		PowerUnit:    DexalPowerUnit,
		EnergyUnit:   DexalEnergyUnit,
	}
	t.Seal()
	return t
}

// ============================================================
// Memory bank 0
// ============================================================

func TestParseMemoryBank0(t *testing.T) {
	raw := make([]byte, Bank0Len)
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	m, err := ParseMemoryBank0(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.GTIN != (GTIN{1, 2, 3, 4, 5, 6}) {
		t.Errorf("GTIN: got %s", m.GTIN)
	}
	if m.Firmware.String() != "7.8" {
		t.Errorf("firmware: got %s", m.Firmware)
	}
	if m.Hardware.String() != "17.18" {
		t.Errorf("hardware: got %s", m.Hardware)
	}
	if m.ControlGearIndex != 24 {
		t.Errorf("index: got %d", m.ControlGearIndex)
	}
	if !bytes.Equal(m.Bytes(), raw) {
		t.Errorf("Bytes: got % X, want % X", m.Bytes(), raw)
	}

	if _, err := ParseMemoryBank0(raw[:10]); err == nil {
		t.Error("expected error for short input")
	}
}

// ============================================================
// Table image
// ============================================================

func TestImage_Layout(t *testing.T) {
	table := sampleTable()
	image := table.Image()

	if len(image) != 186 {
		t.Fatalf("image length: got %d, want 186", len(image))
	}
	if image[0] != 2 {
		t.Errorf("count: got %d", image[0])
	}
	if !bytes.Equal(image[1:7], table.Drivers[0].Bank0.GTIN[:]) {
		t.Errorf("first GTIN: got % X", image[1:7])
	}
	// record 1 starts at 1+46
	if image[47+24] != byte(FamilyDexal) || image[47+25] != 1 || image[47+26] != 85 {
		t.Errorf("second record header: got % X", image[47+24:47+30])
	}
	if image[185] != Checksum(image) || table.Checksum != image[185] {
		t.Errorf("checksum: stored 0x%02X, image 0x%02X, computed 0x%02X", table.Checksum, image[185], Checksum(image))
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	want := sampleTable()

	var got NetworkTable
	if err := got.Load(want.Image()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("loaded table differs:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoad_ErasedFlash(t *testing.T) {
	table := sampleTable()
	image := table.Image()
	image[0] = 0xFF
	image[185] = Checksum(image)

	if err := table.Load(image); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	if table != (NetworkTable{}) {
		t.Errorf("expected zeroed table, got %+v", table)
	}
}

func TestLoad_Rejects(t *testing.T) {
	valid := sampleTable()

	tests := []struct {
		name  string
		image func() []byte
		want  error
	}{
		{"empty count", func() []byte {
			img := valid.Image()
			img[0] = 0
			img[185] = Checksum(img)
			return img
		}, ErrEmptyTable},
		{"bad checksum", func() []byte {
			img := valid.Image()
			img[185]++
			return img
		}, ErrChecksumMismatch},
		{"short image", func() []byte {
			return valid.Image()[:100]
		}, ErrImageLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := sampleTable()
			if err := table.Load(tt.image()); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if table.Count != 0 || table.Drivers[0].RatedWattage != 0 {
				t.Errorf("table not zeroed: %+v", table)
			}
		})
	}
}

// Any single corrupted byte past the count changes the additive checksum
func TestLoad_SingleByteMutation(t *testing.T) {
	sample := sampleTable()
	valid := sample.Image()

	for i := 1; i < ImageLen; i++ {
		for _, delta := range []byte{1, 0x80, 0xFF} {
			img := append([]byte(nil), valid...)
			img[i] += delta

			var table NetworkTable
			if err := table.Load(img); !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("byte %d +0x%02X: expected ErrChecksumMismatch, got %v", i, delta, err)
			}
		}
	}
}

// ============================================================
// Accessors
// ============================================================

func TestAccessors(t *testing.T) {
	table := sampleTable()

	tests := []struct {
		index   int
		flavor  string
		wattage uint32
	}{
		{0, "D4i", 30},
		{1, "Dexal", 85},
		{2, "DALI", 0},
		{4, "none", 0},
		{-1, "none", 0},
	}

	for _, tt := range tests {
		if got := table.Flavor(tt.index); got != tt.flavor {
			t.Errorf("Flavor(%d): got %q, want %q", tt.index, got, tt.flavor)
		}
		if got := table.RatedWattage(tt.index); got != tt.wattage {
			t.Errorf("RatedWattage(%d): got %d, want %d", tt.index, got, tt.wattage)
		}
	}

	table.Count = 9
	if table.Identified() != MaxDrivers {
		t.Errorf("Identified: got %d, want %d", table.Identified(), MaxDrivers)
	}
}

// ============================================================
// Classification
// ============================================================

func TestClassify(t *testing.T) {
	for _, p := range Products {
		t.Run(p.Name, func(t *testing.T) {
			r := DriverRecord{Bank0: MemoryBank0{GTIN: p.GTIN}}
			Classify(&r)
			if r.Family != p.Family || r.RatedWattage != p.RatedWattage {
				t.Errorf("got %s %dW, want %s %dW", r.Family, r.RatedWattage, p.Family, p.RatedWattage)
			}
			if p.Family == FamilyDexal && (r.PowerUnit != DexalPowerUnit || r.EnergyUnit != DexalEnergyUnit) {
				t.Errorf("Dexal units not set: %v %v", r.PowerUnit, r.EnergyUnit)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		r := DriverRecord{Bank0: MemoryBank0{GTIN: GTIN{9, 9, 9, 9, 9, 9}}, Family: FamilySR}
		Classify(&r)
		if r.Family != FamilyDali {
			t.Errorf("got %s, want DALI", r.Family)
		}
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gear holds what is known about each identified control gear and
// the persisted network table.
package gear

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Family is the telemetry dialect of a gear
type Family uint8

const (
	FamilyDali Family = iota
	FamilyDexal
	FamilyD4i
	FamilySR
)

func (f Family) String() string {
	switch f {
	case FamilyDali:
		return "DALI"
	case FamilyDexal:
		return "Dexal"
	case FamilyD4i:
		return "D4i"
	case FamilySR:
		return "SR"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// Memory bank 0 field sizes
const (
	GTINLen   = 6
	IDNumLen  = 8
	Bank0Len  = 24
	Bank0From = 3 // first location read during identification
)

// GTIN is the global trade item number of a gear, as stored in bank 0
type GTIN [GTINLen]byte

func (g GTIN) String() string {
	return fmt.Sprintf("%X", g[:])
}

// Version is a major.minor pair
type Version [2]byte

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v[0], v[1])
}

// MemoryBank0 is the identification part of bank 0, locations 3 to 26
type MemoryBank0 struct {
	GTIN               GTIN
	Firmware           Version
	IDNumber           [IDNumLen]byte
	Hardware           Version
	Part101            byte
	Part102            byte
	Part103            byte
	LogicalControlDevs byte
	LogicalControlGear byte
	ControlGearIndex   byte
}

// ParseMemoryBank0 decodes the Bank0Len bytes read from location Bank0From
func ParseMemoryBank0(b []byte) (MemoryBank0, error) {
	var m MemoryBank0
	if len(b) < Bank0Len {
		return m, fmt.Errorf("memory bank 0: need %d bytes, got %d", Bank0Len, len(b))
	}
	copy(m.GTIN[:], b[0:6])
	copy(m.Firmware[:], b[6:8])
	copy(m.IDNumber[:], b[8:16])
	copy(m.Hardware[:], b[16:18])
	m.Part101 = b[18]
	m.Part102 = b[19]
	m.Part103 = b[20]
	m.LogicalControlDevs = b[21]
	m.LogicalControlGear = b[22]
	m.ControlGearIndex = b[23]
	return m, nil
}

// Bytes returns the bank 0 layout of m
func (m MemoryBank0) Bytes() []byte {
	b := make([]byte, 0, Bank0Len)
	b = append(b, m.GTIN[:]...)
	b = append(b, m.Firmware[:]...)
	b = append(b, m.IDNumber[:]...)
	b = append(b, m.Hardware[:]...)
	return append(b, m.Part101, m.Part102, m.Part103,
		m.LogicalControlDevs, m.LogicalControlGear, m.ControlGearIndex)
}

// DriverRecord is the static identity of one gear
type DriverRecord struct {
	Bank0        MemoryBank0
	Family       Family
	ShortAddress byte
	RatedWattage uint32

	// Unit multipliers applied to raw telemetry readings
	PowerUnit       float32
	EnergyUnit      float32
	ResetEnergyUnit float32
	RunTimeUnit     float32
}

// RecordLen is the size of a DriverRecord in the table image
const RecordLen = Bank0Len + 2 + 4 + 4*4

func (r *DriverRecord) marshal(b []byte) {
	copy(b, r.Bank0.Bytes())
	b[24] = byte(r.Family)
	b[25] = r.ShortAddress
	binary.LittleEndian.PutUint32(b[26:], r.RatedWattage)
	binary.LittleEndian.PutUint32(b[30:], math.Float32bits(r.PowerUnit))
	binary.LittleEndian.PutUint32(b[34:], math.Float32bits(r.EnergyUnit))
	binary.LittleEndian.PutUint32(b[38:], math.Float32bits(r.ResetEnergyUnit))
	binary.LittleEndian.PutUint32(b[42:], math.Float32bits(r.RunTimeUnit))
}

func (r *DriverRecord) unmarshal(b []byte) {
	r.Bank0, _ = ParseMemoryBank0(b[:Bank0Len])
	r.Family = Family(b[24])
	r.ShortAddress = b[25]
	r.RatedWattage = binary.LittleEndian.Uint32(b[26:])
	r.PowerUnit = math.Float32frombits(binary.LittleEndian.Uint32(b[30:]))
	r.EnergyUnit = math.Float32frombits(binary.LittleEndian.Uint32(b[34:]))
	r.ResetEnergyUnit = math.Float32frombits(binary.LittleEndian.Uint32(b[38:]))
	r.RunTimeUnit = math.Float32frombits(binary.LittleEndian.Uint32(b[42:]))
}

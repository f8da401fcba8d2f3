// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/membank"
)

// Values reported for readings a family cannot provide
const (
	NoPower  = 0xFFFFFFFF
	NoEnergy = 0xFFFFFFFFFFFF
)

// Reader builds the Ops of one gear family
type Reader interface {
	Family() gear.Family
	Power(addr byte) Op
	Energy(addr byte) Op
	Voltage(addr byte) Op
	Current(addr byte) Op
	Temperature(addr byte) Op
	RunTime(addr byte) Op

	// Units reads whatever the family needs to fill in the unit
	// multipliers of a record; ApplyUnits stores them.
	Units(addr byte) Op
	ApplyUnits(rec *gear.DriverRecord, raw []byte)
}

// For returns the Reader of family f. Unknown families read as generic
// DALI gear.
func For(f gear.Family) Reader {
	switch f {
	case gear.FamilyD4i:
		return D4i{}
	case gear.FamilyDexal:
		return Dexal{}
	case gear.FamilySR:
		return SR{}
	default:
		return Generic{}
	}
}

// ============================================================
// D4i
// ============================================================

// D4i memory bank locations
var (
	D4iPower       = Loc{Bank: 202, Offset: 0x0C, Len: 4}
	D4iEnergy      = Loc{Bank: 202, Offset: 0x05, Len: 6}
	D4iScales      = Loc{Bank: 202, Offset: 0x04, Len: 8} // energy scale at +0, power scale at +7
	D4iVoltage     = Loc{Bank: 206, Offset: 0x12, Len: 2}
	D4iCurrent     = Loc{Bank: 206, Offset: 0x14, Len: 2}
	D4iTemperature = Loc{Bank: 205, Offset: 0x1B, Len: 1}
)

// D4i gear keep energy reporting in bank 202 and diagnostics in 205/206
type D4i struct{}

func (D4i) Family() gear.Family { return gear.FamilyD4i }

func (D4i) Power(addr byte) Op { return bankRead(Power, addr, D4iPower) }
func (D4i) Energy(addr byte) Op { return bankRead(Energy, addr, D4iEnergy) }
func (D4i) Voltage(addr byte) Op { return bankRead(Voltage, addr, D4iVoltage) }
func (D4i) Current(addr byte) Op { return bankRead(Current, addr, D4iCurrent) }
func (D4i) Temperature(addr byte) Op { return bankRead(Temperature, addr, D4iTemperature) }
func (D4i) RunTime(addr byte) Op { return immediate(RunTime, addr, 0) }
func (D4i) Units(addr byte) Op { return bankRead(Units, addr, D4iScales) }

func (D4i) ApplyUnits(rec *gear.DriverRecord, raw []byte) {
	if len(raw) < int(D4iScales.Len) {
		return
	}
	rec.EnergyUnit = D4iScale(int8(raw[0]))
	rec.PowerUnit = D4iScale(int8(raw[7]))
}

// D4iScale converts a signed power of ten to a multiplier. Scale 6 maps
// to 1e5 as it does in deployed firmware. Out of range scales give 0.
func D4iScale(s int8) float32 {
	switch {
	case s >= 0 && s <= 5:
		return pow10[s]
	case s == 6:
		return pow10[5]
	case s < 0 && s >= -6:
		return negPow10[-s-1]
	}
	return 0
}

var (
	pow10    = [...]float32{1, 10, 100, 1000, 10000, 100000}
	negPow10 = [...]float32{0.1, 0.01, 0.001, 0.0001, 0.00001, 0.000001}
)

// ============================================================
// Dexal
// ============================================================

// Dexal memory bank locations
var (
	DexalPower       = Loc{Bank: 30, Offset: 6, Len: 3}
	DexalEnergy      = Loc{Bank: 36, Offset: 5, Len: 4}
	DexalRunTime     = Loc{Bank: 29, Offset: 5, Len: 3}
	DexalTemperature = Loc{Bank: 29, Offset: 8, Len: 1}
	DexalMaxCaseTemp = Loc{Bank: 29, Offset: 9, Len: 1}
)

// Dexal gear have fixed units and no load diagnostics
type Dexal struct{}

func (Dexal) Family() gear.Family { return gear.FamilyDexal }

func (Dexal) Power(addr byte) Op { return bankRead(Power, addr, DexalPower) }
func (Dexal) Energy(addr byte) Op { return bankRead(Energy, addr, DexalEnergy) }
func (Dexal) Voltage(addr byte) Op { return immediate(Voltage, addr, 0) }
func (Dexal) Current(addr byte) Op { return immediate(Current, addr, 0) }
func (Dexal) Temperature(addr byte) Op { return bankRead(Temperature, addr, DexalTemperature) }
func (Dexal) RunTime(addr byte) Op { return bankRead(RunTime, addr, DexalRunTime) }
func (Dexal) Units(addr byte) Op { return immediate(Units, addr, 0) }

// MaxCaseTemperature reads the highest case temperature the gear recorded
func (Dexal) MaxCaseTemperature(addr byte) Op {
	return bankRead(Temperature, addr, DexalMaxCaseTemp)
}

func (Dexal) ApplyUnits(rec *gear.DriverRecord, _ []byte) {
	rec.PowerUnit = gear.DexalPowerUnit
	rec.EnergyUnit = gear.DexalEnergyUnit
	rec.ResetEnergyUnit = gear.DexalEnergyUnit
}

// ============================================================
// SR
// ============================================================

// SR memory bank locations. Bank 68 needs the password written to bank 67
// once per power cycle.
var (
	SRPower  = Loc{Bank: 68, Offset: 17, Len: 4}
	SREnergy = Loc{Bank: 68, Offset: 4, Len: 6}
	SRUnits  = Loc{Bank: 68, Offset: 4, Len: 19}

	SRPasswordBank  byte = 67
	SRPasswordIndex byte = 7
	SRPassword           = []byte{0x7D, 0x8D, 0xDE, 0x7F, 0x5A, 0x01, 0x3E}
)

// Unit code positions within SRUnits
const (
	srPowerUnit       = 16 - 4
	srEnergyUnit      = 21 - 4
	srResetEnergyUnit = 22 - 4
)

func srUnlock(addr byte) membank.UnlockWriteLock {
	return membank.NewUnlockWriteLock(dali.ShortAddress, addr, SRPasswordBank, SRPasswordIndex, SRPassword)
}

// SR gear protect their energy reporting bank with a password
type SR struct{}

func (SR) Family() gear.Family { return gear.FamilySR }

func (SR) Power(addr byte) Op { return protectedRead(Power, addr, SRPower) }
func (SR) Energy(addr byte) Op { return protectedRead(Energy, addr, SREnergy) }
func (SR) Voltage(addr byte) Op { return immediate(Voltage, addr, 0) }
func (SR) Current(addr byte) Op { return immediate(Current, addr, 0) }
func (SR) Temperature(addr byte) Op { return immediate(Temperature, addr, 0) }
func (SR) RunTime(addr byte) Op { return immediate(RunTime, addr, 0) }
func (SR) Units(addr byte) Op { return protectedRead(Units, addr, SRUnits) }

func (SR) ApplyUnits(rec *gear.DriverRecord, raw []byte) {
	if len(raw) < int(SRUnits.Len) {
		return
	}
	rec.PowerUnit = SRUnit(raw[srPowerUnit])
	rec.EnergyUnit = SRUnit(raw[srEnergyUnit])
	rec.ResetEnergyUnit = SRUnit(raw[srResetEnergyUnit])
}

// SRUnit converts an SR unit code, a two's complement power of ten, to a
// multiplier. Codes outside -6..5 give 0.
func SRUnit(code byte) float32 {
	s := int8(code)
	switch {
	case s >= 0 && s <= 5:
		return pow10[s]
	case s < 0 && s >= -6:
		return negPow10[-s-1]
	}
	return 0
}

// ============================================================
// Generic DALI
// ============================================================

// Generic gear report nothing
type Generic struct{}

func (Generic) Family() gear.Family { return gear.FamilyDali }

func (Generic) Power(addr byte) Op { return immediate(Power, addr, NoPower) }
func (Generic) Energy(addr byte) Op { return immediate(Energy, addr, NoEnergy) }
func (Generic) Voltage(addr byte) Op { return immediate(Voltage, addr, 0) }
func (Generic) Current(addr byte) Op { return immediate(Current, addr, 0) }
func (Generic) Temperature(addr byte) Op { return immediate(Temperature, addr, 0) }
func (Generic) RunTime(addr byte) Op { return immediate(RunTime, addr, 0) }
func (Generic) Units(addr byte) Op { return immediate(Units, addr, 0) }

func (Generic) ApplyUnits(*gear.DriverRecord, []byte) {}

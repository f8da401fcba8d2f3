// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/telemetry"
)

// Measurement holds the last raw readings of one driver
type Measurement struct {
	Power       uint32
	Energy      uint64
	Voltage     uint16
	Current     uint16
	Temperature uint16
}

// slot maps a driver index to its cache entry. Every index past the table
// shares the last entry.
func slot(i int) int {
	if i < 0 || i > gear.MaxDrivers {
		return gear.MaxDrivers
	}
	return i
}

// reader picks the telemetry reader and short address for a table index
func (s *Scheduler) reader(i int) (telemetry.Reader, byte) {
	if i < 0 || i >= s.table.Identified() {
		return telemetry.Generic{}, 0
	}
	rec := &s.table.Drivers[i]
	return telemetry.For(rec.Family), rec.ShortAddress
}

func (s *Scheduler) measure(index int, started *bool, op *telemetry.Op,
	build func(telemetry.Reader, byte) telemetry.Op, store func(*Measurement, uint64)) dali.Progress {
	if !*started {
		r, addr := s.reader(index)
		*op = build(r, addr)
		*started = true
	}
	if op.Step(s.link, &s.locks) == dali.Pending {
		return dali.Pending
	}
	if err := op.Err(); err != nil {
		s.out = Result{Err: err}
		return dali.Done
	}
	store(&s.meas[slot(index)], op.Value)
	s.out = Result{Value: op.Value, Data: append([]byte(nil), op.Data()...)}
	return dali.Done
}

// Measurement returns the cached readings of driver i
func (s *Scheduler) Measurement(i int) Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meas[slot(i)]
}

// Power returns the last raw power reading of driver i
func (s *Scheduler) Power(i int) uint32 {
	return s.Measurement(i).Power
}

// PowerWatts returns the last power reading of driver i scaled by its
// unit, or -1 when the driver does not report power.
func (s *Scheduler) PowerWatts(i int) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.meas[slot(i)].Power
	rec := s.table.Record(i)
	if rec == nil || raw == telemetry.NoPower || rec.Family == gear.FamilyDali {
		return -1
	}
	return float32(raw) * rec.PowerUnit
}

// Energy returns the last raw energy reading of driver i
func (s *Scheduler) Energy(i int) uint64 {
	return s.Measurement(i).Energy
}

// LoadVoltage returns the last light source voltage of driver i
func (s *Scheduler) LoadVoltage(i int) uint16 {
	return s.Measurement(i).Voltage
}

// LoadCurrent returns the last light source current of driver i
func (s *Scheduler) LoadCurrent(i int) uint16 {
	return s.Measurement(i).Current
}

// GearTemperature returns the last gear temperature of driver i
func (s *Scheduler) GearTemperature(i int) uint16 {
	return s.Measurement(i).Temperature
}

// ============================================================
// Network table
// ============================================================

func gearTable(count byte) gear.NetworkTable {
	t := gear.NetworkTable{Count: count}
	t.Seal()
	return t
}

// Table returns a copy of the network table
func (s *Scheduler) Table() gear.NetworkTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// LoadTable replaces the network table with a stored image. A rejected
// image leaves the table zeroed.
func (s *Scheduler) LoadTable(image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks.Reset()
	return s.table.Load(image)
}

// TableImage returns the network table image with a fresh checksum
func (s *Scheduler) TableImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Seal()
	return s.table.Image()
}

// Flavor returns the family name of driver i
func (s *Scheduler) Flavor(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= s.table.Identified() {
		return "none"
	}
	return s.table.Flavor(i)
}

// RatedWattage returns the rated wattage of driver i
func (s *Scheduler) RatedWattage(i int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.RatedWattage(i)
}

// Drivers returns how many drivers the table identifies
func (s *Scheduler) Drivers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Identified()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"fmt"

	"github.com/Thermoquad/dalistat/pkg/addressing"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/identify"
	"github.com/Thermoquad/dalistat/pkg/membank"
	"github.com/Thermoquad/dalistat/pkg/sequence"
	"github.com/Thermoquad/dalistat/pkg/telemetry"
)

// Kind names a task variant
type Kind uint8

const (
	KindNone Kind = iota
	KindAddress
	KindIdentify
	KindSetLevel
	KindGetPower
	KindGetEnergy
	KindGetOutputCurrent
	KindGetOutputVoltage
	KindGetGearTemperature
	KindReadMemoryBank
	KindWriteMemoryBank
	KindPollForControlGear
	KindCommission
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindAddress:            "address",
	KindIdentify:           "identify",
	KindSetLevel:           "set_level",
	KindGetPower:           "get_power",
	KindGetEnergy:          "get_energy",
	KindGetOutputCurrent:   "get_output_current",
	KindGetOutputVoltage:   "get_output_voltage",
	KindGetGearTemperature: "get_gear_temperature",
	KindReadMemoryBank:     "read_memory_bank",
	KindWriteMemoryBank:    "write_memory_bank",
	KindPollForControlGear: "poll_for_control_gear",
	KindCommission:         "commission",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Task is one unit of bus work. The variants are the pointer types in
// this file; each carries its parameters and the complete state of its
// engine, so copying the struct snapshots the task.
type Task interface {
	Kind() Kind
	step(s *Scheduler) dali.Progress
	clone() Task

	// rewind makes the task start over on its next step
	rewind()
}

// ============================================================
// Network setup
// ============================================================

// Address assigns short addresses to every gear on the bus
type Address struct {
	Engine addressing.Engine
}

func (t *Address) Kind() Kind { return KindAddress }
func (t *Address) clone() Task { c := *t; return &c }
func (t *Address) rewind() { t.Engine = addressing.Engine{} }

func (t *Address) step(s *Scheduler) dali.Progress {
	if t.Engine.Step(s.link) == dali.Pending {
		return dali.Pending
	}
	n := t.Engine.Count()
	s.table = gearTable(n)
	s.locks.Reset()
	s.out = Result{Count: n, Err: t.Engine.Err()}
	return dali.Done
}

// Identify reads bank 0 and the telemetry units of every addressed gear
type Identify struct {
	Engine identify.Engine
}

func (t *Identify) Kind() Kind { return KindIdentify }
func (t *Identify) clone() Task { c := *t; return &c }
func (t *Identify) rewind() { t.Engine = identify.Engine{} }

func (t *Identify) step(s *Scheduler) dali.Progress {
	if t.Engine.Step(s.link, &s.table, &s.locks) == dali.Pending {
		return dali.Pending
	}
	s.table.Seal()
	s.out = Result{Count: s.table.Count, Err: t.Engine.Err()}
	return dali.Done
}

// PollForControlGear waits until some gear answers on the bus
type PollForControlGear struct {
	Poll sequence.Poll
}

func (t *PollForControlGear) Kind() Kind { return KindPollForControlGear }
func (t *PollForControlGear) clone() Task { c := *t; return &c }
func (t *PollForControlGear) rewind() { t.Poll = sequence.Poll{} }

func (t *PollForControlGear) step(s *Scheduler) dali.Progress {
	return t.Poll.Step(s.link)
}

// Commission brings one new gear into service. It only runs through
// Scheduler.Commission.
type Commission struct {
	Addr    byte
	Tune    byte
	Started bool
	Seq     sequence.Commission
}

func (t *Commission) Kind() Kind { return KindCommission }
func (t *Commission) clone() Task { c := *t; return &c }
func (t *Commission) rewind() { t.Started = false }

func (t *Commission) step(s *Scheduler) dali.Progress {
	if !t.Started {
		t.Seq = sequence.NewCommission(t.Addr, t.Tune)
		t.Started = true
	}
	if t.Seq.Step(s.link) == dali.Pending {
		return dali.Pending
	}
	s.out = Result{Count: 1, Value: uint64(t.Seq.Addr)}
	return dali.Done
}

// ============================================================
// Level
// ============================================================

// SetLevel sends one DAPC frame. Submitting it interrupts any other task.
type SetLevel struct {
	AddrType dali.AddressType
	Addr     byte
	Level    byte
}

func (t *SetLevel) Kind() Kind { return KindSetLevel }
func (t *SetLevel) clone() Task { c := *t; return &c }
func (t *SetLevel) rewind() {}

func (t *SetLevel) step(s *Scheduler) dali.Progress {
	s.link.SendDAPC(t.AddrType, t.Addr, t.Level)
	s.out = Result{Value: uint64(t.Level)}
	return dali.Done
}

// ============================================================
// Telemetry
//
// Index selects a network table record. Indices beyond the table read as
// generic gear and land in the overflow measurement slot.
// ============================================================

// GetPower reads the raw active power of a driver
type GetPower struct {
	Index   int
	Started bool
	Op      telemetry.Op
}

func (t *GetPower) Kind() Kind { return KindGetPower }
func (t *GetPower) clone() Task { c := *t; return &c }
func (t *GetPower) rewind() { t.Started = false }

func (t *GetPower) step(s *Scheduler) dali.Progress {
	return s.measure(t.Index, &t.Started, &t.Op, telemetry.Reader.Power, func(m *Measurement, v uint64) {
		m.Power = uint32(v)
	})
}

// GetEnergy reads the raw energy counter of a driver
type GetEnergy struct {
	Index   int
	Started bool
	Op      telemetry.Op
}

func (t *GetEnergy) Kind() Kind { return KindGetEnergy }
func (t *GetEnergy) clone() Task { c := *t; return &c }
func (t *GetEnergy) rewind() { t.Started = false }

func (t *GetEnergy) step(s *Scheduler) dali.Progress {
	return s.measure(t.Index, &t.Started, &t.Op, telemetry.Reader.Energy, func(m *Measurement, v uint64) {
		m.Energy = v
	})
}

// GetOutputCurrent reads the light source current of a driver
type GetOutputCurrent struct {
	Index   int
	Started bool
	Op      telemetry.Op
}

func (t *GetOutputCurrent) Kind() Kind { return KindGetOutputCurrent }
func (t *GetOutputCurrent) clone() Task { c := *t; return &c }
func (t *GetOutputCurrent) rewind() { t.Started = false }

func (t *GetOutputCurrent) step(s *Scheduler) dali.Progress {
	return s.measure(t.Index, &t.Started, &t.Op, telemetry.Reader.Current, func(m *Measurement, v uint64) {
		m.Current = uint16(v)
	})
}

// GetOutputVoltage reads the light source voltage of a driver
type GetOutputVoltage struct {
	Index   int
	Started bool
	Op      telemetry.Op
}

func (t *GetOutputVoltage) Kind() Kind { return KindGetOutputVoltage }
func (t *GetOutputVoltage) clone() Task { c := *t; return &c }
func (t *GetOutputVoltage) rewind() { t.Started = false }

func (t *GetOutputVoltage) step(s *Scheduler) dali.Progress {
	return s.measure(t.Index, &t.Started, &t.Op, telemetry.Reader.Voltage, func(m *Measurement, v uint64) {
		m.Voltage = uint16(v)
	})
}

// GetGearTemperature reads the gear temperature of a driver
type GetGearTemperature struct {
	Index   int
	Started bool
	Op      telemetry.Op
}

func (t *GetGearTemperature) Kind() Kind { return KindGetGearTemperature }
func (t *GetGearTemperature) clone() Task { c := *t; return &c }
func (t *GetGearTemperature) rewind() { t.Started = false }

func (t *GetGearTemperature) step(s *Scheduler) dali.Progress {
	return s.measure(t.Index, &t.Started, &t.Op, telemetry.Reader.Temperature, func(m *Measurement, v uint64) {
		m.Temperature = uint16(v)
	})
}

// ============================================================
// Memory banks
// ============================================================

// ReadMemoryBank reads Len locations starting at Bank/Offset
type ReadMemoryBank struct {
	AddrType dali.AddressType
	Addr     byte
	Bank     byte
	Offset   byte
	Len      byte

	Started bool
	Read    membank.Read
}

func (t *ReadMemoryBank) Kind() Kind { return KindReadMemoryBank }
func (t *ReadMemoryBank) clone() Task { c := *t; return &c }
func (t *ReadMemoryBank) rewind() { t.Started = false }

func (t *ReadMemoryBank) step(s *Scheduler) dali.Progress {
	if !t.Started {
		t.Read = membank.NewRead(t.AddrType, t.Addr, t.Bank, t.Offset, t.Len)
		t.Started = true
	}
	if t.Read.Step(s.link) == dali.Pending {
		return dali.Pending
	}
	s.out = Result{
		Data: append([]byte(nil), t.Read.Data()...),
		Err:  t.Read.Err(),
	}
	return dali.Done
}

// WriteMemoryBank writes Data at Bank/Offset through the lock byte
type WriteMemoryBank struct {
	AddrType dali.AddressType
	Addr     byte
	Bank     byte
	Offset   byte
	Data     []byte

	Started bool
	UWL     membank.UnlockWriteLock
}

func (t *WriteMemoryBank) Kind() Kind { return KindWriteMemoryBank }

func (t *WriteMemoryBank) clone() Task {
	c := *t
	c.Data = append([]byte(nil), t.Data...)
	return &c
}
func (t *WriteMemoryBank) rewind() { t.Started = false }

func (t *WriteMemoryBank) step(s *Scheduler) dali.Progress {
	if !t.Started {
		t.UWL = membank.NewUnlockWriteLock(t.AddrType, t.Addr, t.Bank, t.Offset, t.Data)
		t.Started = true
	}
	if t.UWL.Step(s.link) == dali.Pending {
		return dali.Pending
	}
	s.out = Result{Count: t.UWL.W.Len}
	return dali.Done
}

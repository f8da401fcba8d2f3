// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry reads power, energy and diagnostic values out of the
// vendor memory banks of identified gear.
//
// A Reader knows where one family keeps its values and hands out Op
// values. An Op is a plain value like every other bus operation, so a task
// holding one can be suspended and resumed by copying it.
package telemetry

import (
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/membank"
)

// Quantity is what an Op reads
type Quantity uint8

const (
	Power Quantity = iota
	Energy
	Voltage
	Current
	Temperature
	RunTime
	Units
)

func (q Quantity) String() string {
	switch q {
	case Power:
		return "power"
	case Energy:
		return "energy"
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	case Temperature:
		return "temperature"
	case RunTime:
		return "run_time"
	case Units:
		return "units"
	default:
		return "unknown"
	}
}

// Loc is a run of memory bank locations
type Loc struct {
	Bank   byte
	Offset byte
	Len    byte
}

const (
	opUnlock uint8 = iota
	opRead
)

// Op reads one quantity from one gear. Ops for values a family does not
// provide finish on their first step with a fixed Value.
type Op struct {
	Quantity Quantity
	Addr     byte
	Loc      Loc

	// Unlock makes the Op write the family password before the first read
	// from a gear whose lock bit is clear.
	Unlock bool

	Immediate bool
	Value     uint64

	Stage uint8
	UWL   membank.UnlockWriteLock
	Read  membank.Read
}

func immediate(q Quantity, addr byte, v uint64) Op {
	return Op{Quantity: q, Addr: addr, Immediate: true, Value: v}
}

func bankRead(q Quantity, addr byte, loc Loc) Op {
	return Op{
		Quantity: q,
		Addr:     addr,
		Loc:      loc,
		Read:     membank.NewRead(dali.ShortAddress, addr, loc.Bank, loc.Offset, loc.Len),
	}
}

func protectedRead(q Quantity, addr byte, loc Loc) Op {
	op := bankRead(q, addr, loc)
	op.Unlock = true
	op.UWL = srUnlock(addr)
	return op
}

// Step runs one step of the Op. locks may be nil for families that never
// unlock.
func (o *Op) Step(l *dali.Link, locks *Locks) dali.Progress {
	if o.Immediate {
		return dali.Done
	}

	if o.Stage == opUnlock {
		if !o.Unlock || locks == nil || locks.Unlocked(o.Addr) {
			o.Stage = opRead
		} else {
			if o.UWL.Step(l) == dali.Done {
				locks.Set(o.Addr)
				o.Stage = opRead
			}
			return dali.Pending
		}
	}

	if o.Read.Step(l) == dali.Done {
		o.Value = bigEndian(o.Read.Data())
		o.Stage = opUnlock
		return dali.Done
	}
	return dali.Pending
}

// Data returns the bytes read
func (o *Op) Data() []byte {
	return o.Read.Data()
}

// Err reports a failed read
func (o *Op) Err() error {
	if o.Immediate {
		return nil
	}
	return o.Read.Err()
}

func bigEndian(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

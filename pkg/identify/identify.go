// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package identify fills in the network table after addressing: it reads
// memory bank 0 of every addressed gear, classifies it by GTIN and reads
// the telemetry units of families whose units vary by model.
package identify

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/membank"
	"github.com/Thermoquad/dalistat/pkg/telemetry"
)

// ErrTooManyDrivers is reported when the bus holds more gear than the
// table has room for. The first gear.MaxDrivers are still identified.
var ErrTooManyDrivers = errors.New("identify: more drivers than the table holds")

const (
	stageAssign uint8 = iota
	stageBank0
	stageUnits
)

// Engine identifies the gear counted in a NetworkTable. Short addresses
// are assumed to run from 0 to Count-1, as the addressing engine assigns
// them.
type Engine struct {
	Stage    uint8
	Index    byte
	Read     membank.Read
	Units    telemetry.Op
	Overflow bool
	Failed   uint8
}

// Err reports overflow and unreadable gear of the last run
func (e *Engine) Err() error {
	var errs []error
	if e.Overflow {
		errs = append(errs, ErrTooManyDrivers)
	}
	if e.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d gear: %w", e.Failed, membank.ErrReadFailed))
	}
	return errors.Join(errs...)
}

// Step runs one step of the identification
func (e *Engine) Step(l *dali.Link, t *gear.NetworkTable, locks *telemetry.Locks) dali.Progress {
	switch e.Stage {
	case stageAssign:
		e.Overflow = int(t.Count) > gear.MaxDrivers
		e.Failed = 0
		n := t.Identified()
		for i := 0; i < n; i++ {
			t.Drivers[i].ShortAddress = byte(i)
		}
		if n == 0 {
			return dali.Done
		}
		e.start(0)
		return e.Step(l, t, locks)

	case stageBank0:
		if e.Read.Step(l) == dali.Pending {
			return dali.Pending
		}
		rec := &t.Drivers[e.Index]
		if err := e.Read.Err(); err != nil {
			e.Failed++
			rec.Family = gear.FamilyDali
			return e.next(t)
		}
		rec.Bank0, _ = gear.ParseMemoryBank0(e.Read.Data())
		gear.Classify(rec)
		switch rec.Family {
		case gear.FamilyD4i, gear.FamilySR:
			e.Units = telemetry.For(rec.Family).Units(rec.ShortAddress)
			e.Stage = stageUnits
			return dali.Pending
		}
		return e.next(t)

	case stageUnits:
		if e.Units.Step(l, locks) == dali.Pending {
			return dali.Pending
		}
		rec := &t.Drivers[e.Index]
		if e.Units.Err() == nil {
			telemetry.For(rec.Family).ApplyUnits(rec, e.Units.Data())
		} else {
			e.Failed++
		}
		return e.next(t)
	}
	return dali.Pending
}

func (e *Engine) start(i byte) {
	e.Index = i
	e.Read = membank.NewRead(dali.ShortAddress, i, 0, gear.Bank0From, gear.Bank0Len)
	e.Stage = stageBank0
}

func (e *Engine) next(t *gear.NetworkTable) dali.Progress {
	if int(e.Index)+1 >= t.Identified() {
		e.Stage = stageAssign
		e.Index = 0
		return dali.Done
	}
	e.start(e.Index + 1)
	return dali.Pending
}

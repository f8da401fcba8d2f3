// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package membank drives memory bank reads and unlock/write/lock sequences.
//
// Every operation is a plain value holding its parameters and progress.
// Step is called once per scheduler tick while the bus is idle; it queues
// at most one frame on the link and returns dali.Done once the operation
// is finished. Copying an operation value copies all of its progress.
package membank

import (
	"errors"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

// Memory bank conventions
const (
	// LockIndex is the lock byte location of every writable bank
	LockIndex = 2

	UnlockValue = 0x55
	LockValue   = 0xFF

	// MaxLen is the longest transfer one operation handles
	MaxLen = 255

	// MaxReadRetries is how often one location is re-read before a read
	// gives up.
	MaxReadRetries = 3
)

// ErrReadFailed is reported when a location never answered with valid data
var ErrReadFailed = errors.New("membank: read failed")

// Offset points DTR1 at a bank and DTR0 at a location
type Offset struct {
	Bank  byte
	Index byte
	Stage uint8
}

// Step runs one step of the offset selection
func (o *Offset) Step(l *dali.Link) dali.Progress {
	switch o.Stage {
	case 0:
		l.SendSpecialNoReply(dali.SetDTR1, o.Bank)
		o.Stage = 1
		return dali.Pending
	default:
		l.SendSpecialNoReply(dali.SetDTR0, o.Index)
		o.Stage = 0
		return dali.Done
	}
}

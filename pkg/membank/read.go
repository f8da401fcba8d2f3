// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package membank

import (
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
)

const (
	readSelect uint8 = iota
	readIssue
	readCollect
)

// Read reads Len consecutive locations starting at Bank/Offset. The gear
// increments DTR0 itself after every read, so the offset is selected once.
// A location that does not answer with valid data is selected again and
// re-read, up to MaxReadRetries times.
type Read struct {
	AddrType dali.AddressType
	Addr     byte
	Bank     byte
	Offset   byte
	Len      byte

	Buf     [MaxLen]byte
	N       byte
	Retries uint8
	Failed  bool

	Stage uint8
	Sel   Offset
}

// NewRead returns a read of n locations
func NewRead(addrType dali.AddressType, addr, bank, offset, n byte) Read {
	return Read{
		AddrType: addrType,
		Addr:     addr,
		Bank:     bank,
		Offset:   offset,
		Len:      n,
		Sel:      Offset{Bank: bank, Index: offset},
	}
}

// Data returns the bytes read so far
func (r *Read) Data() []byte {
	return r.Buf[:r.N]
}

// Err returns ErrReadFailed if the read gave up
func (r *Read) Err() error {
	if r.Failed {
		return ErrReadFailed
	}
	return nil
}

// Step runs one step of the read
func (r *Read) Step(l *dali.Link) dali.Progress {
	switch r.Stage {
	case readSelect:
		if r.Sel.Step(l) == dali.Done {
			r.Stage = readIssue
		}

	case readIssue:
		if r.N >= r.Len {
			r.Stage = readSelect
			return dali.Done
		}
		l.SendStandardWithReply(r.AddrType, r.Addr, dali.ReadMemoryLocation)
		r.Stage = readCollect

	case readCollect:
		reply := l.Reply()
		if reply.Status == manchester.ValidData {
			r.Buf[r.N] = reply.Data
			r.N++
			r.Retries = 0
			if r.N >= r.Len {
				r.Stage = readSelect
				return dali.Done
			}
			l.SendStandardWithReply(r.AddrType, r.Addr, dali.ReadMemoryLocation)
			return dali.Pending
		}

		r.Retries++
		if r.Retries > MaxReadRetries {
			r.Failed = true
			r.Stage = readSelect
			return dali.Done
		}
		// DTR0 has moved on in the gear even if the reply got lost
		r.Sel = Offset{Bank: r.Bank, Index: r.Offset + r.N}
		r.Stage = readSelect
		if r.Sel.Step(l) == dali.Done {
			r.Stage = readIssue
		}
	}
	return dali.Pending
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package membank

import "github.com/Thermoquad/dalistat/pkg/dali"

// Write writes Len bytes of Buf to consecutive locations, starting wherever
// DTR1/DTR0 currently point. Write enable must already be active.
type Write struct {
	Buf [MaxLen]byte
	Len byte
	Pos byte
}

// NewWrite returns a write of data. Data beyond MaxLen is dropped.
func NewWrite(data []byte) Write {
	var w Write
	w.Len = byte(copy(w.Buf[:], data))
	return w
}

// Step queues the next byte
func (w *Write) Step(l *dali.Link) dali.Progress {
	if w.Pos >= w.Len {
		w.Pos = 0
		return dali.Done
	}
	l.SendSpecialWithReply(dali.WriteMemoryLocation, w.Buf[w.Pos])
	w.Pos++
	if w.Pos >= w.Len {
		w.Pos = 0
		return dali.Done
	}
	return dali.Pending
}

const (
	uwlSelectLock uint8 = iota
	uwlEnableUnlock
	uwlUnlock
	uwlSelectTarget
	uwlEnableWrite
	uwlWrite
	uwlSelectRelock
	uwlEnableLock
	uwlLock
)

// UnlockWriteLock unlocks a bank through its lock byte, writes Data at
// Offset and locks the bank again. Replies to the writes are not checked.
type UnlockWriteLock struct {
	AddrType dali.AddressType
	Addr     byte
	Bank     byte
	Offset   byte

	Stage uint8
	Sel   Offset
	W     Write
}

// NewUnlockWriteLock returns the sequence writing data to bank at offset
func NewUnlockWriteLock(addrType dali.AddressType, addr, bank, offset byte, data []byte) UnlockWriteLock {
	return UnlockWriteLock{
		AddrType: addrType,
		Addr:     addr,
		Bank:     bank,
		Offset:   offset,
		Sel:      Offset{Bank: bank, Index: LockIndex},
		W:        NewWrite(data),
	}
}

// Step runs one step of the sequence
func (u *UnlockWriteLock) Step(l *dali.Link) dali.Progress {
	switch u.Stage {
	case uwlSelectLock:
		if u.Sel.Step(l) == dali.Done {
			u.Stage = uwlEnableUnlock
		}
	case uwlEnableUnlock:
		l.SendStandardTwice(u.AddrType, u.Addr, dali.EnableWriteMemory)
		u.Stage = uwlUnlock
	case uwlUnlock:
		l.SendSpecialWithReply(dali.WriteMemoryLocation, UnlockValue)
		u.Stage = uwlSelectTarget
	case uwlSelectTarget:
		l.SendSpecialNoReply(dali.SetDTR0, u.Offset)
		u.Stage = uwlEnableWrite
	case uwlEnableWrite:
		l.SendStandardTwice(u.AddrType, u.Addr, dali.EnableWriteMemory)
		u.Stage = uwlWrite
	case uwlWrite:
		if u.W.Len == 0 {
			l.SendSpecialNoReply(dali.SetDTR0, LockIndex)
			u.Stage = uwlEnableLock
			break
		}
		if u.W.Step(l) == dali.Done {
			u.Stage = uwlSelectRelock
		}
	case uwlSelectRelock:
		l.SendSpecialNoReply(dali.SetDTR0, LockIndex)
		u.Stage = uwlEnableLock
	case uwlEnableLock:
		l.SendStandardTwice(u.AddrType, u.Addr, dali.EnableWriteMemory)
		u.Stage = uwlLock
	case uwlLock:
		l.SendSpecialWithReply(dali.WriteMemoryLocation, LockValue)
		u.Stage = uwlSelectLock
		u.Sel = Offset{Bank: u.Bank, Index: LockIndex}
		return dali.Done
	}
	return dali.Pending
}

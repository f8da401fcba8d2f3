// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sequence holds the short bus sequences used for commissioning a
// single gear on a bench: presence polling, short address assignment
// through DTR0, and tuning a gear parameter in its memory bank.
package sequence

import (
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
	"github.com/Thermoquad/dalistat/pkg/membank"
)

// Tuning location
const (
	TuneBank   = 2
	TuneOffset = 3

	// Levels flashed while commissioning so the gear can be spotted
	ConfirmLevel = 10
	ReadyLevel   = 254
)

// Poll asks every gear whether it is present until one answers
type Poll struct {
	Stage uint8
}

// Step runs one step of the poll
func (p *Poll) Step(l *dali.Link) dali.Progress {
	if p.Stage == 0 {
		l.SendStandardWithReply(dali.BroadcastAll, 0, dali.QueryControlGearPresent)
		p.Stage = 1
		return dali.Pending
	}

	p.Stage = 0
	reply := l.Reply()
	if reply.Status == manchester.ValidData && reply.Data == 0xFF {
		return dali.Done
	}
	return dali.Pending
}

// Assign stores Value in the short address of every gear on the bus.
// Value is in DTR0 form: dali.ProgramAddress(n), or dali.Mask to delete.
type Assign struct {
	Value byte
	Stage uint8
}

// Step runs one step of the assignment
func (a *Assign) Step(l *dali.Link) dali.Progress {
	switch a.Stage {
	case 0:
		l.SendSpecialNoReply(dali.SetDTR0, a.Value)
		a.Stage = 1
	case 1:
		l.SendStandardTwice(dali.BroadcastAll, 0, dali.SetShortAddress)
		a.Stage = 2
	default:
		a.Stage = 0
		return dali.Done
	}
	return dali.Pending
}

// SingleAddress gives the only gear on the bus the short address Addr
type SingleAddress struct {
	Addr   byte
	Stage  uint8
	Poll   Poll
	Assign Assign
}

// Step runs one step of the addressing
func (s *SingleAddress) Step(l *dali.Link) dali.Progress {
	switch s.Stage {
	case 0:
		if s.Poll.Step(l) == dali.Done {
			s.Assign = Assign{Value: dali.Mask}
			s.Stage = 1
		}
	case 1:
		if s.Assign.Step(l) == dali.Done {
			s.Assign = Assign{Value: dali.ProgramAddress(s.Addr)}
			s.Stage = 2
		}
	default:
		if s.Assign.Step(l) == dali.Done {
			s.Stage = 0
			return dali.Done
		}
	}
	return dali.Pending
}

// Tune writes one tuning byte of the gear at short address Addr
type Tune struct {
	UWL membank.UnlockWriteLock
}

// NewTune returns the tuning sequence for addr
func NewTune(addr, value byte) Tune {
	return Tune{
		UWL: membank.NewUnlockWriteLock(dali.ShortAddress, addr, TuneBank, TuneOffset, []byte{value}),
	}
}

// Step runs one step of the tuning
func (t *Tune) Step(l *dali.Link) dali.Progress {
	return t.UWL.Step(l)
}

const (
	commissionPoll uint8 = iota
	commissionAddress
	commissionConfirm
	commissionTune
	commissionReady
	commissionDone
)

// Commission brings a single new gear into service: it waits for the gear
// to appear, gives it short address Addr, flashes it, writes the tuning
// byte and turns it fully on.
type Commission struct {
	Addr  byte
	Value byte

	Stage  uint8
	Poll   Poll
	Single SingleAddress
	Tune   Tune
}

// NewCommission returns the commissioning sequence for one gear
func NewCommission(addr, tune byte) Commission {
	if addr > dali.MaxShortAddress {
		addr = dali.MaxShortAddress
	}
	return Commission{
		Addr:   addr,
		Value:  tune,
		Single: SingleAddress{Addr: addr},
		Tune:   NewTune(addr, tune),
	}
}

// Step runs one step of the commissioning
func (c *Commission) Step(l *dali.Link) dali.Progress {
	switch c.Stage {
	case commissionPoll:
		if c.Poll.Step(l) == dali.Done {
			c.Stage = commissionAddress
		}
	case commissionAddress:
		if c.Single.Step(l) == dali.Done {
			c.Stage = commissionConfirm
		}
	case commissionConfirm:
		l.SendDAPC(dali.ShortAddress, c.Addr, ConfirmLevel)
		c.Stage = commissionTune
	case commissionTune:
		if c.Tune.Step(l) == dali.Done {
			c.Stage = commissionReady
		}
	case commissionReady:
		l.SendDAPC(dali.ShortAddress, c.Addr, ReadyLevel)
		c.Stage = commissionDone
	default:
		c.Stage = commissionPoll
		return dali.Done
	}
	return dali.Pending
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package addressing assigns short addresses to control gear with a binary
// search over their random addresses.
//
// All gear are put into initialisation mode and pick a random 24-bit
// address. The engine then searches for the lowest random address with
// COMPARE, which every gear whose random address is less than or equal to
// the search address answers. The gear found is given the next short
// address, verified and withdrawn from the search, and the search starts
// over until no gear answers a COMPARE at the top of the range.
package addressing

import (
	"errors"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

const (
	// MaxSearchAddress is the top of the search range
	MaxSearchAddress = 0xFFFFFE

	// MaxVerifyRetries is how often VERIFY SHORT ADDRESS is repeated
	// before addressing is abandoned.
	MaxVerifyRetries = 3
)

// ErrVerifyFailed is reported when a programmed gear never confirmed its
// short address.
var ErrVerifyFailed = errors.New("addressing: short address not verified")

type state uint8

const (
	stateReset state = iota
	stateRandomise
	stateSearch
	stateEvaluate
	stateVerify
	stateVerifyReply
	stateTerminate
	stateDone
)

const (
	setHigh uint8 = iota
	setMid
	setLow
	setCompare
)

// Engine is the addressing state machine. The zero value is ready to run.
type Engine struct {
	State state

	// Search holds the current guess, the previous guess and the one
	// before that.
	Search [3]uint32

	// Cached is the search address last sent to the gear, valid once
	// CacheValid is set.
	Cached     uint32
	CacheValid bool
	SetStage   uint8

	Short         byte
	VerifyRetries uint8
	Failed        bool

	// Compares counts COMPARE frames since the last gear was found
	Compares int

	count byte
}

// Count returns the number of short addresses assigned by the last run
func (e *Engine) Count() byte {
	return e.count
}

// Err returns ErrVerifyFailed if the last run was abandoned
func (e *Engine) Err() error {
	if e.Failed {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) restart() {
	e.Search = [3]uint32{MaxSearchAddress, 0, 0}
	e.Compares = 0
}

// Step runs one step of the addressing sequence
func (e *Engine) Step(l *dali.Link) dali.Progress {
	switch e.State {
	case stateReset:
		l.SendSpecialTwice(dali.Initialise, 0)
		e.restart()
		e.Short = 0
		e.CacheValid = false
		e.SetStage = setHigh
		e.VerifyRetries = 0
		e.Failed = false
		e.State = stateRandomise

	case stateRandomise:
		l.SendSpecialTwice(dali.Randomise, 0)
		e.State = stateSearch

	case stateSearch:
		if e.setSearchAddress(l, e.Search[0]) {
			e.State = stateEvaluate
		}

	case stateEvaluate:
		e.evaluate(l)

	case stateVerify:
		l.SendSpecialWithReply(dali.VerifyShortAddress, dali.ProgramAddress(e.Short))
		e.State = stateVerifyReply

	case stateVerifyReply:
		if l.Reply().Answered() {
			l.SendSpecialNoReply(dali.Withdraw, 0)
			e.restart()
			e.Short++
			e.VerifyRetries = 0
			e.State = stateSearch
			if e.Short > dali.MaxShortAddress {
				e.State = stateTerminate
			}
			break
		}
		e.VerifyRetries++
		if e.VerifyRetries >= MaxVerifyRetries {
			e.Failed = true
			e.State = stateTerminate
			break
		}
		l.SendSpecialWithReply(dali.VerifyShortAddress, dali.ProgramAddress(e.Short))

	case stateTerminate:
		l.SendSpecialNoReply(dali.Terminate, 0)
		e.State = stateDone

	case stateDone:
		e.count = e.Short
		e.State = stateReset
		return dali.Done
	}
	return dali.Pending
}

func (e *Engine) evaluate(l *dali.Link) {
	e.Search[2] = e.Search[1]
	e.Search[1] = e.Search[0]
	delta := e.Search[1] - e.Search[2]
	if e.Search[2] > e.Search[1] {
		delta = e.Search[2] - e.Search[1]
	}
	half := delta/2 + delta%2

	if l.Reply().Answered() {
		if delta <= 1 {
			l.SendSpecialNoReply(dali.ProgramShortAddress, dali.ProgramAddress(e.Short))
			e.State = stateVerify
			return
		}
		e.Search[0] = e.Search[1] - half
	} else {
		if e.Search[1] >= MaxSearchAddress {
			e.State = stateTerminate
			return
		}
		e.Search[0] = e.Search[1] + half
		if e.Search[0] > MaxSearchAddress {
			e.Search[0] = MaxSearchAddress
		}
	}

	if !e.setSearchAddress(l, e.Search[0]) {
		e.State = stateSearch
	}
}

// setSearchAddress sends the search address bytes that differ from what
// the gear already hold, one per call, and then COMPARE. It reports true
// once COMPARE is queued.
func (e *Engine) setSearchAddress(l *dali.Link, addr uint32) bool {
	for {
		switch e.SetStage {
		case setHigh:
			e.SetStage = setMid
			if !e.CacheValid || byte(e.Cached>>16) != byte(addr>>16) {
				l.SendSpecialNoReply(dali.SearchAddrH, byte(addr>>16))
				e.Cached = e.Cached&0x00FFFF | addr&0xFF0000
				return false
			}
		case setMid:
			e.SetStage = setLow
			if !e.CacheValid || byte(e.Cached>>8) != byte(addr>>8) {
				l.SendSpecialNoReply(dali.SearchAddrM, byte(addr>>8))
				e.Cached = e.Cached&0xFF00FF | addr&0x00FF00
				return false
			}
		case setLow:
			e.SetStage = setCompare
			if !e.CacheValid || byte(e.Cached) != byte(addr) {
				l.SendSpecialNoReply(dali.SearchAddrL, byte(addr))
				e.Cached = e.Cached&0xFFFF00 | addr&0x0000FF
				return false
			}
		default:
			l.SendSpecialWithReply(dali.Compare, 0)
			e.SetStage = setHigh
			e.CacheValid = true
			e.Compares++
			return true
		}
	}
}

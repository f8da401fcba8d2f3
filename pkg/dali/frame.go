// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import (
	"fmt"

	"github.com/Thermoquad/dalistat/pkg/manchester"
)

// Bus timeline, in TE bytes
const (
	ForwardFrameTEs = 38 // start + 16 data bits + stop
	InterFrameIdle  = 36 // settling time after a forward frame

	// ForwardRegion is the part of a with-reply receive window that mirrors
	// the forward frame itself.
	ForwardRegion = ForwardFrameTEs + 2

	// BackFrameRegion is where a reply may appear: the longest settling
	// delay the gear may take before answering, plus the back frame.
	MaxReplyDelay   = 26
	BackFrameRegion = MaxReplyDelay + manchester.BackFrameTEs

	NoReplyRXLen   = ForwardFrameTEs + InterFrameIdle
	WithReplyRXLen = ForwardRegion + BackFrameRegion
	TwiceLen       = 2 * (ForwardFrameTEs + InterFrameIdle)
)

// ForwardFrame is one master-to-gear frame: address and opcode, special
// opcode and data, or address and arc power level.
type ForwardFrame [2]byte

func (f ForwardFrame) String() string {
	return fmt.Sprintf("%02X %02X", f[0], f[1])
}

// Mode is how a frame is put on the bus
type Mode uint8

const (
	ModeNoReply Mode = iota
	ModeWithReply
	ModeTwice
	ModeDAPC
)

func (m Mode) String() string {
	switch m {
	case ModeNoReply:
		return "no_reply"
	case ModeWithReply:
		return "with_reply"
	case ModeTwice:
		return "twice"
	case ModeDAPC:
		return "dapc"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ExpectsReply reports whether a back frame window follows the frame
func (m Mode) ExpectsReply() bool {
	return m == ModeWithReply
}

// BufferLens returns the TX and RX lengths for a frame sent in this mode.
func (m Mode) BufferLens() (txLen, rxLen int) {
	switch m {
	case ModeWithReply:
		return ForwardFrameTEs, WithReplyRXLen
	case ModeTwice:
		return TwiceLen, TwiceLen
	default:
		return ForwardFrameTEs, NoReplyRXLen
	}
}

// BackFrame is a decoded gear reply
type BackFrame struct {
	Data   byte
	Status manchester.Status
}

// Answered reports whether any gear drove the bus. Colliding replies from
// several gear decode as Corrupt and still count as an answer.
func (b BackFrame) Answered() bool {
	return b.Status == manchester.ValidData || b.Status == manchester.Corrupt
}

func (b BackFrame) String() string {
	if b.Status == manchester.ValidData {
		return fmt.Sprintf("0x%02X", b.Data)
	}
	return b.Status.String()
}

// ============================================================
// Builders
//
// Each builder only accepts the commands listed for its mode. Anything
// else yields ok == false and no frame.
// ============================================================

// BuildSpecialNoReply builds a special command that is sent once and not
// answered.
func BuildSpecialNoReply(cmd SpecialCommand, data byte) (ForwardFrame, bool) {
	switch cmd {
	case Terminate, Withdraw, Ping:
		return ForwardFrame{byte(cmd), 0}, true
	case SetDTR0, SearchAddrH, SearchAddrM, SearchAddrL, ProgramShortAddress,
		EnableDeviceType, SetDTR1, SetDTR2, WriteMemoryLocationNR:
		return ForwardFrame{byte(cmd), data}, true
	}
	return ForwardFrame{}, false
}

// BuildSpecialTwice builds a special command that gear only accept when it
// is repeated.
func BuildSpecialTwice(cmd SpecialCommand, data byte) (ForwardFrame, bool) {
	switch cmd {
	case Randomise:
		return ForwardFrame{byte(cmd), 0}, true
	case Initialise:
		return ForwardFrame{byte(cmd), data}, true
	}
	return ForwardFrame{}, false
}

// BuildSpecialWithReply builds a special command that gear answer.
func BuildSpecialWithReply(cmd SpecialCommand, data byte) (ForwardFrame, bool) {
	switch cmd {
	case Compare, QueryShortAddress:
		return ForwardFrame{byte(cmd), 0}, true
	case VerifyShortAddress, WriteMemoryLocation:
		return ForwardFrame{byte(cmd), data}, true
	}
	return ForwardFrame{}, false
}

// BuildStandardWithReply builds an addressed query.
func BuildStandardWithReply(addrType AddressType, addr byte, cmd StandardCommand) (ForwardFrame, bool) {
	if !isQuery(cmd) {
		return ForwardFrame{}, false
	}
	return ForwardFrame{GenerateAddr(addrType, addr) | selectorBit, byte(cmd)}, true
}

// BuildStandardTwice builds an addressed configuration command.
func BuildStandardTwice(addrType AddressType, addr byte, cmd StandardCommand) (ForwardFrame, bool) {
	if cmd < Reset || cmd > EnableWriteMemory {
		return ForwardFrame{}, false
	}
	switch {
	case cmd <= SetExtendedFadeTime && (cmd < 0x26 || cmd > 0x29):
	case cmd >= SetScene && cmd <= EnableWriteMemory:
	default:
		return ForwardFrame{}, false
	}
	return ForwardFrame{GenerateAddr(addrType, addr) | selectorBit, byte(cmd)}, true
}

// BuildStandardNoReply builds an addressed arc power command.
func BuildStandardNoReply(addrType AddressType, addr byte, cmd StandardCommand) (ForwardFrame, bool) {
	switch {
	case cmd <= ContinuousDown:
	case cmd >= GoToScene && cmd < GoToScene+16:
	default:
		return ForwardFrame{}, false
	}
	return ForwardFrame{GenerateAddr(addrType, addr) | selectorBit, byte(cmd)}, true
}

// BuildDAPC builds a direct arc power control frame. Level 0xFF (Mask)
// leaves the output unchanged.
func BuildDAPC(addrType AddressType, addr byte, level byte) ForwardFrame {
	return ForwardFrame{GenerateAddr(addrType, addr), level}
}

func isQuery(cmd StandardCommand) bool {
	switch {
	case cmd >= QueryStatus && cmd <= QueryExtendedFadeTime:
		return true
	case cmd == QueryControlGearFailure:
		return true
	case cmd >= QuerySceneLevel && cmd < QuerySceneLevel+16:
		return true
	case cmd >= QueryGroups0To7 && cmd <= ReadMemoryLocation:
		return true
	case cmd == QueryExtendedVersionNumber:
		return true
	}
	return false
}

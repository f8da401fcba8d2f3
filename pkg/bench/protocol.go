// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bench implements the bench protocol: fixed six byte requests
// from a test rig that drive the scheduler of a running device.
//
// A memory bank read is answered with the requested number of data bytes
// followed by Ack. Every other request is answered with Ack once its task
// has finished.
package bench

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

// FrameLen is the length of every request
const FrameLen = 6

// AckByte ends every response
const AckByte = 0x55

// Opcode is the first byte of a request
type Opcode byte

const (
	OpReadMemBank  Opcode = 1
	OpWriteMemBank Opcode = 2
	OpSetDAPC      Opcode = 3
	OpCommission   Opcode = 4
	OpPoll         Opcode = 5
	OpRetData      Opcode = 254
	OpAck          Opcode = 255
)

func (o Opcode) String() string {
	switch o {
	case OpReadMemBank:
		return "READ_MEM_BANK"
	case OpWriteMemBank:
		return "WRITE_MEM_BANK"
	case OpSetDAPC:
		return "SET_DAPC"
	case OpCommission:
		return "COMMISSION"
	case OpPoll:
		return "POLL_FOR_CONTROL_GEAR"
	case OpRetData:
		return "RET_DATA"
	case OpAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(o))
	}
}

var (
	ErrUnknownOpcode = errors.New("bench: unknown opcode")
	ErrTimeout       = errors.New("bench: response timeout")
	ErrBadResponse   = errors.New("bench: malformed response")
)

// Request is one decoded bench frame. Fields that an opcode does not use
// are zero.
type Request struct {
	Op    Opcode
	Addr  byte
	Bank  byte
	Index byte
	Len   byte
	Value byte
	Level byte
	Tune  byte
}

// Parse decodes a frame
func Parse(b [FrameLen]byte) (Request, error) {
	r := Request{Op: Opcode(b[0]), Addr: b[1]}
	switch r.Op {
	case OpReadMemBank:
		r.Bank, r.Index, r.Len = b[2], b[3], b[4]
	case OpWriteMemBank:
		r.Bank, r.Index, r.Len, r.Value = b[2], b[3], b[4], b[5]
	case OpSetDAPC:
		r.Level = b[2]
	case OpCommission:
		r.Tune = b[2]
	case OpPoll, OpAck:
		r.Addr = 0
	default:
		return Request{}, fmt.Errorf("%w: %d", ErrUnknownOpcode, b[0])
	}
	return r, nil
}

// Bytes encodes the request
func (r Request) Bytes() [FrameLen]byte {
	b := [FrameLen]byte{byte(r.Op), r.Addr}
	switch r.Op {
	case OpReadMemBank:
		b[2], b[3], b[4] = r.Bank, r.Index, r.Len
	case OpWriteMemBank:
		b[2], b[3], b[4], b[5] = r.Bank, r.Index, r.Len, r.Value
	case OpSetDAPC:
		b[2] = r.Level
	case OpCommission:
		b[2] = r.Tune
	case OpPoll, OpAck:
		b[1] = 0
	}
	return b
}

func (r Request) String() string {
	b := r.Bytes()
	return fmt.Sprintf("%s [% X]", r.Op, b[:])
}

// target maps a bench address to a bus address. Anything past the last
// short address is a broadcast.
func target(addr byte) (dali.AddressType, byte) {
	if addr > dali.MaxShortAddress {
		return dali.BroadcastAll, addr
	}
	return dali.ShortAddress, addr
}

// Task builds the scheduler task of a request. Commission requests have
// no Task and go through Scheduler.Commission instead.
func (r Request) Task() (scheduler.Task, scheduler.Kind) {
	at, addr := target(r.Addr)
	switch r.Op {
	case OpReadMemBank:
		return &scheduler.ReadMemoryBank{AddrType: at, Addr: addr, Bank: r.Bank, Offset: r.Index, Len: r.Len}, scheduler.KindReadMemoryBank
	case OpWriteMemBank:
		return &scheduler.WriteMemoryBank{AddrType: at, Addr: addr, Bank: r.Bank, Offset: r.Index, Data: r.writeData()}, scheduler.KindWriteMemoryBank
	case OpSetDAPC:
		return &scheduler.SetLevel{AddrType: at, Addr: addr, Level: r.Level}, scheduler.KindSetLevel
	case OpPoll:
		return &scheduler.PollForControlGear{}, scheduler.KindPollForControlGear
	case OpCommission:
		return nil, scheduler.KindCommission
	}
	return nil, scheduler.KindNone
}

// writeData repeats Value Len times; a zero Len writes one byte
func (r Request) writeData() []byte {
	n := int(r.Len)
	if n == 0 {
		n = 1
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = r.Value
	}
	return data
}

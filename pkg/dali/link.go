// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import (
	"fmt"

	"github.com/Thermoquad/dalistat/pkg/manchester"
)

// Observer is notified about bus traffic on a Link
type Observer interface {
	FrameSent(f ForwardFrame, m Mode)
	ReplyReceived(f ForwardFrame, b BackFrame)
}

// Link sits between the protocol engines and a Transport. It holds at most
// one queued forward frame and the reply slot of the last with-reply
// transfer.
//
// Engines queue a frame with one of the Send methods; the owner of the
// Link (normally the scheduler) calls Flush once per tick to put it on the
// bus. The reply of a with-reply transfer is decoded from the receive
// window on the first call to Reply after the transfer finished, or just
// before the next transfer reuses the window. Transfers without a reply do
// not touch the reply slot.
//
// A Link is not safe for concurrent use.
type Link struct {
	transport Transport
	observers []Observer

	tx [TwiceLen]byte
	rx [TwiceLen]byte

	frame   ForwardFrame
	mode    Mode
	pending bool

	awaiting   bool
	awaitFrame ForwardFrame
	reply      BackFrame
}

// NewLink creates a Link over t
func NewLink(t Transport, observers ...Observer) *Link {
	return &Link{
		transport: t,
		observers: observers,
		reply:     BackFrame{Status: manchester.NoData},
	}
}

// AddObserver registers o for all following traffic
func (l *Link) AddObserver(o Observer) {
	l.observers = append(l.observers, o)
}

// Transport returns the underlying transport
func (l *Link) Transport() Transport {
	return l.transport
}

// Busy reports whether a transfer is in flight
func (l *Link) Busy() bool {
	return !l.transport.Idle()
}

// Pending reports whether a frame is queued and not yet flushed
func (l *Link) Pending() bool {
	return l.pending
}

// Queued returns the queued frame and its mode
func (l *Link) Queued() (ForwardFrame, Mode, bool) {
	return l.frame, l.mode, l.pending
}

// Discard drops a queued frame without sending it
func (l *Link) Discard() {
	l.pending = false
}

// Flush starts the transfer of the queued frame.
func (l *Link) Flush() error {
	if !l.pending {
		return ErrNoFramePending
	}
	if l.Busy() {
		return ErrBusBusy
	}

	// the receive window is about to be reused
	l.collect()

	frame, mode := l.frame, l.mode
	l.pending = false

	txLen, rxLen := mode.BufferLens()
	tx, rx := l.tx[:txLen], l.rx[:rxLen]
	for i := range tx {
		tx[i] = manchester.TEIdle
	}
	for i := range rx {
		rx[i] = 0
	}
	manchester.EncodeTo(tx, frame[:])
	if mode == ModeTwice {
		manchester.EncodeTo(tx[ForwardFrameTEs+InterFrameIdle:], frame[:])
	}

	if mode.ExpectsReply() {
		l.reply = BackFrame{Status: manchester.NoData}
	}

	if err := l.transport.BeginTransfer(tx, rx); err != nil {
		return fmt.Errorf("begin transfer of %s (%s): %w", frame, mode, err)
	}

	if mode.ExpectsReply() {
		l.awaiting = true
		l.awaitFrame = frame
	}
	for _, o := range l.observers {
		o.FrameSent(frame, mode)
	}
	return nil
}

// Reply returns the reply to the most recent with-reply frame. Before any
// with-reply frame was sent, and while its transfer is still in flight,
// the status is NoData.
func (l *Link) Reply() BackFrame {
	l.collect()
	if l.awaiting {
		return BackFrame{Status: manchester.NoData}
	}
	return l.reply
}

func (l *Link) collect() {
	if !l.awaiting || l.Busy() {
		return
	}
	l.awaiting = false

	data, status := manchester.DecodeBackFrame(l.rx[ForwardRegion:WithReplyRXLen], BackFrameRegion)
	l.reply = BackFrame{Data: data, Status: status}
	for _, o := range l.observers {
		o.ReplyReceived(l.awaitFrame, l.reply)
	}
}

func (l *Link) queue(f ForwardFrame, m Mode) bool {
	if l.pending || l.Busy() {
		return false
	}
	l.frame, l.mode, l.pending = f, m, true
	return true
}

// ============================================================
// Send methods
//
// A Send method queues a frame and reports whether it did. Commands that
// are not valid for the mode, and calls made while a frame is already
// queued or the bus is busy, queue nothing.
// ============================================================

// SendSpecialNoReply queues a special command sent once without reply
func (l *Link) SendSpecialNoReply(cmd SpecialCommand, data byte) bool {
	f, ok := BuildSpecialNoReply(cmd, data)
	return ok && l.queue(f, ModeNoReply)
}

// SendSpecialTwice queues a special command sent twice
func (l *Link) SendSpecialTwice(cmd SpecialCommand, data byte) bool {
	f, ok := BuildSpecialTwice(cmd, data)
	return ok && l.queue(f, ModeTwice)
}

// SendSpecialWithReply queues a special command whose reply is read with
// Reply once the transfer finished.
func (l *Link) SendSpecialWithReply(cmd SpecialCommand, data byte) bool {
	f, ok := BuildSpecialWithReply(cmd, data)
	return ok && l.queue(f, ModeWithReply)
}

// SendStandardNoReply queues an addressed arc power command
func (l *Link) SendStandardNoReply(addrType AddressType, addr byte, cmd StandardCommand) bool {
	f, ok := BuildStandardNoReply(addrType, addr, cmd)
	return ok && l.queue(f, ModeNoReply)
}

// SendStandardTwice queues an addressed configuration command
func (l *Link) SendStandardTwice(addrType AddressType, addr byte, cmd StandardCommand) bool {
	f, ok := BuildStandardTwice(addrType, addr, cmd)
	return ok && l.queue(f, ModeTwice)
}

// SendStandardWithReply queues an addressed query
func (l *Link) SendStandardWithReply(addrType AddressType, addr byte, cmd StandardCommand) bool {
	f, ok := BuildStandardWithReply(addrType, addr, cmd)
	return ok && l.queue(f, ModeWithReply)
}

// SendDAPC queues a direct arc power control frame
func (l *Link) SendDAPC(addrType AddressType, addr byte, level byte) bool {
	return l.queue(BuildDAPC(addrType, addr, level), ModeDAPC)
}

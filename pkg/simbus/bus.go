// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simbus simulates a DALI bus with virtual control gear.
//
// Bus implements dali.Transport. A transfer completes synchronously: the
// forward frames in the transmit buffer are decoded and applied to every
// attached gear, the transmit timeline is mirrored into the receive buffer,
// and any replies are written into the back frame region as the bus would
// carry them. Replies from several gear are combined with a bitwise AND,
// the way an open-collector bus combines them.
package simbus

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
)

// DefaultReplyDelay is the number of TEs between the start of the back
// frame region and the start bit of a reply.
const DefaultReplyDelay = 8

// Transfer is one recorded bus transfer
type Transfer struct {
	Frames  []dali.ForwardFrame
	Twice   bool
	Replied bool
	Reply   byte
}

// Bus is a simulated DALI bus
type Bus struct {
	mu sync.Mutex

	gear       []*Gear
	replyDelay int
	rng        *rand.Rand
	log        []Transfer
	logLimit   int
	err        error
}

// Option configures a Bus
type Option func(*Bus)

// WithReplyDelay sets the reply delay in TEs, 1 to dali.MaxReplyDelay
func WithReplyDelay(te int) Option {
	return func(b *Bus) {
		b.replyDelay = te
	}
}

// WithRand sets the source used by gear without a fixed random address
func WithRand(r *rand.Rand) Option {
	return func(b *Bus) {
		b.rng = r
	}
}

// WithLogLimit keeps only the last n transfers in the log. Zero keeps
// everything.
func WithLogLimit(n int) Option {
	return func(b *Bus) {
		b.logLimit = n
	}
}

// New creates a simulated bus with the given gear attached
func New(gear []*Gear, opts ...Option) *Bus {
	b := &Bus{
		gear:       gear,
		replyDelay: DefaultReplyDelay,
		rng:        rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach adds gear to the bus
func (b *Bus) Attach(g ...*Gear) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gear = append(b.gear, g...)
}

// Gear returns the attached gear
func (b *Bus) Gear() []*Gear {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Gear(nil), b.gear...)
}

// Idle always reports true; transfers complete inside BeginTransfer
func (b *Bus) Idle() bool {
	return true
}

// BeginTransfer runs one transfer to completion
func (b *Bus) BeginTransfer(tx, rx []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range rx {
		if i < len(tx) {
			rx[i] = tx[i]
		} else {
			rx[i] = manchester.TEIdle
		}
	}

	frames, err := decodeFrames(tx)
	if err != nil {
		b.err = err
		return err
	}

	t := Transfer{Frames: frames}
	switch {
	case len(frames) == 2 && frames[0] == frames[1]:
		t.Twice = true
		frames = frames[:1]
	case len(frames) != 1:
		b.err = fmt.Errorf("simbus: %d frames in one transfer", len(frames))
		return b.err
	}

	var merged []byte
	for _, g := range b.gear {
		reply, ok := g.handle(frames[0], t.Twice, b.rng)
		if !ok {
			continue
		}
		enc := manchester.Encode([]byte{reply})
		if merged == nil {
			merged = enc
			t.Reply = reply
		} else {
			for i := range merged {
				merged[i] &= enc[i]
			}
		}
		t.Replied = true
	}

	if merged != nil {
		start := dali.ForwardRegion + b.replyDelay
		for i, v := range merged {
			if start+i < len(rx) {
				rx[start+i] &= v
			}
		}
	}

	b.log = append(b.log, t)
	if b.logLimit > 0 && len(b.log) > b.logLimit {
		b.log = append(b.log[:0], b.log[len(b.log)-b.logLimit:]...)
	}
	return nil
}

// Transfers returns every transfer since the log was last cleared
func (b *Bus) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transfer(nil), b.log...)
}

// Count returns how many transfers carried the given first frame byte.
// For special commands that is the opcode.
func (b *Bus) Count(first byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, t := range b.log {
		if len(t.Frames) > 0 && t.Frames[0][0] == first {
			n++
		}
	}
	return n
}

// ClearLog forgets the recorded transfers
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
}

// Err returns the last malformed transfer error
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func decodeFrames(tx []byte) ([]dali.ForwardFrame, error) {
	var frames []dali.ForwardFrame
	pos := 0
	for pos < len(tx) {
		if allIdle(tx[pos:]) {
			break
		}
		payload, n, err := manchester.DecodeForwardFrame(tx[pos:], 2)
		if err != nil {
			return nil, fmt.Errorf("simbus: decode frame at %d: %w", pos, err)
		}
		frames = append(frames, dali.ForwardFrame{payload[0], payload[1]})
		pos += n
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("simbus: no forward frame in %d TEs", len(tx))
	}
	return frames, nil
}

func allIdle(te []byte) bool {
	for _, v := range te {
		if v != manchester.TEIdle {
			return false
		}
	}
	return true
}

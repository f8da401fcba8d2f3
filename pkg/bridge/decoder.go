// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is returned when a frame fails its CRC check
var ErrCRCMismatch = errors.New("bridge: CRC mismatch")

// Decoder is a byte-at-a-time frame decoder
type Decoder struct {
	state  int
	buffer []byte
	escape bool

	length  int
	seq     uint8
	crc     uint16
	payload []byte

	raw []byte
}

// NewDecoder creates a decoder waiting for a START byte
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
		raw:    make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escape = false
	d.length = 0
	d.payload = nil
	d.raw = d.raw[:0]
}

// RawBytes returns the wire bytes of the frame being decoded
func (d *Decoder) RawBytes() []byte {
	return d.raw
}

// DecodeByte feeds one wire byte. It returns a message when b completes
// a valid frame.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	switch {
	case b == StartByte:
		d.Reset()
		d.raw = append(d.raw, b)
		d.state = stateLength
		return nil, nil
	case d.state == stateIdle:
		return nil, nil
	}

	d.raw = append(d.raw, b)

	if b == EndByte {
		return d.finish()
	}
	if b == EscByte && !d.escape {
		d.escape = true
		return nil, nil
	}
	if d.escape {
		b ^= EscXor
		d.escape = false
	}

	switch d.state {
	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateSeq

	case stateSeq:
		d.seq = b
		d.buffer = append(d.buffer, b)
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.payload = append(d.payload, b)
		d.buffer = append(d.buffer, b)
		if len(d.payload) >= d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("unexpected byte 0x%02X after CRC", b)
	}
	return nil, nil
}

func (d *Decoder) finish() (*Message, error) {
	defer d.Reset()

	if d.state != stateEnd {
		return nil, fmt.Errorf("unexpected END byte in state %d", d.state)
	}
	if calc := CalculateCRC(d.buffer); calc != d.crc {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calc, d.crc)
	}

	msgType, payload, err := ParseCBOR(d.payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Seq:       d.seq,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

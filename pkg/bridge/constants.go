// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge carries DALI bus transfers over a byte stream to a
// remote bus interface.
//
// The host sends the transmit timeline of one transfer and the length of
// the receive window it wants back; the bus interface clocks the timeline
// onto the wire and answers with the sampled receive window. Every frame
// on the stream looks like this:
//
//	START | stuffed(length | seq | CBOR [type, {key: value}] | CRC16) | END
//
// length counts the CBOR bytes. The CRC is CRC-16/CCITT-FALSE over
// length, seq and the CBOR bytes and is sent big-endian. START, END and
// ESC inside the stuffed section are sent as ESC followed by the byte XOR
// 0x20.
package bridge

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 250
	MaxFrameSize   = 1 + 1 + MaxPayloadSize + 2
)

// Message types
const (
	MsgTransferRequest = 0x01
	MsgTransferResult  = 0x02
	MsgPingRequest     = 0x10
	MsgPingResponse    = 0x11
	MsgError           = 0xE0
)

// Payload keys
const (
	KeyTX     = 0
	KeyRXLen  = 1
	KeyRX     = 0
	KeyUptime = 0
	KeyCode   = 0
)

// Error codes reported by the bus interface
const (
	ErrCodeInvalidRequest = 1
	ErrCodeBusBusy        = 2
	ErrCodeTransferFailed = 3
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	stateSeq
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

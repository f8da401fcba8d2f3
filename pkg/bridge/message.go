// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Message is one decoded frame
type Message struct {
	Seq       uint8
	Type      uint8
	Payload   map[int]interface{}
	Timestamp time.Time
}

// TransferRequest asks the bus interface to clock tx onto the bus and
// sample rxLen TEs
func TransferRequest(seq uint8, tx []byte, rxLen int) *Message {
	return &Message{Seq: seq, Type: MsgTransferRequest, Payload: map[int]interface{}{
		KeyTX:    tx,
		KeyRXLen: uint64(rxLen),
	}}
}

// TransferResult carries the sampled receive window
func TransferResult(seq uint8, rx []byte) *Message {
	return &Message{Seq: seq, Type: MsgTransferResult, Payload: map[int]interface{}{KeyRX: rx}}
}

// PingRequest asks for a PingResponse
func PingRequest(seq uint8) *Message {
	return &Message{Seq: seq, Type: MsgPingRequest}
}

// PingResponse reports the bus interface uptime
func PingResponse(seq uint8, uptime time.Duration) *Message {
	return &Message{Seq: seq, Type: MsgPingResponse, Payload: map[int]interface{}{
		KeyUptime: uint64(uptime.Milliseconds()),
	}}
}

// ErrorMessage reports a failed request
func ErrorMessage(seq uint8, code uint8) *Message {
	return &Message{Seq: seq, Type: MsgError, Payload: map[int]interface{}{KeyCode: uint64(code)}}
}

// TX returns the transmit timeline of a TransferRequest
func (m *Message) TX() ([]byte, bool) { return GetMapBytes(m.Payload, KeyTX) }

// RXLen returns the requested receive window length
func (m *Message) RXLen() (int, bool) {
	n, ok := GetMapUint(m.Payload, KeyRXLen)
	return int(n), ok
}

// RX returns the receive window of a TransferResult
func (m *Message) RX() ([]byte, bool) { return GetMapBytes(m.Payload, KeyRX) }

// Uptime returns the uptime of a PingResponse
func (m *Message) Uptime() (time.Duration, bool) {
	ms, ok := GetMapUint(m.Payload, KeyUptime)
	return time.Duration(ms) * time.Millisecond, ok
}

// Code returns the code of an Error message
func (m *Message) Code() (uint8, bool) {
	c, ok := GetMapUint(m.Payload, KeyCode)
	return uint8(c), ok
}

func (m *Message) String() string {
	switch m.Type {
	case MsgTransferRequest:
		tx, _ := m.TX()
		n, _ := m.RXLen()
		return fmt.Sprintf("TRANSFER_REQUEST seq=%d tx=%d rx=%d", m.Seq, len(tx), n)
	case MsgTransferResult:
		rx, _ := m.RX()
		return fmt.Sprintf("TRANSFER_RESULT seq=%d rx=%d", m.Seq, len(rx))
	case MsgPingRequest:
		return fmt.Sprintf("PING_REQUEST seq=%d", m.Seq)
	case MsgPingResponse:
		up, _ := m.Uptime()
		return fmt.Sprintf("PING_RESPONSE seq=%d uptime=%s", m.Seq, up)
	case MsgError:
		c, _ := m.Code()
		return fmt.Sprintf("ERROR seq=%d code=%d", m.Seq, c)
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X) seq=%d", m.Type, m.Seq)
	}
}

// ParseCBOR parses a [type, payload] array. Payload is nil when empty.
func ParseCBOR(data []byte) (msgType uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	t, ok := msg[0].(uint64)
	if !ok || t > 255 {
		return 0, nil, fmt.Errorf("invalid message type %v", msg[0])
	}
	msgType = uint8(t)

	if msg[1] == nil {
		return msgType, nil, nil
	}
	raw, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}
	payload = make(map[int]interface{}, len(raw))
	for key, val := range raw {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return msgType, payload, nil
}

// GetMapUint extracts an unsigned integer from a payload map
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// GetMapBytes extracts a byte string from a payload map
func GetMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	v, ok := m[key].([]byte)
	return v, ok
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encode builds a complete wire frame, framing and stuffing included
func Encode(seq uint8, msgType uint8, payload map[int]interface{}) ([]byte, error) {
	body, err := encodeCBOR(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(body), MaxPayloadSize)
	}

	data := make([]byte, 0, 2+len(body)+2)
	data = append(data, uint8(len(body)), seq)
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// EncodeMessage encodes m with its own sequence number
func EncodeMessage(m *Message) ([]byte, error) {
	return Encode(m.Seq, m.Type, m.Payload)
}

func encodeCBOR(msgType uint8, payload map[int]interface{}) ([]byte, error) {
	var msg []interface{}
	if len(payload) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	return cbor.Marshal(msg)
}

func stuffBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			out = append(out, EscByte, b^EscXor)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// UnstuffBytes reverses byte stuffing
func UnstuffBytes(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	escape := false
	for _, b := range data {
		switch {
		case escape:
			out = append(out, b^EscXor)
			escape = false
		case b == EscByte:
			escape = true
		default:
			out = append(out, b)
		}
	}
	if escape {
		return nil, fmt.Errorf("trailing escape byte")
	}
	return out, nil
}

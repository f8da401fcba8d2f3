// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package manchester implements the DALI bit coding used on the bus bridge.
//
// The bridge samples the bus once per time element (TE, 416.67us) and
// represents every TE as one byte: 0xFF while the line is idle (high) and
// 0x00 while it is driven low. A DALI bit is two TEs, so an encoded bit is
// two bytes:
//
//	logical 1: 0x00 0xFF
//	logical 0: 0xFF 0x00
//
// Frames are a start bit (logical 1), the payload MSB first, and a stop
// condition of 4 idle TEs.
package manchester

import (
	"fmt"
	"math/bits"
)

// TE byte values
const (
	TEIdle = 0xFF
	TELow  = 0x00
)

// Frame geometry, in TE bytes
const (
	TEsPerBit    = 2
	StopTEs      = 4
	BackFrameTEs = (1+8)*TEsPerBit + StopTEs // 22

	// minBackFrameTEs is the shortest window tail that can still hold the
	// start bit and the data bits of a back frame.
	minBackFrameTEs = 16
)

// Status is the result of a back frame decode
type Status int

const (
	ValidData Status = iota
	NoData
	Corrupt
	Incomplete
)

func (s Status) String() string {
	switch s {
	case ValidData:
		return "valid"
	case NoData:
		return "no_data"
	case Corrupt:
		return "corrupt"
	case Incomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EncodedLen returns the number of TE bytes needed to encode n payload bytes.
func EncodedLen(n int) int {
	return (1+8*n)*TEsPerBit + StopTEs
}

// Encode returns the TE representation of msg.
func Encode(msg []byte) []byte {
	dst := make([]byte, EncodedLen(len(msg)))
	EncodeTo(dst, msg)
	return dst
}

// EncodeTo writes the TE representation of msg into dst and returns the
// number of bytes written. dst must hold at least EncodedLen(len(msg)) bytes.
func EncodeTo(dst, msg []byte) int {
	n := EncodedLen(len(msg))
	if len(dst) < n {
		panic(fmt.Sprintf("manchester: destination too short: %d < %d", len(dst), n))
	}

	pos := putBit(dst, 0, 1) // start bit
	for _, b := range msg {
		for i := 7; i >= 0; i-- {
			pos = putBit(dst, pos, (b>>uint(i))&1)
		}
	}
	for i := 0; i < StopTEs; i++ {
		dst[pos] = TEIdle
		pos++
	}
	return pos
}

func putBit(dst []byte, pos int, bit byte) int {
	if bit == 1 {
		dst[pos], dst[pos+1] = TELow, TEIdle
	} else {
		dst[pos], dst[pos+1] = TEIdle, TELow
	}
	return pos + TEsPerBit
}

// DecodeBackFrame looks for a back frame in the first maxLen bytes of a raw
// receive window.
//
// The window is scanned from index 1 for the first byte that is not idle.
// The number of leading set bits in that byte gives the sub-TE offset of the
// falling edge; every following TE is realigned by that offset before it is
// reduced to a bit by counting set bits. A TE with exactly four set bits is
// a 1 unless its raw value is 0xF0, and a raw 0x07 is always a 1. These two
// exceptions are calibrated against the bridge's receive comparator.
//
// Bytes beyond the end of window are treated as idle.
func DecodeBackFrame(window []byte, maxLen int) (byte, Status) {
	if maxLen > len(window) {
		maxLen = len(window)
	}

	start := 1
	for ; start < maxLen; start++ {
		if window[start] < TEIdle {
			break
		}
	}
	if start >= maxLen {
		return 0, NoData
	}
	if start+minBackFrameTEs > maxLen {
		return 0, Incomplete
	}

	// Sub-TE alignment from the first falling edge
	first := window[start]
	shift := 0
	var mask byte
	for shift < 7 {
		if first&(0x80>>uint(shift)) == 0 {
			break
		}
		mask |= 1 << uint(7-shift)
		shift++
	}

	at := func(i int) byte {
		if i < len(window) {
			return window[i]
		}
		return TEIdle
	}

	var te [BackFrameTEs]byte
	for k := range te {
		raw := at(start+k)<<uint(shift) | (at(start+k+1)&mask)>>uint(8-shift)
		te[k] = teBit(raw)
	}

	if te[0] != 0 || te[1] != 1 {
		return 0, Corrupt
	}
	if te[18]+te[19]+te[20]+te[21] < 3 {
		return 0, Corrupt
	}

	var data byte
	for k := 0; k < 8; k++ {
		switch {
		case te[2+2*k] == 1 && te[3+2*k] == 0:
			// logical 0
		case te[2+2*k] == 0 && te[3+2*k] == 1:
			data |= 1 << uint(7-k)
		default:
			return 0, Corrupt
		}
	}
	return data, ValidData
}

// teBit reduces one realigned TE sample byte to a line level.
func teBit(raw byte) byte {
	if raw == 0x07 {
		return 1
	}
	n := bits.OnesCount8(raw)
	switch {
	case n < 4:
		return 0
	case n == 4 && raw == 0xF0:
		return 0
	default:
		return 1
	}
}

// DecodeForwardFrame decodes a TE-aligned forward frame of n payload bytes.
// Leading idle bytes are skipped. It returns the payload and the number of
// bytes consumed up to the end of the stop condition.
func DecodeForwardFrame(te []byte, n int) ([]byte, int, error) {
	start := 0
	for start < len(te) && te[start] == TEIdle {
		start++
	}
	if start == len(te) {
		return nil, len(te), fmt.Errorf("no frame in %d bytes", len(te))
	}

	need := EncodedLen(n)
	if start+need-StopTEs > len(te) {
		return nil, len(te), fmt.Errorf("truncated frame at offset %d", start)
	}

	pos := start
	bit, err := readBit(te, pos)
	if err != nil {
		return nil, pos, fmt.Errorf("start bit: %w", err)
	}
	if bit != 1 {
		return nil, pos, fmt.Errorf("start bit: got 0 at offset %d", pos)
	}
	pos += TEsPerBit

	out := make([]byte, n)
	for i := 0; i < n; i++ {
		for j := 7; j >= 0; j-- {
			bit, err := readBit(te, pos)
			if err != nil {
				return nil, pos, fmt.Errorf("byte %d bit %d: %w", i, j, err)
			}
			out[i] |= bit << uint(j)
			pos += TEsPerBit
		}
	}

	end := pos + StopTEs
	if end > len(te) {
		end = len(te)
	}
	for i := pos; i < end; i++ {
		if te[i] != TEIdle {
			return nil, i, fmt.Errorf("stop condition violated at offset %d", i)
		}
	}
	return out, end, nil
}

func readBit(te []byte, pos int) (byte, error) {
	switch {
	case te[pos] == TELow && te[pos+1] == TEIdle:
		return 1, nil
	case te[pos] == TEIdle && te[pos+1] == TELow:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid TE pair 0x%02X 0x%02X at offset %d", te[pos], te[pos+1], pos)
	}
}

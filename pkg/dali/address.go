// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import "fmt"

// AddressType selects how the first byte of a standard forward frame is formed
type AddressType uint8

const (
	ShortAddress AddressType = iota
	GroupAddress
	BroadcastUnaddressed
	BroadcastAll
)

// Address limits and sentinels
const (
	MaxShortAddress = 63
	MaxGroupAddress = 15

	groupAddressBase         = 0x80
	broadcastUnaddressedByte = 0xFC
	broadcastAllByte         = 0xFE

	// selectorBit marks a standard command; without it the second byte is
	// a direct arc power level.
	selectorBit = 0x01

	// Mask is the "no change" arc power level and the "no address" value
	Mask = 0xFF
)

func (a AddressType) String() string {
	switch a {
	case ShortAddress:
		return "short"
	case GroupAddress:
		return "group"
	case BroadcastUnaddressed:
		return "broadcast_unaddressed"
	case BroadcastAll:
		return "broadcast"
	default:
		return fmt.Sprintf("address_type(%d)", uint8(a))
	}
}

// GenerateAddr returns the address byte for a standard command or DAPC
// frame, without the selector bit. Short and group values are clamped to
// their valid range.
func GenerateAddr(addrType AddressType, value byte) byte {
	switch addrType {
	case ShortAddress:
		if value > MaxShortAddress {
			value = MaxShortAddress
		}
		return value << 1
	case GroupAddress:
		if value > MaxGroupAddress {
			value = MaxGroupAddress
		}
		return groupAddressBase | value<<1
	case BroadcastUnaddressed:
		return broadcastUnaddressedByte
	default:
		return broadcastAllByte
	}
}

// ProgramAddress encodes a short address the way INITIALISE, PROGRAM SHORT
// ADDRESS, VERIFY SHORT ADDRESS and DTR0-staged SET SHORT ADDRESS expect it.
func ProgramAddress(short byte) byte {
	return (short&MaxShortAddress)<<1 | 1
}

// ParseAddr splits the first byte of an addressed forward frame into its
// address type, value and selector bit. It must not be called for special
// command bytes.
func ParseAddr(b byte) (addrType AddressType, value byte, command bool) {
	command = b&selectorBit == selectorBit
	switch {
	case b < groupAddressBase:
		return ShortAddress, (b >> 1) & MaxShortAddress, command
	case b < 0xA0:
		return GroupAddress, (b >> 1) & MaxGroupAddress, command
	case b&^selectorBit == broadcastUnaddressedByte:
		return BroadcastUnaddressed, 0, command
	default:
		return BroadcastAll, 0, command
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "github.com/Thermoquad/dalistat/pkg/dali"

// Locks records which short addresses have had their protected banks
// unlocked since power on. A set bit means unlocked.
type Locks struct {
	bits [2]uint32
}

// Unlocked reports whether addr was unlocked
func (k *Locks) Unlocked(addr byte) bool {
	if addr > dali.MaxShortAddress {
		return false
	}
	return k.bits[addr/32]&(1<<(addr%32)) != 0
}

// Set marks addr unlocked. It reports false for addresses beyond 63.
func (k *Locks) Set(addr byte) bool {
	if addr > dali.MaxShortAddress {
		return false
	}
	k.bits[addr/32] |= 1 << (addr % 32)
	return true
}

// Reset forgets every unlock, as after a bus power cycle
func (k *Locks) Reset() {
	k.bits = [2]uint32{}
}

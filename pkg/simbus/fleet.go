// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simbus

import (
	"encoding/binary"
	"math/rand"

	"github.com/Thermoquad/dalistat/pkg/gear"
)

// Product GTINs the fleet is built from
var (
	fleetD4i   = gear.GTIN{0x00, 0x0A, 0xBD, 0xE8, 0x23, 0xEC}
	fleetDexal = gear.GTIN{0x00, 0x0A, 0xBD, 0xE8, 0x23, 0xFD}
)

func withBank0(g *Gear, gtin gear.GTIN) {
	bank0 := make([]byte, gear.Bank0From+gear.Bank0Len)
	copy(bank0[gear.Bank0From:], gtin[:])
	bank0[gear.Bank0From+6] = 1 // firmware 1.0
	g.SetBank(0, bank0)
}

// NewD4iGear returns a gear that reports D4i energy and diagnostics:
// watts in 0.1 W, energy in Wh, 230 V, 350 mA and 41 degrees.
func NewD4iGear(random uint32, watts float32, energy uint64) *Gear {
	g := NewGear(random)
	withBank0(g, fleetD4i)

	b202 := make([]byte, 0x10)
	b202[0x04] = 0    // energy scale
	b202[0x0B] = 0xFF // power scale 10^-1
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], energy)
	copy(b202[0x05:0x0B], e[2:])
	binary.BigEndian.PutUint32(b202[0x0C:], uint32(watts*10))
	g.SetBank(202, b202)

	b205 := make([]byte, 0x1C)
	b205[0x1B] = 41
	g.SetBank(205, b205)

	b206 := make([]byte, 0x16)
	binary.BigEndian.PutUint16(b206[0x12:], 230)
	binary.BigEndian.PutUint16(b206[0x14:], 350)
	g.SetBank(206, b206)
	return g
}

// NewDexalGear returns a gear that reports Dexal power in 1/64 W steps and
// energy in Wh
func NewDexalGear(random uint32, watts float32, energy uint32) *Gear {
	g := NewGear(random)
	withBank0(g, fleetDexal)

	b29 := make([]byte, 10)
	b29[7] = 0x10 // run time
	b29[8] = 38
	b29[9] = 55
	g.SetBank(29, b29)

	b30 := make([]byte, 9)
	p := uint32(watts / gear.DexalPowerUnit)
	b30[6], b30[7], b30[8] = byte(p>>16), byte(p>>8), byte(p)
	g.SetBank(30, b30)

	b36 := make([]byte, 9)
	binary.BigEndian.PutUint32(b36[5:], energy)
	g.SetBank(36, b36)
	return g
}

// Fleet returns n unaddressed gear: D4i, Dexal and plain DALI in turn,
// with random addresses drawn from seed.
func Fleet(n int, seed int64) []*Gear {
	rng := rand.New(rand.NewSource(seed))
	out := make([]*Gear, 0, n)
	for i := 0; i < n; i++ {
		random := uint32(rng.Intn(maxRandomAddress + 1))
		watts := float32(10 + rng.Intn(40))
		switch i % 3 {
		case 0:
			out = append(out, NewD4iGear(random, watts, uint64(rng.Intn(1<<20))))
		case 1:
			out = append(out, NewDexalGear(random, watts, uint32(rng.Intn(1<<20))))
		default:
			g := NewGear(random)
			withBank0(g, gear.GTIN{0x09, 0x99, 0x00, 0x00, 0x00, byte(i)})
			out = append(out, g)
		}
	}
	return out
}

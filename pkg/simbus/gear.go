// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simbus

import (
	"math/rand"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

// Memory bank layout shared by every bank
const (
	lockByteIndex = 2
	unlockValue   = 0x55

	maxRandomAddress = 0xFFFFFF
)

// Gear is one virtual control gear. Its fields must not be modified while
// a transfer is in progress.
type Gear struct {
	Random uint32
	Short  byte // dali.Mask when unaddressed
	Level  byte
	Groups uint16
	Scenes [16]byte

	DTR0, DTR1, DTR2 byte

	// Banks holds the memory banks by number. Location 2 of every bank
	// but bank 0 is the lock byte.
	Banks map[byte][]byte

	// Silent gear never answer
	Silent bool

	// ReplyHook may replace or suppress a reply. It is called with the
	// frame and the reply the gear would have sent.
	ReplyHook func(f dali.ForwardFrame, reply byte) (byte, bool)

	randomFixed  bool
	initialised  bool
	withdrawn    bool
	writeEnabled bool
	search       uint32
}

// NewGear returns an unaddressed gear that answers RANDOMISE with random.
func NewGear(random uint32) *Gear {
	g := newGear()
	g.Random = random & maxRandomAddress
	g.randomFixed = true
	return g
}

// NewRandomGear returns an unaddressed gear that draws a new random
// address from rng on every RANDOMISE.
func NewRandomGear(rng *rand.Rand) *Gear {
	g := newGear()
	g.Random = uint32(rng.Intn(maxRandomAddress + 1))
	return g
}

func newGear() *Gear {
	g := &Gear{
		Short: dali.Mask,
		Level: 254,
		Banks: map[byte][]byte{
			0: make([]byte, 27),
		},
	}
	for i := range g.Scenes {
		g.Scenes[i] = dali.Mask
	}
	return g
}

// SetBank installs a memory bank. For banks other than 0 the lock byte
// starts locked.
func (g *Gear) SetBank(bank byte, contents []byte) {
	b := make([]byte, len(contents))
	copy(b, contents)
	if bank != 0 && len(b) > lockByteIndex {
		b[lockByteIndex] = 0xFF
	}
	g.Banks[bank] = b
}

// Initialised reports whether the gear is in its addressing mode
func (g *Gear) Initialised() bool {
	return g.initialised
}

func (g *Gear) rng(r *rand.Rand) {
	if !g.randomFixed {
		g.Random = uint32(r.Intn(maxRandomAddress + 1))
	}
}

func (g *Gear) addressed(b byte) bool {
	if b >= 0xA0 && b < 0xFC {
		return false
	}
	addrType, value, _ := dali.ParseAddr(b)
	switch addrType {
	case dali.ShortAddress:
		return g.Short == value
	case dali.GroupAddress:
		return g.Groups&(1<<value) != 0
	case dali.BroadcastUnaddressed:
		return g.Short == dali.Mask
	default:
		return true
	}
}

// keepsWriteEnable reports whether a frame leaves the write enable state
// of the memory banks in place.
func keepsWriteEnable(f dali.ForwardFrame) bool {
	if dali.IsSpecial(f[0]) {
		switch dali.SpecialCommand(f[0]) {
		case dali.SetDTR0, dali.SetDTR1, dali.SetDTR2,
			dali.WriteMemoryLocation, dali.WriteMemoryLocationNR:
			return true
		}
		return false
	}
	if f[0]&1 == 0 {
		return false
	}
	switch dali.StandardCommand(f[1]) {
	case dali.EnableWriteMemory, dali.QueryContentDTR0, dali.QueryContentDTR1,
		dali.QueryContentDTR2, dali.ReadMemoryLocation:
		return true
	}
	return false
}

// handle applies one frame to the gear. twice is set when the frame was
// repeated within the same transfer.
func (g *Gear) handle(f dali.ForwardFrame, twice bool, r *rand.Rand) (reply byte, ok bool) {
	if !keepsWriteEnable(f) {
		g.writeEnabled = false
	}

	if dali.IsSpecial(f[0]) {
		reply, ok = g.special(dali.SpecialCommand(f[0]), f[1], twice, r)
	} else if g.addressed(f[0]) {
		if f[0]&1 == 0 {
			if f[1] != dali.Mask {
				g.Level = f[1]
			}
			return 0, false
		}
		reply, ok = g.standard(dali.StandardCommand(f[1]), twice)
	}

	if !ok || g.Silent {
		return 0, false
	}
	if g.ReplyHook != nil {
		return g.ReplyHook(f, reply)
	}
	return reply, true
}

func (g *Gear) special(cmd dali.SpecialCommand, data byte, twice bool, r *rand.Rand) (byte, bool) {
	switch cmd {
	case dali.Terminate:
		g.initialised = false
		g.withdrawn = false

	case dali.SetDTR0:
		g.DTR0 = data
	case dali.SetDTR1:
		g.DTR1 = data
	case dali.SetDTR2:
		g.DTR2 = data

	case dali.Initialise:
		if !twice {
			break
		}
		switch {
		case data == 0x00:
		case data == dali.Mask:
			if g.Short != dali.Mask {
				return 0, false
			}
		case data&1 == 1 && (data>>1)&dali.MaxShortAddress == g.Short:
		default:
			return 0, false
		}
		g.initialised = true
		g.withdrawn = false

	case dali.Randomise:
		if twice && g.initialised {
			g.rng(r)
		}

	case dali.SearchAddrH:
		g.search = g.search&0x00FFFF | uint32(data)<<16
	case dali.SearchAddrM:
		g.search = g.search&0xFF00FF | uint32(data)<<8
	case dali.SearchAddrL:
		g.search = g.search&0xFFFF00 | uint32(data)

	case dali.Compare:
		if g.initialised && !g.withdrawn && g.Random <= g.search {
			return 0xFF, true
		}

	case dali.Withdraw:
		if g.initialised && g.Random == g.search {
			g.withdrawn = true
		}

	case dali.ProgramShortAddress:
		if g.initialised && g.Random == g.search {
			g.setShort(data)
		}

	case dali.VerifyShortAddress:
		if g.initialised && g.Short == (data>>1)&dali.MaxShortAddress {
			return 0xFF, true
		}

	case dali.QueryShortAddress:
		if g.initialised && !g.withdrawn && g.Random == g.search {
			if g.Short == dali.Mask {
				return dali.Mask, true
			}
			return dali.ProgramAddress(g.Short), true
		}

	case dali.WriteMemoryLocation, dali.WriteMemoryLocationNR:
		if !g.writeEnabled {
			break
		}
		written := g.writeMemory(data)
		if g.DTR0 < 0xFF {
			g.DTR0++
		}
		if written && cmd == dali.WriteMemoryLocation {
			return data, true
		}
	}
	return 0, false
}

func (g *Gear) standard(cmd dali.StandardCommand, twice bool) (byte, bool) {
	switch {
	case cmd == dali.Off:
		g.Level = 0
	case cmd == dali.RecallMaxLevel:
		g.Level = 254
	case cmd == dali.RecallMinLevel:
		g.Level = 1
	case cmd >= dali.GoToScene && cmd < dali.GoToScene+16:
		if s := g.Scenes[cmd-dali.GoToScene]; s != dali.Mask {
			g.Level = s
		}

	case cmd >= dali.Reset && cmd <= dali.EnableWriteMemory:
		if twice {
			g.configure(cmd)
		}

	case cmd == dali.QueryControlGearPresent:
		return 0xFF, true
	case cmd == dali.QueryMissingShortAddress:
		if g.Short == dali.Mask {
			return 0xFF, true
		}
	case cmd == dali.QueryContentDTR0:
		return g.DTR0, true
	case cmd == dali.QueryContentDTR1:
		return g.DTR1, true
	case cmd == dali.QueryContentDTR2:
		return g.DTR2, true
	case cmd == dali.QueryActualLevel:
		return g.Level, true
	case cmd >= dali.QuerySceneLevel && cmd < dali.QuerySceneLevel+16:
		return g.Scenes[cmd-dali.QuerySceneLevel], true
	case cmd == dali.QueryGroups0To7:
		return byte(g.Groups), true
	case cmd == dali.QueryGroups8To15:
		return byte(g.Groups >> 8), true
	case cmd == dali.QueryRandomAddressH:
		return byte(g.Random >> 16), true
	case cmd == dali.QueryRandomAddressM:
		return byte(g.Random >> 8), true
	case cmd == dali.QueryRandomAddressL:
		return byte(g.Random), true

	case cmd == dali.ReadMemoryLocation:
		bank, ok := g.Banks[g.DTR1]
		loc := g.DTR0
		if g.DTR0 < 0xFF {
			g.DTR0++
		}
		if ok && int(loc) < len(bank) {
			return bank[loc], true
		}
	}
	return 0, false
}

func (g *Gear) configure(cmd dali.StandardCommand) {
	switch {
	case cmd == dali.Reset:
		g.Level = 254
		g.Groups = 0
		for i := range g.Scenes {
			g.Scenes[i] = dali.Mask
		}
	case cmd == dali.StoreActualLevelInDTR0:
		g.DTR0 = g.Level
	case cmd >= dali.SetScene && cmd < dali.SetScene+16:
		g.Scenes[cmd-dali.SetScene] = g.DTR0
	case cmd >= dali.RemoveFromScene && cmd < dali.RemoveFromScene+16:
		g.Scenes[cmd-dali.RemoveFromScene] = dali.Mask
	case cmd >= dali.AddToGroup && cmd < dali.AddToGroup+16:
		g.Groups |= 1 << (cmd - dali.AddToGroup)
	case cmd >= dali.RemoveFromGroup && cmd < dali.RemoveFromGroup+16:
		g.Groups &^= 1 << (cmd - dali.RemoveFromGroup)
	case cmd == dali.SetShortAddress:
		g.setShort(g.DTR0)
	case cmd == dali.EnableWriteMemory:
		g.writeEnabled = true
	}
}

func (g *Gear) setShort(v byte) {
	switch {
	case v == dali.Mask:
		g.Short = dali.Mask
	case v&1 == 1:
		g.Short = (v >> 1) & dali.MaxShortAddress
	}
}

// writeMemory stores v at DTR1/DTR0. Bank 0 is read-only; other banks
// accept writes to the lock byte at any time and to the rest of the bank
// only while the lock byte holds 0x55.
func (g *Gear) writeMemory(v byte) bool {
	if g.DTR1 == 0 {
		return false
	}
	bank, ok := g.Banks[g.DTR1]
	if !ok || int(g.DTR0) >= len(bank) {
		return false
	}
	if g.DTR0 != lockByteIndex && bank[lockByteIndex] != unlockValue {
		return false
	}
	bank[g.DTR0] = v
	return true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

// recordingTransport captures transfers and completes them on demand
type recordingTransport struct {
	busy bool
	tx   [][]byte
	rxN  []int
	err  error
}

func (r *recordingTransport) BeginTransfer(tx, rx []byte) error {
	if r.err != nil {
		return r.err
	}
	r.tx = append(r.tx, append([]byte(nil), tx...))
	r.rxN = append(r.rxN, len(rx))
	for i := range rx {
		rx[i] = manchester.TEIdle
	}
	return nil
}

func (r *recordingTransport) Idle() bool {
	return !r.busy
}

// ============================================================
// Addressing
// ============================================================

func TestGenerateAddr(t *testing.T) {
	tests := []struct {
		name     string
		addrType dali.AddressType
		value    byte
		want     byte
	}{
		{"short 0", dali.ShortAddress, 0, 0x00},
		{"short 5", dali.ShortAddress, 5, 0x0A},
		{"short 63", dali.ShortAddress, 63, 0x7E},
		{"short clamps", dali.ShortAddress, 200, 0x7E},
		{"group 0", dali.GroupAddress, 0, 0x80},
		{"group 3", dali.GroupAddress, 3, 0x86},
		{"group clamps", dali.GroupAddress, 40, 0x9E},
		{"broadcast unaddressed", dali.BroadcastUnaddressed, 17, 0xFC},
		{"broadcast", dali.BroadcastAll, 17, 0xFE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dali.GenerateAddr(tt.addrType, tt.value); got != tt.want {
				t.Errorf("expected 0x%02X, got 0x%02X", tt.want, got)
			}
		})
	}
}

func TestParseAddr(t *testing.T) {
	for v := byte(0); v <= dali.MaxShortAddress; v++ {
		addrType, value, command := dali.ParseAddr(dali.GenerateAddr(dali.ShortAddress, v) | 1)
		if addrType != dali.ShortAddress || value != v || !command {
			t.Fatalf("short %d: got %s %d %v", v, addrType, value, command)
		}
	}
	for v := byte(0); v <= dali.MaxGroupAddress; v++ {
		addrType, value, command := dali.ParseAddr(dali.GenerateAddr(dali.GroupAddress, v))
		if addrType != dali.GroupAddress || value != v || command {
			t.Fatalf("group %d: got %s %d %v", v, addrType, value, command)
		}
	}
	if addrType, _, _ := dali.ParseAddr(0xFD); addrType != dali.BroadcastUnaddressed {
		t.Errorf("0xFD: expected broadcast_unaddressed, got %s", addrType)
	}
	if addrType, _, _ := dali.ParseAddr(0xFF); addrType != dali.BroadcastAll {
		t.Errorf("0xFF: expected broadcast, got %s", addrType)
	}
}

func TestProgramAddress(t *testing.T) {
	if got := dali.ProgramAddress(0); got != 0x01 {
		t.Errorf("expected 0x01, got 0x%02X", got)
	}
	if got := dali.ProgramAddress(1); got != 0x03 {
		t.Errorf("expected 0x03, got 0x%02X", got)
	}
	if got := dali.ProgramAddress(63); got != 0x7F {
		t.Errorf("expected 0x7F, got 0x%02X", got)
	}
}

// ============================================================
// Builders
// ============================================================

func TestBuildDAPC(t *testing.T) {
	f := dali.BuildDAPC(dali.ShortAddress, 5, 128)
	if f != (dali.ForwardFrame{0x0A, 128}) {
		t.Errorf("expected 0A 80, got %s", f)
	}

	f = dali.BuildDAPC(dali.BroadcastAll, 0, dali.Mask)
	if f != (dali.ForwardFrame{0xFE, 0xFF}) {
		t.Errorf("expected FE FF, got %s", f)
	}
}

func TestBuildSpecial_AllowLists(t *testing.T) {
	tests := []struct {
		name  string
		build func(dali.SpecialCommand, byte) (dali.ForwardFrame, bool)
		cmd   dali.SpecialCommand
		data  byte
		want  dali.ForwardFrame
		ok    bool
	}{
		{"terminate data forced", dali.BuildSpecialNoReply, dali.Terminate, 0x42, dali.ForwardFrame{0xA1, 0x00}, true},
		{"withdraw data forced", dali.BuildSpecialNoReply, dali.Withdraw, 0x42, dali.ForwardFrame{0xAB, 0x00}, true},
		{"dtr0 keeps data", dali.BuildSpecialNoReply, dali.SetDTR0, 0x42, dali.ForwardFrame{0xA3, 0x42}, true},
		{"search h", dali.BuildSpecialNoReply, dali.SearchAddrH, 0x12, dali.ForwardFrame{0xB1, 0x12}, true},
		{"program short", dali.BuildSpecialNoReply, dali.ProgramShortAddress, 0x03, dali.ForwardFrame{0xB7, 0x03}, true},
		{"write no reply", dali.BuildSpecialNoReply, dali.WriteMemoryLocationNR, 0x55, dali.ForwardFrame{0xC9, 0x55}, true},
		{"compare not no-reply", dali.BuildSpecialNoReply, dali.Compare, 0, dali.ForwardFrame{}, false},
		{"initialise not no-reply", dali.BuildSpecialNoReply, dali.Initialise, 0, dali.ForwardFrame{}, false},

		{"randomise data forced", dali.BuildSpecialTwice, dali.Randomise, 0x42, dali.ForwardFrame{0xA7, 0x00}, true},
		{"initialise keeps data", dali.BuildSpecialTwice, dali.Initialise, 0xFF, dali.ForwardFrame{0xA5, 0xFF}, true},
		{"dtr0 not twice", dali.BuildSpecialTwice, dali.SetDTR0, 0, dali.ForwardFrame{}, false},

		{"compare data forced", dali.BuildSpecialWithReply, dali.Compare, 0x42, dali.ForwardFrame{0xA9, 0x00}, true},
		{"query short data forced", dali.BuildSpecialWithReply, dali.QueryShortAddress, 0x42, dali.ForwardFrame{0xBB, 0x00}, true},
		{"verify keeps data", dali.BuildSpecialWithReply, dali.VerifyShortAddress, 0x03, dali.ForwardFrame{0xB9, 0x03}, true},
		{"write keeps data", dali.BuildSpecialWithReply, dali.WriteMemoryLocation, 0x55, dali.ForwardFrame{0xC7, 0x55}, true},
		{"terminate not with-reply", dali.BuildSpecialWithReply, dali.Terminate, 0, dali.ForwardFrame{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := tt.build(tt.cmd, tt.data)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if f != tt.want {
				t.Errorf("expected %s, got %s", tt.want, f)
			}
		})
	}
}

func TestBuildStandard_AllowLists(t *testing.T) {
	tests := []struct {
		name  string
		build func(dali.AddressType, byte, dali.StandardCommand) (dali.ForwardFrame, bool)
		cmd   dali.StandardCommand
		ok    bool
	}{
		{"query present", dali.BuildStandardWithReply, dali.QueryControlGearPresent, true},
		{"query actual level", dali.BuildStandardWithReply, dali.QueryActualLevel, true},
		{"query failure", dali.BuildStandardWithReply, dali.QueryControlGearFailure, true},
		{"query scene 7", dali.BuildStandardWithReply, dali.QuerySceneLevel + 7, true},
		{"read memory", dali.BuildStandardWithReply, dali.ReadMemoryLocation, true},
		{"extended version", dali.BuildStandardWithReply, dali.QueryExtendedVersionNumber, true},
		{"off is not a query", dali.BuildStandardWithReply, dali.Off, false},
		{"reserved 0xA9", dali.BuildStandardWithReply, 0xA9, false},

		{"reset", dali.BuildStandardTwice, dali.Reset, true},
		{"set scene 15", dali.BuildStandardTwice, dali.SetScene + 15, true},
		{"add to group 2", dali.BuildStandardTwice, dali.AddToGroup + 2, true},
		{"set short address", dali.BuildStandardTwice, dali.SetShortAddress, true},
		{"enable write memory", dali.BuildStandardTwice, dali.EnableWriteMemory, true},
		{"reserved 0x27", dali.BuildStandardTwice, 0x27, false},
		{"reserved 0x31", dali.BuildStandardTwice, 0x31, false},
		{"query not twice", dali.BuildStandardTwice, dali.QueryStatus, false},

		{"off", dali.BuildStandardNoReply, dali.Off, true},
		{"recall max", dali.BuildStandardNoReply, dali.RecallMaxLevel, true},
		{"go to scene 3", dali.BuildStandardNoReply, dali.GoToScene + 3, true},
		{"reset not no-reply", dali.BuildStandardNoReply, dali.Reset, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := tt.build(dali.ShortAddress, 5, tt.cmd)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if f[0] != 0x0B {
				t.Errorf("address byte: expected 0x0B with reply bit, got 0x%02X", f[0])
			}
			if f[1] != byte(tt.cmd) {
				t.Errorf("opcode: expected 0x%02X, got 0x%02X", byte(tt.cmd), f[1])
			}
		})
	}
}

func TestModeBufferLens(t *testing.T) {
	tests := []struct {
		mode   dali.Mode
		tx, rx int
	}{
		{dali.ModeNoReply, 38, 74},
		{dali.ModeDAPC, 38, 74},
		{dali.ModeWithReply, 38, 88},
		{dali.ModeTwice, 148, 148},
	}
	for _, tt := range tests {
		tx, rx := tt.mode.BufferLens()
		if tx != tt.tx || rx != tt.rx {
			t.Errorf("%s: expected %d/%d, got %d/%d", tt.mode, tt.tx, tt.rx, tx, rx)
		}
	}
}

// ============================================================
// Link
// ============================================================

func TestLink_QueueAndFlush(t *testing.T) {
	tr := &recordingTransport{}
	link := dali.NewLink(tr)

	if !link.SendDAPC(dali.ShortAddress, 5, 128) {
		t.Fatal("SendDAPC rejected")
	}
	if !link.Pending() {
		t.Fatal("expected pending frame")
	}
	if link.SendSpecialNoReply(dali.Terminate, 0) {
		t.Error("second frame must not be queued while one is pending")
	}

	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if link.Pending() {
		t.Error("frame still pending after flush")
	}
	if len(tr.tx) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(tr.tx))
	}
	if !bytes.Equal(tr.tx[0], manchester.Encode([]byte{0x0A, 128})) {
		t.Errorf("unexpected TX buffer % X", tr.tx[0])
	}
	if tr.rxN[0] != dali.NoReplyRXLen {
		t.Errorf("expected RX length %d, got %d", dali.NoReplyRXLen, tr.rxN[0])
	}

	if err := link.Flush(); !errors.Is(err, dali.ErrNoFramePending) {
		t.Errorf("expected ErrNoFramePending, got %v", err)
	}
}

func TestLink_TwiceLayout(t *testing.T) {
	tr := &recordingTransport{}
	link := dali.NewLink(tr)

	if !link.SendSpecialTwice(dali.Initialise, 0) {
		t.Fatal("SendSpecialTwice rejected")
	}
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tx := tr.tx[0]
	if len(tx) != dali.TwiceLen {
		t.Fatalf("expected %d TX bytes, got %d", dali.TwiceLen, len(tx))
	}
	frame := manchester.Encode([]byte{0xA5, 0x00})
	second := dali.ForwardFrameTEs + dali.InterFrameIdle
	if !bytes.Equal(tx[:len(frame)], frame) || !bytes.Equal(tx[second:second+len(frame)], frame) {
		t.Error("frame not repeated at the expected offsets")
	}
	for i := len(frame); i < second; i++ {
		if tx[i] != manchester.TEIdle {
			t.Fatalf("expected idle between frames at %d, got 0x%02X", i, tx[i])
		}
	}
}

func TestLink_BusyTransport(t *testing.T) {
	tr := &recordingTransport{busy: true}
	link := dali.NewLink(tr)

	if link.SendDAPC(dali.BroadcastAll, 0, 10) {
		t.Error("frame queued while bus busy")
	}
	if !link.Busy() {
		t.Error("expected Busy")
	}

	tr.busy = false
	link.SendDAPC(dali.BroadcastAll, 0, 10)
	tr.busy = true
	if err := link.Flush(); !errors.Is(err, dali.ErrBusBusy) {
		t.Errorf("expected ErrBusBusy, got %v", err)
	}
	if !link.Pending() {
		t.Error("frame lost on busy flush")
	}
}

func TestLink_TransportError(t *testing.T) {
	boom := errors.New("boom")
	tr := &recordingTransport{err: boom}
	link := dali.NewLink(tr)

	link.SendStandardWithReply(dali.BroadcastAll, 0, dali.QueryControlGearPresent)
	if err := link.Flush(); !errors.Is(err, boom) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
	if link.Pending() {
		t.Error("failed frame should not stay queued")
	}
	if got := link.Reply().Status; got != manchester.NoData {
		t.Errorf("expected no_data after failed transfer, got %s", got)
	}
}

func TestLink_ReplyFromGear(t *testing.T) {
	bus := simbus.New([]*simbus.Gear{simbus.NewGear(0x10)})
	link := dali.NewLink(bus)

	if got := link.Reply().Status; got != manchester.NoData {
		t.Errorf("initial reply: expected no_data, got %s", got)
	}

	link.SendStandardWithReply(dali.BroadcastAll, 0, dali.QueryControlGearPresent)
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	reply := link.Reply()
	if reply.Status != manchester.ValidData || reply.Data != 0xFF {
		t.Errorf("expected valid 0xFF, got %s", reply)
	}
}

func TestLink_ReplySurvivesNoReplyTransfer(t *testing.T) {
	g := simbus.NewGear(0x10)
	g.Level = 77
	bus := simbus.New([]*simbus.Gear{g})
	link := dali.NewLink(bus)

	link.SendStandardWithReply(dali.BroadcastAll, 0, dali.QueryActualLevel)
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// a DAPC in between must not clobber the pending reply
	link.SendDAPC(dali.BroadcastAll, 0, 200)
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reply := link.Reply()
	if reply.Status != manchester.ValidData || reply.Data != 77 {
		t.Errorf("expected valid 77, got %s", reply)
	}
	if g.Level != 200 {
		t.Errorf("expected gear level 200, got %d", g.Level)
	}
}

func TestLink_NoGear(t *testing.T) {
	link := dali.NewLink(simbus.New(nil))

	link.SendSpecialWithReply(dali.Compare, 0)
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if reply := link.Reply(); reply.Answered() {
		t.Errorf("expected no answer, got %s", reply)
	}
}

func TestLink_Observers(t *testing.T) {
	stats := dali.NewStatistics()
	link := dali.NewLink(simbus.New([]*simbus.Gear{simbus.NewGear(1)}), stats)

	link.SendDAPC(dali.BroadcastAll, 0, 1)
	_ = link.Flush()
	link.SendStandardTwice(dali.BroadcastAll, 0, dali.Reset)
	_ = link.Flush()
	link.SendStandardWithReply(dali.BroadcastAll, 0, dali.QueryControlGearPresent)
	_ = link.Flush()
	link.Reply()

	snap := stats.Snapshot()
	if snap.TotalFrames != 3 || snap.DAPCFrames != 1 || snap.TwiceFrames != 1 || snap.ReplyFrames != 1 {
		t.Errorf("unexpected frame counters: %+v", snap)
	}
	if snap.ValidReplies != 1 {
		t.Errorf("expected 1 valid reply, got %d", snap.ValidReplies)
	}
	if !strings.Contains(stats.String(), "Forward Frames:") {
		t.Error("summary missing frame count")
	}

	stats.Reset()
	if stats.Snapshot().TotalFrames != 0 {
		t.Error("Reset did not clear counters")
	}
}

// ============================================================
// Formatter
// ============================================================

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		frame dali.ForwardFrame
		want  string
	}{
		{dali.ForwardFrame{0x0A, 128}, "DAPC A05 level=128"},
		{dali.ForwardFrame{0xFE, 0xFF}, "DAPC BC level=MASK"},
		{dali.ForwardFrame{0x0B, 0xA0}, "A05 QUERY_ACTUAL_LEVEL"},
		{dali.ForwardFrame{0x87, 0x43}, "G03 SET_SCENE_3"},
		{dali.ForwardFrame{0xA9, 0x00}, "COMPARE data=0x00"},
		{dali.ForwardFrame{0xFF, 0x91}, "BC QUERY_CONTROL_GEAR_PRESENT"},
	}
	for _, tt := range tests {
		if got := dali.FormatFrame(tt.frame); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.frame, tt.want, got)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

func decodeAll(t *testing.T, d *Decoder, data []byte) []*Message {
	t.Helper()
	var out []*Message
	for _, b := range data {
		m, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	if got := CalculateCRC([]byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC = 0x%04X, want 0x29B1", got)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	window := manchester.Encode([]byte{0x07, 0xA0})

	tests := []struct {
		name string
		msg  *Message
	}{
		{"transfer request", TransferRequest(1, window, dali.WithReplyRXLen)},
		{"transfer result", TransferResult(2, []byte{0x7E, 0x7F, 0x7D, 0x00})},
		{"ping request", PingRequest(0x7E)},
		{"ping response", PingResponse(4, 1500*time.Millisecond)},
		{"error", ErrorMessage(5, ErrCodeBusBusy)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeMessage(tt.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
				t.Fatalf("frame not delimited: % X", frame)
			}
			inner := frame[1 : len(frame)-1]
			if bytes.IndexByte(inner, StartByte) >= 0 || bytes.IndexByte(inner, EndByte) >= 0 {
				t.Fatalf("framing byte leaked into body: % X", inner)
			}

			msgs := decodeAll(t, NewDecoder(), frame)
			if len(msgs) != 1 {
				t.Fatalf("decoded %d messages, want 1", len(msgs))
			}
			got := msgs[0]
			if got.Seq != tt.msg.Seq || got.Type != tt.msg.Type {
				t.Errorf("got seq %d type 0x%02X, want %d 0x%02X", got.Seq, got.Type, tt.msg.Seq, tt.msg.Type)
			}
			if got.String() != tt.msg.String() {
				t.Errorf("String() = %q, want %q", got.String(), tt.msg.String())
			}
		})
	}
}

func TestEncode_TransferFieldsSurvive(t *testing.T) {
	tx := manchester.Encode([]byte{0xFE, 0x10})
	frame, err := EncodeMessage(TransferRequest(9, tx, dali.NoReplyRXLen))
	if err != nil {
		t.Fatal(err)
	}
	m := decodeAll(t, NewDecoder(), frame)[0]

	got, ok := m.TX()
	if !ok || !bytes.Equal(got, tx) {
		t.Errorf("TX = % X, want % X", got, tx)
	}
	if n, ok := m.RXLen(); !ok || n != dali.NoReplyRXLen {
		t.Errorf("RXLen = %d, want %d", n, dali.NoReplyRXLen)
	}
}

func TestEncode_LongestTransferFits(t *testing.T) {
	tx := bytes.Repeat([]byte{manchester.TEIdle}, dali.TwiceLen)
	if _, err := EncodeMessage(TransferRequest(1, tx, dali.TwiceLen)); err != nil {
		t.Fatalf("send twice timeline rejected: %v", err)
	}
	if _, err := EncodeMessage(TransferResult(1, make([]byte, MaxPayloadSize))); err == nil {
		t.Error("oversized payload accepted")
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	frame, err := EncodeMessage(PingResponse(3, time.Second))
	if err != nil {
		t.Fatal(err)
	}
	data, err := UnstuffBytes(frame[1 : len(frame)-1])
	if err != nil {
		t.Fatal(err)
	}
	data[3] ^= 0x01

	corrupt := append([]byte{StartByte}, stuffBytes(data)...)
	corrupt = append(corrupt, EndByte)

	d := NewDecoder()
	var gotErr error
	for _, b := range corrupt {
		m, err := d.DecodeByte(b)
		if m != nil {
			t.Fatal("corrupt frame decoded")
		}
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrCRCMismatch) {
		t.Errorf("error = %v, want ErrCRCMismatch", gotErr)
	}
}

func TestDecoder_ResyncsOnStart(t *testing.T) {
	frame, err := EncodeMessage(PingRequest(8))
	if err != nil {
		t.Fatal(err)
	}
	stream := append([]byte{0x00, 0x13, StartByte, 0x05, 0x22}, frame...)

	msgs := decodeAll(t, NewDecoder(), stream)
	if len(msgs) != 1 || msgs[0].Type != MsgPingRequest || msgs[0].Seq != 8 {
		t.Fatalf("got %v, want one ping request", msgs)
	}
}

func TestDecoder_RejectsEarlyEnd(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x02)
	if _, err := d.DecodeByte(EndByte); err == nil {
		t.Error("truncated frame accepted")
	}
}

// pipe connects a Transport to a Server running over a simulated bus
func pipe(t *testing.T, bus dali.Transport) *Transport {
	t.Helper()
	host, device := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(bus, nil)
	go srv.Serve(ctx, device)

	tr := New(host, WithTimeout(time.Second))
	t.Cleanup(func() {
		tr.Close()
		cancel()
	})
	return tr
}

func waitIdle(t *testing.T, link *dali.Link) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for link.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("transfer never completed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTransport_RunsTransfersOnRemoteBus(t *testing.T) {
	g := simbus.NewGear(0x123456)
	g.Short = 3
	bus := simbus.New([]*simbus.Gear{g})
	tr := pipe(t, bus)
	link := dali.NewLink(tr)

	if !link.SendDAPC(dali.ShortAddress, 3, 200) {
		t.Fatal("DAPC rejected")
	}
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	waitIdle(t, link)
	if g.Level != 200 {
		t.Errorf("level = %d, want 200", g.Level)
	}

	if !link.SendStandardWithReply(dali.ShortAddress, 3, dali.QueryActualLevel) {
		t.Fatal("query rejected")
	}
	if err := link.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	waitIdle(t, link)
	reply := link.Reply()
	if reply.Status != manchester.ValidData || reply.Data != 200 {
		t.Errorf("reply = %+v, want 200", reply)
	}

	if s := tr.Stats(); s.Transfers != 2 || s.Timeouts != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTransport_Ping(t *testing.T) {
	tr := pipe(t, simbus.New(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tr.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTransport_TimeoutLeavesIdleWindow(t *testing.T) {
	host, device := net.Pipe()
	go io.Copy(io.Discard, device)
	tr := New(host, WithTimeout(20*time.Millisecond))
	defer tr.Close()

	rx := make([]byte, dali.WithReplyRXLen)
	if err := tr.BeginTransfer(manchester.Encode([]byte{0x07, 0xA0}), rx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tr.BeginTransfer(nil, nil); !errors.Is(err, dali.ErrBusBusy) {
		t.Errorf("second transfer error = %v, want ErrBusBusy", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !tr.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("timeout never fired")
		}
		time.Sleep(time.Millisecond)
	}
	for i, b := range rx {
		if b != manchester.TEIdle {
			t.Fatalf("rx[%d] = 0x%02X, want idle", i, b)
		}
	}
	if tr.Stats().Timeouts != 1 {
		t.Errorf("timeouts = %d, want 1", tr.Stats().Timeouts)
	}
}

func TestTransport_ClosedConnection(t *testing.T) {
	host, device := net.Pipe()
	tr := New(host)
	device.Close()

	deadline := time.Now().Add(2 * time.Second)
	for tr.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("reader did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	if err := tr.BeginTransfer(nil, make([]byte, 4)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("error = %v, want ErrConnectionClosed", err)
	}
}

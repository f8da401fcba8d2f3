// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

// Server is the bus interface end of a bridge. It runs every transfer
// request on a local dali.Transport, such as a simulated bus, and sends
// back the receive window.
type Server struct {
	bus     dali.Transport
	log     *slog.Logger
	timeout time.Duration
	started time.Time
}

// NewServer creates a server for bus
func NewServer(bus dali.Transport, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		bus:     bus,
		log:     log,
		timeout: DefaultTimeout,
		started: time.Now(),
	}
}

// Serve answers requests on conn until it fails or ctx is cancelled
func (s *Server) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	dec := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			msg, derr := dec.DecodeByte(b)
			if derr != nil {
				s.log.Debug("decode failed", "error", derr)
				continue
			}
			if msg == nil {
				continue
			}
			reply := s.handle(msg)
			if reply == nil {
				continue
			}
			frame, eerr := EncodeMessage(reply)
			if eerr != nil {
				s.log.Error("encode reply failed", "error", eerr)
				continue
			}
			if _, werr := conn.Write(frame); werr != nil {
				return werr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) handle(m *Message) *Message {
	switch m.Type {
	case MsgPingRequest:
		return PingResponse(m.Seq, time.Since(s.started))

	case MsgTransferRequest:
		tx, okTX := m.TX()
		n, okRX := m.RXLen()
		if !okTX || !okRX || len(tx) > MaxWindow || n > MaxWindow {
			return ErrorMessage(m.Seq, ErrCodeInvalidRequest)
		}
		if !s.bus.Idle() {
			return ErrorMessage(m.Seq, ErrCodeBusBusy)
		}
		rx := make([]byte, n)
		if err := s.bus.BeginTransfer(tx, rx); err != nil {
			s.log.Warn("transfer failed", "seq", m.Seq, "error", err)
			return ErrorMessage(m.Seq, ErrCodeTransferFailed)
		}
		deadline := time.Now().Add(s.timeout)
		for !s.bus.Idle() {
			if time.Now().After(deadline) {
				return ErrorMessage(m.Seq, ErrCodeTransferFailed)
			}
			time.Sleep(time.Millisecond)
		}
		return TransferResult(m.Seq, rx)

	default:
		s.log.Debug("ignoring message", "message", m.String())
		return nil
	}
}

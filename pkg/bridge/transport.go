// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/manchester"
)

// DefaultTimeout bounds one transfer round trip. A transfer that is not
// answered in time completes with an idle receive window.
const DefaultTimeout = 100 * time.Millisecond

// MaxWindow is the longest transmit timeline or receive window a single
// frame can carry
const MaxWindow = 240

// ErrConnectionClosed is returned once the stream has failed or was closed
var ErrConnectionClosed = errors.New("bridge: connection closed")

// Statistics counts transport events
type Statistics struct {
	Transfers   uint64
	Timeouts    uint64
	Errors      uint64
	Stale       uint64
	DecodeFails uint64
	Pings       uint64
}

// Option configures a Transport
type Option func(*Transport)

// WithTimeout sets the transfer timeout
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		t.log = l
	}
}

// Transport implements dali.Transport over a byte stream to a bus
// interface. A goroutine reads the stream and completes transfers as
// their results arrive.
type Transport struct {
	conn    io.ReadWriteCloser
	log     *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      uint8
	inflight uint8
	rx       []byte
	timer    *time.Timer
	pings    map[uint8]chan time.Duration
	stats    Statistics
	err      error

	done      atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

// New starts a transport on conn. Close stops it.
func New(conn io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{
		conn:    conn,
		log:     slog.New(slog.DiscardHandler),
		timeout: DefaultTimeout,
		pings:   make(map[uint8]chan time.Duration),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.done.Store(true)
	go t.readLoop()
	return t
}

// Idle reports whether the last transfer has completed
func (t *Transport) Idle() bool {
	return t.done.Load()
}

// BeginTransfer sends tx to the bus interface. rx is filled when the
// result arrives, or with idle TEs on timeout.
func (t *Transport) BeginTransfer(tx, rx []byte) error {
	if !t.done.Load() {
		return dali.ErrBusBusy
	}
	if len(tx) > MaxWindow || len(rx) > MaxWindow {
		return fmt.Errorf("transfer of %d/%d TEs exceeds %d", len(tx), len(rx), MaxWindow)
	}
	select {
	case <-t.closed:
		return ErrConnectionClosed
	default:
	}

	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.inflight = seq
	t.rx = rx
	t.done.Store(false)
	t.timer = time.AfterFunc(t.timeout, func() {
		if t.complete(seq, nil) {
			t.count(func(s *Statistics) { s.Timeouts++ })
			t.log.Warn("transfer timed out", "seq", seq, "timeout", t.timeout)
		}
	})
	t.mu.Unlock()

	frame, err := EncodeMessage(TransferRequest(seq, tx, len(rx)))
	if err == nil {
		err = t.write(frame)
	}
	if err != nil {
		t.complete(seq, nil)
		return err
	}
	return nil
}

// complete fills the receive window of transfer seq and marks it done.
// It reports false when seq is not the transfer in flight.
func (t *Transport) complete(seq uint8, data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done.Load() || seq != t.inflight {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	n := copy(t.rx, data)
	for i := n; i < len(t.rx); i++ {
		t.rx[i] = manchester.TEIdle
	}
	t.rx = nil
	t.done.Store(true)
	return true
}

// Ping asks the bus interface for its uptime
func (t *Transport) Ping(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	ch := make(chan time.Duration, 1)
	t.pings[seq] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pings, seq)
		t.mu.Unlock()
	}()

	frame, err := EncodeMessage(PingRequest(seq))
	if err != nil {
		return 0, err
	}
	if err := t.write(frame); err != nil {
		return 0, err
	}

	select {
	case up := <-ch:
		return up, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.closed:
		return 0, ErrConnectionClosed
	}
}

func (t *Transport) write(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *Transport) readLoop() {
	dec := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := t.conn.Read(buf)
		for _, b := range buf[:n] {
			msg, derr := dec.DecodeByte(b)
			if derr != nil {
				t.count(func(s *Statistics) { s.DecodeFails++ })
				t.log.Debug("decode failed", "error", derr)
				continue
			}
			if msg != nil {
				t.handle(msg)
			}
		}
		if err != nil {
			t.shutdown(err)
			return
		}
	}
}

func (t *Transport) handle(m *Message) {
	switch m.Type {
	case MsgTransferResult:
		rx, _ := m.RX()
		if t.complete(m.Seq, rx) {
			t.count(func(s *Statistics) { s.Transfers++ })
		} else {
			t.count(func(s *Statistics) { s.Stale++ })
			t.log.Debug("stale transfer result", "seq", m.Seq)
		}

	case MsgPingResponse:
		up, _ := m.Uptime()
		t.mu.Lock()
		ch, ok := t.pings[m.Seq]
		t.stats.Pings++
		t.mu.Unlock()
		if ok {
			select {
			case ch <- up:
			default:
			}
		}

	case MsgError:
		code, _ := m.Code()
		t.count(func(s *Statistics) { s.Errors++ })
		t.log.Warn("bus interface reported an error", "seq", m.Seq, "code", code)
		t.complete(m.Seq, nil)

	default:
		t.log.Debug("unexpected message", "message", m.String())
	}
}

func (t *Transport) shutdown(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.err = err
		inflight := t.inflight
		t.mu.Unlock()

		close(t.closed)
		t.complete(inflight, nil)
		if !errors.Is(err, io.EOF) && !errors.Is(err, ErrConnectionClosed) {
			t.log.Error("bridge connection lost", "error", err)
		}
	})
}

func (t *Transport) count(f func(*Statistics)) {
	t.mu.Lock()
	f(&t.stats)
	t.mu.Unlock()
}

// Stats returns a copy of the counters
func (t *Transport) Stats() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Err returns the error that stopped the reader, or nil while it runs
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close closes the stream and completes any transfer in flight
func (t *Transport) Close() error {
	err := t.conn.Close()
	t.shutdown(ErrConnectionClosed)
	return err
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

type serverState uint8

const (
	stateReceive serverState = iota
	stateSubmit
	stateWait
)

// Server answers bench requests. Serve collects request bytes from the
// stream; Tick, called right after Scheduler.Tick, submits requests and
// writes responses.
type Server struct {
	sched *scheduler.Scheduler
	w     io.Writer
	log   *slog.Logger

	mu      sync.Mutex
	pending []byte

	state serverState
	frame [FrameLen]byte
	n     int
	req   Request
	task  scheduler.Task
	want  scheduler.Kind
	mark  uint64

	served uint64
}

// NewServer creates a server that writes responses to w
func NewServer(sched *scheduler.Scheduler, w io.Writer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{sched: sched, w: w, log: log}
}

// Serve reads request bytes from r until it fails or ctx is done. A read
// error drops any partial request.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			s.pending = s.pending[:0]
			s.n = 0
			s.mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Feed queues request bytes received by other means
func (s *Server) Feed(p []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, p...)
	s.mu.Unlock()
}

// Tick advances the request state machine by one step
func (s *Server) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateReceive:
		for s.n < FrameLen && len(s.pending) > 0 {
			s.frame[s.n] = s.pending[0]
			s.pending = s.pending[1:]
			s.n++
		}
		if s.n < FrameLen {
			return nil
		}
		s.n = 0

		req, err := Parse(s.frame)
		if err != nil {
			s.log.Warn("bench request dropped", "frame", s.frame[:], "error", err)
			return nil
		}
		s.log.Info("bench request", "request", req.String())
		if req.Op == OpAck {
			return s.respond(nil)
		}
		s.req = req
		s.task, s.want = req.Task()
		s.state = stateSubmit
		return s.submit()

	case stateSubmit:
		return s.submit()

	case stateWait:
		c := s.sched.Completed()
		if c <= s.mark {
			return nil
		}
		r := s.sched.LastResult()
		if r.Kind != s.want {
			s.mark = c
			return nil
		}
		s.state = stateReceive
		if r.Err != nil {
			s.log.Warn("bench task failed", "task", r.Kind, "error", r.Err)
		}
		if s.req.Op == OpReadMemBank {
			data := make([]byte, s.req.Len)
			copy(data, r.Data)
			return s.respond(data)
		}
		return s.respond(nil)
	}
	return nil
}

// submit hands the request to the scheduler, retrying on later ticks
// while it is busy
func (s *Server) submit() error {
	mark := s.sched.Completed()

	var err error
	if s.req.Op == OpCommission {
		err = s.sched.Commission(&scheduler.Commission{Addr: s.req.Addr, Tune: s.req.Tune})
	} else {
		_, err = s.sched.Submit(s.task)
	}

	switch {
	case err == nil:
		s.mark = mark
		s.state = stateWait
	case errors.Is(err, scheduler.ErrTaskRunning), errors.Is(err, dali.ErrBusBusy):
		// try again next tick
	default:
		s.log.Warn("bench request rejected", "request", s.req.String(), "error", err)
		s.state = stateReceive
	}
	return nil
}

func (s *Server) respond(data []byte) error {
	s.served++
	out := append(data, AckByte)
	if _, err := s.w.Write(out); err != nil {
		s.state = stateReceive
		s.pending = s.pending[:0]
		return err
	}
	return nil
}

// Served counts answered requests
func (s *Server) Served() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler runs one bus task at a time on a dali.Link.
//
// Tick is called periodically, typically every 25 ms. Each tick steps the
// current task once and flushes at most one forward frame. A SetLevel
// task interrupts whatever else is running; the interrupted task is kept
// as a value and picks up exactly where it stopped once the level change
// is done.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
	"github.com/Thermoquad/dalistat/pkg/telemetry"
)

// Status is what Tick reports
type Status uint8

const (
	NoTaskRunning Status = iota
	Running
	Complete
	NotSupported
)

func (s Status) String() string {
	switch s {
	case NoTaskRunning:
		return "no_task_running"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case NotSupported:
		return "not_supported"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

var (
	ErrTaskRunning     = errors.New("scheduler: a task is already running")
	ErrUnsupportedTask = errors.New("scheduler: unsupported task")
	ErrPrivilegedTask  = errors.New("scheduler: commissioning must use the commission lane")
)

// Result describes the last finished task
type Result struct {
	Kind  Kind
	Err   error
	Count byte
	Value uint64
	Data  []byte
}

// TaskObserver is told about every finished task
type TaskObserver interface {
	TaskFinished(r Result, ticks int)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithTaskObserver registers o for finished tasks
func WithTaskObserver(o TaskObserver) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, o)
	}
}

// Scheduler owns the link, the network table and the measurement cache.
// All methods are safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	link      *dali.Link
	log       *slog.Logger
	observers []TaskObserver

	table gear.NetworkTable
	locks telemetry.Locks
	meas  [gear.MaxDrivers + 1]Measurement

	current       Task
	suspended     Task
	valid         bool
	commissioning bool
	status        Status
	ticks         int

	out       Result
	result    Result
	completed uint64
}

// New creates a Scheduler driving link
func New(link *dali.Link, opts ...Option) *Scheduler {
	s := &Scheduler{
		link: link,
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit hands a task to the scheduler. A SetLevel task is always
// accepted unless commissioning is under way; it suspends any other
// running task. Everything else is only accepted while the bus is idle
// and no task is running. A nil task is rejected and leaves a running
// task untouched.
func (s *Scheduler) Submit(t Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nilTask(t) {
		if !s.valid && s.suspended == nil {
			s.status = NotSupported
		}
		return false, ErrUnsupportedTask
	}
	if t.Kind() == KindCommission {
		return false, ErrPrivilegedTask
	}

	if t.Kind() == KindSetLevel && !s.commissioning && !s.runningKind(KindSetLevel) {
		if s.valid && s.current != nil {
			s.log.Debug("task suspended", "task", s.current.Kind(), "by", t.Kind())
			s.suspended = s.current.clone()
		}
		s.start(t.clone())
		return true, nil
	}

	if s.link.Busy() {
		return false, dali.ErrBusBusy
	}
	if s.status != NoTaskRunning && s.status != NotSupported {
		return false, ErrTaskRunning
	}
	if s.suspended != nil || s.commissioning {
		return false, ErrTaskRunning
	}

	s.start(t.clone())
	return true, nil
}

// Commission starts the commissioning sequence. It does not wait for the
// bus to be idle or for the current task to finish: the current task is
// suspended and runs again from its start after commissioning. A transfer
// already in flight completes before the first commissioning frame is
// sent.
func (s *Scheduler) Commission(t *Commission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == nil {
		return ErrUnsupportedTask
	}
	if s.commissioning {
		return ErrTaskRunning
	}
	if s.valid && s.current != nil {
		if s.suspended != nil {
			return ErrTaskRunning
		}
		// commissioning rewrites DTR0/DTR1 and short addresses, so the
		// interrupted task starts over instead of resuming mid-sequence
		s.log.Debug("task suspended", "task", s.current.Kind(), "by", KindCommission)
		s.suspended = s.current.clone()
		s.suspended.rewind()
	}

	s.start(t.clone())
	s.commissioning = true
	s.log.Info("commissioning started", "addr", t.Addr, "tune", t.Tune)
	return nil
}

// nilTask reports whether t is nil or holds a nil variant pointer
func nilTask(t Task) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (s *Scheduler) start(t Task) {
	s.current = t
	s.valid = true
	s.status = Running
	s.ticks = 0
}

func (s *Scheduler) runningKind(k Kind) bool {
	return s.valid && s.current != nil && s.current.Kind() == k
}

// Tick advances the scheduler by one step
func (s *Scheduler) Tick() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link.Busy() {
		return Running
	}

	if s.valid && s.status == Complete {
		return s.report()
	}
	if !s.valid {
		s.status = NoTaskRunning
	}

	if s.valid && s.current != nil {
		s.status = Running
		s.ticks++
		if s.current.step(s) == dali.Done {
			s.finish()
		}
	}

	if s.link.Pending() {
		if err := s.link.Flush(); err != nil {
			s.log.Error("flush failed", "error", err)
			s.link.Discard()
		}
		return Running
	}

	if s.valid && s.status == Complete {
		return s.report()
	}

	if s.current == nil && s.suspended != nil && !s.commissioning {
		s.log.Debug("task resumed", "task", s.suspended.Kind())
		s.current = s.suspended
		s.suspended = nil
		s.valid = true
		s.status = Running
	}

	return s.status
}

// report returns the completion latch once
func (s *Scheduler) report() Status {
	s.valid = false
	if s.suspended == nil {
		s.status = NoTaskRunning
	}
	return Complete
}

func (s *Scheduler) finish() {
	r := s.out
	r.Kind = s.current.Kind()
	s.out = Result{}
	s.result = r
	s.completed++

	for _, o := range s.observers {
		o.TaskFinished(r, s.ticks)
	}
	if r.Err != nil {
		s.log.Warn("task finished with error", "task", r.Kind, "ticks", s.ticks, "error", r.Err)
	} else {
		s.log.Debug("task complete", "task", r.Kind, "ticks", s.ticks)
	}

	s.current = nil
	if r.Kind == KindCommission {
		s.commissioning = false
		s.valid = false
		s.status = NoTaskRunning
		s.log.Info("commissioning complete", "addr", r.Value)
		return
	}
	s.status = Complete
}

// CurrentTask returns a copy of the running task, or nil
func (s *Scheduler) CurrentTask() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid || s.current == nil {
		return nil
	}
	return s.current.clone()
}

// SuspendedTask returns a copy of the interrupted task, or nil
func (s *Scheduler) SuspendedTask() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended == nil {
		return nil
	}
	return s.suspended.clone()
}

// IsTaskRunning reports whether the bus is busy or a task has not yet
// been reported complete.
func (s *Scheduler) IsTaskRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Busy() || s.status != NoTaskRunning
}

// Status returns the status without ticking
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastResult returns the result of the most recently finished task
func (s *Scheduler) LastResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Completed counts finished tasks since creation
func (s *Scheduler) Completed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Link returns the link the scheduler drives
func (s *Scheduler) Link() *dali.Link {
	return s.link
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

// job follows one submitted task to its result. Other tasks may finish in
// between, for example a level change that interrupted it.
type job struct {
	kind scheduler.Kind
	mark uint64
}

// retryable reports whether a rejected submission may succeed later
func retryable(err error) bool {
	return errors.Is(err, scheduler.ErrTaskRunning) || errors.Is(err, dali.ErrBusBusy)
}

func submit(s *scheduler.Scheduler, t scheduler.Task) (*job, error) {
	mark := s.Completed()
	var err error
	if c, ok := t.(*scheduler.Commission); ok {
		err = s.Commission(c)
	} else {
		_, err = s.Submit(t)
	}
	if err != nil {
		return nil, err
	}
	return &job{kind: t.Kind(), mark: mark}, nil
}

// result returns the job's result once the scheduler reports it
func (j *job) result(s *scheduler.Scheduler) (scheduler.Result, bool) {
	c := s.Completed()
	if c <= j.mark {
		return scheduler.Result{}, false
	}
	r := s.LastResult()
	if r.Kind != j.kind {
		j.mark = c
		return scheduler.Result{}, false
	}
	return r, true
}

// RunTask submits t and ticks the scheduler every interval until t
// finishes. Submission is retried while the scheduler is busy. The
// returned error is the task's own error when it ran.
func RunTask(ctx context.Context, s *scheduler.Scheduler, t scheduler.Task, interval time.Duration) (scheduler.Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var j *job
	for {
		if j == nil {
			var err error
			j, err = submit(s, t)
			if err != nil && !retryable(err) {
				return scheduler.Result{}, err
			}
		}

		select {
		case <-ctx.Done():
			return scheduler.Result{}, ctx.Err()
		case <-ticker.C:
		}

		s.Tick()
		if j == nil {
			continue
		}
		if r, ok := j.result(s); ok {
			return r, r.Err
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import "errors"

// Transport clocks TE bytes onto the bus and captures the bus level while
// doing so.
//
// BeginTransfer starts an asynchronous transfer of tx. rx receives one
// sample byte per TE for the whole transfer, so it mirrors the transmitted
// frame and whatever gear put on the bus after it. When len(rx) > len(tx)
// the remaining TEs are clocked as idle. Idle reports whether the last
// transfer has finished and rx may be read. Idle must be safe to call from
// a different goroutine than the one completing the transfer.
type Transport interface {
	BeginTransfer(tx, rx []byte) error
	Idle() bool
}

var (
	// ErrBusBusy is returned when a frame is queued or flushed while a
	// transfer is still in flight.
	ErrBusBusy = errors.New("dali: bus busy")

	// ErrNoFramePending is returned by Flush when nothing is queued
	ErrNoFramePending = errors.New("dali: no frame pending")

	// ErrFramePending is returned when a second frame is queued before the
	// first one was flushed.
	ErrFramePending = errors.New("dali: frame already pending")
)

// Progress is the result of one step of a multi-tick bus operation
type Progress bool

const (
	Pending Progress = false
	Done    Progress = true
)

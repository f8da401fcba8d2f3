// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/dalistat/pkg/manchester"
)

// Statistics tracks bus traffic and reply quality. It implements Observer
// and is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Forward frames by mode
	TotalFrames   uint64
	NoReplyFrames uint64
	ReplyFrames   uint64
	TwiceFrames   uint64
	DAPCFrames    uint64

	// Back frames by decode status
	ValidReplies      uint64
	NoReplies         uint64
	CorruptReplies    uint64
	IncompleteReplies uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // corrupt or incomplete replies/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// FrameSent counts a forward frame
func (s *Statistics) FrameSent(_ ForwardFrame, m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalFrames++
	switch m {
	case ModeNoReply:
		s.NoReplyFrames++
	case ModeWithReply:
		s.ReplyFrames++
	case ModeTwice:
		s.TwiceFrames++
	case ModeDAPC:
		s.DAPCFrames++
	}
	s.LastUpdateTime = time.Now()
}

// ReplyReceived counts a decoded back frame window
func (s *Statistics) ReplyReceived(_ ForwardFrame, b BackFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch b.Status {
	case manchester.ValidData:
		s.ValidReplies++
	case manchester.NoData:
		s.NoReplies++
	case manchester.Corrupt:
		s.CorruptReplies++
	case manchester.Incomplete:
		s.IncompleteReplies++
	}
	s.LastUpdateTime = time.Now()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()
	return Statistics{
		StartTime:         s.StartTime,
		LastUpdateTime:    s.LastUpdateTime,
		TotalFrames:       s.TotalFrames,
		NoReplyFrames:     s.NoReplyFrames,
		ReplyFrames:       s.ReplyFrames,
		TwiceFrames:       s.TwiceFrames,
		DAPCFrames:        s.DAPCFrames,
		ValidReplies:      s.ValidReplies,
		NoReplies:         s.NoReplies,
		CorruptReplies:    s.CorruptReplies,
		IncompleteReplies: s.IncompleteReplies,
		FrameRate:         s.FrameRate,
		ErrorRate:         s.ErrorRate,
	}
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.CorruptReplies+s.IncompleteReplies) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	replies := snap.ValidReplies + snap.NoReplies + snap.CorruptReplies + snap.IncompleteReplies
	percent := func(n uint64) float64 {
		if replies == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(replies)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Bus Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Forward Frames:  %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("  No Reply:        %6d\n", snap.NoReplyFrames)
	result += fmt.Sprintf("  With Reply:      %6d\n", snap.ReplyFrames)
	result += fmt.Sprintf("  Send Twice:      %6d\n", snap.TwiceFrames)
	result += fmt.Sprintf("  DAPC:            %6d\n", snap.DAPCFrames)
	result += fmt.Sprintf("Back Frames:     %8d\n", replies)
	result += fmt.Sprintf("  Valid:           %6d (%.1f%%)\n", snap.ValidReplies, percent(snap.ValidReplies))
	result += fmt.Sprintf("  No Data:         %6d (%.1f%%)\n", snap.NoReplies, percent(snap.NoReplies))

	if snap.CorruptReplies > 0 {
		result += fmt.Sprintf("  Corrupt:         %6d (%.1f%%)\n", snap.CorruptReplies, percent(snap.CorruptReplies))
	}
	if snap.IncompleteReplies > 0 {
		result += fmt.Sprintf("  Incomplete:      %6d (%.1f%%)\n", snap.IncompleteReplies, percent(snap.IncompleteReplies))
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.NoReplyFrames = 0
	s.ReplyFrames = 0
	s.TwiceFrames = 0
	s.DAPCFrames = 0
	s.ValidReplies = 0
	s.NoReplies = 0
	s.CorruptReplies = 0
	s.IncompleteReplies = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}

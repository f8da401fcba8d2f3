// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"time"

	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

// Snapshot collects the cached readings of driver i
func Snapshot(s *scheduler.Scheduler, i int, now time.Time) Measurement {
	raw := s.Measurement(i)
	m := Measurement{
		Index:       i,
		Family:      s.Flavor(i),
		PowerWatts:  s.PowerWatts(i),
		PowerRaw:    raw.Power,
		Energy:      raw.Energy,
		Voltage:     raw.Voltage,
		Current:     raw.Current,
		Temperature: raw.Temperature,
	}
	table := s.Table()
	if rec := table.Record(i); rec != nil {
		m.ShortAddress = rec.ShortAddress
	}
	m.Stamp(now)
	return m
}

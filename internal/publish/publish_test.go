// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
	"github.com/Thermoquad/dalistat/pkg/simbus"
)

func sample() Measurement {
	m := Measurement{
		Index:        1,
		ShortAddress: 4,
		Family:       "D4i",
		PowerWatts:   12.5,
		PowerRaw:     125,
		Energy:       987654,
		Voltage:      230,
		Current:      350,
		Temperature:  41,
	}
	m.Stamp(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return m
}

func TestEncode_RoundTrip(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatCBOR} {
		t.Run(format, func(t *testing.T) {
			data, err := Encode(sample(), format)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != sample() {
				t.Errorf("got %+v, want %+v", got, sample())
			}
		})
	}
}

func TestEncode_CBORIsCompact(t *testing.T) {
	j, _ := Encode(sample(), FormatJSON)
	c, _ := Encode(sample(), FormatCBOR)
	if len(c) >= len(j) {
		t.Errorf("cbor %d bytes, json %d bytes", len(c), len(j))
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	if _, err := Encode(sample(), "xml"); err == nil {
		t.Error("expected error")
	}
	if _, err := Decode(nil, "xml"); err == nil {
		t.Error("expected error")
	}
}

func TestTopics(t *testing.T) {
	if got := MeasurementTopic("dalistat", 3); got != "dalistat/driver/3/measurement" {
		t.Errorf("MeasurementTopic = %q", got)
	}
	if got := StatusTopic("site/a"); got != "site/a/status" {
		t.Errorf("StatusTopic = %q", got)
	}
}

func TestClientID_Unique(t *testing.T) {
	a, b := ClientID("dalistat"), ClientID("dalistat")
	if a == b {
		t.Errorf("client ids collide: %q", a)
	}
	if len(a) != len("dalistat-")+8 {
		t.Errorf("unexpected client id %q", a)
	}
}

func TestPoint(t *testing.T) {
	p := Point(sample())
	if p.Name() != MeasurementName {
		t.Errorf("name = %q", p.Name())
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["index"] != "1" || tags["family"] != "D4i" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]bool{}
	for _, f := range p.FieldList() {
		fields[f.Key] = true
	}
	for _, key := range []string{"power_watts", "power_raw", "energy", "voltage", "current", "temperature"} {
		if !fields[key] {
			t.Errorf("missing field %q", key)
		}
	}
	if !p.Time().Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", p.Time())
	}
}

func TestPoint_NoPowerOmitsWatts(t *testing.T) {
	m := sample()
	m.PowerWatts = -1
	for _, f := range Point(m).FieldList() {
		if f.Key == "power_watts" {
			t.Error("power_watts written for a driver without power reporting")
		}
	}
}

// ============================================================
// Publisher
// ============================================================

type recordingSink struct {
	got    []Measurement
	err    error
	closed bool
}

func (r *recordingSink) Publish(m Measurement) error {
	r.got = append(r.got, m)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestPublisher_FansOut(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}

	p := NewPublisher(nil)
	p.Add(failing)
	p.Add(ok)

	err := p.Publish(sample())
	if err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Errorf("deliveries: failing=%d ok=%d", len(failing.got), len(ok.got))
	}

	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if !failing.closed || !ok.closed || p.Len() != 0 {
		t.Error("sinks not closed")
	}
}

func TestSnapshot_EmptyTable(t *testing.T) {
	bus := simbus.New(nil)
	s := scheduler.New(dali.NewLink(bus))

	m := Snapshot(s, 0, time.UnixMilli(1000))
	if m.Family != "none" {
		t.Errorf("family = %q", m.Family)
	}
	if m.HasPower() {
		t.Errorf("power watts = %v, want unknown", m.PowerWatts)
	}
	if m.Time != 1000 {
		t.Errorf("time = %d", m.Time)
	}
}

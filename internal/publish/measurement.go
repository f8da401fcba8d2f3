// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish fans driver measurements out to MQTT and InfluxDB.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Payload formats
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Measurement is one polling round of one driver
type Measurement struct {
	Index        int     `json:"index" cbor:"0,keyasint"`
	ShortAddress byte    `json:"short_address" cbor:"1,keyasint"`
	Family       string  `json:"family" cbor:"2,keyasint"`
	PowerWatts   float32 `json:"power_watts" cbor:"3,keyasint"`
	PowerRaw     uint32  `json:"power_raw" cbor:"4,keyasint"`
	Energy       uint64  `json:"energy" cbor:"5,keyasint"`
	Voltage      uint16  `json:"voltage" cbor:"6,keyasint"`
	Current      uint16  `json:"current" cbor:"7,keyasint"`
	Temperature  uint16  `json:"temperature" cbor:"8,keyasint"`
	Time         int64   `json:"time" cbor:"9,keyasint"` // unix milliseconds
}

// Stamp sets the measurement time
func (m *Measurement) Stamp(t time.Time) {
	m.Time = t.UnixMilli()
}

// HasPower reports whether the driver reports power
func (m Measurement) HasPower() bool {
	return m.PowerWatts >= 0
}

// Encode serialises m in format
func Encode(m Measurement, format string) ([]byte, error) {
	switch format {
	case FormatCBOR:
		return cbor.Marshal(m)
	case FormatJSON, "":
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// Decode parses a payload produced by Encode
func Decode(data []byte, format string) (Measurement, error) {
	var m Measurement
	var err error
	switch format {
	case FormatCBOR:
		err = cbor.Unmarshal(data, &m)
	case FormatJSON, "":
		err = json.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("unknown payload format %q", format)
	}
	return m, err
}

// Sink receives measurements
type Sink interface {
	Publish(m Measurement) error
	Close() error
}

// Publisher sends every measurement to all of its sinks
type Publisher struct {
	mu    sync.Mutex
	sinks []Sink
	log   *slog.Logger
}

// NewPublisher creates a Publisher with no sinks
func NewPublisher(log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Publisher{log: log}
}

// Add registers a sink
func (p *Publisher) Add(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Len returns the number of sinks
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sinks)
}

// Publish sends m to every sink. A failing sink does not stop the others.
func (p *Publisher) Publish(m Measurement) error {
	p.mu.Lock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Publish(m); err != nil {
			p.log.Warn("publish failed", "index", m.Index, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, s := range p.sinks {
		errs = append(errs, s.Close())
	}
	p.sinks = nil
	return errors.Join(errs...)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Thermoquad/dalistat/internal/config"
)

// MeasurementName is the InfluxDB measurement drivers are written to
const MeasurementName = "dali_driver"

var ErrInfluxDisabled = errors.New("influxdb: disabled in configuration")

// Influx writes measurements through the non-blocking write API
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPI
}

// ConnectInflux pings the server and opens a write API
func ConnectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *slog.Logger) (*Influx, error) {
	if !cfg.Enabled {
		return nil, ErrInfluxDisabled
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval) * 1000)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb: ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, errors.New("influxdb: server not healthy")
	}

	w := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range w.Errors() {
			log.Warn("influxdb write failed", "error", err)
		}
	}()
	return &Influx{client: client, write: w}, nil
}

// Point converts m to a dali_driver point. Power in watts is left out for
// drivers that do not report it.
func Point(m Measurement) *write.Point {
	fields := map[string]interface{}{
		"power_raw":   m.PowerRaw,
		"energy":      m.Energy,
		"voltage":     m.Voltage,
		"current":     m.Current,
		"temperature": m.Temperature,
	}
	if m.HasPower() {
		fields["power_watts"] = m.PowerWatts
	}
	return write.NewPoint(
		MeasurementName,
		map[string]string{
			"index":  strconv.Itoa(m.Index),
			"family": m.Family,
		},
		fields,
		time.UnixMilli(m.Time),
	)
}

// Publish queues m for the next batch
func (i *Influx) Publish(m Measurement) error {
	i.write.WritePoint(Point(m))
	return nil
}

// Close flushes pending points and closes the client
func (i *Influx) Close() error {
	i.write.Flush()
	i.client.Close()
	return nil
}

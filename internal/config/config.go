// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the dalistat daemon configuration.
//
// Values come from built-in defaults, then the YAML file, then DALISTAT_*
// environment variables. Load validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/gear"
)

// Config is the root of the configuration file
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Bench     BenchConfig     `yaml:"bench"`
	Table     TableConfig     `yaml:"table"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BusConfig selects and paces the bus
type BusConfig struct {
	// Transport is "bridge" for real hardware or "sim" for a simulated bus
	Transport    string        `yaml:"transport"`
	TickInterval time.Duration `yaml:"tick_interval"`

	// ReplyDelay and SimGear only apply to the simulated bus
	ReplyDelay int `yaml:"reply_delay"`
	SimGear    int `yaml:"sim_gear"`
}

// BridgeConfig locates the bus interface
type BridgeConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	URL         string        `yaml:"url"`
	Username    string        `yaml:"username"`
	NoSSLVerify bool          `yaml:"no_ssl_verify"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BenchConfig enables the bench protocol server on a serial port
type BenchConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// TableConfig contains the SQLite settings of the network table store
type TableConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig paces driver polling
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Drivers  int           `yaml:"drivers"`
}

// MQTTConfig contains MQTT broker connection settings
type MQTTConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Broker        MQTTBrokerConfig `yaml:"broker"`
	Auth          MQTTAuthConfig   `yaml:"auth"`
	QoS           int              `yaml:"qos"`
	TopicPrefix   string           `yaml:"topic_prefix"`
	PayloadFormat string           `yaml:"payload_format"`
}

// MQTTBrokerConfig contains MQTT broker connection details
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file settings
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the configuration at path. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration: a simulated bus with two
// gear, ticked every 25 ms
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Transport:    "sim",
			TickInterval: 25 * time.Millisecond,
			ReplyDelay:   8,
			SimGear:      2,
		},
		Bridge: BridgeConfig{
			Baud:    115200,
			Timeout: 100 * time.Millisecond,
		},
		Bench: BenchConfig{
			Baud: 115200,
		},
		Table: TableConfig{
			Path:        "./data/dalistat.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Telemetry: TelemetryConfig{
			Interval: 10 * time.Second,
			Drivers:  gear.MaxDrivers,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dalistat",
			},
			QoS:           1,
			TopicPrefix:   "dalistat",
			PayloadFormat: "json",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies DALISTAT_SECTION_KEY variables
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DALISTAT_BUS_TRANSPORT"); v != "" {
		cfg.Bus.Transport = v
	}
	if v := os.Getenv("DALISTAT_BUS_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bus.TickInterval = d
		}
	}

	if v := os.Getenv("DALISTAT_BRIDGE_PORT"); v != "" {
		cfg.Bridge.Port = v
	}
	if v := os.Getenv("DALISTAT_BRIDGE_URL"); v != "" {
		cfg.Bridge.URL = v
	}
	if v := os.Getenv("DALISTAT_BRIDGE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.Baud = n
		}
	}

	if v := os.Getenv("DALISTAT_BENCH_PORT"); v != "" {
		cfg.Bench.Port = v
	}

	if v := os.Getenv("DALISTAT_TABLE_PATH"); v != "" {
		cfg.Table.Path = v
	}

	if v := os.Getenv("DALISTAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DALISTAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DALISTAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DALISTAT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("DALISTAT_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	if v := os.Getenv("DALISTAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []string

	switch c.Bus.Transport {
	case "sim":
		if c.Bus.ReplyDelay < 1 || c.Bus.ReplyDelay > dali.MaxReplyDelay {
			errs = append(errs, fmt.Sprintf("bus.reply_delay must be between 1 and %d", dali.MaxReplyDelay))
		}
		if c.Bus.SimGear < 0 || c.Bus.SimGear > dali.MaxShortAddress+1 {
			errs = append(errs, "bus.sim_gear must be between 0 and 64")
		}
	case "bridge":
		if c.Bridge.Port == "" && c.Bridge.URL == "" {
			errs = append(errs, "bridge.port or bridge.url is required for the bridge transport")
		}
	default:
		errs = append(errs, "bus.transport must be bridge or sim")
	}
	if c.Bus.TickInterval <= 0 {
		errs = append(errs, "bus.tick_interval must be positive")
	}

	if c.Table.Path == "" {
		errs = append(errs, "table.path is required")
	}

	if c.Telemetry.Drivers < 0 || c.Telemetry.Drivers > gear.MaxDrivers {
		errs = append(errs, fmt.Sprintf("telemetry.drivers must be between 0 and %d", gear.MaxDrivers))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	switch c.MQTT.PayloadFormat {
	case "json", "cbor":
	default:
		errs = append(errs, "mqtt.payload_format must be json or cbor")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when enabled")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "none":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required for file output")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, file or none")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MQTTBrokerURL returns the broker URL in the form the MQTT client expects
func (c *Config) MQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}

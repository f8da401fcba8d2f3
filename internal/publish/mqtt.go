// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Thermoquad/dalistat/internal/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
	keepAlive         = 30 * time.Second
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrNotConnected     = errors.New("mqtt: not connected")
)

// Status payloads of the retained status topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MeasurementTopic is where driver index publishes
func MeasurementTopic(prefix string, index int) string {
	return fmt.Sprintf("%s/driver/%d/measurement", prefix, index)
}

// StatusTopic carries the retained online/offline status
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// ClientID appends a random suffix so that several instances can share a
// broker
func ClientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// MQTT publishes measurements to a broker
type MQTT struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	log    *slog.Logger
}

func clientOptions(cfg config.MQTTConfig, brokerURL string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(ClientID(cfg.Broker.ClientID)).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(StatusTopic(cfg.TopicPrefix), StatusOffline, byte(cfg.QoS), true)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	return opts
}

// ConnectMQTT connects to the broker at brokerURL and publishes the
// online status. The client reconnects on its own after a lost connection.
func ConnectMQTT(cfg config.MQTTConfig, brokerURL string, log *slog.Logger) (*MQTT, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &MQTT{cfg: cfg, log: log}

	opts := clientOptions(cfg, brokerURL)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Info("mqtt connected", "broker", brokerURL)
		c.Publish(StatusTopic(cfg.TopicPrefix), byte(cfg.QoS), true, StatusOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	m.client = pahomqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return m, nil
}

// Publish sends m to its measurement topic
func (m *MQTT) Publish(meas Measurement) error {
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := Encode(meas, m.cfg.PayloadFormat)
	if err != nil {
		return err
	}

	token := m.client.Publish(MeasurementTopic(m.cfg.TopicPrefix, meas.Index), byte(m.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes the offline status and disconnects
func (m *MQTT) Close() error {
	if m.client.IsConnectionOpen() {
		token := m.client.Publish(StatusTopic(m.cfg.TopicPrefix), byte(m.cfg.QoS), true, StatusOffline)
		token.WaitTimeout(publishTimeout)
	}
	m.client.Disconnect(disconnectQuiesce)
	return nil
}

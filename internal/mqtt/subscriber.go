// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package mqtt bridges an external broker topic to the ingestion
// pipeline: every message on the configured topic is handed to the
// ingester as an MQTT-format payload.
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mkrein/waypost/internal/config"
	"github.com/mkrein/waypost/internal/ingest"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho's own unit
)

// Processor is the ingestion entry point the subscriber feeds.
type Processor interface {
	ProcessLocation(ctx context.Context, format ingest.Format, payload any) *models.LocationEvent
}

// Subscriber consumes one broker topic and feeds the ingester. It is a
// suture service: Serve connects, subscribes, and blocks until the
// context is canceled.
type Subscriber struct {
	cfg       config.MQTTConfig
	processor Processor
}

// NewSubscriber creates a subscriber for the configured broker/topic.
func NewSubscriber(cfg config.MQTTConfig, processor Processor) *Subscriber {
	return &Subscriber{cfg: cfg, processor: processor}
}

// Serve connects to the broker, subscribes, and blocks until ctx is
// canceled. Connection loss is retried by paho's auto reconnect; a
// failed initial connect returns an error so the supervisor restarts
// the service with backoff.
func (s *Subscriber) Serve(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout)

	if s.cfg.Username != "" {
		opts = opts.SetUsername(s.cfg.Username).SetPassword(s.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logging.Warn().Err(err).Msg("mqtt connection lost, reconnecting")
	})
	opts.SetOnConnectHandler(func(client paho.Client) {
		// Re-subscribe on every (re)connect.
		token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				logging.Error().Err(err).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
				return
			}
			logging.Info().Str("topic", s.cfg.Topic).Msg("mqtt topic subscribed")
		}()
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.BrokerURL, token.Error())
	}
	logging.Info().Str("broker", s.cfg.BrokerURL).Str("client_id", s.cfg.ClientID).Msg("mqtt broker connected")

	<-ctx.Done()
	client.Disconnect(disconnectQuiesce)
	logging.Info().Str("component", "mqtt-subscriber").Msg("mqtt subscriber stopped")
	return ctx.Err()
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	event := s.processor.ProcessLocation(context.Background(), ingest.FormatMQTT, string(msg.Payload()))
	if event == nil {
		metrics.MQTTMessagesTotal.WithLabelValues("rejected").Inc()
		return
	}
	metrics.MQTTMessagesTotal.WithLabelValues("accepted").Inc()
}

// String names the service in supervisor logs.
func (s *Subscriber) String() string {
	return "mqtt-subscriber"
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package metrics defines the Prometheus collectors instrumenting the
// ingestion pipeline, storage, broadcast hub, and HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion pipeline metrics

	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total location reports processed, by format and outcome",
		},
		[]string{"format", "outcome"}, // outcome: accepted, decode_error, unknown_credential, validation_error, storage_error
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "End-to-end duration of one ingestion call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	DevicesAutoCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devices_auto_created_total",
			Help: "Devices lazily registered on first sighting",
		},
	)

	// Database metrics

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Broadcast hub metrics

	WSConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connected_clients",
			Help: "Currently connected websocket subscribers",
		},
	)

	WSAuthorizedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_authorized_clients",
			Help: "Connected subscribers that passed token authentication",
		},
	)

	WSEventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_events_delivered_total",
			Help: "position-update messages delivered to subscribers",
		},
	)

	WSEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_events_dropped_total",
			Help: "Messages dropped because a subscriber send buffer was full",
		},
	)

	WSRoomBootstraps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_room_bootstraps_total",
			Help: "Ownership derivations performed for first-seen rooms",
		},
	)

	// MQTT bridge metrics

	MQTTMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_total",
			Help: "Inbound MQTT messages, by outcome",
		},
		[]string{"outcome"}, // accepted, rejected
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Simulator metrics

	SimulatorTracksPlaying = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simulator_tracks_playing",
			Help: "Track replays currently emitting points",
		},
	)

	SimulatorPointsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simulator_points_emitted_total",
			Help: "Synthetic track points fed into the ingestion pipeline",
		},
	)
)

// ObserveDBQuery records the duration of a database operation and counts
// an error if one occurred.
func ObserveDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// ObserveAPIRequest records one completed HTTP request.
func ObserveAPIRequest(method, endpoint string, status int, start time.Time) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package models defines the shared data types exchanged between the
// ingestion pipeline, storage, broadcast hub, and API layers.
package models

import (
	"time"
)

// User is a registered account. Each account owns exactly one API key;
// every device reporting under that key belongs to the account.
type User struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Device is a registered location source. Devices are created lazily on
// first sighting of an unknown (api_key, identifier) pair whose API key
// belongs to a registered user.
//
// FixedLocLat/FixedLocLon are set only for beacon "tag" devices whose
// position is a pre-registered fixed point rather than a live GPS fix.
type Device struct {
	DeviceID    int64     `json:"device_id"`
	APIKey      string    `json:"api_key"`
	Identifier  string    `json:"identifier"`
	Alias       string    `json:"alias"`
	FixedLocLat *float64  `json:"fixed_loc_lat"`
	FixedLocLon *float64  `json:"fixed_loc_lon"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasFixedLocation reports whether the device carries a pre-registered
// fixed position (beacon tags).
func (d *Device) HasFixedLocation() bool {
	return d.FixedLocLat != nil && d.FixedLocLon != nil
}

// Location event type values.
const (
	LocTypeRec  = "rec"  // recorded GPS fix
	LocTypeNow  = "now"  // geofence/beacon entered or tested
	LocTypeLeft = "left" // geofence/beacon exited
)

// LocationEvent is the single normalized shape every inbound format
// converges to before persistence and broadcast.
//
// DeviceIDTag, IdentifierTag, and APIKeyTag are set only by the beacon
// detection branch of the Locative adapter, where the reporting device
// sights a separately registered tag.
type LocationEvent struct {
	DeviceID      int64          `json:"device_id"`
	APIKey        string         `json:"api_key"`
	Identifier    *string        `json:"identifier"`
	DeviceIDTag   *int64         `json:"device_id_tag"`
	IdentifierTag *string        `json:"identifier_tag"`
	APIKeyTag     *string        `json:"api_key_tag"`
	Alias         string         `json:"alias"`
	LocTimestamp  string         `json:"loc_timestamp"`
	LocLat        float64        `json:"loc_lat"`
	LocLon        float64        `json:"loc_lon"`
	LocType       *string        `json:"loc_type"`
	LocAttr       map[string]any `json:"loc_attr"`
}

// InRange reports whether the event's coordinates are inside the valid
// WGS84 envelope. Events outside it must never reach storage or broadcast.
func (e *LocationEvent) InRange() bool {
	return e.LocLat >= -90 && e.LocLat <= 90 && e.LocLon >= -180 && e.LocLon <= 180
}

// Position is a persisted LocationEvent row.
type Position struct {
	PositionID int64     `json:"position_id"`
	ReceivedAt time.Time `json:"received_at"`
	LocationEvent
}

// APIResponse is the standard envelope for JSON API responses.
type APIResponse struct {
	Status string   `json:"status"`
	Data   any      `json:"data,omitempty"`
	Error  *APIErr  `json:"error,omitempty"`
	Meta   Metadata `json:"metadata"`
}

// APIErr carries a machine-readable error code plus a human message.
type APIErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is attached to every API response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
}

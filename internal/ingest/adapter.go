// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package ingest implements the location ingestion pipeline: one format
// adapter per wire shape, all converging on the normalized
// LocationEvent, and the Ingester orchestrating refresh, decode,
// validation, persistence, and broadcast.
package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/mkrein/waypost/internal/models"
)

// Format identifies an inbound wire shape.
type Format string

const (
	// FormatGPX is the GPX logger webhook: flat form fields with a
	// '_'-divided identity string.
	FormatGPX Format = "gpx"

	// FormatLocative is the Locative geofence/beacon webhook: flat form
	// fields with ':'-divided identities.
	FormatLocative Format = "locative"

	// FormatMQTT is the JSON topic feed.
	FormatMQTT Format = "mqtt"
)

// Adapter decodes one wire format into a normalized LocationEvent. An
// adapter maps fields and resolves devices only; it never persists or
// broadcasts.
type Adapter interface {
	Decode(ctx context.Context, payload any) (*models.LocationEvent, error)
}

// webhookFields asserts the flat string map shape webhook payloads
// arrive in (parsed query string or form body).
func webhookFields(payload any) (map[string]string, error) {
	fields, ok := payload.(map[string]string)
	if !ok {
		return nil, decodeErr("webhook payload is %T, want map[string]string", payload)
	}
	return fields, nil
}

// requireFields returns the named fields or an error listing the first
// one missing.
func requireFields(fields map[string]string, names ...string) error {
	for _, name := range names {
		if _, ok := fields[name]; !ok {
			return decodeErr("payload missing required field %s", name)
		}
	}
	return nil
}

func parseCoordinate(name, value string, min, max float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, decodeErr("%s %q is not a number", name, value)
	}
	if f < min || f > max {
		return 0, decodeErr("%s %v outside [%v,%v]", name, f, min, max)
	}
	return f, nil
}

// unixToISO converts a unix-seconds string (integer or fractional) to
// an ISO-8601 timestamp in UTC.
func unixToISO(value string) (string, error) {
	sec, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", decodeErr("timestamp %q is not a unix time", value)
	}
	ms := int64(sec * 1000)
	return time.UnixMilli(ms).UTC().Format(time.RFC3339), nil
}

// triggerToLocType maps the Locative trigger field to the event type:
// enter and test report presence, exit reports departure.
func triggerToLocType(trigger string) (string, error) {
	switch trigger {
	case "enter", "test":
		return models.LocTypeNow, nil
	case "exit":
		return models.LocTypeLeft, nil
	default:
		return "", decodeErr("unknown trigger %q", trigger)
	}
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package ingest

import (
	"context"

	"github.com/mkrein/waypost/internal/directory"
	"github.com/mkrein/waypost/internal/identity"
	"github.com/mkrein/waypost/internal/models"
)

// locativeAdapter decodes the Locative geofence/beacon webhook. The
// payload carries either a raw GPS fix or a beacon sighting; the vendor
// signals the beacon case by sending the literal strings "0" for both
// coordinates. The comparison must stay a string comparison: a genuine
// fix at numeric zero arrives as "0.0" or similar, never as "0"/"0".
type locativeAdapter struct {
	dir *directory.Directory
}

func (a *locativeAdapter) Decode(ctx context.Context, payload any) (*models.LocationEvent, error) {
	fields, err := webhookFields(payload)
	if err != nil {
		return nil, err
	}
	if err := requireFields(fields, "id", "device", "latitude", "longitude", "timestamp", "trigger"); err != nil {
		return nil, err
	}

	if fields["latitude"] == "0" && fields["longitude"] == "0" {
		return a.decodeBeacon(ctx, fields)
	}
	return a.decodeDirect(ctx, fields)
}

// decodeBeacon handles a beacon sighting: the id field addresses the
// tag, the device field names the reporting device, and the event's
// coordinates come from the tag's pre-registered fixed location because
// beacons carry no GPS of their own.
func (a *locativeAdapter) decodeBeacon(ctx context.Context, fields map[string]string) (*models.LocationEvent, error) {
	tagIdent, err := identity.Decode(fields["id"], ':')
	if err != nil {
		return nil, decodeErr("beacon id: %v", err)
	}
	if !a.dir.IsKnownAPIKey(tagIdent.APIKey) {
		return nil, unknownCredentialErr("beacon report for unregistered api key")
	}

	locType, err := triggerToLocType(fields["trigger"])
	if err != nil {
		return nil, err
	}

	reporter, err := a.dir.Resolve(ctx, tagIdent.APIKey, fields["device"])
	if err != nil {
		return nil, err
	}
	tag, err := a.dir.Resolve(ctx, tagIdent.APIKey, tagIdent.Identifier)
	if err != nil {
		return nil, err
	}
	if !tag.HasFixedLocation() {
		return nil, decodeErr("tag %s has no fixed location registered", tag.Identifier)
	}

	ts, err := unixToISO(fields["timestamp"])
	if err != nil {
		return nil, err
	}

	return &models.LocationEvent{
		DeviceID:      reporter.DeviceID,
		APIKey:        tagIdent.APIKey,
		Identifier:    &reporter.Identifier,
		DeviceIDTag:   &tag.DeviceID,
		IdentifierTag: &tag.Identifier,
		APIKeyTag:     &tag.APIKey,
		Alias:         tag.Alias,
		LocTimestamp:  ts,
		LocLat:        *tag.FixedLocLat,
		LocLon:        *tag.FixedLocLon,
		LocType:       &locType,
	}, nil
}

// decodeDirect handles a raw geofence fix: id and device combine into
// one ':'-divided identity string for the reporting device.
func (a *locativeAdapter) decodeDirect(ctx context.Context, fields map[string]string) (*models.LocationEvent, error) {
	ident, err := identity.Decode(fields["id"]+":"+fields["device"], ':')
	if err != nil {
		return nil, decodeErr("combined identity: %v", err)
	}
	if !a.dir.IsKnownAPIKey(ident.APIKey) {
		return nil, unknownCredentialErr("locative report for unregistered api key")
	}

	locType, err := triggerToLocType(fields["trigger"])
	if err != nil {
		return nil, err
	}

	dev, err := a.dir.Resolve(ctx, ident.APIKey, ident.Identifier)
	if err != nil {
		return nil, err
	}

	lat, err := parseCoordinate("latitude", fields["latitude"], -90, 90)
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate("longitude", fields["longitude"], -180, 180)
	if err != nil {
		return nil, err
	}
	ts, err := unixToISO(fields["timestamp"])
	if err != nil {
		return nil, err
	}

	return &models.LocationEvent{
		DeviceID:     dev.DeviceID,
		APIKey:       ident.APIKey,
		Identifier:   &dev.Identifier,
		Alias:        dev.Alias,
		LocTimestamp: ts,
		LocLat:       lat,
		LocLon:       lon,
		LocType:      &locType,
	}, nil
}

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

// gpxAdapter decodes the GPX logger webhook: a recorded GPS fix
// addressed by a '_'-divided identity string.
type gpxAdapter struct {
	dir *directory.Directory
}

func (a *gpxAdapter) Decode(ctx context.Context, payload any) (*models.LocationEvent, error) {
	fields, err := webhookFields(payload)
	if err != nil {
		return nil, err
	}
	if err := requireFields(fields, "device_id", "gps_latitude", "gps_longitude", "gps_time"); err != nil {
		return nil, err
	}

	ident, err := identity.Decode(fields["device_id"], '_')
	if err != nil {
		return nil, decodeErr("device_id: %v", err)
	}
	if !a.dir.IsKnownAPIKey(ident.APIKey) {
		return nil, unknownCredentialErr("gpx report for unregistered api key")
	}

	dev, err := a.dir.Resolve(ctx, ident.APIKey, ident.Identifier)
	if err != nil {
		return nil, err
	}

	lat, err := parseCoordinate("gps_latitude", fields["gps_latitude"], -90, 90)
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate("gps_longitude", fields["gps_longitude"], -180, 180)
	if err != nil {
		return nil, err
	}

	locType := models.LocTypeRec
	return &models.LocationEvent{
		DeviceID:     dev.DeviceID,
		APIKey:       ident.APIKey,
		Identifier:   &dev.Identifier,
		Alias:        dev.Alias,
		LocTimestamp: fields["gps_time"],
		LocLat:       lat,
		LocLon:       lon,
		LocType:      &locType,
	}, nil
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
)

// InsertPosition appends a normalized location event to the position log.
func (db *DB) InsertPosition(ctx context.Context, event *models.LocationEvent) error {
	var attr any
	if len(event.LocAttr) > 0 {
		raw, err := json.Marshal(event.LocAttr)
		if err != nil {
			return fmt.Errorf("marshal loc_attr: %w", err)
		}
		attr = string(raw)
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO positions (device_id, device_id_tag, loc_timestamp, loc_lat, loc_lon, loc_type, loc_attr)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.DeviceID, event.DeviceIDTag, event.LocTimestamp,
		event.LocLat, event.LocLon, event.LocType, attr)
	metrics.ObserveDBQuery("insert", "positions", start, err)
	if err != nil {
		return fmt.Errorf("insert position for device %d: %w", event.DeviceID, err)
	}
	return nil
}

// LatestPositions returns the most recent position of every device
// visible to the user, newest first.
func (db *DB) LatestPositions(ctx context.Context, userID int64) ([]models.Position, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`WITH visible AS (
			SELECT device_id, api_key, identifier, alias FROM devices
			WHERE api_key = (SELECT api_key FROM users WHERE user_id = ?)
			   OR device_id IN (SELECT device_id FROM device_shares WHERE user_id = ?)
		 ),
		 ranked AS (
			SELECT p.*, row_number() OVER (PARTITION BY p.device_id ORDER BY p.position_id DESC) AS rn
			FROM positions p
			JOIN visible v ON v.device_id = p.device_id
		 )
		 SELECT r.position_id, r.received_at, r.device_id, r.device_id_tag,
		        r.loc_timestamp, r.loc_lat, r.loc_lon, r.loc_type, r.loc_attr,
		        v.api_key, v.alias
		 FROM ranked r
		 JOIN visible v ON v.device_id = r.device_id
		 WHERE r.rn = 1
		 ORDER BY r.position_id DESC`,
		userID, userID)
	metrics.ObserveDBQuery("select", "positions", start, err)
	if err != nil {
		return nil, fmt.Errorf("latest positions for user %d: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var positions []models.Position
	for rows.Next() {
		var (
			p       models.Position
			attr    sql.NullString
			locType sql.NullString
		)
		if err := rows.Scan(&p.PositionID, &p.ReceivedAt, &p.DeviceID, &p.DeviceIDTag,
			&p.LocTimestamp, &p.LocLat, &p.LocLon, &locType, &attr,
			&p.APIKey, &p.Alias); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if locType.Valid {
			p.LocType = &locType.String
		}
		if attr.Valid && attr.String != "" {
			if err := json.Unmarshal([]byte(attr.String), &p.LocAttr); err != nil {
				return nil, fmt.Errorf("unmarshal loc_attr: %w", err)
			}
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest positions for user %d: %w", userID, err)
	}
	return positions, nil
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
)

const deviceColumns = `device_id, api_key, identifier, alias, fixed_loc_lat, fixed_loc_lon, created_at`

func scanDevice(row interface{ Scan(...any) error }) (*models.Device, error) {
	var d models.Device
	err := row.Scan(&d.DeviceID, &d.APIKey, &d.Identifier, &d.Alias,
		&d.FixedLocLat, &d.FixedLocLon, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns all registered devices.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY device_id`)
	metrics.ObserveDBQuery("select", "devices", start, err)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// FindDevice returns the device with the given (api_key, identifier)
// pair, or ErrNotFound.
func (db *DB) FindDevice(ctx context.Context, apiKey, identifier string) (*models.Device, error) {
	start := time.Now()

	stmt, err := db.getStmt(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE api_key = ? AND identifier = ?`)
	if err != nil {
		return nil, err
	}

	d, err := scanDevice(stmt.QueryRowContext(ctx, apiKey, identifier))
	metrics.ObserveDBQuery("select", "devices", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", identifier, err)
	}
	return d, nil
}

// InsertDevice registers a device under apiKey with alias defaulting to
// the identifier. The API key must belong to a registered user. A
// concurrent insert of the same pair is not an error: the conflict is
// swallowed and the surviving row is read back, so both callers see the
// same device.
func (db *DB) InsertDevice(ctx context.Context, apiKey, identifier string) (*models.Device, error) {
	if _, err := db.OwnerOfAPIKey(ctx, apiKey); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO devices (api_key, identifier, alias)
		 VALUES (?, ?, ?)
		 ON CONFLICT (api_key, identifier) DO NOTHING`,
		apiKey, identifier, identifier)
	metrics.ObserveDBQuery("insert", "devices", start, err)
	if err != nil {
		return nil, fmt.Errorf("insert device %s: %w", identifier, err)
	}

	// A swallowed conflict inserted nothing; only a real insert counts
	// as an auto-registration.
	if n, raErr := res.RowsAffected(); raErr == nil && n > 0 {
		metrics.DevicesAutoCreated.Inc()
	}
	return db.FindDevice(ctx, apiKey, identifier)
}

// VisibleDevices returns the devices the user may observe: every device
// under the user's own API key plus devices shared with the user.
func (db *DB) VisibleDevices(ctx context.Context, userID int64) ([]models.Device, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE api_key = (SELECT api_key FROM users WHERE user_id = ?)
		 UNION
		 SELECT `+deviceColumns+` FROM devices
		 WHERE device_id IN (SELECT device_id FROM device_shares WHERE user_id = ?)
		 ORDER BY device_id`,
		userID, userID)
	metrics.ObserveDBQuery("select", "devices", start, err)
	if err != nil {
		return nil, fmt.Errorf("visible devices for user %d: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("visible devices for user %d: %w", userID, err)
	}
	return devices, nil
}

// ShareDevice grants userID visibility of deviceID.
func (db *DB) ShareDevice(ctx context.Context, deviceID, userID int64) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO device_shares (device_id, user_id) VALUES (?, ?)
		 ON CONFLICT (device_id, user_id) DO NOTHING`,
		deviceID, userID)
	metrics.ObserveDBQuery("insert", "device_shares", start, err)
	if err != nil {
		return fmt.Errorf("share device %d with user %d: %w", deviceID, userID, err)
	}
	return nil
}

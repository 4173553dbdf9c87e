// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// initialize creates sequences, tables, and indexes.
func (db *DB) initialize() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func schemaQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_user_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_device_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_position_id START 1`,

		// One API key per account. Every device reporting under that
		// key belongs to the account.
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY DEFAULT nextval('seq_user_id'),
			username TEXT NOT NULL UNIQUE,
			api_key TEXT NOT NULL UNIQUE
		)`,

		// Devices are created lazily on first sighting of an unknown
		// (api_key, identifier) pair. The UNIQUE constraint is what the
		// auto-registration race resolution relies on.
		`CREATE TABLE IF NOT EXISTS devices (
			device_id BIGINT PRIMARY KEY DEFAULT nextval('seq_device_id'),
			api_key TEXT NOT NULL,
			identifier TEXT NOT NULL,
			alias TEXT NOT NULL,
			fixed_loc_lat DOUBLE,
			fixed_loc_lon DOUBLE,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
			UNIQUE (api_key, identifier)
		)`,

		// Cross-account visibility grants for individual devices.
		`CREATE TABLE IF NOT EXISTS device_shares (
			device_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			UNIQUE (device_id, user_id)
		)`,

		// Append-only position log.
		`CREATE TABLE IF NOT EXISTS positions (
			position_id BIGINT PRIMARY KEY DEFAULT nextval('seq_position_id'),
			device_id BIGINT NOT NULL,
			device_id_tag BIGINT,
			loc_timestamp TEXT NOT NULL,
			loc_lat DOUBLE NOT NULL,
			loc_lon DOUBLE NOT NULL,
			loc_type TEXT,
			loc_attr JSON,
			received_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,

		`CREATE INDEX IF NOT EXISTS idx_devices_api_key ON devices (api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_device ON positions (device_id, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_shares_user ON device_shares (user_id)`,
	}
}

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

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrUnknownAPIKey is returned when a device operation references an
// API key no registered user owns.
var ErrUnknownAPIKey = errors.New("unknown api key")

// ListUsers returns all registered users.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, username, api_key FROM users ORDER BY user_id`)
	metrics.ObserveDBQuery("select", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.Username, &u.APIKey); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// InsertUser registers a new account.
func (db *DB) InsertUser(ctx context.Context, username, apiKey string) (*models.User, error) {
	start := time.Now()

	var u models.User
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (username, api_key) VALUES (?, ?)
		 RETURNING user_id, username, api_key`,
		username, apiKey).Scan(&u.UserID, &u.Username, &u.APIKey)
	metrics.ObserveDBQuery("insert", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", username, err)
	}
	return &u, nil
}

// OwnerOfAPIKey returns the user that owns apiKey, or ErrUnknownAPIKey.
func (db *DB) OwnerOfAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	start := time.Now()

	stmt, err := db.getStmt(ctx,
		`SELECT user_id, username, api_key FROM users WHERE api_key = ?`)
	if err != nil {
		return nil, err
	}

	var u models.User
	err = stmt.QueryRowContext(ctx, apiKey).Scan(&u.UserID, &u.Username, &u.APIKey)
	metrics.ObserveDBQuery("select", "users", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("owner of api key: %w", err)
	}
	return &u, nil
}

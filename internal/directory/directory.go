// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package directory resolves reporting devices against the registered
// device and user directory. It holds a wholesale in-memory snapshot
// refreshed from storage at the top of every ingest, so one ingest sees
// one consistent view.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/models"
)

// Storage is the persistence surface the directory needs.
type Storage interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	FindDevice(ctx context.Context, apiKey, identifier string) (*models.Device, error)
	InsertDevice(ctx context.Context, apiKey, identifier string) (*models.Device, error)
}

// Directory caches the registered users and devices.
type Directory struct {
	store Storage

	mu      sync.RWMutex
	users   []models.User
	devices []models.Device
}

// New creates an empty directory over store. Call Refresh before the
// first resolution.
func New(store Storage) *Directory {
	return &Directory{store: store}
}

// Refresh replaces the snapshot wholesale from storage. On error the
// previous snapshot is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	users, err := d.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("refresh users: %w", err)
	}
	devices, err := d.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("refresh devices: %w", err)
	}

	d.mu.Lock()
	d.users = users
	d.devices = devices
	d.mu.Unlock()
	return nil
}

// IsKnownAPIKey reports whether a registered user owns apiKey.
func (d *Directory) IsKnownAPIKey(apiKey string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.users {
		if d.users[i].APIKey == apiKey {
			return true
		}
	}
	return false
}

// UserByAPIKey returns the snapshot user owning apiKey.
func (d *Directory) UserByAPIKey(apiKey string) (*models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.users {
		if d.users[i].APIKey == apiKey {
			u := d.users[i]
			return &u, true
		}
	}
	return nil, false
}

// Resolve returns the device registered under (apiKey, identifier),
// creating it when the pair is unseen but the API key belongs to a
// registered user. A creation race with a concurrent ingest is treated
// as success: storage resolves the conflict to the surviving row.
func (d *Directory) Resolve(ctx context.Context, apiKey, identifier string) (*models.Device, error) {
	d.mu.RLock()
	for i := range d.devices {
		if d.devices[i].APIKey == apiKey && d.devices[i].Identifier == identifier {
			dev := d.devices[i]
			d.mu.RUnlock()
			return &dev, nil
		}
	}
	d.mu.RUnlock()

	if !d.IsKnownAPIKey(apiKey) {
		return nil, fmt.Errorf("no registered user owns api key of device %s", identifier)
	}

	dev, err := d.store.InsertDevice(ctx, apiKey, identifier)
	if err != nil {
		return nil, fmt.Errorf("auto-register device %s: %w", identifier, err)
	}

	logging.Info().
		Str("identifier", identifier).
		Int64("device_id", dev.DeviceID).
		Msg("auto-registered device on first sighting")

	d.mu.Lock()
	d.devices = append(d.devices, *dev)
	d.mu.Unlock()

	return dev, nil
}

// Devices returns a copy of the device snapshot.
func (d *Directory) Devices() []models.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Device, len(d.devices))
	copy(out, d.devices)
	return out
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package services

import (
	"context"
)

// ContextHub matches the broadcast hub's RunWithContext method, so the
// wrapper does not import the websocket package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the broadcast hub as a supervised service. The
// hub's RunWithContext already has the right shape; this adds the
// service name.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps the hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (s *HubService) String() string {
	return "broadcast-hub"
}

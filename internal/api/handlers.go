// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package api provides the HTTP surface: webhook intake, the websocket
// endpoint, position queries, simulator control, and health.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/mkrein/waypost/internal/auth"
	"github.com/mkrein/waypost/internal/config"
	"github.com/mkrein/waypost/internal/database"
	"github.com/mkrein/waypost/internal/ingest"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/models"
	"github.com/mkrein/waypost/internal/simulator"
	ws "github.com/mkrein/waypost/internal/websocket"
)

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	db       *database.DB
	ingester *ingest.Ingester
	hub      *ws.Hub
	codec    *auth.TokenCodec
	sim      *simulator.Registry
}

// NewHandler wires the HTTP handlers.
func NewHandler(cfg *config.Config, db *database.DB, ingester *ingest.Ingester, hub *ws.Hub, codec *auth.TokenCodec, sim *simulator.Registry) *Handler {
	return &Handler{cfg: cfg, db: db, ingester: ingester, hub: hub, codec: codec, sim: sim}
}

// WebhookGPX ingests a GPX logger report. The response is always
// success: rejection details must not reveal whether an API key is
// registered.
func (h *Handler) WebhookGPX(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ingest.FormatGPX)
}

// WebhookLocative ingests a Locative geofence/beacon report. Same
// always-success contract as the GPX webhook.
func (h *Handler) WebhookLocative(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ingest.FormatLocative)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request, format ingest.Format) {
	start := time.Now()

	fields, err := formFields(r)
	if err != nil {
		logging.Debug().Err(err).Str("format", string(format)).Msg("unparsable webhook body")
		respondOK(w, map[string]bool{"received": true}, start)
		return
	}

	h.ingester.ProcessLocation(r.Context(), format, fields)
	respondOK(w, map[string]bool{"received": true}, start)
}

// Token exchanges a registered API key for a subscriber token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body", nil)
		return
	}

	owner, err := h.db.OwnerOfAPIKey(r.Context(), req.APIKey)
	if err != nil {
		// One error shape for unknown and failed lookups alike.
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
		return
	}

	token, err := h.codec.Generate(owner.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_ERROR", "failed to issue token", err)
		return
	}

	respondOK(w, map[string]string{"token": token}, start)
}

// Positions returns the latest position of every device visible to the
// authenticated user.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	claims, err := h.codec.Decode(bearerToken(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}

	positions, err := h.db.LatestPositions(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "failed to load positions", err)
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}

	respondOK(w, positions, start)
}

// WebSocket upgrades the connection and hands it to the hub, which
// greets it with the authentication prompt.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients (scripts, mobile apps) omit Origin.
		return true
	}

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// SimulatorTracks lists the replayable tracks and their states.
func (h *Handler) SimulatorTracks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.sim == nil {
		respondError(w, http.StatusNotFound, "SIMULATOR_DISABLED", "track simulator is not enabled", nil)
		return
	}

	names, err := h.sim.Tracks()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "SIMULATOR_ERROR", "failed to list tracks", err)
		return
	}

	states := make(map[string]simulator.State, len(names))
	for _, name := range names {
		states[name] = h.sim.Status(name)
	}
	respondOK(w, states, start)
}

// SimulatorStart begins replaying the named track.
func (h *Handler) SimulatorStart(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "track")

	if h.sim == nil {
		respondError(w, http.StatusNotFound, "SIMULATOR_DISABLED", "track simulator is not enabled", nil)
		return
	}

	if err := h.sim.Start(name); err != nil {
		respondError(w, http.StatusNotFound, "TRACK_NOT_FOUND", "track could not be started", err)
		return
	}
	respondOK(w, map[string]string{"track": name, "state": string(h.sim.Status(name))}, start)
}

// SimulatorStop halts the named track between points.
func (h *Handler) SimulatorStop(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "track")

	if h.sim == nil {
		respondError(w, http.StatusNotFound, "SIMULATOR_DISABLED", "track simulator is not enabled", nil)
		return
	}

	h.sim.Stop(name)
	respondOK(w, map[string]string{"track": name, "state": string(h.sim.Status(name))}, start)
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady reports readiness: the process is ready once storage
// answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "storage unavailable", err)
		return
	}
	respondOK(w, map[string]string{"status": "ready"}, start)
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package main is the entry point for the Waypost relay.
//
// Waypost ingests location reports from GPX loggers, Locative
// geofence/beacon webhooks, and MQTT publishers, normalizes them into a
// single event shape, persists them to DuckDB, and broadcasts them live
// to authorized WebSocket subscribers.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, file, env)
//  2. Database: DuckDB with schema bootstrap
//  3. Device directory: read-through cache over users and devices
//  4. Broadcast hub: WebSocket fan-out with per-device rooms
//  5. Ingestion pipeline: format adapters, validation, persistence
//  6. Supervisor tree: hub, MQTT subscriber, simulator, HTTP server
//
// Shutdown is graceful on SIGINT and SIGTERM: the supervisor tree stops
// its services, the HTTP server drains in-flight requests, and the
// database closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkrein/waypost/internal/api"
	"github.com/mkrein/waypost/internal/auth"
	"github.com/mkrein/waypost/internal/cache"
	"github.com/mkrein/waypost/internal/config"
	"github.com/mkrein/waypost/internal/database"
	"github.com/mkrein/waypost/internal/directory"
	"github.com/mkrein/waypost/internal/ingest"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/mqtt"
	"github.com/mkrein/waypost/internal/schema"
	"github.com/mkrein/waypost/internal/simulator"
	"github.com/mkrein/waypost/internal/supervisor"
	"github.com/mkrein/waypost/internal/supervisor/services"
	ws "github.com/mkrein/waypost/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("mqtt_enabled", cfg.MQTT.Enabled).
		Bool("simulator_enabled", cfg.Simulator.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	codec, err := auth.NewTokenCodec(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token codec")
	}

	dir := directory.New(db)
	if err := dir.Refresh(context.Background()); err != nil {
		// Non-fatal: the directory refreshes again on every ingest.
		logging.Warn().Err(err).Msg("Initial directory refresh failed")
	}

	validator := schema.NewValidator(cfg.Schema.Dir)
	hub := ws.NewHub(db, codec, cache.NewLRUSet(10000, time.Hour))
	ingester := ingest.NewIngester(dir, validator, db, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewHubService(hub))

	if cfg.MQTT.Enabled {
		tree.AddMessagingService(mqtt.NewSubscriber(cfg.MQTT, ingester))
		logging.Info().
			Str("broker", cfg.MQTT.BrokerURL).
			Str("topic", cfg.MQTT.Topic).
			Msg("MQTT subscriber added to supervisor tree")
	}

	var sim *simulator.Registry
	if cfg.Simulator.Enabled {
		sim = simulator.NewRegistry(cfg.Simulator.TrackDir, ingester)
		tree.AddMessagingService(sim)
		logging.Info().Str("track_dir", cfg.Simulator.TrackDir).Msg("Track simulator added to supervisor tree")
	}

	handler := api.NewHandler(cfg, db, ingester, hub, codec, sim)
	router := api.NewRouter(cfg, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Waypost stopped gracefully")
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrein/waypost/internal/config"
	"github.com/mkrein/waypost/internal/middleware"
)

// Router assembles the HTTP route tree.
type Router struct {
	cfg     *config.Config
	handler *Handler
}

// NewRouter creates the router over its handlers.
func NewRouter(cfg *config.Config, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup configures all HTTP routes using Chi.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints stay outside rate limiting so monitoring keeps
	// working under webhook floods.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Webhook intake. Rate limited per source IP; report sources are
	// few and steady, floods are misconfigured loggers.
	r.Route("/api/v1/webhook", func(r chi.Router) {
		if !router.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(router.cfg.Security.RateLimitReqs, router.cfg.Security.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Post("/gpx", router.handler.WebhookGPX)
		r.Post("/locative", router.handler.WebhookLocative)
	})

	// Subscriber and control endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/ws", router.handler.WebSocket)
		r.Get("/positions", router.handler.Positions)
		r.Post("/auth/token", router.handler.Token)

		r.Get("/simulator", router.handler.SimulatorTracks)
		r.Post("/simulator/{track}/start", router.handler.SimulatorStart)
		r.Post("/simulator/{track}/stop", router.handler.SimulatorStop)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/models"
)

// respondJSON sends a JSON response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, data any, start time.Time) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Meta: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("api error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Error:  &models.APIErr{Code: code, Message: message},
		Meta:   models.Metadata{Timestamp: time.Now()},
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// formFields flattens a parsed form or query string into the flat map
// the webhook adapters consume. Repeated keys keep the first value.
func formFields(r *http.Request) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields, nil
}

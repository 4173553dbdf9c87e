// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/mkrein/waypost/internal/directory"
	"github.com/mkrein/waypost/internal/models"
	"github.com/mkrein/waypost/internal/schema"
)

// mqttAdapter decodes the JSON topic feed. The raw message shape is
// checked against the mqtt_message schema before any resolution.
type mqttAdapter struct {
	dir       *directory.Directory
	validator *schema.Validator
}

func (a *mqttAdapter) Decode(ctx context.Context, payload any) (*models.LocationEvent, error) {
	raw, ok := payload.(string)
	if !ok {
		return nil, decodeErr("mqtt payload is %T, want string", payload)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, decodeErr("mqtt payload is not valid JSON: %v", err)
	}

	if err := a.validator.Validate(schema.MQTTMessage, obj); err != nil {
		return nil, &Error{Kind: KindValidation, Err: fmt.Errorf("mqtt message: %w", err)}
	}

	apiKey, ok := obj["apikey"].(string)
	if !ok {
		return nil, decodeErr("apikey is %T, want string", obj["apikey"])
	}
	id, ok := obj["id"].(string)
	if !ok {
		return nil, decodeErr("id is %T, want string", obj["id"])
	}

	if !a.dir.IsKnownAPIKey(apiKey) {
		return nil, unknownCredentialErr("mqtt report for unregistered api key")
	}

	dev, err := a.dir.Resolve(ctx, apiKey, id)
	if err != nil {
		return nil, err
	}

	lat, err := jsonFloat("lat", obj["lat"])
	if err != nil {
		return nil, err
	}
	lon, err := jsonFloat("lon", obj["lon"])
	if err != nil {
		return nil, err
	}

	var attr map[string]any
	if raw, present := obj["attr"]; present && raw != nil {
		attr, ok = raw.(map[string]any)
		if !ok {
			return nil, decodeErr("attr is %T, want object", raw)
		}
	}

	return &models.LocationEvent{
		DeviceID:     dev.DeviceID,
		APIKey:       apiKey,
		Identifier:   &dev.Identifier,
		Alias:        dev.Alias,
		LocTimestamp: jsonString(obj["timestamp"]),
		LocLat:       lat,
		LocLon:       lon,
		LocAttr:      attr,
	}, nil
}

// jsonFloat accepts the numeric shapes a decoded JSON value can take.
func jsonFloat(name string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, decodeErr("%s %q is not a number", name, v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, decodeErr("%s %q is not a number", name, v)
		}
		return f, nil
	default:
		return 0, decodeErr("%s is %T, want number", name, value)
	}
}

func jsonString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/waypost/config.yaml",
	"/etc/waypost/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envMapping maps environment variables to koanf key paths. Only listed
// variables are honored; unknown variables are ignored rather than
// guessed at, so a stray HOST or PORT in the environment cannot silently
// reconfigure the server.
var envMapping = map[string]string{
	"SERVER_HOST":          "server.host",
	"SERVER_PORT":          "server.port",
	"SERVER_TIMEOUT":       "server.timeout",
	"DATABASE_PATH":        "database.path",
	"DATABASE_MAX_MEMORY":  "database.max_memory",
	"DATABASE_THREADS":     "database.threads",
	"MQTT_ENABLED":         "mqtt.enabled",
	"MQTT_BROKER_URL":      "mqtt.broker_url",
	"MQTT_CLIENT_ID":       "mqtt.client_id",
	"MQTT_TOPIC":           "mqtt.topic",
	"MQTT_QOS":             "mqtt.qos",
	"MQTT_USERNAME":        "mqtt.username",
	"MQTT_PASSWORD":        "mqtt.password",
	"JWT_SECRET":           "security.jwt_secret",
	"SESSION_TIMEOUT":      "security.session_timeout",
	"RATE_LIMIT_REQUESTS":  "security.rate_limit_requests",
	"RATE_LIMIT_WINDOW":    "security.rate_limit_window",
	"RATE_LIMIT_DISABLED":  "security.rate_limit_disabled",
	"CORS_ORIGINS":         "security.cors_origins",
	"SIMULATOR_ENABLED":    "simulator.enabled",
	"SIMULATOR_TRACK_DIR":  "simulator.track_dir",
	"SCHEMA_DIR":           "schema.dir",
	"LOG_LEVEL":            "logging.level",
	"LOG_FORMAT":           "logging.format",
	"LOG_CALLER":           "logging.caller",
}

// Load builds the configuration from defaults, the first config file
// found (if any), and environment variables, in increasing priority.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFrom builds the configuration using an explicit config file path.
// An empty path skips the file layer.
func LoadFrom(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(key string) string {
		return envMapping[key]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// findConfigFile returns the first existing config file, preferring the
// CONFIG_PATH override. Returns "" when no file is present.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

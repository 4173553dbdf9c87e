// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package config loads Waypost configuration with koanf v2, layering
// built-in defaults, an optional YAML config file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Waypost server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Security  SecurityConfig  `koanf:"security"`
	Simulator SimulatorConfig `koanf:"simulator"`
	Schema    SchemaConfig    `koanf:"schema"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads controls DuckDB parallelism; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// MQTTConfig holds settings for the inbound MQTT subscriber bridge.
type MQTTConfig struct {
	Enabled   bool   `koanf:"enabled"`
	BrokerURL string `koanf:"broker_url"`
	ClientID  string `koanf:"client_id"`
	Topic     string `koanf:"topic"`
	QoS       byte   `koanf:"qos"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// SecurityConfig holds subscriber-token and HTTP hardening settings.
type SecurityConfig struct {
	// JWTSecret signs subscriber tokens. Minimum 32 characters.
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// SimulatorConfig holds track replay settings.
type SimulatorConfig struct {
	Enabled  bool   `koanf:"enabled"`
	TrackDir string `koanf:"track_dir"`
}

// SchemaConfig holds schema document settings. An empty Dir uses the
// schemas embedded in the binary.
type SchemaConfig struct {
	Dir string `koanf:"dir"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config populated with all default values.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8095,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/waypost.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			BrokerURL: "tcp://127.0.0.1:1883",
			ClientID:  "waypost-server",
			Topic:     "waypost/locations",
			QoS:       1,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Simulator: SimulatorConfig{
			Enabled:  false,
			TrackDir: "tracks",
		},
		Schema: SchemaConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the loaded configuration for values that would fail at
// runtime. It is called by Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			return fmt.Errorf("mqtt.broker_url is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS)
		}
	}
	return nil
}

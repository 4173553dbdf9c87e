// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom(\"\") failed: %v", err)
	}

	if cfg.Server.Port != 8095 {
		t.Errorf("default port = %d, want 8095", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt should be disabled by default")
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("default mqtt qos = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9000\nmqtt:\n  enabled: true\n  topic: custom/topic\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000 from file", cfg.Server.Port)
	}
	if !cfg.MQTT.Enabled {
		t.Error("mqtt.enabled not read from file")
	}
	if cfg.MQTT.Topic != "custom/topic" {
		t.Errorf("topic = %q, want custom/topic", cfg.MQTT.Topic)
	}
	// Unset file keys keep their defaults.
	if cfg.Database.MaxMemory != "1GB" {
		t.Errorf("max_memory = %q, want default 1GB", cfg.Database.MaxMemory)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d, want env override 9001", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want env override debug", cfg.Logging.Level)
	}
}

func TestUnknownEnvIgnored(t *testing.T) {
	t.Setenv("PORT", "1234")
	t.Setenv("HOST", "evil.example")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.Port != 8095 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unmapped env vars leaked into config: %+v", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, true},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, true},
		{"long jwt secret", func(c *Config) {
			c.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
		}, false},
		{"mqtt enabled without topic", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Topic = ""
		}, true},
		{"mqtt bad qos", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.QoS = 3
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

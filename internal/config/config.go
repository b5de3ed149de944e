// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then environment variables, in rising
// precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/anomaly"
	"github.com/argus-sec/argus/internal/audit"
	"github.com/argus-sec/argus/internal/delivery"
	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/session"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/argus/config.yaml",
	"/etc/argus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ARGUS_CONFIG"

// envPrefix scopes which environment variables are read. A double
// underscore separates nesting levels: ARGUS_SERVER__PORT maps to
// server.port.
const envPrefix = "ARGUS_"

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit caps requests per client IP per minute. Zero disables
	// limiting.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// DetectionConfig holds the runtime-togglable detection switch.
type DetectionConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       logging.Config  `koanf:"log"`
	Detection DetectionConfig `koanf:"detection"`
	Session   session.Config  `koanf:"session"`
	Anomaly   anomaly.Config  `koanf:"anomaly"`
	Alert     alert.Config    `koanf:"alert"`
	Delivery  delivery.Config `koanf:"delivery"`
	Audit     audit.Config    `koanf:"audit"`

	// AuditPath is the Badger directory; empty runs in memory.
	AuditPath string `koanf:"audit_path"`

	// SweepInterval is how often idle sessions are reclaimed.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8089,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       600,
		},
		Log:       logging.DefaultConfig(),
		Detection: DetectionConfig{Enabled: true},
		Session:   session.DefaultConfig(),
		Anomaly:   anomaly.DefaultConfig(),
		Alert:     alert.DefaultConfig(),
		Delivery:  delivery.DefaultConfig(),
		Audit:     audit.Config{Retention: 30 * 24 * time.Hour},
		AuditPath: "/data/argus/audit",

		SweepInterval: 5 * time.Minute,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and ARGUS_-prefixed environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks struct-level constraints.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

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
	"/etc/invigil/config.yaml",
	"/etc/invigil/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:              "/data/invigil.duckdb",
			Threads:           0, // 0 = use runtime.NumCPU()
			StartupRetries:    5,
			StartupBackoff:    2 * time.Second,
			StartupBackoffCap: 30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:            "",
			TokenLifetime:        12 * time.Hour,
			AdminUsername:        "",
			AdminPassword:        "",
			AdminPasswordHash:    "",
			CORSOrigins:          []string{"*"},
			GlobalRateLimit:      1000,
			ParticipantRateLimit: 100,
		},
		Ingest: IngestConfig{
			MaxEvents:          500,
			MaxTypingIntervals: 5000,
			MaxMachineIDLen:    200,
		},
		Source: SourceConfig{
			Token:                "",
			APIURL:               "https://api.github.com",
			SyncIntervalMin:      5,
			StartupDelay:         10 * time.Second,
			SimilarityThreshold:  0.8,
			RequestTimeout:       15 * time.Second,
			RequestsPerSecond:    2,
			FingerprintCachePath: "",
		},
		Alerts: AlertsConfig{
			WebhookURL:     "",
			WebhookTimeout: 10 * time.Second,
			SMTPPort:       587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults (struct above)
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches the env override and the default paths.
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

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as strings from env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - SERVER_PORT          -> server.port
//   - DATABASE_PATH        -> database.path
//   - JWT_SECRET           -> security.jwt_secret
//   - SOURCE_TOKEN         -> source.token
//   - SYNC_INTERVAL_MIN    -> source.sync_interval_min
//   - SIMILARITY_THRESHOLD -> source.similarity_threshold
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"server_host":    "server.host",
		"server_port":    "server.port",
		"server_timeout": "server.timeout",

		"database_path":    "database.path",
		"database_threads": "database.threads",

		"jwt_secret":             "security.jwt_secret",
		"token_lifetime":         "security.token_lifetime",
		"admin_username":         "security.admin_username",
		"admin_password":         "security.admin_password",
		"admin_password_hash":    "security.admin_password_hash",
		"cors_origins":           "security.cors_origins",
		"global_rate_limit":      "security.global_rate_limit",
		"participant_rate_limit": "security.participant_rate_limit",

		"source_token":           "source.token",
		"source_api_url":         "source.api_url",
		"sync_interval_min":      "source.sync_interval_min",
		"similarity_threshold":   "source.similarity_threshold",
		"fingerprint_cache_path": "source.fingerprint_cache_path",

		"alert_webhook_url": "alerts.webhook_url",
		"smtp_host":         "alerts.smtp_host",
		"smtp_port":         "alerts.smtp_port",
		"smtp_user":         "alerts.smtp_user",
		"smtp_password":     "alerts.smtp_password",
		"smtp_from":         "alerts.smtp_from",
		"smtp_to":           "alerts.smtp_to",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than guessed at; a stray env
	// var must not silently override nested config.
	return ""
}

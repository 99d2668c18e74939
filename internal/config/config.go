// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package config defines the application configuration and loads it via
// Koanf v2 with layered sources (defaults, optional YAML file, environment
// variables; highest priority wins).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Source   SourceConfig   `koanf:"source"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the DuckDB store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file path. ":memory:" opens an
	// in-memory database (used by tests).
	Path string `koanf:"path"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// StartupRetries is how many connection attempts are made before the
	// process exits with code 1.
	StartupRetries int `koanf:"startup_retries"`

	// StartupBackoff is the initial retry delay, doubled per attempt and
	// capped at StartupBackoffCap.
	StartupBackoff    time.Duration `koanf:"startup_backoff"`
	StartupBackoffCap time.Duration `koanf:"startup_backoff_cap"`
}

// SecurityConfig holds authentication and admission-control settings.
type SecurityConfig struct {
	// JWTSecret signs dashboard bearer tokens. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenLifetime is the bearer token validity window.
	TokenLifetime time.Duration `koanf:"token_lifetime"`

	// AdminUsername and either AdminPassword (plaintext) or
	// AdminPasswordHash (bcrypt) form the dashboard admin credential.
	AdminUsername     string `koanf:"admin_username"`
	AdminPassword     string `koanf:"admin_password"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// CORSOrigins is the list of allowed dashboard origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// GlobalRateLimit is the request cap per minute across all clients.
	GlobalRateLimit int `koanf:"global_rate_limit"`

	// ParticipantRateLimit is the per-machineId request cap per minute.
	ParticipantRateLimit int `koanf:"participant_rate_limit"`
}

// IngestConfig bounds a single agent batch.
type IngestConfig struct {
	MaxEvents          int `koanf:"max_events"`
	MaxTypingIntervals int `koanf:"max_typing_intervals"`
	MaxMachineIDLen    int `koanf:"max_machine_id_len"`
}

// SourceConfig configures the source-history sync scheduler.
type SourceConfig struct {
	// Token authenticates against the source-host API. Empty disables
	// the scheduler entirely.
	Token string `koanf:"token"`

	// APIURL is the source-host REST API base.
	APIURL string `koanf:"api_url"`

	// SyncIntervalMin is the scheduler interval in minutes (1-60).
	SyncIntervalMin int `koanf:"sync_interval_min"`

	// StartupDelay before the first cycle, letting the store come online.
	StartupDelay time.Duration `koanf:"startup_delay"`

	// SimilarityThreshold is the cross-repo match cutoff.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// RequestTimeout bounds a single source-host API call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RequestsPerSecond paces sequential source-host API calls.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// FingerprintCachePath is the badger directory for the digest-keyed
	// fingerprint cache. Empty disables the cache.
	FingerprintCachePath string `koanf:"fingerprint_cache_path"`
}

// Interval returns the scheduler interval as a duration.
func (c *SourceConfig) Interval() time.Duration {
	return time.Duration(c.SyncIntervalMin) * time.Minute
}

// Enabled reports whether the sync scheduler should run.
func (c *SourceConfig) Enabled() bool {
	return c.Token != ""
}

// AlertsConfig configures outbound alert channels.
type AlertsConfig struct {
	WebhookURL     string        `koanf:"webhook_url"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`

	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
	SMTPTo       string `koanf:"smtp_to"`
}

// WebhookEnabled reports whether the webhook channel is configured.
func (c *AlertsConfig) WebhookEnabled() bool { return c.WebhookURL != "" }

// EmailEnabled reports whether the SMTP channel is configured.
func (c *AlertsConfig) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.SMTPTo != ""
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for invalid combinations. It is called
// by Load; call it directly when constructing a Config by hand.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		problems = append(problems, "security.jwt_secret must be at least 32 characters")
	}
	if c.Security.GlobalRateLimit <= 0 {
		problems = append(problems, "security.global_rate_limit must be positive")
	}
	if c.Security.ParticipantRateLimit <= 0 {
		problems = append(problems, "security.participant_rate_limit must be positive")
	}
	if c.Source.SyncIntervalMin < 1 || c.Source.SyncIntervalMin > 60 {
		problems = append(problems, fmt.Sprintf("source.sync_interval_min must be 1-60, got %d", c.Source.SyncIntervalMin))
	}
	if c.Source.SimilarityThreshold < 0 || c.Source.SimilarityThreshold > 1 {
		problems = append(problems, "source.similarity_threshold must be in [0,1]")
	}
	if c.Source.Enabled() && c.Source.APIURL == "" {
		problems = append(problems, "source.api_url is required when source.token is set")
	}
	if c.Ingest.MaxEvents <= 0 || c.Ingest.MaxTypingIntervals <= 0 {
		problems = append(problems, "ingest bounds must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

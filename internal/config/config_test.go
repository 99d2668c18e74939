// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Source.SyncIntervalMin)
	assert.Equal(t, 0.8, cfg.Source.SimilarityThreshold)
	assert.Equal(t, 1000, cfg.Security.GlobalRateLimit)
	assert.Equal(t, 100, cfg.Security.ParticipantRateLimit)
	assert.Equal(t, 500, cfg.Ingest.MaxEvents)
	assert.False(t, cfg.Source.Enabled())
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"JWT_SECRET":           "security.jwt_secret",
		"DATABASE_PATH":        "database.path",
		"SOURCE_TOKEN":         "source.token",
		"SYNC_INTERVAL_MIN":    "source.sync_interval_min",
		"SIMILARITY_THRESHOLD": "source.similarity_threshold",
		"CORS_ORIGINS":         "security.cors_origins",
		"LOG_LEVEL":            "logging.level",
		"PATH":                 "", // unknown variables are ignored
	}
	for in, want := range tests {
		assert.Equal(t, want, envTransformFunc(in), in)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }},
		{"sync interval too high", func(c *Config) { c.Source.SyncIntervalMin = 61 }},
		{"sync interval too low", func(c *Config) { c.Source.SyncIntervalMin = 0 }},
		{"threshold out of range", func(c *Config) { c.Source.SimilarityThreshold = 1.5 }},
		{"source token without api url", func(c *Config) { c.Source.Token = "x"; c.Source.APIURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSourceInterval(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "5m0s", cfg.Source.Interval().String())
}

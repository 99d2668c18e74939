// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/logging"
)

// DB is the DuckDB-backed Store implementation.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// upsertLocks serialises participant writes per machineId, the
	// single-writer pattern that keeps the persisted suspicion score a
	// pure function of the persisted counters.
	upsertLocks sync.Map // machineId -> *sync.Mutex
}

var _ Store = (*DB)(nil)

// New opens (or creates) the DuckDB database and initialises the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?threads=%d", cfg.Path, numThreads)
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open duckdb at %s: %v", ErrUnavailable, cfg.Path, err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.Ping(context.Background()); err != nil {
		closeQuietly(conn)
		return nil, err
	}
	if err := db.createSchema(); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("store opened")
	return db, nil
}

// Ping implements Store.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (db *DB) Close() error {
	return db.conn.Close()
}

// lockFor returns the per-machineId mutex, creating it on first use.
func (db *DB) lockFor(machineID string) *sync.Mutex {
	actual, _ := db.upsertLocks.LoadOrStore(machineID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// schemaContext bounds schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates tables and indexes. All columns are defined in the
// initial CREATE TABLE statements; there are no migrations yet.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			machine_id TEXT PRIMARY KEY,
			external_account TEXT,
			session_id TEXT,
			workspace TEXT,
			started_at TIMESTAMP NOT NULL,
			last_active TIMESTAMP NOT NULL,
			total_events BIGINT NOT NULL DEFAULT 0,
			paste_count BIGINT NOT NULL DEFAULT 0,
			paste_chars_total BIGINT NOT NULL DEFAULT 0,
			typing_anomalies BIGINT NOT NULL DEFAULT 0,
			window_blur_count BIGINT NOT NULL DEFAULT 0,
			window_blur_total_ms BIGINT NOT NULL DEFAULT 0,
			clipboard_changes BIGINT NOT NULL DEFAULT 0,
			files_created BIGINT NOT NULL DEFAULT 0,
			files_deleted BIGINT NOT NULL DEFAULT 0,
			suspicion_score DOUBLE NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			participant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			data TEXT,
			user_id TEXT,
			workspace TEXT,
			suspicion_score DOUBLE NOT NULL DEFAULT 0,
			flagged BOOLEAN NOT NULL DEFAULT false,
			reasons TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS typing_patterns (
			participant_id TEXT PRIMARY KEY,
			intervals TEXT NOT NULL,
			mean_interval DOUBLE NOT NULL DEFAULT 0,
			variance DOUBLE NOT NULL DEFAULT 0,
			std_dev DOUBLE NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0,
			wpm DOUBLE NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS source_analyses (
			participant_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			default_branch TEXT,
			stats TEXT NOT NULL,
			timing TEXT NOT NULL,
			suspicious_commits TEXT NOT NULL,
			burst_commits TEXT NOT NULL,
			idle_bursts TEXT NOT NULL,
			similarity_matches TEXT NOT NULL,
			highest_similarity DOUBLE NOT NULL DEFAULT 0,
			avg_commit_score DOUBLE NOT NULL DEFAULT 0,
			source_suspicion_score DOUBLE NOT NULL DEFAULT 0,
			last_processed_commit_id TEXT,
			last_sync_at TIMESTAMP,
			UNIQUE (owner, repo)
		)`,

		// Timeline queries walk a participant's events newest first.
		`CREATE INDEX IF NOT EXISTS idx_events_participant_ts
			ON events (participant_id, ts DESC)`,

		// Analytics scans flagged events by score.
		`CREATE INDEX IF NOT EXISTS idx_events_flagged_score
			ON events (flagged, suspicion_score DESC)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// closeQuietly closes a resource and explicitly ignores any error.
// Cleanup in error paths is best-effort.
func closeQuietly(c interface{ Close() error }) {
	if c != nil {
		_ = c.Close()
	}
}

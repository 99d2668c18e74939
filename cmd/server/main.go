// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package main is the entry point for the Invigil server.
//
// Invigil is a real-time proctoring engine for programming contests. It
// ingests telemetry from editor agents running in participant sandboxes,
// maintains per-participant behavioural state, periodically analyses each
// participant's remote source-control history, detects cross-participant
// plagiarism with winnowing fingerprints, and pushes live updates and
// alerts to dashboard observers.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml, env)
//  2. Logging: zerolog, JSON for production
//  3. Store: DuckDB, with startup retry (5 attempts, exponential backoff
//     capped at 30 s; exhaustion exits with code 1)
//  4. Live fabric: room-aware websocket hub
//  5. Auth: JWT manager and admin credential (dashboard surface only)
//  6. Sync scheduler: enabled when SOURCE_TOKEN is set
//  7. Supervision: suture tree (messaging layer + api layer)
//
// # Configuration
//
// See internal/config for the full environment surface. The essentials:
//
//	export DATABASE_PATH=/data/invigil.duckdb
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=secure-password
//	export SOURCE_TOKEN=ghp_xxx          # enables the sync scheduler
//	export SYNC_INTERVAL_MIN=5
//	export SIMILARITY_THRESHOLD=0.8
//	./invigil
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains for
// up to 10 s, the scheduler finishes or abandons its cycle, the hub closes
// every observer, and the store is closed last.
//
// Exit codes: 0 on normal shutdown, 1 on unrecoverable startup failure.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invigil/invigil/internal/alerts"
	"github.com/invigil/invigil/internal/api"
	"github.com/invigil/invigil/internal/auth"
	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/fingerprint"
	"github.com/invigil/invigil/internal/ingest"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/scoring"
	"github.com/invigil/invigil/internal/sourcesync"
	"github.com/invigil/invigil/internal/store"
	"github.com/invigil/invigil/internal/supervisor"
	"github.com/invigil/invigil/internal/supervisor/services"
	"github.com/invigil/invigil/internal/websocket"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("configuration invalid")
		return 1
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	db, err := openStoreWithRetry(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("store unreachable, giving up")
		return 1
	}
	defer func() { _ = db.Close() }()

	hub := websocket.NewHub()
	pipeline := ingest.NewPipeline(db, scoring.NewScorer(scoring.DefaultConfig()), hub)

	var jwtManager *auth.JWTManager
	var admin *auth.AdminCredential
	if cfg.Security.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Error().Err(err).Msg("failed to initialise JWT manager")
			return 1
		}
		admin, err = auth.NewAdminCredential(&cfg.Security)
		if err != nil {
			logging.Error().Err(err).Msg("failed to initialise admin credential")
			return 1
		}
	}

	var syncMgr *sourcesync.Manager
	var fpCache *fingerprint.Cache
	if cfg.Source.Enabled() {
		if cfg.Source.FingerprintCachePath != "" {
			fpCache, err = fingerprint.OpenCache(cfg.Source.FingerprintCachePath)
			if err != nil {
				// The cache is an optimisation; run without it.
				logging.Warn().Err(err).Msg("fingerprint cache unavailable, continuing without")
				fpCache = nil
			} else {
				defer func() { _ = fpCache.Close() }()
			}
		}
		client := sourcesync.NewHTTPClient(&cfg.Source)
		syncMgr = sourcesync.NewManager(db, client, &cfg.Source, hub, fpCache)
	} else {
		logging.Info().Msg("SOURCE_TOKEN not set, sync scheduler disabled")
	}

	dispatcher := alerts.NewDispatcher(&cfg.Alerts)

	server := api.NewServer(api.Deps{
		Config:     cfg,
		Store:      db,
		Pipeline:   pipeline,
		Hub:        hub,
		JWT:        jwtManager,
		Admin:      admin,
		SyncMgr:    syncMgr,
		Dispatcher: dispatcher,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewHubService(hub))
	if syncMgr != nil {
		tree.AddMessagingService(syncMgr)
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("dashboard", jwtManager != nil).
		Bool("scheduler", syncMgr != nil).
		Msg("invigil starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited abnormally")
		return 1
	}

	logging.Info().Msg("shutdown complete")
	return 0
}

// openStoreWithRetry opens the store, retrying with exponential backoff
// capped at the configured ceiling. All attempts exhausted is an
// unrecoverable startup failure.
func openStoreWithRetry(cfg *config.DatabaseConfig) (*store.DB, error) {
	backoff := cfg.StartupBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := cfg.StartupBackoffCap
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	attempts := cfg.StartupRetries
	if attempts <= 0 {
		attempts = 5
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := store.New(cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err

		logging.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", backoff).
			Msg("store open failed, retrying")

		if attempt < attempts {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return nil, lastErr
}

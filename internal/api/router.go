// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invigil/invigil/internal/alerts"
	"github.com/invigil/invigil/internal/auth"
	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/ingest"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/ratelimit"
	"github.com/invigil/invigil/internal/sourcesync"
	"github.com/invigil/invigil/internal/store"
	"github.com/invigil/invigil/internal/websocket"
)

// Server holds the handler dependencies.
type Server struct {
	cfg        *config.Config
	store      store.Store
	pipeline   *ingest.Pipeline
	hub        *websocket.Hub
	jwt        *auth.JWTManager
	admin      *auth.AdminCredential
	limiter    *ratelimit.KeyedLimiter
	syncMgr    *sourcesync.Manager
	dispatcher *alerts.Dispatcher
	startedAt  time.Time
}

// Deps bundles the server's collaborators. JWT, Admin, SyncMgr and
// Dispatcher are optional; routes depending on an absent collaborator are
// not mounted (JWT) or answer with an explicit error (sync).
type Deps struct {
	Config     *config.Config
	Store      store.Store
	Pipeline   *ingest.Pipeline
	Hub        *websocket.Hub
	JWT        *auth.JWTManager
	Admin      *auth.AdminCredential
	SyncMgr    *sourcesync.Manager
	Dispatcher *alerts.Dispatcher
}

// NewServer builds the server with its per-participant admission limiter.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:        deps.Config,
		store:      deps.Store,
		pipeline:   deps.Pipeline,
		hub:        deps.Hub,
		jwt:        deps.JWT,
		admin:      deps.Admin,
		limiter:    ratelimit.NewKeyedLimiter(deps.Config.Security.ParticipantRateLimit, time.Minute),
		syncMgr:    deps.SyncMgr,
		dispatcher: deps.Dispatcher,
		startedAt:  time.Now(),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Global admission cap across all clients, fixed 60 s window.
	r.Use(httprate.LimitAll(s.cfg.Security.GlobalRateLimit, time.Minute))

	// Public surface.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/events", s.handleIngest)

	if s.jwt != nil {
		r.Post("/auth/login", s.handleLogin)

		requireAuth := s.jwt.Middleware(func(w http.ResponseWriter, r *http.Request, message string) {
			NewResponseWriter(w, r).Unauthenticated(message)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/verify", s.handleVerify)
			r.Get("/ws", s.handleWebSocket)

			r.Get("/participants", s.handleListParticipants)
			r.Get("/participant/{id}", s.handleGetParticipant)

			r.Get("/analytics/suspicious", s.handleSuspicious)
			r.Get("/analytics/overview", s.handleOverview)

			r.Route("/source", func(r chi.Router) {
				r.Post("/register", s.handleRegisterSource)
				r.Post("/sync/{participantId}", s.handleSyncSource)
				r.Get("/participant/{id}/analysis", s.handleSourceAnalysis)
				r.Get("/participant/{id}/commits", s.handleSourceCommits)
				r.Post("/compare", s.handleCompareSource)
				r.Get("/overview", s.handleSourceOverview)
			})

			r.Post("/alerts", s.handleAlertEgress)
		})
	} else {
		logging.Warn().Msg("JWT secret not configured, dashboard surface disabled")
	}

	return r
}

// requestIDMiddleware attaches a request id to the context and logs the
// request once it completes.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		logging.Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(started)).
			Msg("request handled")
	})
}

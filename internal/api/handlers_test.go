// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigil/invigil/internal/auth"
	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/ingest"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/scoring"
	"github.com/invigil/invigil/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Timeout: 5 * time.Second},
		Security: config.SecurityConfig{
			JWTSecret:            "0123456789abcdef0123456789abcdef",
			TokenLifetime:        12 * time.Hour,
			AdminUsername:        "admin",
			AdminPassword:        "correct-horse-battery",
			CORSOrigins:          []string{"*"},
			GlobalRateLimit:      1000,
			ParticipantRateLimit: 100,
		},
		Ingest: config.IngestConfig{MaxEvents: 500, MaxTypingIntervals: 5000, MaxMachineIDLen: 200},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	pipeline := ingest.NewPipeline(st, scoring.NewScorer(scoring.DefaultConfig()), nil)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	require.NoError(t, err)
	admin, err := auth.NewAdminCredential(&cfg.Security)
	require.NoError(t, err)

	return NewServer(Deps{
		Config:   cfg,
		Store:    st,
		Pipeline: pipeline,
		JWT:      jwtManager,
		Admin:    admin,
	}), st
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingestBody(machineID string, events []models.AgentEvent) models.IngestRequest {
	return models.IngestRequest{
		Events:      events,
		Participant: models.ParticipantIdentity{MachineID: machineID, SessionID: "s"},
	}
}

func TestIngestEndpoint_AcceptsBatch(t *testing.T) {
	s, st := newTestServer(t, testConfig())
	router := s.Router()

	data, _ := json.Marshal(models.PasteData{Length: 600})
	body := ingestBody("m-1", []models.AgentEvent{{
		Kind: models.EventKindPaste, Timestamp: time.Now().UnixMilli(), Data: data,
	}})

	rec := postJSON(t, router, "/api/events", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ParticipantScore float64 `json:"participantScore"`
			BatchSize        int     `json:"batchSize"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data.BatchSize)
	assert.Equal(t, 0.054, resp.Data.ParticipantScore)

	p, err := st.GetParticipant(context.Background(), "m-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Stats.PasteCount)
}

func TestIngestEndpoint_RejectsUnknownKind(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	body := ingestBody("m-1", []models.AgentEvent{{
		Kind: "keylogger", Timestamp: time.Now().UnixMilli(),
	}})

	rec := postJSON(t, router, "/api/events", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
}

func TestIngestEndpoint_RejectsMissingMachineID(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	body := models.IngestRequest{Events: nil}
	rec := postJSON(t, router, "/api/events", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestEndpoint_ParticipantRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ParticipantRateLimit = 3
	s, _ := newTestServer(t, cfg)
	router := s.Router()

	body := ingestBody("m-limited", nil)
	for i := 0; i < 3; i++ {
		rec := postJSON(t, router, "/api/events", body, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := postJSON(t, router, "/api/events", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	// Another participant is unaffected.
	rec = postJSON(t, router, "/api/events", ingestBody("m-other", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboard_RequiresBearerToken(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/participants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestLoginAndAuthenticatedRead(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	rec := postJSON(t, router, "/auth/login", models.LoginRequest{
		Username: "admin", Password: "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)

	req := httptest.NewRequest(http.MethodGet, "/participants", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.Token)
	authed := httptest.NewRecorder()
	router.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	rec := postJSON(t, router, "/auth/login", models.LoginRequest{
		Username: "admin", Password: "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Status    string `json:"status"`
			UptimeSec int64  `json:"uptimeSec"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data.Status)
	assert.NotEmpty(t, resp.Data.Timestamp)
}

func TestParticipantDetail(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestServer(t, cfg)
	router := s.Router()

	data, _ := json.Marshal(models.PasteData{Length: 600})
	body := ingestBody("m-detail", []models.AgentEvent{{
		Kind: models.EventKindPaste, Timestamp: time.Now().UnixMilli(), Data: data,
	}})
	rec := postJSON(t, router, "/api/events", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token := loginToken(t, router)
	detail := httptest.NewRequest(http.MethodGet, "/participant/m-detail?flaggedOnly=true", nil)
	detail.Header.Set("Authorization", "Bearer "+token)
	out := httptest.NewRecorder()
	router.ServeHTTP(out, detail)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())

	var resp struct {
		Data struct {
			EventCount int64 `json:"eventCount"`
			Events     []struct {
				Flagged bool `json:"flagged"`
			} `json:"events"`
			SuspicionBreakdown []models.BreakdownRow `json:"suspicionBreakdown"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Data.EventCount)
	require.Len(t, resp.Data.Events, 1)
	assert.True(t, resp.Data.Events[0].Flagged)
	assert.NotEmpty(t, resp.Data.SuspicionBreakdown)
}

func loginToken(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := postJSON(t, router, "/auth/login", models.LoginRequest{
		Username: "admin", Password: "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.Token
}

func TestParticipantDetail_NotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	router := s.Router()

	token := loginToken(t, router)
	req := httptest.NewRequest(http.MethodGet, "/participant/ghost", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestIngestEndpoint_TooManyEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.MaxEvents = 2
	s, _ := newTestServer(t, cfg)
	router := s.Router()

	var events []models.AgentEvent
	for i := 0; i < 3; i++ {
		events = append(events, models.AgentEvent{
			Kind: models.EventKindTyping, Timestamp: time.Now().UnixMilli() + int64(i),
		})
	}
	rec := postJSON(t, router, "/api/events", ingestBody("m-big", events), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("at most %d", cfg.Ingest.MaxEvents))
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/invigil/invigil/internal/auth"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/validation"
)

// maxBodyBytes bounds any request body. Batches of 500 events with 5000
// typing samples stay well under this.
const maxBodyBytes = 5 << 20

// decodeJSON reads and decodes a bounded request body. Unknown fields are
// stripped by the decoder.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dest)
}

// handleHealth answers GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}

	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":    status,
		"uptimeSec": int64(time.Since(s.startedAt).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLogin answers POST /auth/login: exchanges the admin credential for
// a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.ValidationError("malformed request body", nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	if s.admin == nil || !s.admin.Validate(req.Username, req.Password) {
		rw.Unauthenticated("invalid credentials")
		return
	}

	token, err := s.jwt.GenerateToken(uuid.New().String(), req.Username, "admin")
	if err != nil {
		rw.InternalError("failed to issue token")
		return
	}

	rw.Success(map[string]interface{}{
		"token":    token,
		"username": req.Username,
		"role":     "admin",
	})
}

// handleVerify answers GET /auth/verify for an authenticated observer.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		NewResponseWriter(w, r).Unauthenticated("no claims")
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"id":       claims.ID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

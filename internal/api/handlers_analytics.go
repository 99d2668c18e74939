// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"net/http"
)

// handleSuspicious answers GET /analytics/suspicious: participants with a
// positive suspicion score, descending, capped at 50.
func (s *Server) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := intParam(r, "limit", 50)
	if limit < 1 || limit > 50 {
		limit = 50
	}

	out, err := s.store.SuspiciousParticipants(r.Context(), limit)
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"participants": out,
		"limit":        limit,
	})
}

// handleOverview answers GET /analytics/overview.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := s.store.Overview(r.Context())
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(stats)
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/sourcesync"
	"github.com/invigil/invigil/internal/store"
	"github.com/invigil/invigil/internal/validation"
)

// sourceUnavailable reports whether source monitoring is configured at all.
func (s *Server) sourceUnavailable(rw *ResponseWriter) bool {
	if s.syncMgr == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternal, "source monitoring is not configured")
		return true
	}
	return false
}

// writeRemoteError maps source-host failures onto the error taxonomy.
func writeRemoteError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, sourcesync.ErrRepoNotFound):
		rw.NotFound("repository not found or not accessible")
	case errors.Is(err, sourcesync.ErrRemoteTimeout):
		rw.RemoteTimeout("source host timed out")
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("participant has no registered repository")
	default:
		rw.Error(http.StatusBadGateway, ErrCodeInternal, "source host unavailable")
	}
}

// handleRegisterSource answers POST /source/register: verifies the
// repository is reachable, then upserts its analysis record.
func (s *Server) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.sourceUnavailable(rw) {
		return
	}

	var req models.RegisterSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.ValidationError("malformed request body", nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	info, err := s.syncMgr.VerifyRepository(r.Context(), req.Owner, req.Repo)
	if err != nil {
		writeRemoteError(rw, err)
		return
	}

	sa, err := s.store.GetOrCreateSourceAnalysis(r.Context(), req.ParticipantID, req.Owner, req.Repo)
	if err != nil {
		rw.StoreError(err)
		return
	}
	if sa.DefaultBranch != info.DefaultBranch {
		sa.DefaultBranch = info.DefaultBranch
		if err := s.store.PersistSourceAnalysis(r.Context(), sa); err != nil {
			rw.StoreError(err)
			return
		}
	}

	rw.Success(sa.Summary())
}

// handleSyncSource answers POST /source/sync/{participantId}: one
// synchronous monitorRepository run.
func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.sourceUnavailable(rw) {
		return
	}
	participantID := chi.URLParam(r, "participantId")

	sa, err := s.store.GetSourceAnalysis(r.Context(), participantID)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("participant has no registered repository")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	updated, err := s.syncMgr.MonitorRepository(r.Context(), sa.Owner, sa.Repo, participantID)
	if err != nil {
		writeRemoteError(rw, err)
		return
	}

	rw.Success(updated.Summary())
}

// handleSourceAnalysis answers GET /source/participant/{id}/analysis.
func (s *Server) handleSourceAnalysis(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sa, err := s.store.GetSourceAnalysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("participant has no registered repository")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(sa)
}

// handleSourceCommits answers GET /source/participant/{id}/commits with
// the record's commit-level findings.
func (s *Server) handleSourceCommits(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sa, err := s.store.GetSourceAnalysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("participant has no registered repository")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"suspiciousCommits": sa.SuspiciousCommits,
		"burstCommits":      sa.BurstCommits,
		"idleBursts":        sa.IdleBursts,
		"stats":             sa.Stats,
		"timing":            sa.Timing,
	})
}

// handleCompareSource answers POST /source/compare: on-demand comparison
// of two registered repositories.
func (s *Server) handleCompareSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.sourceUnavailable(rw) {
		return
	}

	var req models.CompareSourcesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.ValidationError("malformed request body", nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	matches, err := s.syncMgr.CompareParticipants(r.Context(), req.ParticipantID1, req.ParticipantID2, req.Threshold)
	if err != nil {
		writeRemoteError(rw, err)
		return
	}

	rw.Success(map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

// handleSourceOverview answers GET /source/overview: top records by
// source suspicion, capped at 50.
func (s *Server) handleSourceOverview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	analyses, err := s.store.ListSourceAnalyses(r.Context())
	if err != nil {
		rw.StoreError(err)
		return
	}

	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].SourceSuspicionScore > analyses[j].SourceSuspicionScore
	})
	if len(analyses) > 50 {
		analyses = analyses[:50]
	}

	summaries := make([]models.SourceAnalysisSummary, 0, len(analyses))
	for i := range analyses {
		summaries = append(summaries, analyses[i].Summary())
	}

	rw.Success(map[string]interface{}{
		"records": summaries,
		"count":   len(summaries),
	})
}

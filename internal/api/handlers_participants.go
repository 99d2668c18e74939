// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/store"
)

// intParam reads an integer query parameter with a default.
func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// handleListParticipants answers GET /participants.
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := store.ParticipantQuery{
		Sort:   r.URL.Query().Get("sort"),
		Order:  r.URL.Query().Get("order"),
		Limit:  intParam(r, "limit", 50),
		Offset: intParam(r, "offset", 0),
	}
	if q.Limit < 1 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	participants, total, err := s.store.ListParticipants(r.Context(), q)
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"participants": participants,
		"total":        total,
		"limit":        q.Limit,
		"offset":       q.Offset,
	})
}

// handleGetParticipant answers GET /participant/{id} with the participant,
// a filtered page of its events, its typing pattern and the suspicion
// breakdown.
func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	participant, err := s.store.GetParticipant(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("unknown participant")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	q := store.EventQuery{
		Kind:        models.EventKind(r.URL.Query().Get("eventKind")),
		FlaggedOnly: r.URL.Query().Get("flaggedOnly") == "true",
		Limit:       intParam(r, "eventsLimit", 100),
		Offset:      intParam(r, "eventsOffset", 0),
	}
	if q.Limit < 1 || q.Limit > 1000 {
		q.Limit = 100
	}

	events, eventCount, err := s.store.ListEvents(r.Context(), id, q)
	if err != nil {
		rw.StoreError(err)
		return
	}

	breakdown, err := s.store.SuspicionBreakdown(r.Context(), id)
	if err != nil {
		rw.StoreError(err)
		return
	}

	var typingPattern *models.TypingPattern
	tp, err := s.store.GetTypingPattern(r.Context(), id)
	switch {
	case err == nil:
		typingPattern = tp
	case errors.Is(err, store.ErrNotFound):
		// No typing submitted yet; the field stays null.
	default:
		rw.StoreError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"participant":        participant,
		"events":             events,
		"eventCount":         eventCount,
		"typingPattern":      typingPattern,
		"suspicionBreakdown": breakdown,
	})
}

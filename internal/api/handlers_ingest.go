// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"fmt"
	"net/http"

	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/validation"
)

// maxEventDataBytes bounds one event's opaque data object.
const maxEventDataBytes = 16 << 10

// handleIngest answers POST /api/events. Admission control runs in order:
// decode, per-participant rate limit, schema validation. Rejections happen
// before any store I/O; only an admitted batch reaches the pipeline.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		metrics.IngestRejections.WithLabelValues("validation").Inc()
		rw.ValidationError("malformed request body", nil)
		return
	}

	// Per-participant limit keys on the payload's machineId, falling
	// back to the source IP when absent.
	key := req.Participant.MachineID
	if key == "" {
		key = r.RemoteAddr
	}
	if !s.limiter.Allow(key) {
		metrics.IngestRejections.WithLabelValues("rate_limited").Inc()
		rw.RateLimited("participant rate limit exceeded")
		return
	}

	if details := s.validateIngest(&req); details != nil {
		metrics.IngestRejections.WithLabelValues("validation").Inc()
		rw.ValidationError("invalid ingest payload", details)
		return
	}

	resp, err := s.pipeline.Process(r.Context(), &req)
	if err != nil {
		metrics.IngestBatches.WithLabelValues("rejected").Inc()
		rw.StoreError(err)
		return
	}

	rw.Success(resp)
}

// validateIngest applies struct tags plus the checks the tag language
// cannot express: event kind enum and per-event data bounds. Returns
// field-level details or nil.
func (s *Server) validateIngest(req *models.IngestRequest) interface{} {
	var details []validation.FieldError

	if verr := validation.ValidateStruct(req); verr != nil {
		details = append(details, verr.Fields()...)
	}

	if len(req.Events) > s.cfg.Ingest.MaxEvents {
		details = append(details, validation.FieldError{
			Field:   "events",
			Tag:     "max",
			Message: fmt.Sprintf("events must contain at most %d entries", s.cfg.Ingest.MaxEvents),
		})
	}
	if len(req.TypingPattern) > s.cfg.Ingest.MaxTypingIntervals {
		details = append(details, validation.FieldError{
			Field:   "typingPattern",
			Tag:     "max",
			Message: fmt.Sprintf("typingPattern must contain at most %d entries", s.cfg.Ingest.MaxTypingIntervals),
		})
	}
	if len(req.Participant.MachineID) > s.cfg.Ingest.MaxMachineIDLen {
		details = append(details, validation.FieldError{
			Field:   "participant.machineId",
			Tag:     "max",
			Message: fmt.Sprintf("machineId must be at most %d characters", s.cfg.Ingest.MaxMachineIDLen),
		})
	}

	for i, ev := range req.Events {
		if !models.ValidEventKind(ev.Kind) {
			details = append(details, validation.FieldError{
				Field:   fmt.Sprintf("events[%d].kind", i),
				Tag:     "oneof",
				Value:   string(ev.Kind),
				Message: fmt.Sprintf("unknown event kind %q", ev.Kind),
			})
		}
		if len(ev.Data) > maxEventDataBytes {
			details = append(details, validation.FieldError{
				Field:   fmt.Sprintf("events[%d].data", i),
				Tag:     "max",
				Message: fmt.Sprintf("data must be at most %d bytes", maxEventDataBytes),
			})
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

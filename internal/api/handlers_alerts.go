// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/invigil/invigil/internal/alerts"
	"github.com/invigil/invigil/internal/models"
)

// alertEgressRequest is the POST /alerts payload.
type alertEgressRequest struct {
	MachineID           string   `json:"machineId" validate:"required,max=200"`
	ExternalAccountName string   `json:"externalAccountName,omitempty"`
	Level               string   `json:"level" validate:"required,oneof=warning critical"`
	Reasons             []string `json:"reasons"`
	Score               float64  `json:"score" validate:"gte=0,lte=1"`
}

// handleAlertEgress answers POST /alerts: echoes the alert to the
// dashboard room and attempts delivery on every configured outbound
// channel, reporting per-channel results.
func (s *Server) handleAlertEgress(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req alertEgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.ValidationError("malformed request body", nil)
		return
	}
	if req.MachineID == "" || (req.Level != string(models.AlertLevelWarning) && req.Level != string(models.AlertLevelCritical)) {
		rw.ValidationError("machineId and a level of warning or critical are required", nil)
		return
	}

	alert := &models.Alert{
		ID:                  uuid.New().String(),
		MachineID:           req.MachineID,
		ExternalAccountName: req.ExternalAccountName,
		Level:               models.AlertLevel(req.Level),
		Reasons:             req.Reasons,
		Score:               req.Score,
		Timestamp:           time.Now().UTC(),
	}

	if s.hub != nil {
		s.hub.BroadcastAlert(alert)
	}

	var results []alerts.ChannelResult
	if s.dispatcher != nil {
		results = s.dispatcher.Dispatch(r.Context(), alert)
	}

	rw.Success(map[string]interface{}{
		"alert":    alert,
		"channels": results,
	})
}

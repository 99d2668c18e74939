// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

import (
	"github.com/goccy/go-json"
)

// AgentEvent is one telemetry event as submitted by the editor agent.
// Timestamp is milliseconds since epoch; Data is an opaque bounded object
// destructured by the scorer through kind-specific accessors.
type AgentEvent struct {
	Kind      EventKind       `json:"kind" validate:"required"`
	Timestamp int64           `json:"timestamp" validate:"required,gt=0"`
	Data      json.RawMessage `json:"data,omitempty"`
	UserID    string          `json:"userId,omitempty" validate:"max=200"`
	Workspace string          `json:"workspace,omitempty" validate:"max=500"`
}

// TypingSample is one inter-keystroke interval sample.
type TypingSample struct {
	Timestamp int64   `json:"timestamp" validate:"required,gt=0"`
	Interval  float64 `json:"interval" validate:"gte=0"`
}

// ParticipantIdentity identifies the submitting participant.
type ParticipantIdentity struct {
	MachineID string `json:"machineId" validate:"required,max=200"`
	Workspace string `json:"workspace,omitempty" validate:"max=500"`
	SessionID string `json:"sessionId,omitempty" validate:"max=200"`
}

// IngestRequest is the batch submission accepted by POST /api/events.
type IngestRequest struct {
	Events        []AgentEvent        `json:"events" validate:"max=500,dive"`
	TypingPattern []TypingSample      `json:"typingPattern,omitempty" validate:"max=5000,dive"`
	Participant   ParticipantIdentity `json:"participant" validate:"required"`
}

// IngestResponse is the body returned to the agent.
type IngestResponse struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	ParticipantScore float64 `json:"participantScore"`
	BatchSize        int     `json:"batchSize"`
}

// RegisterSourceRequest registers a repository for source monitoring.
type RegisterSourceRequest struct {
	ParticipantID string `json:"participantId" validate:"required,max=200"`
	Owner         string `json:"owner" validate:"required,max=200"`
	Repo          string `json:"repo" validate:"required,max=200"`
}

// CompareSourcesRequest triggers an on-demand cross-comparison of two
// registered repositories.
type CompareSourcesRequest struct {
	ParticipantID1 string  `json:"participantId1" validate:"required,max=200"`
	ParticipantID2 string  `json:"participantId2" validate:"required,max=200"`
	Threshold      float64 `json:"threshold,omitempty" validate:"gte=0,lte=1"`
}

// LoginRequest is the dashboard admin credential exchange.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1"`
	Password string `json:"password" validate:"required,min=1"`
}

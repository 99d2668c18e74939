// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package models defines the domain documents shared across the engine:
// participants, events, typing patterns, source-analysis records, and
// alerts, plus the agent wire shapes accepted by the ingest endpoint.
package models

import (
	"time"
)

// Participant is the per-machine behavioural state document. It is created
// on first ingest for an unknown machine ID and mutated only by the ingest
// pipeline; it is never destroyed during a contest.
//
// Invariant: SuspicionScore is a pure function of Stats, recomputed on
// every successful ingest and never edited externally.
type Participant struct {
	// MachineID is the opaque stable identifier supplied by the agent.
	MachineID string `json:"machineId"`

	// ExternalAccountName is the optional external identity (e.g. the
	// source-host account) linked to this participant.
	ExternalAccountName string `json:"externalAccountName,omitempty"`

	SessionID string `json:"sessionId"`
	Workspace string `json:"workspace,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	LastActive time.Time `json:"lastActive"`

	TotalEvents int64 `json:"totalEvents"`

	Stats ParticipantStats `json:"stats"`

	// SuspicionScore is in [0,1], derived from Stats.
	SuspicionScore float64 `json:"suspicionScore"`
}

// ParticipantStats holds the aggregate behavioural counters a participant
// accumulates across all ingested batches.
type ParticipantStats struct {
	PasteCount        int64 `json:"pasteCount"`
	PasteCharsTotal   int64 `json:"pasteCharsTotal"`
	TypingAnomalies   int64 `json:"typingAnomalies"`
	WindowBlurCount   int64 `json:"windowBlurCount"`
	WindowBlurTotalMs int64 `json:"windowBlurTotalMs"`
	ClipboardChanges  int64 `json:"clipboardChanges"`
	FilesCreated      int64 `json:"filesCreated"`
	FilesDeleted      int64 `json:"filesDeleted"`
}

// ParticipantSummary is the fan-out shape pushed to dashboard observers on
// every participant update.
type ParticipantSummary struct {
	MachineID           string           `json:"machineId"`
	ExternalAccountName string           `json:"externalAccountName,omitempty"`
	SuspicionScore      float64          `json:"suspicionScore"`
	LastActive          time.Time        `json:"lastActive"`
	TotalEvents         int64            `json:"totalEvents"`
	Stats               ParticipantStats `json:"stats"`
}

// Summary returns the fan-out shape for this participant.
func (p *Participant) Summary() ParticipantSummary {
	return ParticipantSummary{
		MachineID:           p.MachineID,
		ExternalAccountName: p.ExternalAccountName,
		SuspicionScore:      p.SuspicionScore,
		LastActive:          p.LastActive,
		TotalEvents:         p.TotalEvents,
		Stats:               p.Stats,
	}
}

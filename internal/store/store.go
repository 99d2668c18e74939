// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package store is the persistence gateway. The Store interface is the
// narrow contract the engine depends on, so the pipeline and scheduler are
// testable against the in-memory double; the production implementation is
// DuckDB-backed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/invigil/invigil/internal/models"
)

// Sentinel errors surfaced by Store implementations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// ParticipantQuery selects and pages the participant listing.
type ParticipantQuery struct {
	Sort   string // suspicionScore, lastActive, totalEvents
	Order  string // asc, desc
	Limit  int
	Offset int
}

// EventQuery filters and pages a participant's event timeline.
type EventQuery struct {
	Kind        models.EventKind // empty = all kinds
	FlaggedOnly bool
	Limit       int
	Offset      int
}

// Store is the persistence contract for the detection engine.
//
// AppendEvents is idempotent per batch: the pipeline never retries a
// partially applied batch, and persistence failures of individual rows do
// not abort the batch.
type Store interface {
	// UpsertParticipant creates the participant on first contact and
	// refreshes session, workspace and lastActive on every call.
	UpsertParticipant(ctx context.Context, machineID, sessionID, workspace string) (*models.Participant, error)

	// GetParticipant returns ErrNotFound for unknown machine IDs.
	GetParticipant(ctx context.Context, machineID string) (*models.Participant, error)

	// SaveParticipant persists the full participant document.
	SaveParticipant(ctx context.Context, p *models.Participant) error

	// ListParticipants returns a page plus the total count.
	ListParticipants(ctx context.Context, q ParticipantQuery) ([]models.Participant, int64, error)

	// AppendEvents bulk-appends with unordered semantics; individual row
	// failures are logged by the implementation, not returned.
	AppendEvents(ctx context.Context, participantID string, events []models.Event) error

	// ListEvents returns a page of the participant's timeline, newest
	// first, plus the total count matching the filter.
	ListEvents(ctx context.Context, participantID string, q EventQuery) ([]models.Event, int64, error)

	// CountFlaggedEvents counts the participant's flagged events.
	CountFlaggedEvents(ctx context.Context, participantID string) (int64, error)

	// SuspicionBreakdown groups the participant's events by
	// (kind, flagged) with count, average and maximum score.
	SuspicionBreakdown(ctx context.Context, participantID string) ([]models.BreakdownRow, error)

	// UpdateTypingPattern appends intervals, applies the 10000/8000
	// truncation rule and recomputes statistics atomically.
	UpdateTypingPattern(ctx context.Context, participantID string, intervals []float64) (*models.TypingPattern, error)

	// GetTypingPattern returns ErrNotFound when no pattern exists yet.
	GetTypingPattern(ctx context.Context, participantID string) (*models.TypingPattern, error)

	// RecentClipboardCount counts clipboard events since the given time.
	RecentClipboardCount(ctx context.Context, participantID string, since time.Time) (int, error)

	// HasAnyTypingEvent reports whether any typing or file_change event
	// was ever recorded for the participant.
	HasAnyTypingEvent(ctx context.Context, participantID string) (bool, error)

	// GetOrCreateSourceAnalysis upserts the analysis record for a
	// registered repository.
	GetOrCreateSourceAnalysis(ctx context.Context, participantID, owner, repo string) (*models.SourceAnalysis, error)

	// GetSourceAnalysis returns ErrNotFound for unregistered participants.
	GetSourceAnalysis(ctx context.Context, participantID string) (*models.SourceAnalysis, error)

	// PersistSourceAnalysis truncates the record's bounded lists and
	// writes it atomically.
	PersistSourceAnalysis(ctx context.Context, sa *models.SourceAnalysis) error

	// ListSourceAnalyses enumerates all registered records.
	ListSourceAnalyses(ctx context.Context) ([]models.SourceAnalysis, error)

	// SuspiciousParticipants lists participants with suspicion > 0,
	// descending, enriched with their flagged event counts.
	SuspiciousParticipants(ctx context.Context, limit int) ([]models.SuspiciousParticipant, error)

	// Overview aggregates the dashboard counters.
	Overview(ctx context.Context) (*models.OverviewStats, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

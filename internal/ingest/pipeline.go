// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package ingest is the event ingest pipeline: for each admitted batch it
// upserts the participant, scores every event, funnels counter updates,
// persists events and typing intervals, recomputes the participant score,
// evaluates alerts and fans out live updates.
//
// The pipeline favours forward progress: individual event rows may fail to
// persist (logged, skipped) and counter updates are never rolled back.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/scoring"
	"github.com/invigil/invigil/internal/store"
)

// Broadcaster is the live-fabric surface the pipeline needs. Implemented
// by *websocket.Hub.
type Broadcaster interface {
	BroadcastParticipantUpdated(models.ParticipantSummary)
	BroadcastAlert(*models.Alert)
}

// Pipeline processes admitted agent batches.
type Pipeline struct {
	store       store.Store
	scorer      *scoring.Scorer
	broadcaster Broadcaster
	now         func() time.Time
}

// NewPipeline wires the pipeline. broadcaster may be nil in tests.
func NewPipeline(st store.Store, scorer *scoring.Scorer, broadcaster Broadcaster) *Pipeline {
	return &Pipeline{
		store:       st,
		scorer:      scorer,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Process runs one admitted batch through the pipeline and returns the new
// participant score. Admission control has already accepted the request;
// any error here is a store failure and surfaces as a server error, the
// agent retries.
func (p *Pipeline) Process(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	started := p.now()
	machineID := req.Participant.MachineID

	participant, err := p.store.UpsertParticipant(ctx, machineID, req.Participant.SessionID, req.Participant.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}

	recent, err := p.recentContext(ctx, machineID)
	if err != nil {
		return nil, err
	}

	intervals := make([]float64, len(req.TypingPattern))
	for i, s := range req.TypingPattern {
		intervals[i] = s.Interval
	}
	typingStats := models.ComputeTypingStats(intervals)

	// Score events and apply counter mutations in submission order.
	events := make([]models.Event, 0, len(req.Events))
	for _, agentEvent := range req.Events {
		score, reasons := p.scorer.ScoreEvent(agentEvent, typingStats, recent)
		flagged := score >= models.FlagThreshold

		events = append(events, models.Event{
			ID:             uuid.New().String(),
			ParticipantID:  machineID,
			Kind:           agentEvent.Kind,
			Timestamp:      time.UnixMilli(agentEvent.Timestamp).UTC(),
			Data:           agentEvent.Data,
			UserID:         agentEvent.UserID,
			Workspace:      agentEvent.Workspace,
			SuspicionScore: score,
			Flagged:        flagged,
			Reasons:        reasons,
		})

		applyCounters(&participant.Stats, agentEvent)
		metrics.IngestEvents.WithLabelValues(string(agentEvent.Kind), strconv.FormatBool(flagged)).Inc()
	}

	if len(events) > 0 {
		if err := p.store.AppendEvents(ctx, machineID, events); err != nil {
			return nil, fmt.Errorf("failed to append events: %w", err)
		}
	}

	if len(intervals) > 0 {
		if _, err := p.store.UpdateTypingPattern(ctx, machineID, intervals); err != nil {
			return nil, fmt.Errorf("failed to update typing pattern: %w", err)
		}
	}

	participant.SuspicionScore = scoring.ParticipantScore(participant.Stats)
	participant.TotalEvents += int64(len(req.Events))
	participant.LastActive = p.now()
	if err := p.store.SaveParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to persist participant: %w", err)
	}

	p.emitAlert(participant)

	if p.broadcaster != nil {
		p.broadcaster.BroadcastParticipantUpdated(participant.Summary())
	}

	metrics.IngestBatches.WithLabelValues("accepted").Inc()
	metrics.IngestDuration.Observe(p.now().Sub(started).Seconds())

	logging.Ctx(ctx).Debug().
		Str("participant", machineID).
		Int("events", len(req.Events)).
		Float64("score", participant.SuspicionScore).
		Msg("batch processed")

	return &models.IngestResponse{
		Success:          true,
		Message:          fmt.Sprintf("processed %d events", len(req.Events)),
		ParticipantScore: participant.SuspicionScore,
		BatchSize:        len(req.Events),
	}, nil
}

// recentContext builds the scorer's per-participant derived state: one
// read each for clipboard-60s and has-typing.
func (p *Pipeline) recentContext(ctx context.Context, machineID string) (models.RecentContext, error) {
	since := p.now().Add(-60 * time.Second)

	clipboard, err := p.store.RecentClipboardCount(ctx, machineID, since)
	if err != nil {
		return models.RecentContext{}, fmt.Errorf("failed to read clipboard context: %w", err)
	}
	typed, err := p.store.HasAnyTypingEvent(ctx, machineID)
	if err != nil {
		return models.RecentContext{}, fmt.Errorf("failed to read typing context: %w", err)
	}

	return models.RecentContext{
		ClipboardChanges60s: clipboard,
		HadTypingBefore:     typed,
	}, nil
}

// applyCounters funnels one event's counter mutations. Pure counter
// arithmetic; scoring policy lives in the scoring package.
func applyCounters(stats *models.ParticipantStats, ev models.AgentEvent) {
	switch ev.Kind {
	case models.EventKindPaste:
		data := models.DecodePasteData(ev.Data)
		stats.PasteCount++
		stats.PasteCharsTotal += int64(data.Length)

	case models.EventKindTyping:
		data := models.DecodeTypingData(ev.Data)
		if data.Anomaly != "" {
			stats.TypingAnomalies++
		}

	case models.EventKindWindowBlur:
		data := models.DecodeWindowBlurData(ev.Data)
		if !data.Focused {
			stats.WindowBlurCount++
			stats.WindowBlurTotalMs += data.UnfocusedDurationMs
		}

	case models.EventKindClipboard:
		stats.ClipboardChanges++

	case models.EventKindFileOperation:
		data := models.DecodeFileOperationData(ev.Data)
		switch data.Operation {
		case "create":
			stats.FilesCreated++
		case "delete":
			stats.FilesDeleted++
		}
	}
}

// emitAlert evaluates the updated participant and fans out to the
// dashboard room when a condition triggered.
func (p *Pipeline) emitAlert(participant *models.Participant) {
	level, reasons := scoring.EvaluateAlert(participant)
	if level == models.AlertLevelNone {
		return
	}

	alert := &models.Alert{
		ID:                  uuid.New().String(),
		MachineID:           participant.MachineID,
		ExternalAccountName: participant.ExternalAccountName,
		Level:               level,
		Reasons:             reasons,
		Score:               participant.SuspicionScore,
		Timestamp:           p.now(),
	}

	metrics.AlertsEmitted.WithLabelValues(string(level)).Inc()
	logging.Info().
		Str("participant", participant.MachineID).
		Str("level", string(level)).
		Float64("score", participant.SuspicionScore).
		Msg("alert triggered")

	if p.broadcaster != nil {
		p.broadcaster.BroadcastAlert(alert)
	}
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package scoring

import (
	"fmt"
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/invigil/invigil/internal/models"
)

func pasteEvent(length int) models.AgentEvent {
	data, _ := json.Marshal(models.PasteData{Length: length})
	return models.AgentEvent{Kind: models.EventKindPaste, Timestamp: 1, Data: data}
}

func TestScoreEvent_PasteBoundaries(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		length   int
		expected float64
		reason   string
	}{
		{100, 0, ""},
		{101, 0.6, ReasonMediumPaste},
		{500, 0.6, ReasonMediumPaste},
		{501, 0.9, ReasonLargePaste},
		{600, 0.9, ReasonLargePaste},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("len=%d", tt.length), func(t *testing.T) {
			score, reasons := s.ScoreEvent(pasteEvent(tt.length), models.TypingStats{}, models.RecentContext{})
			assert.Equal(t, tt.expected, score)
			if tt.reason != "" {
				assert.Contains(t, reasons, tt.reason)
			} else {
				assert.Empty(t, reasons)
			}
		})
	}
}

func TestScoreEvent_FastTyping(t *testing.T) {
	s := NewScorer(DefaultConfig())

	data, _ := json.Marshal(models.TypingData{Anomaly: "fast_typing", Interval: 20})
	ev := models.AgentEvent{Kind: models.EventKindTyping, Timestamp: 1, Data: data}

	score, reasons := s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{})
	assert.Equal(t, 0.4, score)
	assert.Contains(t, reasons, ReasonFastTyping)

	// Interval at the limit does not trigger.
	data, _ = json.Marshal(models.TypingData{Anomaly: "fast_typing", Interval: 30})
	ev.Data = data
	score, _ = s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{})
	assert.Equal(t, 0.0, score)
}

func TestScoreEvent_AggregateTypingStats(t *testing.T) {
	s := NewScorer(DefaultConfig())
	ev := models.AgentEvent{Kind: models.EventKindTyping, Timestamp: 1}

	score, reasons := s.ScoreEvent(ev, models.TypingStats{AvgInterval: 25}, models.RecentContext{})
	assert.Equal(t, 0.4, score)
	assert.Contains(t, reasons, ReasonAvgTypingTooFast)

	score, reasons = s.ScoreEvent(ev, models.TypingStats{AvgInterval: 150, Variance: 16000}, models.RecentContext{})
	assert.Equal(t, 0.3, score)
	assert.Contains(t, reasons, ReasonHighVariance)

	// Both aggregate contributions stack.
	score, _ = s.ScoreEvent(ev, models.TypingStats{AvgInterval: 25, Variance: 16000}, models.RecentContext{})
	assert.Equal(t, 0.7, score)
}

func TestScoreEvent_LongBlur(t *testing.T) {
	s := NewScorer(DefaultConfig())

	data, _ := json.Marshal(models.WindowBlurData{Focused: false, UnfocusedDurationMs: 150000})
	ev := models.AgentEvent{Kind: models.EventKindWindowBlur, Timestamp: 1, Data: data}

	score, reasons := s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{})
	assert.Equal(t, 0.2, score)
	assert.Contains(t, reasons, ReasonLongBlur)

	// A focused blur event never scores.
	data, _ = json.Marshal(models.WindowBlurData{Focused: true, UnfocusedDurationMs: 150000})
	ev.Data = data
	score, _ = s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{})
	assert.Equal(t, 0.0, score)
}

func TestScoreEvent_ClipboardBurst(t *testing.T) {
	s := NewScorer(DefaultConfig())
	ev := models.AgentEvent{Kind: models.EventKindClipboard, Timestamp: 1}

	score, _ := s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{ClipboardChanges60s: 5})
	assert.Equal(t, 0.0, score)

	score, reasons := s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{ClipboardChanges60s: 6})
	assert.Equal(t, 0.3, score)
	assert.Contains(t, reasons, ReasonClipboardBurst)
}

func TestScoreEvent_FileCreatedCold(t *testing.T) {
	s := NewScorer(DefaultConfig())

	data, _ := json.Marshal(models.FileOperationData{Operation: "create", Path: "sol.py"})
	ev := models.AgentEvent{Kind: models.EventKindFileOperation, Timestamp: 1, Data: data}

	score, reasons := s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{HadTypingBefore: false})
	assert.Equal(t, 0.5, score)
	assert.Contains(t, reasons, ReasonFileCreatedNoTyped)

	score, _ = s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{HadTypingBefore: true})
	assert.Equal(t, 0.0, score)

	// Deletes are counted but never scored.
	data, _ = json.Marshal(models.FileOperationData{Operation: "delete", Path: "sol.py"})
	ev.Data = data
	score, _ = s.ScoreEvent(ev, models.TypingStats{}, models.RecentContext{})
	assert.Equal(t, 0.0, score)
}

func TestScoreEvent_ClampedAtOne(t *testing.T) {
	s := NewScorer(DefaultConfig())

	// Large paste + both aggregate typing contributions: 0.9+0.4+0.3 -> 1.0.
	score, _ := s.ScoreEvent(pasteEvent(600), models.TypingStats{AvgInterval: 20, Variance: 20000}, models.RecentContext{})
	assert.Equal(t, 1.0, score)
}

func TestParticipantScore_Empty(t *testing.T) {
	assert.Equal(t, 0.0, ParticipantScore(models.ParticipantStats{}))
}

func TestParticipantScore_SinglePaste(t *testing.T) {
	stats := models.ParticipantStats{PasteCount: 1, PasteCharsTotal: 600}
	expected := math.Round(math.Min(0.5, 0.18*math.Log10(2))*1000) / 1000

	assert.Equal(t, expected, ParticipantScore(stats))
	assert.Equal(t, 0.054, ParticipantScore(stats))
}

func TestParticipantScore_Components(t *testing.T) {
	tests := []struct {
		name     string
		stats    models.ParticipantStats
		expected float64
	}{
		{
			name:     "paste chars below gate",
			stats:    models.ParticipantStats{PasteCharsTotal: 1000},
			expected: 0,
		},
		{
			name:     "paste chars above gate capped",
			stats:    models.ParticipantStats{PasteCharsTotal: 50000},
			expected: 0.3,
		},
		{
			name:     "typing anomalies below gate",
			stats:    models.ParticipantStats{TypingAnomalies: 5},
			expected: 0,
		},
		{
			name:     "typing anomalies above gate",
			stats:    models.ParticipantStats{TypingAnomalies: 10},
			expected: 0.1,
		},
		{
			name:     "blur total above gate",
			stats:    models.ParticipantStats{WindowBlurTotalMs: 600001},
			expected: 0.15,
		},
		{
			name:     "clipboard above gate",
			stats:    models.ParticipantStats{ClipboardChanges: 25},
			expected: 0.125,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParticipantScore(tt.stats), 1e-9)
		})
	}
}

func TestParticipantScore_InRangeAndDeterministic(t *testing.T) {
	stats := models.ParticipantStats{
		PasteCount:        500,
		PasteCharsTotal:   1 << 20,
		TypingAnomalies:   1000,
		WindowBlurTotalMs: 1 << 30,
		ClipboardChanges:  1000,
	}

	s1 := ParticipantScore(stats)
	s2 := ParticipantScore(stats)
	assert.Equal(t, s1, s2)
	assert.GreaterOrEqual(t, s1, 0.0)
	assert.LessOrEqual(t, s1, 1.0)
}

func TestEvaluateAlert(t *testing.T) {
	tests := []struct {
		name     string
		p        models.Participant
		expected models.AlertLevel
	}{
		{
			name:     "clean participant",
			p:        models.Participant{SuspicionScore: 0.2},
			expected: models.AlertLevelNone,
		},
		{
			name:     "critical on score",
			p:        models.Participant{SuspicionScore: 0.71},
			expected: models.AlertLevelCritical,
		},
		{
			name:     "score at threshold is not critical",
			p:        models.Participant{SuspicionScore: 0.7, Stats: models.ParticipantStats{PasteCount: 11}},
			expected: models.AlertLevelWarning,
		},
		{
			name:     "warning on paste count",
			p:        models.Participant{SuspicionScore: 0.3, Stats: models.ParticipantStats{PasteCount: 11}},
			expected: models.AlertLevelWarning,
		},
		{
			name:     "warning on blur total",
			p:        models.Participant{SuspicionScore: 0.3, Stats: models.ParticipantStats{WindowBlurTotalMs: 600001}},
			expected: models.AlertLevelWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, reasons := EvaluateAlert(&tt.p)
			assert.Equal(t, tt.expected, level)
			if tt.expected == models.AlertLevelNone {
				assert.Empty(t, reasons)
			} else {
				assert.NotEmpty(t, reasons)
			}
		})
	}
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package scoring computes per-event suspicion scores, the aggregate
// participant score derived from counter state, and alert evaluation.
//
// Scoring is pure: no I/O, no failures. The ingest pipeline provides the
// batch-local typing statistics and the per-participant recent context.
package scoring

import (
	"fmt"
	"math"

	"github.com/invigil/invigil/internal/models"
)

// Reason codes attached to scored events.
const (
	ReasonLargePaste         = "large_paste"
	ReasonMediumPaste        = "medium_paste"
	ReasonFastTyping         = "fast_typing"
	ReasonAvgTypingTooFast   = "avg_typing_too_fast"
	ReasonHighVariance       = "high_variance"
	ReasonLongBlur           = "long_blur"
	ReasonClipboardBurst     = "clipboard_burst"
	ReasonFileCreatedNoTyped = "file_created_no_typing"
)

// Config holds the scoring thresholds and contributions. Defaults match
// the deployed detection profile; override only for experimentation.
type Config struct {
	LargePasteLen   int     // paste length above which LargePaste applies
	MediumPasteLen  int     // paste length above which MediumPaste applies
	LargePaste      float64 // contribution for a large paste
	MediumPaste     float64 // contribution for a medium paste
	FastTypingMs    float64 // interval below which typing is anomalous
	FastTyping      float64
	AvgTypingFast   float64
	VarianceLimit   float64
	HighVariance    float64
	LongBlurMs      int64
	LongBlur        float64
	ClipboardBurst  float64
	ClipboardLimit  int
	FileCreatedCold float64
}

// DefaultConfig returns the default scoring profile.
func DefaultConfig() Config {
	return Config{
		LargePasteLen:   500,
		MediumPasteLen:  100,
		LargePaste:      0.9,
		MediumPaste:     0.6,
		FastTypingMs:    30,
		FastTyping:      0.4,
		AvgTypingFast:   0.4,
		VarianceLimit:   15000,
		HighVariance:    0.3,
		LongBlurMs:      120000,
		LongBlur:        0.2,
		ClipboardBurst:  0.3,
		ClipboardLimit:  5,
		FileCreatedCold: 0.5,
	}
}

// Scorer evaluates events and participants against a Config.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// ScoreEvent scores one event given the batch-local typing statistics and
// the participant's recent context. Contributions accumulate additively,
// clamped at 1.0 and rounded to 3 decimals.
func (s *Scorer) ScoreEvent(ev models.AgentEvent, typing models.TypingStats, recent models.RecentContext) (float64, []string) {
	var score float64
	var reasons []string

	switch ev.Kind {
	case models.EventKindPaste:
		data := models.DecodePasteData(ev.Data)
		switch {
		case data.Length > s.cfg.LargePasteLen:
			score += s.cfg.LargePaste
			reasons = append(reasons, ReasonLargePaste)
		case data.Length > s.cfg.MediumPasteLen:
			score += s.cfg.MediumPaste
			reasons = append(reasons, ReasonMediumPaste)
		}

	case models.EventKindTyping:
		data := models.DecodeTypingData(ev.Data)
		if data.Anomaly == "fast_typing" && data.Interval > 0 && data.Interval < s.cfg.FastTypingMs {
			score += s.cfg.FastTyping
			reasons = append(reasons, ReasonFastTyping)
		}

	case models.EventKindWindowBlur:
		data := models.DecodeWindowBlurData(ev.Data)
		if !data.Focused && data.UnfocusedDurationMs > s.cfg.LongBlurMs {
			score += s.cfg.LongBlur
			reasons = append(reasons, ReasonLongBlur)
		}

	case models.EventKindClipboard:
		if recent.ClipboardChanges60s > s.cfg.ClipboardLimit {
			score += s.cfg.ClipboardBurst
			reasons = append(reasons, ReasonClipboardBurst)
		}

	case models.EventKindFileOperation:
		data := models.DecodeFileOperationData(ev.Data)
		if data.Operation == "create" && !recent.HadTypingBefore {
			score += s.cfg.FileCreatedCold
			reasons = append(reasons, ReasonFileCreatedNoTyped)
		}
	}

	// Aggregate typing contributions apply regardless of event kind
	// whenever batch statistics were provided.
	if typing.AvgInterval > 0 && typing.AvgInterval < s.cfg.FastTypingMs {
		score += s.cfg.AvgTypingFast
		reasons = append(reasons, ReasonAvgTypingTooFast)
	}
	if typing.Variance > s.cfg.VarianceLimit {
		score += s.cfg.HighVariance
		reasons = append(reasons, ReasonHighVariance)
	}

	return round3(clamp1(score)), reasons
}

// ParticipantScore derives the aggregate suspicion score from the
// participant's counters. Pure function of the counters: recomputed on
// every successful ingest, never edited externally.
func ParticipantScore(stats models.ParticipantStats) float64 {
	score := math.Min(0.5, 0.18*math.Log10(float64(stats.PasteCount)+1))

	if stats.PasteCharsTotal > 1000 {
		score += math.Min(0.3, float64(stats.PasteCharsTotal)/10000)
	}
	if stats.TypingAnomalies > 5 {
		score += math.Min(0.2, float64(stats.TypingAnomalies)/100)
	}
	if stats.WindowBlurTotalMs > 600000 {
		score += 0.15
	}
	if stats.ClipboardChanges > 20 {
		score += math.Min(0.15, float64(stats.ClipboardChanges)/200)
	}

	return round3(clamp1(score))
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// criticalScoreThreshold and the warning counters below drive alert
// evaluation over the freshly persisted participant state.
const (
	criticalScoreThreshold = 0.7
	warningPasteCount      = 10
	warningBlurTotalMs     = 600000
)

// EvaluateAlert inspects the updated participant and returns the alert
// level plus one reason per triggered condition. Level none means no alert
// is emitted.
func EvaluateAlert(p *models.Participant) (models.AlertLevel, []string) {
	var reasons []string

	if p.SuspicionScore > criticalScoreThreshold {
		reasons = append(reasons, fmt.Sprintf("suspicion score %.3f exceeds %.1f", p.SuspicionScore, criticalScoreThreshold))
	}
	if p.Stats.PasteCount > warningPasteCount {
		reasons = append(reasons, fmt.Sprintf("paste count %d exceeds %d", p.Stats.PasteCount, warningPasteCount))
	}
	if p.Stats.WindowBlurTotalMs > warningBlurTotalMs {
		reasons = append(reasons, fmt.Sprintf("window blur total %dms exceeds %dms", p.Stats.WindowBlurTotalMs, warningBlurTotalMs))
	}

	switch {
	case p.SuspicionScore > criticalScoreThreshold:
		return models.AlertLevelCritical, reasons
	case p.Stats.PasteCount > warningPasteCount || p.Stats.WindowBlurTotalMs > warningBlurTotalMs:
		return models.AlertLevelWarning, reasons
	default:
		return models.AlertLevelNone, nil
	}
}

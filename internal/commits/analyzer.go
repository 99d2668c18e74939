// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package commits analyses chronologically ordered commit sequences for
// structural and temporal cheating signals: oversized commits with throwaway
// messages, rapid-fire commit bursts, and long-idle-then-burst episodes.
//
// All scoring here is pure: the analyser cannot fail, and re-running it on
// the same sequence yields identical output.
package commits

import (
	"math"
	"strings"
	"time"

	"github.com/invigil/invigil/internal/models"
)

// Reason codes attached to suspicious commits.
const (
	ReasonLargeCommitShortMsg = "large_commit_short_msg"
	ReasonVeryLargeCommit     = "very_large_commit"
	ReasonBurstCommit         = "burst_commit"
	ReasonSingleFileBulkAdd   = "single_file_bulk_add"
)

const (
	// burstWindow is the inter-commit gap below which a pair is a burst.
	burstWindow = 5 * time.Minute

	// idleGap is the inactivity threshold that opens an idle-burst episode.
	idleGap = 30 * time.Minute

	// idleBurstMinRun is the minimum number of follow-up commits, each
	// within burstWindow of its predecessor, required after an idle gap.
	idleBurstMinRun = 3
)

// Analysis is the full result of analysing one commit sequence.
type Analysis struct {
	Stats          models.CommitStats
	Timing         models.TimingAnalysis
	Suspicious     []models.SuspiciousCommit
	Bursts         []models.BurstCommit
	IdleBursts     []models.IdleBurst
	AvgCommitScore float64
}

// ScoreCommit scores a single commit against its predecessor (nil for the
// first commit of a sequence). Contributions are independent and additive,
// clamped to 1.0 and rounded to 3 decimals.
func ScoreCommit(c models.Commit, prev *models.Commit) (float64, []string) {
	var score float64
	var reasons []string

	churn := c.Additions + c.Deletions

	if churn > 500 && len(strings.TrimSpace(c.Message)) < 15 {
		score += 0.5
		reasons = append(reasons, ReasonLargeCommitShortMsg)
	}
	if churn > 1000 {
		score += 0.3
		reasons = append(reasons, ReasonVeryLargeCommit)
	}
	if prev != nil {
		// Bursts strictly require a positive gap; out-of-order
		// timestamps contribute nothing.
		dt := c.Timestamp.Sub(prev.Timestamp)
		if dt > 0 && dt < burstWindow {
			score += 0.2
			reasons = append(reasons, ReasonBurstCommit)
		}
	}
	if c.FilesChanged == 1 && c.Additions > 200 && c.Deletions < 10 {
		score += 0.4
		reasons = append(reasons, ReasonSingleFileBulkAdd)
	}

	return round3(clamp1(score)), reasons
}

// Analyze runs the full per-commit, sequence, timing and aggregate analysis
// over a chronologically ordered commit sequence (oldest first). Empty
// input yields a zero Analysis.
func Analyze(seq []models.Commit) *Analysis {
	a := &Analysis{}
	if len(seq) == 0 {
		return a
	}

	var scoreSum float64
	for i := range seq {
		var prev *models.Commit
		if i > 0 {
			prev = &seq[i-1]
		}

		score, reasons := ScoreCommit(seq[i], prev)
		scoreSum += score
		if score > 0 {
			a.Suspicious = append(a.Suspicious, models.SuspiciousCommit{
				CommitID:  seq[i].ID,
				Timestamp: seq[i].Timestamp,
				Score:     score,
				Reasons:   reasons,
			})
		}

		if prev != nil {
			dt := seq[i].Timestamp.Sub(prev.Timestamp)
			if dt > 0 && dt < burstWindow {
				a.Bursts = append(a.Bursts, models.BurstCommit{
					CommitID:   seq[i].ID,
					Timestamp:  seq[i].Timestamp,
					IntervalMs: dt.Milliseconds(),
				})
			}
		}
	}

	a.IdleBursts = detectIdleBursts(seq)
	a.Timing = computeTiming(seq)
	a.Stats = computeStats(seq)
	a.AvgCommitScore = round3(scoreSum / float64(len(seq)))

	return a
}

// detectIdleBursts finds gaps longer than idleGap followed by a run of at
// least idleBurstMinRun commits each within burstWindow of the previous
// one. The look-ahead stops at the first gap of burstWindow or more.
func detectIdleBursts(seq []models.Commit) []models.IdleBurst {
	var bursts []models.IdleBurst

	for i := 1; i < len(seq); i++ {
		gap := seq[i].Timestamp.Sub(seq[i-1].Timestamp)
		if gap <= idleGap {
			continue
		}

		run := 0
		for j := i + 1; j < len(seq); j++ {
			dt := seq[j].Timestamp.Sub(seq[j-1].Timestamp)
			if dt <= 0 || dt >= burstWindow {
				break
			}
			run++
		}

		if run >= idleBurstMinRun {
			bursts = append(bursts, models.IdleBurst{
				GapMs:            gap.Milliseconds(),
				StartedAt:        seq[i].Timestamp,
				BurstCommitCount: run + 1, // the gap-ending commit plus the run
			})
		}
	}

	return bursts
}

// computeTiming builds the 24-bucket UTC hour histogram and the total
// inter-commit gap, sub-burst intervals included.
func computeTiming(seq []models.Commit) models.TimingAnalysis {
	var t models.TimingAnalysis
	for i := range seq {
		t.HourHistogram[seq[i].Timestamp.UTC().Hour()]++
		if i > 0 {
			t.TotalGapMs += seq[i].Timestamp.Sub(seq[i-1].Timestamp).Milliseconds()
		}
	}
	return t
}

// computeStats totals and averages additions, deletions, files changed and
// the inter-commit interval. Means are rounded to integers; the interval
// mean considers positive gaps only.
func computeStats(seq []models.Commit) models.CommitStats {
	s := models.CommitStats{TotalCommits: len(seq)}
	if len(seq) == 0 {
		return s
	}

	var gapSum int64
	var gapCount int64
	for i := range seq {
		s.TotalAdditions += seq[i].Additions
		s.TotalDeletions += seq[i].Deletions
		s.TotalFilesChanged += seq[i].FilesChanged
		if i > 0 {
			gap := seq[i].Timestamp.Sub(seq[i-1].Timestamp).Milliseconds()
			if gap > 0 {
				gapSum += gap
				gapCount++
			}
		}
	}

	n := float64(len(seq))
	s.AvgAdditions = int(math.Round(float64(s.TotalAdditions) / n))
	s.AvgDeletions = int(math.Round(float64(s.TotalDeletions) / n))
	s.AvgFilesChanged = int(math.Round(float64(s.TotalFilesChanged) / n))
	if gapCount > 0 {
		s.AvgIntervalMs = int64(math.Round(float64(gapSum) / float64(gapCount)))
	}

	return s
}

// SourceSuspicionScore aggregates a repository's suspicion from the average
// commit score, the idle-burst count, and the highest cross-repo
// similarity. Clamped to 1.0, rounded to 3 decimals.
func SourceSuspicionScore(avgCommitScore float64, idleBurstCount int, highestSimilarity float64) float64 {
	score := 0.35 * avgCommitScore
	score += math.Min(0.25, 0.1*float64(idleBurstCount))

	switch {
	case highestSimilarity >= 0.8:
		score += 0.4
	case highestSimilarity > 0.5:
		score += 0.3 * highestSimilarity
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

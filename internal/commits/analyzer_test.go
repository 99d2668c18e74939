// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package commits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigil/invigil/internal/models"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func commit(id string, at time.Time, add, del, files int, msg string) models.Commit {
	return models.Commit{
		ID: id, Message: msg, Timestamp: at,
		Additions: add, Deletions: del, FilesChanged: files,
	}
}

func TestScoreCommit_LargeCommitShortMessage(t *testing.T) {
	c := commit("c1", t0, 400, 200, 3, "wip")
	score, reasons := ScoreCommit(c, nil)

	assert.Equal(t, 0.5, score)
	assert.Contains(t, reasons, ReasonLargeCommitShortMsg)
}

func TestScoreCommit_VeryLargeCommitStacks(t *testing.T) {
	// Over both churn thresholds with a short message: 0.5 + 0.3.
	c := commit("c1", t0, 900, 200, 3, "x")
	score, reasons := ScoreCommit(c, nil)

	assert.Equal(t, 0.8, score)
	assert.Contains(t, reasons, ReasonLargeCommitShortMsg)
	assert.Contains(t, reasons, ReasonVeryLargeCommit)
}

func TestScoreCommit_BurstBoundary(t *testing.T) {
	prev := commit("c0", t0, 1, 0, 1, "base commit message")

	// Exactly five minutes: not a burst.
	atLimit := commit("c1", t0.Add(5*time.Minute), 1, 0, 1, "regular followup work")
	score, reasons := ScoreCommit(atLimit, &prev)
	assert.Equal(t, 0.0, score)
	assert.Empty(t, reasons)

	// One second inside the window: a burst.
	inside := commit("c2", t0.Add(4*time.Minute+59*time.Second), 1, 0, 1, "regular followup work")
	score, reasons = ScoreCommit(inside, &prev)
	assert.Equal(t, 0.2, score)
	assert.Contains(t, reasons, ReasonBurstCommit)
}

func TestScoreCommit_NonPositiveGapIsNotBurst(t *testing.T) {
	prev := commit("c0", t0, 1, 0, 1, "base commit message")
	outOfOrder := commit("c1", t0.Add(-time.Minute), 1, 0, 1, "clock skewed commit msg")

	score, reasons := ScoreCommit(outOfOrder, &prev)
	assert.Equal(t, 0.0, score)
	assert.NotContains(t, reasons, ReasonBurstCommit)
}

func TestScoreCommit_SingleFileBulkAdd(t *testing.T) {
	c := commit("c1", t0, 250, 5, 1, "implement the whole solution")
	score, reasons := ScoreCommit(c, nil)

	assert.Equal(t, 0.4, score)
	assert.Contains(t, reasons, ReasonSingleFileBulkAdd)
}

func TestScoreCommit_ClampedAtOne(t *testing.T) {
	prev := commit("c0", t0, 1, 0, 1, "base commit message")
	// 0.5 + 0.3 + 0.2 + 0.4 clamps to 1.0.
	c := commit("c1", t0.Add(time.Minute), 1200, 5, 1, "x")
	score, _ := ScoreCommit(c, &prev)

	assert.Equal(t, 1.0, score)
}

func TestAnalyze_BurstSequence(t *testing.T) {
	seq := []models.Commit{
		commit("c1", t0, 10, 0, 1, "init"),
		commit("c2", t0.Add(60*time.Second), 20, 0, 1, "x"),
		commit("c3", t0.Add(90*time.Second), 30, 0, 1, "y"),
	}

	a := Analyze(seq)

	require.Len(t, a.Bursts, 2)
	assert.Equal(t, "c2", a.Bursts[0].CommitID)
	assert.Equal(t, "c3", a.Bursts[1].CommitID)

	require.Len(t, a.Suspicious, 2)
	for _, sc := range a.Suspicious {
		assert.Contains(t, sc.Reasons, ReasonBurstCommit)
	}

	assert.Equal(t, 0.133, a.AvgCommitScore)
}

func TestAnalyze_IdleThenBurst(t *testing.T) {
	seq := []models.Commit{
		commit("c1", t0, 1, 0, 1, "steady start of work"),
		commit("c2", t0.Add(45*time.Minute), 1, 0, 1, "back after a break"),
		commit("c3", t0.Add(46*time.Minute), 1, 0, 1, "quick follow up one"),
		commit("c4", t0.Add(47*time.Minute), 1, 0, 1, "quick follow up two"),
		commit("c5", t0.Add(48*time.Minute), 1, 0, 1, "quick follow up three"),
	}

	a := Analyze(seq)

	require.Len(t, a.IdleBursts, 1)
	ib := a.IdleBursts[0]
	assert.Equal(t, t0.Add(45*time.Minute), ib.StartedAt)
	assert.Equal(t, 4, ib.BurstCommitCount)
	assert.Equal(t, (45 * time.Minute).Milliseconds(), ib.GapMs)

	assert.Len(t, a.Bursts, 3)
}

func TestAnalyze_IdleWithoutRunIsNotIdleBurst(t *testing.T) {
	// A long gap followed by only two rapid commits does not qualify.
	seq := []models.Commit{
		commit("c1", t0, 1, 0, 1, "steady start of work"),
		commit("c2", t0.Add(45*time.Minute), 1, 0, 1, "back after a break"),
		commit("c3", t0.Add(46*time.Minute), 1, 0, 1, "quick follow up one"),
		commit("c4", t0.Add(47*time.Minute), 1, 0, 1, "quick follow up two"),
	}

	a := Analyze(seq)
	assert.Empty(t, a.IdleBursts)
}

func TestAnalyze_TimingDistribution(t *testing.T) {
	seq := []models.Commit{
		commit("c1", time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC), 1, 0, 1, "morning work session"),
		commit("c2", time.Date(2026, 3, 14, 9, 50, 0, 0, time.UTC), 1, 0, 1, "more morning work"),
		commit("c3", time.Date(2026, 3, 14, 23, 5, 0, 0, time.UTC), 1, 0, 1, "late night work"),
	}

	a := Analyze(seq)

	assert.Equal(t, 2, a.Timing.HourHistogram[9])
	assert.Equal(t, 1, a.Timing.HourHistogram[23])
	expectedGap := (40*time.Minute + 13*time.Hour + 15*time.Minute).Milliseconds()
	assert.Equal(t, expectedGap, a.Timing.TotalGapMs)
}

func TestAnalyze_AggregateStats(t *testing.T) {
	seq := []models.Commit{
		commit("c1", t0, 10, 2, 1, "first commit of work"),
		commit("c2", t0.Add(10*time.Minute), 20, 4, 3, "second commit of work"),
	}

	a := Analyze(seq)

	assert.Equal(t, 2, a.Stats.TotalCommits)
	assert.Equal(t, 30, a.Stats.TotalAdditions)
	assert.Equal(t, 6, a.Stats.TotalDeletions)
	assert.Equal(t, 4, a.Stats.TotalFilesChanged)
	assert.Equal(t, 15, a.Stats.AvgAdditions)
	assert.Equal(t, 3, a.Stats.AvgDeletions)
	assert.Equal(t, 2, a.Stats.AvgFilesChanged)
	assert.Equal(t, (10 * time.Minute).Milliseconds(), a.Stats.AvgIntervalMs)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	a := Analyze(nil)

	assert.Equal(t, models.CommitStats{}, a.Stats)
	assert.Empty(t, a.Suspicious)
	assert.Empty(t, a.Bursts)
	assert.Empty(t, a.IdleBursts)
	assert.Equal(t, 0.0, a.AvgCommitScore)
}

func TestAnalyze_Deterministic(t *testing.T) {
	seq := []models.Commit{
		commit("c1", t0, 600, 10, 2, "x"),
		commit("c2", t0.Add(2*time.Minute), 30, 0, 1, "quick fix for tests"),
		commit("c3", t0.Add(50*time.Minute), 250, 3, 1, "final working version"),
	}

	a1 := Analyze(seq)
	a2 := Analyze(seq)
	assert.Equal(t, a1, a2)
}

func TestSourceSuspicionScore(t *testing.T) {
	tests := []struct {
		name       string
		avg        float64
		idleBursts int
		similarity float64
		expected   float64
	}{
		{"all zero", 0, 0, 0, 0},
		{"avg only", 0.5, 0, 0, 0.175},
		{"idle bursts capped", 0.0, 5, 0, 0.25},
		{"similarity at threshold", 0, 0, 0.80, 0.4},
		{"similarity below threshold", 0, 0, 0.79, round3(0.3 * 0.79)},
		{"similarity at half", 0, 0, 0.5, 0},
		{"clamped", 1.0, 10, 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SourceSuspicionScore(tt.avg, tt.idleBursts, tt.similarity)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

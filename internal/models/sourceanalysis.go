// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

import (
	"time"
)

const (
	// MaxSuspiciousCommits bounds the stored suspicious-commit list.
	MaxSuspiciousCommits = 200

	// MaxBurstCommits bounds the stored burst-commit list.
	MaxBurstCommits = 100

	// MaxSimilarityMatches bounds the stored cross-repo match list.
	MaxSimilarityMatches = 200
)

// Commit is one entry of a repository's history, as fetched from the
// source host.
type Commit struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	FilesChanged int       `json:"filesChanged"`
}

// SuspiciousCommit records a commit whose structural score was non-zero.
type SuspiciousCommit struct {
	CommitID  string    `json:"commitId"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons"`
}

// BurstCommit records a commit landed within five minutes of its
// predecessor.
type BurstCommit struct {
	CommitID   string    `json:"commitId"`
	Timestamp  time.Time `json:"timestamp"`
	IntervalMs int64     `json:"intervalMs"`
}

// IdleBurst records a gap of more than thirty minutes followed by a run of
// at least three commits each within five minutes of the previous one.
type IdleBurst struct {
	GapMs            int64     `json:"gapMs"`
	StartedAt        time.Time `json:"startedAt"`
	BurstCommitCount int       `json:"burstCommitCount"`
}

// CommitStats are totals and integer-rounded arithmetic means over a
// repository's analysed commits.
type CommitStats struct {
	TotalCommits      int   `json:"totalCommits"`
	TotalAdditions    int   `json:"totalAdditions"`
	TotalDeletions    int   `json:"totalDeletions"`
	TotalFilesChanged int   `json:"totalFilesChanged"`
	AvgAdditions      int   `json:"avgAdditions"`
	AvgDeletions      int   `json:"avgDeletions"`
	AvgFilesChanged   int   `json:"avgFilesChanged"`
	AvgIntervalMs     int64 `json:"avgIntervalMs"`
}

// TimingAnalysis is the 24-bucket UTC hour-of-day distribution plus the
// total inter-commit gap.
type TimingAnalysis struct {
	HourHistogram [24]int `json:"hourHistogram"`
	TotalGapMs    int64   `json:"totalGapMs"`
}

// SimilarityMatch is one side of a cross-repository similarity finding.
// The counterpart is a weak reference: only its ids and repo coordinates
// are stored, and resolvers must tolerate a missing counterpart.
type SimilarityMatch struct {
	OtherParticipantID string    `json:"otherParticipantId"`
	OtherOwner         string    `json:"otherOwner"`
	OtherRepo          string    `json:"otherRepo"`
	File1              string    `json:"file1"`
	File2              string    `json:"file2"`
	Similarity         float64   `json:"similarity"`
	IdenticalContent   bool      `json:"identicalContent"`
	DetectedAt         time.Time `json:"detectedAt"`
}

// SourceAnalysis is the per-repository aggregate document maintained by the
// sync scheduler.
//
// Invariants: HighestSimilarity == max(similarity of SimilarityMatches, 0)
// and is monotonically non-decreasing; SourceSuspicionScore is a pure
// function of the other fields.
type SourceAnalysis struct {
	ParticipantID string `json:"participantId"`
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	DefaultBranch string `json:"defaultBranch,omitempty"`

	Stats  CommitStats    `json:"stats"`
	Timing TimingAnalysis `json:"timing"`

	SuspiciousCommits []SuspiciousCommit `json:"suspiciousCommits"` // last 200
	BurstCommits      []BurstCommit      `json:"burstCommits"`      // last 100
	IdleBursts        []IdleBurst        `json:"idleBursts"`

	SimilarityMatches []SimilarityMatch `json:"similarityMatches"`
	HighestSimilarity float64           `json:"highestSimilarity"`

	AvgCommitSuspicionScore float64 `json:"avgCommitSuspicionScore"`
	SourceSuspicionScore    float64 `json:"sourceSuspicionScore"`

	LastProcessedCommitID string    `json:"lastProcessedCommitId,omitempty"`
	LastSyncAt            time.Time `json:"lastSyncAt"`
}

// Truncate applies the bounded-list rules, keeping the most recent entries.
func (sa *SourceAnalysis) Truncate() {
	if n := len(sa.SuspiciousCommits); n > MaxSuspiciousCommits {
		sa.SuspiciousCommits = sa.SuspiciousCommits[n-MaxSuspiciousCommits:]
	}
	if n := len(sa.BurstCommits); n > MaxBurstCommits {
		sa.BurstCommits = sa.BurstCommits[n-MaxBurstCommits:]
	}
	if n := len(sa.SimilarityMatches); n > MaxSimilarityMatches {
		sa.SimilarityMatches = sa.SimilarityMatches[n-MaxSimilarityMatches:]
	}
}

// RecordSimilarity appends a match and raises HighestSimilarity
// monotonically; it never lowers it.
func (sa *SourceAnalysis) RecordSimilarity(m SimilarityMatch) {
	sa.SimilarityMatches = append(sa.SimilarityMatches, m)
	if m.Similarity > sa.HighestSimilarity {
		sa.HighestSimilarity = m.Similarity
	}
}

// SourceAnalysisSummary is the fan-out and overview shape for an analysis
// record.
type SourceAnalysisSummary struct {
	ParticipantID           string    `json:"participantId"`
	Owner                   string    `json:"owner"`
	Repo                    string    `json:"repo"`
	TotalCommits            int       `json:"totalCommits"`
	SuspiciousCommitCount   int       `json:"suspiciousCommitCount"`
	BurstCommitCount        int       `json:"burstCommitCount"`
	IdleBurstCount          int       `json:"idleBurstCount"`
	HighestSimilarity       float64   `json:"highestSimilarity"`
	AvgCommitSuspicionScore float64   `json:"avgCommitSuspicionScore"`
	SourceSuspicionScore    float64   `json:"sourceSuspicionScore"`
	LastSyncAt              time.Time `json:"lastSyncAt"`
}

// Summary returns the fan-out shape for this record.
func (sa *SourceAnalysis) Summary() SourceAnalysisSummary {
	return SourceAnalysisSummary{
		ParticipantID:           sa.ParticipantID,
		Owner:                   sa.Owner,
		Repo:                    sa.Repo,
		TotalCommits:            sa.Stats.TotalCommits,
		SuspiciousCommitCount:   len(sa.SuspiciousCommits),
		BurstCommitCount:        len(sa.BurstCommits),
		IdleBurstCount:          len(sa.IdleBursts),
		HighestSimilarity:       sa.HighestSimilarity,
		AvgCommitSuspicionScore: sa.AvgCommitSuspicionScore,
		SourceSuspicionScore:    sa.SourceSuspicionScore,
		LastSyncAt:              sa.LastSyncAt,
	}
}

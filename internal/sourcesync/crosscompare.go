// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package sourcesync

import (
	"context"

	"github.com/invigil/invigil/internal/commits"
	"github.com/invigil/invigil/internal/fingerprint"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
)

// analyzeCommits is the commit-analyser entry point, indirected for the
// package's own tests.
var analyzeCommits = commits.Analyze

// recomputeSourceScore refreshes the record's aggregate suspicion from its
// own fields.
func recomputeSourceScore(sa *models.SourceAnalysis) {
	sa.SourceSuspicionScore = commits.SourceSuspicionScore(
		sa.AvgCommitSuspicionScore, len(sa.IdleBursts), sa.HighestSimilarity)
}

// crossCompare runs the winnowing scan over every registered repository
// with at least one eligible file and records matches on both sides.
func (m *Manager) crossCompare(ctx context.Context, threshold float64) {
	analyses, err := m.store.ListSourceAnalyses(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to enumerate analyses for cross-comparison")
		return
	}
	if len(analyses) < 2 {
		return
	}

	var repos []fingerprint.Repo
	owners := make(map[string]*models.SourceAnalysis)
	for i := range analyses {
		sa := &analyses[i]
		files, err := m.client.ListCodeFiles(ctx, sa.Owner, sa.Repo)
		if err != nil {
			logging.Warn().Err(err).
				Str("repo", sa.Owner+"/"+sa.Repo).
				Msg("failed to fetch code files, excluding from comparison")
			continue
		}
		if len(files) == 0 {
			continue
		}
		key := sa.Owner + "/" + sa.Repo
		owners[key] = sa
		repos = append(repos, fingerprint.Repo{Key: key, Files: files})
	}
	if len(repos) < 2 {
		return
	}

	matches := fingerprint.CrossCompare(repos, threshold, m.fpCache)
	if len(matches) == 0 {
		return
	}

	affected := m.recordMatches(matches, owners)

	for _, sa := range affected {
		recomputeSourceScore(sa)
		if err := m.store.PersistSourceAnalysis(ctx, sa); err != nil {
			logging.Error().Err(err).
				Str("participant", sa.ParticipantID).
				Msg("failed to persist similarity results")
			continue
		}
		if m.broadcaster != nil {
			m.broadcaster.BroadcastSourceAnalysisUpdated(sa.Summary())
		}
	}

	logging.Info().
		Int("matches", len(matches)).
		Int("participants", len(affected)).
		Msg("cross-repository comparison recorded matches")
}

// recordMatches appends each match to both sides (file pair swapped on the
// second side) and raises highestSimilarity monotonically. Returns the
// affected records keyed by participant id.
func (m *Manager) recordMatches(matches []fingerprint.Match, owners map[string]*models.SourceAnalysis) map[string]*models.SourceAnalysis {
	affected := make(map[string]*models.SourceAnalysis)

	for _, match := range matches {
		a, okA := owners[match.RepoA]
		b, okB := owners[match.RepoB]
		if !okA || !okB {
			continue
		}

		detectedAt := m.now()
		a.RecordSimilarity(models.SimilarityMatch{
			OtherParticipantID: b.ParticipantID,
			OtherOwner:         b.Owner,
			OtherRepo:          b.Repo,
			File1:              match.PathA,
			File2:              match.PathB,
			Similarity:         match.Similarity,
			IdenticalContent:   match.IdenticalContent,
			DetectedAt:         detectedAt,
		})
		b.RecordSimilarity(models.SimilarityMatch{
			OtherParticipantID: a.ParticipantID,
			OtherOwner:         a.Owner,
			OtherRepo:          a.Repo,
			File1:              match.PathB,
			File2:              match.PathA,
			Similarity:         match.Similarity,
			IdenticalContent:   match.IdenticalContent,
			DetectedAt:         detectedAt,
		})

		affected[a.ParticipantID] = a
		affected[b.ParticipantID] = b
		metrics.SimilarityMatches.Inc()
	}

	return affected
}

// CompareParticipants runs an on-demand comparison of exactly two
// registered repositories and persists any matches on both sides.
func (m *Manager) CompareParticipants(ctx context.Context, participantID1, participantID2 string, threshold float64) ([]fingerprint.Match, error) {
	if threshold <= 0 {
		threshold = m.cfg.SimilarityThreshold
	}

	sa1, err := m.store.GetSourceAnalysis(ctx, participantID1)
	if err != nil {
		return nil, err
	}
	sa2, err := m.store.GetSourceAnalysis(ctx, participantID2)
	if err != nil {
		return nil, err
	}

	files1, err := m.client.ListCodeFiles(ctx, sa1.Owner, sa1.Repo)
	if err != nil {
		return nil, err
	}
	files2, err := m.client.ListCodeFiles(ctx, sa2.Owner, sa2.Repo)
	if err != nil {
		return nil, err
	}

	key1 := sa1.Owner + "/" + sa1.Repo
	key2 := sa2.Owner + "/" + sa2.Repo
	matches := fingerprint.CrossCompare([]fingerprint.Repo{
		{Key: key1, Files: files1},
		{Key: key2, Files: files2},
	}, threshold, m.fpCache)

	if len(matches) > 0 {
		owners := map[string]*models.SourceAnalysis{key1: sa1, key2: sa2}
		affected := m.recordMatches(matches, owners)
		for _, sa := range affected {
			recomputeSourceScore(sa)
			if err := m.store.PersistSourceAnalysis(ctx, sa); err != nil {
				return nil, err
			}
			if m.broadcaster != nil {
				m.broadcaster.BroadcastSourceAnalysisUpdated(sa.Summary())
			}
		}
	}

	return matches, nil
}

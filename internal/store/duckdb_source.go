// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/invigil/invigil/internal/models"
)

// GetOrCreateSourceAnalysis implements Store.
func (db *DB) GetOrCreateSourceAnalysis(ctx context.Context, participantID, owner, repo string) (*models.SourceAnalysis, error) {
	sa, err := db.GetSourceAnalysis(ctx, participantID)
	if err == nil {
		return sa, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	sa = &models.SourceAnalysis{
		ParticipantID: participantID,
		Owner:         owner,
		Repo:          repo,
	}
	if err := db.PersistSourceAnalysis(ctx, sa); err != nil {
		return nil, err
	}
	return sa, nil
}

// GetSourceAnalysis implements Store.
func (db *DB) GetSourceAnalysis(ctx context.Context, participantID string) (*models.SourceAnalysis, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT participant_id, owner, repo, default_branch, stats, timing,
			suspicious_commits, burst_commits, idle_bursts, similarity_matches,
			highest_similarity, avg_commit_score, source_suspicion_score,
			last_processed_commit_id, last_sync_at
		FROM source_analyses WHERE participant_id = ?`, participantID)

	var sa models.SourceAnalysis
	var branch, lastCommit sql.NullString
	var lastSync sql.NullTime
	var stats, timing, suspicious, bursts, idles, matches string

	err := row.Scan(&sa.ParticipantID, &sa.Owner, &sa.Repo, &branch,
		&stats, &timing, &suspicious, &bursts, &idles, &matches,
		&sa.HighestSimilarity, &sa.AvgCommitSuspicionScore, &sa.SourceSuspicionScore,
		&lastCommit, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source analysis for %s: %w", participantID, err)
	}

	sa.DefaultBranch = branch.String
	sa.LastProcessedCommitID = lastCommit.String
	if lastSync.Valid {
		sa.LastSyncAt = lastSync.Time
	}

	for _, field := range []struct {
		raw  string
		dest any
	}{
		{stats, &sa.Stats},
		{timing, &sa.Timing},
		{suspicious, &sa.SuspiciousCommits},
		{bursts, &sa.BurstCommits},
		{idles, &sa.IdleBursts},
		{matches, &sa.SimilarityMatches},
	} {
		if field.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("failed to decode source analysis for %s: %w", participantID, err)
		}
	}

	return &sa, nil
}

// PersistSourceAnalysis implements Store. Bounded lists are truncated on
// write; the whole record lands in one statement.
func (db *DB) PersistSourceAnalysis(ctx context.Context, sa *models.SourceAnalysis) error {
	sa.Truncate()

	encode := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode source analysis field: %w", err)
		}
		return string(b), nil
	}

	stats, err := encode(sa.Stats)
	if err != nil {
		return err
	}
	timing, err := encode(sa.Timing)
	if err != nil {
		return err
	}
	suspicious, err := encode(sa.SuspiciousCommits)
	if err != nil {
		return err
	}
	bursts, err := encode(sa.BurstCommits)
	if err != nil {
		return err
	}
	idles, err := encode(sa.IdleBursts)
	if err != nil {
		return err
	}
	matches, err := encode(sa.SimilarityMatches)
	if err != nil {
		return err
	}

	var lastSync sql.NullTime
	if !sa.LastSyncAt.IsZero() {
		lastSync = sql.NullTime{Time: sa.LastSyncAt, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO source_analyses (participant_id, owner, repo, default_branch,
			stats, timing, suspicious_commits, burst_commits, idle_bursts,
			similarity_matches, highest_similarity, avg_commit_score,
			source_suspicion_score, last_processed_commit_id, last_sync_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO UPDATE SET
			owner = excluded.owner,
			repo = excluded.repo,
			default_branch = excluded.default_branch,
			stats = excluded.stats,
			timing = excluded.timing,
			suspicious_commits = excluded.suspicious_commits,
			burst_commits = excluded.burst_commits,
			idle_bursts = excluded.idle_bursts,
			similarity_matches = excluded.similarity_matches,
			highest_similarity = excluded.highest_similarity,
			avg_commit_score = excluded.avg_commit_score,
			source_suspicion_score = excluded.source_suspicion_score,
			last_processed_commit_id = excluded.last_processed_commit_id,
			last_sync_at = excluded.last_sync_at`,
		sa.ParticipantID, sa.Owner, sa.Repo, sa.DefaultBranch,
		stats, timing, suspicious, bursts, idles, matches,
		sa.HighestSimilarity, sa.AvgCommitSuspicionScore,
		sa.SourceSuspicionScore, sa.LastProcessedCommitID, lastSync,
	)
	if err != nil {
		return fmt.Errorf("failed to persist source analysis for %s: %w", sa.ParticipantID, err)
	}
	return nil
}

// ListSourceAnalyses implements Store.
func (db *DB) ListSourceAnalyses(ctx context.Context) ([]models.SourceAnalysis, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT participant_id FROM source_analyses ORDER BY participant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source analyses: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source analysis id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.SourceAnalysis, 0, len(ids))
	for _, id := range ids {
		sa, err := db.GetSourceAnalysis(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *sa)
	}
	return out, nil
}

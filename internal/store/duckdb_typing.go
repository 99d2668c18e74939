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
	"time"

	"github.com/goccy/go-json"

	"github.com/invigil/invigil/internal/models"
)

// UpdateTypingPattern implements Store. Read-modify-write under the
// participant's lock so append, truncation and statistics land atomically.
func (db *DB) UpdateTypingPattern(ctx context.Context, participantID string, intervals []float64) (*models.TypingPattern, error) {
	lock := db.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	tp, err := db.getTypingPattern(ctx, participantID)
	if errors.Is(err, ErrNotFound) {
		tp = &models.TypingPattern{ParticipantID: participantID}
	} else if err != nil {
		return nil, err
	}

	tp.Append(intervals)
	tp.UpdatedAt = time.Now().UTC()

	encoded, err := json.Marshal(tp.Intervals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode typing intervals: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO typing_patterns (participant_id, intervals, mean_interval,
			variance, std_dev, sample_count, wpm, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO UPDATE SET
			intervals = excluded.intervals,
			mean_interval = excluded.mean_interval,
			variance = excluded.variance,
			std_dev = excluded.std_dev,
			sample_count = excluded.sample_count,
			wpm = excluded.wpm,
			updated_at = excluded.updated_at`,
		participantID, string(encoded), tp.MeanInterval,
		tp.Variance, tp.StdDev, tp.SampleCount, tp.WPM, tp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to persist typing pattern for %s: %w", participantID, err)
	}

	return tp, nil
}

// GetTypingPattern implements Store.
func (db *DB) GetTypingPattern(ctx context.Context, participantID string) (*models.TypingPattern, error) {
	return db.getTypingPattern(ctx, participantID)
}

func (db *DB) getTypingPattern(ctx context.Context, participantID string) (*models.TypingPattern, error) {
	var tp models.TypingPattern
	var intervals string

	err := db.conn.QueryRowContext(ctx, `
		SELECT participant_id, intervals, mean_interval, variance, std_dev,
			sample_count, wpm, updated_at
		FROM typing_patterns WHERE participant_id = ?`, participantID,
	).Scan(&tp.ParticipantID, &intervals, &tp.MeanInterval, &tp.Variance,
		&tp.StdDev, &tp.SampleCount, &tp.WPM, &tp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read typing pattern for %s: %w", participantID, err)
	}

	if err := json.Unmarshal([]byte(intervals), &tp.Intervals); err != nil {
		return nil, fmt.Errorf("failed to decode typing intervals for %s: %w", participantID, err)
	}
	return &tp, nil
}

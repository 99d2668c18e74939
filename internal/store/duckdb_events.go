// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/models"
)

// AppendEvents implements Store. The batch uses unordered semantics: a row
// that fails to insert is logged and skipped, the batch does not abort,
// and counter updates already applied are never rolled back.
func (db *DB) AppendEvents(ctx context.Context, participantID string, events []models.Event) error {
	for i := range events {
		ev := &events[i]

		var reasons sql.NullString
		if len(ev.Reasons) > 0 {
			encoded, err := json.Marshal(ev.Reasons)
			if err == nil {
				reasons = sql.NullString{String: string(encoded), Valid: true}
			}
		}

		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO events (id, participant_id, kind, ts, data, user_id, workspace,
				suspicion_score, flagged, reasons)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, participantID, string(ev.Kind), ev.Timestamp, string(ev.Data),
			ev.UserID, ev.Workspace, ev.SuspicionScore, ev.Flagged, reasons,
		)
		if err != nil {
			logging.Warn().Err(err).
				Str("participant", participantID).
				Str("event_id", ev.ID).
				Msg("failed to persist event, skipping row")
		}
	}
	return nil
}

// scanEvent reads one event row.
func scanEvent(rows *sql.Rows) (*models.Event, error) {
	var ev models.Event
	var kind string
	var data, userID, workspace, reasons sql.NullString

	err := rows.Scan(&ev.ID, &ev.ParticipantID, &kind, &ev.Timestamp,
		&data, &userID, &workspace, &ev.SuspicionScore, &ev.Flagged, &reasons)
	if err != nil {
		return nil, err
	}

	ev.Kind = models.EventKind(kind)
	if data.Valid {
		ev.Data = json.RawMessage(data.String)
	}
	ev.UserID = userID.String
	ev.Workspace = workspace.String
	if reasons.Valid && reasons.String != "" {
		_ = json.Unmarshal([]byte(reasons.String), &ev.Reasons)
	}
	return &ev, nil
}

// ListEvents implements Store.
func (db *DB) ListEvents(ctx context.Context, participantID string, q EventQuery) ([]models.Event, int64, error) {
	where := []string{"participant_id = ?"}
	args := []any{participantID}

	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.FlaggedOnly {
		where = append(where, "flagged")
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, q.Offset)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, participant_id, kind, ts, data, user_id, workspace,
			suspicion_score, flagged, reasons
		FROM events WHERE `+clause+`
		ORDER BY ts DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, total, rows.Err()
}

// CountFlaggedEvents implements Store.
func (db *DB) CountFlaggedEvents(ctx context.Context, participantID string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE participant_id = ? AND flagged`,
		participantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count flagged events: %w", err)
	}
	return n, nil
}

// SuspicionBreakdown implements Store.
func (db *DB) SuspicionBreakdown(ctx context.Context, participantID string) ([]models.BreakdownRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT kind, flagged, COUNT(*), AVG(suspicion_score), MAX(suspicion_score)
		FROM events
		WHERE participant_id = ?
		GROUP BY kind, flagged
		ORDER BY kind, flagged`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute suspicion breakdown: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.BreakdownRow
	for rows.Next() {
		var row models.BreakdownRow
		var kind string
		if err := rows.Scan(&kind, &row.Flagged, &row.Count, &row.AvgScore, &row.MaxScore); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		row.Kind = models.EventKind(kind)
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecentClipboardCount implements Store.
func (db *DB) RecentClipboardCount(ctx context.Context, participantID string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
		WHERE participant_id = ? AND kind = 'clipboard' AND ts >= ?`,
		participantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent clipboard events: %w", err)
	}
	return n, nil
}

// HasAnyTypingEvent implements Store.
func (db *DB) HasAnyTypingEvent(ctx context.Context, participantID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE participant_id = ? AND kind IN ('typing', 'file_change')
		)`, participantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check typing history: %w", err)
	}
	return exists, nil
}

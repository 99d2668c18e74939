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

	"github.com/invigil/invigil/internal/models"
)

const participantColumns = `machine_id, external_account, session_id, workspace,
	started_at, last_active, total_events,
	paste_count, paste_chars_total, typing_anomalies,
	window_blur_count, window_blur_total_ms, clipboard_changes,
	files_created, files_deleted, suspicion_score`

// scanParticipant reads one participant row.
func scanParticipant(row interface{ Scan(...any) error }) (*models.Participant, error) {
	var p models.Participant
	var external, session, workspace sql.NullString

	err := row.Scan(
		&p.MachineID, &external, &session, &workspace,
		&p.StartedAt, &p.LastActive, &p.TotalEvents,
		&p.Stats.PasteCount, &p.Stats.PasteCharsTotal, &p.Stats.TypingAnomalies,
		&p.Stats.WindowBlurCount, &p.Stats.WindowBlurTotalMs, &p.Stats.ClipboardChanges,
		&p.Stats.FilesCreated, &p.Stats.FilesDeleted, &p.SuspicionScore,
	)
	if err != nil {
		return nil, err
	}

	p.ExternalAccountName = external.String
	p.SessionID = session.String
	p.Workspace = workspace.String
	return &p, nil
}

// UpsertParticipant implements Store. Writes for one machineId are
// serialised on a per-id mutex so lastActive moves monotonically forward
// within a connection.
func (db *DB) UpsertParticipant(ctx context.Context, machineID, sessionID, workspace string) (*models.Participant, error) {
	lock := db.lockFor(machineID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO participants (machine_id, session_id, workspace, started_at, last_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (machine_id) DO UPDATE SET
			session_id = CASE WHEN excluded.session_id <> '' THEN excluded.session_id ELSE participants.session_id END,
			workspace  = CASE WHEN excluded.workspace <> ''  THEN excluded.workspace  ELSE participants.workspace END,
			last_active = excluded.last_active`,
		machineID, sessionID, workspace, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant %s: %w", machineID, err)
	}

	return db.GetParticipant(ctx, machineID)
}

// GetParticipant implements Store.
func (db *DB) GetParticipant(ctx context.Context, machineID string) (*models.Participant, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE machine_id = ?`, machineID)

	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read participant %s: %w", machineID, err)
	}
	return p, nil
}

// SaveParticipant implements Store.
func (db *DB) SaveParticipant(ctx context.Context, p *models.Participant) error {
	lock := db.lockFor(p.MachineID)
	lock.Lock()
	defer lock.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (machine_id) DO UPDATE SET
			external_account = excluded.external_account,
			session_id = excluded.session_id,
			workspace = excluded.workspace,
			last_active = excluded.last_active,
			total_events = excluded.total_events,
			paste_count = excluded.paste_count,
			paste_chars_total = excluded.paste_chars_total,
			typing_anomalies = excluded.typing_anomalies,
			window_blur_count = excluded.window_blur_count,
			window_blur_total_ms = excluded.window_blur_total_ms,
			clipboard_changes = excluded.clipboard_changes,
			files_created = excluded.files_created,
			files_deleted = excluded.files_deleted,
			suspicion_score = excluded.suspicion_score`,
		p.MachineID, p.ExternalAccountName, p.SessionID, p.Workspace,
		p.StartedAt, p.LastActive, p.TotalEvents,
		p.Stats.PasteCount, p.Stats.PasteCharsTotal, p.Stats.TypingAnomalies,
		p.Stats.WindowBlurCount, p.Stats.WindowBlurTotalMs, p.Stats.ClipboardChanges,
		p.Stats.FilesCreated, p.Stats.FilesDeleted, p.SuspicionScore,
	)
	if err != nil {
		return fmt.Errorf("failed to save participant %s: %w", p.MachineID, err)
	}
	return nil
}

// ListParticipants implements Store.
func (db *DB) ListParticipants(ctx context.Context, q ParticipantQuery) ([]models.Participant, int64, error) {
	orderCol := "last_active"
	switch q.Sort {
	case "suspicionScore":
		orderCol = "suspicion_score"
	case "totalEvents":
		orderCol = "total_events"
	case "lastActive", "":
	}
	direction := "DESC"
	if q.Order == "asc" {
		direction = "ASC"
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count participants: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	// orderCol and direction come from the fixed switches above, never
	// from the request.
	query := fmt.Sprintf(`SELECT `+participantColumns+` FROM participants
		ORDER BY %s %s LIMIT ? OFFSET ?`, orderCol, direction)

	rows, err := db.conn.QueryContext(ctx, query, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list participants: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// SuspiciousParticipants implements Store.
func (db *DB) SuspiciousParticipants(ctx context.Context, limit int) ([]models.SuspiciousParticipant, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+participantColumns+`,
			(SELECT COUNT(*) FROM events e
			  WHERE e.participant_id = participants.machine_id AND e.flagged) AS flagged_events
		FROM participants
		WHERE suspicion_score > 0
		ORDER BY suspicion_score DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious participants: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.SuspiciousParticipant
	for rows.Next() {
		var p models.Participant
		var external, session, workspace sql.NullString
		var flagged int64

		err := rows.Scan(
			&p.MachineID, &external, &session, &workspace,
			&p.StartedAt, &p.LastActive, &p.TotalEvents,
			&p.Stats.PasteCount, &p.Stats.PasteCharsTotal, &p.Stats.TypingAnomalies,
			&p.Stats.WindowBlurCount, &p.Stats.WindowBlurTotalMs, &p.Stats.ClipboardChanges,
			&p.Stats.FilesCreated, &p.Stats.FilesDeleted, &p.SuspicionScore,
			&flagged,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspicious participant: %w", err)
		}
		p.ExternalAccountName = external.String
		p.SessionID = session.String
		p.Workspace = workspace.String
		out = append(out, models.SuspiciousParticipant{Participant: p, FlaggedEventCount: flagged})
	}
	return out, rows.Err()
}

// Overview implements Store.
func (db *DB) Overview(ctx context.Context) (*models.OverviewStats, error) {
	stats := &models.OverviewStats{}
	cutoff := time.Now().UTC().Add(-5 * time.Minute)

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE last_active > ?),
			COALESCE(AVG(suspicion_score), 0)
		FROM participants`, cutoff,
	).Scan(&stats.TotalParticipants, &stats.ActiveParticipants, &stats.AvgSuspicion)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate participants: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE flagged) FROM events`,
	).Scan(&stats.TotalEvents, &stats.FlaggedEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}

	return stats, nil
}

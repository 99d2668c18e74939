// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

// BreakdownRow groups a participant's events by (kind, flagged) for the
// dashboard suspicion breakdown.
type BreakdownRow struct {
	Kind     EventKind `json:"kind"`
	Flagged  bool      `json:"flagged"`
	Count    int64     `json:"count"`
	AvgScore float64   `json:"avgScore"`
	MaxScore float64   `json:"maxScore"`
}

// OverviewStats is the dashboard analytics overview.
type OverviewStats struct {
	TotalParticipants  int64   `json:"totalParticipants"`
	ActiveParticipants int64   `json:"activeParticipants"` // active within 5 minutes
	TotalEvents        int64   `json:"totalEvents"`
	FlaggedEvents      int64   `json:"flaggedEvents"`
	AvgSuspicion       float64 `json:"avgSuspicion"`
}

// SuspiciousParticipant enriches a participant with its flagged event
// count for the suspicious-participants listing.
type SuspiciousParticipant struct {
	Participant       Participant `json:"participant"`
	FlaggedEventCount int64       `json:"flaggedEventCount"`
}

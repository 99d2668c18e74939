// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/invigil/invigil/internal/models"
)

// MemoryStore is the in-memory Store double used by unit tests and by the
// pipeline's own tests. It mirrors the production semantics: per-machineId
// serialised upserts, batch-append events, typing truncation, bounded
// source-analysis lists.
type MemoryStore struct {
	mu           sync.RWMutex
	participants map[string]*models.Participant
	events       map[string][]models.Event
	typing       map[string]*models.TypingPattern
	analyses     map[string]*models.SourceAnalysis
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[string]*models.Participant),
		events:       make(map[string][]models.Event),
		typing:       make(map[string]*models.TypingPattern),
		analyses:     make(map[string]*models.SourceAnalysis),
		now:          time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// UpsertParticipant implements Store.
func (s *MemoryStore) UpsertParticipant(_ context.Context, machineID, sessionID, workspace string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[machineID]
	if !ok {
		p = &models.Participant{
			MachineID: machineID,
			StartedAt: s.now(),
		}
		s.participants[machineID] = p
	}
	if sessionID != "" {
		p.SessionID = sessionID
	}
	if workspace != "" {
		p.Workspace = workspace
	}
	p.LastActive = s.now()

	cp := *p
	return &cp, nil
}

// GetParticipant implements Store.
func (s *MemoryStore) GetParticipant(_ context.Context, machineID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// SaveParticipant implements Store.
func (s *MemoryStore) SaveParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.participants[p.MachineID] = &cp
	return nil
}

// ListParticipants implements Store.
func (s *MemoryStore) ListParticipants(_ context.Context, q ParticipantQuery) ([]models.Participant, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		all = append(all, *p)
	}

	sortParticipants(all, q.Sort, q.Order)

	total := int64(len(all))
	start := q.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return all[start:end], total, nil
}

func sortParticipants(ps []models.Participant, key, order string) {
	less := func(a, b *models.Participant) bool { return a.LastActive.Before(b.LastActive) }
	switch key {
	case "suspicionScore":
		less = func(a, b *models.Participant) bool { return a.SuspicionScore < b.SuspicionScore }
	case "totalEvents":
		less = func(a, b *models.Participant) bool { return a.TotalEvents < b.TotalEvents }
	}

	sort.SliceStable(ps, func(i, j int) bool {
		if order == "asc" {
			return less(&ps[i], &ps[j])
		}
		return less(&ps[j], &ps[i])
	})
}

// AppendEvents implements Store.
func (s *MemoryStore) AppendEvents(_ context.Context, participantID string, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[participantID] = append(s.events[participantID], events...)
	return nil
}

// ListEvents implements Store.
func (s *MemoryStore) ListEvents(_ context.Context, participantID string, q EventQuery) ([]models.Event, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []models.Event
	for _, ev := range s.events[participantID] {
		if q.Kind != "" && ev.Kind != q.Kind {
			continue
		}
		if q.FlaggedOnly && !ev.Flagged {
			continue
		}
		filtered = append(filtered, ev)
	}

	// Newest first, matching the timeline index order.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	total := int64(len(filtered))
	start := q.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return filtered[start:end], total, nil
}

// CountFlaggedEvents implements Store.
func (s *MemoryStore) CountFlaggedEvents(_ context.Context, participantID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, ev := range s.events[participantID] {
		if ev.Flagged {
			n++
		}
	}
	return n, nil
}

// SuspicionBreakdown implements Store.
func (s *MemoryStore) SuspicionBreakdown(_ context.Context, participantID string) ([]models.BreakdownRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		kind    models.EventKind
		flagged bool
	}
	acc := make(map[key]*models.BreakdownRow)

	for _, ev := range s.events[participantID] {
		k := key{ev.Kind, ev.Flagged}
		row, ok := acc[k]
		if !ok {
			row = &models.BreakdownRow{Kind: ev.Kind, Flagged: ev.Flagged}
			acc[k] = row
		}
		row.Count++
		row.AvgScore += ev.SuspicionScore // running sum; divided below
		if ev.SuspicionScore > row.MaxScore {
			row.MaxScore = ev.SuspicionScore
		}
	}

	rows := make([]models.BreakdownRow, 0, len(acc))
	for _, row := range acc {
		row.AvgScore /= float64(row.Count)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return !rows[i].Flagged && rows[j].Flagged
	})
	return rows, nil
}

// UpdateTypingPattern implements Store.
func (s *MemoryStore) UpdateTypingPattern(_ context.Context, participantID string, intervals []float64) (*models.TypingPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp, ok := s.typing[participantID]
	if !ok {
		tp = &models.TypingPattern{ParticipantID: participantID}
		s.typing[participantID] = tp
	}
	tp.Append(intervals)
	tp.UpdatedAt = s.now()

	cp := *tp
	cp.Intervals = append([]float64(nil), tp.Intervals...)
	return &cp, nil
}

// GetTypingPattern implements Store.
func (s *MemoryStore) GetTypingPattern(_ context.Context, participantID string) (*models.TypingPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.typing[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tp
	cp.Intervals = append([]float64(nil), tp.Intervals...)
	return &cp, nil
}

// RecentClipboardCount implements Store.
func (s *MemoryStore) RecentClipboardCount(_ context.Context, participantID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.events[participantID] {
		if ev.Kind == models.EventKindClipboard && !ev.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// HasAnyTypingEvent implements Store.
func (s *MemoryStore) HasAnyTypingEvent(_ context.Context, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.events[participantID] {
		if ev.Kind == models.EventKindTyping || ev.Kind == models.EventKindFileChange {
			return true, nil
		}
	}
	return false, nil
}

// GetOrCreateSourceAnalysis implements Store.
func (s *MemoryStore) GetOrCreateSourceAnalysis(_ context.Context, participantID, owner, repo string) (*models.SourceAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, ok := s.analyses[participantID]
	if !ok {
		sa = &models.SourceAnalysis{
			ParticipantID: participantID,
			Owner:         owner,
			Repo:          repo,
		}
		s.analyses[participantID] = sa
	}
	cp := copyAnalysis(sa)
	return cp, nil
}

// GetSourceAnalysis implements Store.
func (s *MemoryStore) GetSourceAnalysis(_ context.Context, participantID string) (*models.SourceAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sa, ok := s.analyses[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAnalysis(sa), nil
}

// PersistSourceAnalysis implements Store.
func (s *MemoryStore) PersistSourceAnalysis(_ context.Context, sa *models.SourceAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa.Truncate()
	s.analyses[sa.ParticipantID] = copyAnalysis(sa)
	return nil
}

// ListSourceAnalyses implements Store.
func (s *MemoryStore) ListSourceAnalyses(_ context.Context) ([]models.SourceAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SourceAnalysis, 0, len(s.analyses))
	for _, sa := range s.analyses {
		out = append(out, *copyAnalysis(sa))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

// SuspiciousParticipants implements Store.
func (s *MemoryStore) SuspiciousParticipants(_ context.Context, limit int) ([]models.SuspiciousParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SuspiciousParticipant
	for id, p := range s.participants {
		if p.SuspicionScore <= 0 {
			continue
		}
		var flagged int64
		for _, ev := range s.events[id] {
			if ev.Flagged {
				flagged++
			}
		}
		out = append(out, models.SuspiciousParticipant{Participant: *p, FlaggedEventCount: flagged})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Participant.SuspicionScore > out[j].Participant.SuspicionScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Overview implements Store.
func (s *MemoryStore) Overview(_ context.Context) (*models.OverviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.OverviewStats{}
	cutoff := s.now().Add(-5 * time.Minute)

	var scoreSum float64
	for id, p := range s.participants {
		stats.TotalParticipants++
		if p.LastActive.After(cutoff) {
			stats.ActiveParticipants++
		}
		scoreSum += p.SuspicionScore
		for _, ev := range s.events[id] {
			stats.TotalEvents++
			if ev.Flagged {
				stats.FlaggedEvents++
			}
		}
	}
	if stats.TotalParticipants > 0 {
		stats.AvgSuspicion = scoreSum / float64(stats.TotalParticipants)
	}
	return stats, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// copyAnalysis deep-copies a source analysis so callers cannot mutate the
// stored record through returned slices.
func copyAnalysis(sa *models.SourceAnalysis) *models.SourceAnalysis {
	cp := *sa
	cp.SuspiciousCommits = append([]models.SuspiciousCommit(nil), sa.SuspiciousCommits...)
	cp.BurstCommits = append([]models.BurstCommit(nil), sa.BurstCommits...)
	cp.IdleBursts = append([]models.IdleBurst(nil), sa.IdleBursts...)
	cp.SimilarityMatches = append([]models.SimilarityMatch(nil), sa.SimilarityMatches...)
	return &cp
}

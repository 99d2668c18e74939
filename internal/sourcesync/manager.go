// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package sourcesync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/fingerprint"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/store"
)

// Broadcaster is the live-fabric surface the scheduler needs. Implemented
// by *websocket.Hub.
type Broadcaster interface {
	BroadcastSourceAnalysisUpdated(models.SourceAnalysisSummary)
}

// Manager is the sync scheduler: a cooperative loop with a startup delay,
// a ticker, and an isRunning guard enforcing at most one cycle per process
// at any instant. Skipped ticks are logged, never queued.
type Manager struct {
	store       store.Store
	client      Client
	cfg         *config.SourceConfig
	broadcaster Broadcaster
	fpCache     *fingerprint.Cache

	isRunning atomic.Bool
	now       func() time.Time
}

// NewManager wires the scheduler. broadcaster and fpCache may be nil.
func NewManager(st store.Store, client Client, cfg *config.SourceConfig, broadcaster Broadcaster, fpCache *fingerprint.Cache) *Manager {
	return &Manager{
		store:       st,
		client:      client,
		cfg:         cfg,
		broadcaster: broadcaster,
		fpCache:     fpCache,
		now:         time.Now,
	}
}

// Serve implements suture.Service: startup delay, initial cycle, then the
// periodic loop until the context is canceled.
func (m *Manager) Serve(ctx context.Context) error {
	logging.Info().
		Dur("startup_delay", m.cfg.StartupDelay).
		Dur("interval", m.cfg.Interval()).
		Float64("similarity_threshold", m.cfg.SimilarityThreshold).
		Msg("sync scheduler starting")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.StartupDelay):
	}

	// Cycles run off the loop goroutine so a slow cycle causes the next
	// tick to be skipped rather than silently delayed.
	go m.tick(ctx)

	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			go m.tick(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Manager) String() string { return "sync-scheduler" }

// tick runs one cycle unless the previous one is still in flight, in which
// case the tick is skipped with a warning.
func (m *Manager) tick(ctx context.Context) {
	if !m.isRunning.CompareAndSwap(false, true) {
		logging.Warn().Msg("previous sync cycle still running, skipping tick")
		metrics.SyncCycles.WithLabelValues("skipped").Inc()
		return
	}
	defer m.isRunning.Store(false)

	m.runCycle(ctx)
}

// runCycle enumerates all registered repositories, monitors each one
// sequentially (respecting the source host's rate limits), then runs the
// cross-repository comparison when at least two repos were syncable.
func (m *Manager) runCycle(ctx context.Context) {
	started := m.now()

	analyses, err := m.store.ListSourceAnalyses(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to enumerate source analyses")
		return
	}
	if len(analyses) == 0 {
		metrics.SyncCycles.WithLabelValues("completed").Inc()
		return
	}

	synced := 0
	for i := range analyses {
		sa := &analyses[i]
		if _, err := m.MonitorRepository(ctx, sa.Owner, sa.Repo, sa.ParticipantID); err != nil {
			// One bad repo must not stop the others.
			metrics.SyncRepoErrors.Inc()
			logging.Warn().Err(err).
				Str("repo", sa.Owner+"/"+sa.Repo).
				Str("participant", sa.ParticipantID).
				Msg("repository sync failed, skipping this cycle")
			continue
		}
		synced++
	}

	if synced >= 2 {
		m.crossCompare(ctx, m.cfg.SimilarityThreshold)
	}

	duration := m.now().Sub(started)
	metrics.SyncCycles.WithLabelValues("completed").Inc()
	metrics.SyncCycleDuration.Observe(duration.Seconds())
	logging.Info().
		Int("repos", len(analyses)).
		Int("synced", synced).
		Dur("duration", duration).
		Msg("sync cycle completed")
}

// VerifyRepository checks that a repository exists and is readable with
// the configured token, returning its metadata. Used at registration.
func (m *Manager) VerifyRepository(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	return m.client.GetRepository(ctx, owner, repo)
}

// MonitorRepository incrementally fetches and analyses one repository's
// commits, merges the results into its analysis record, recomputes the
// source suspicion score and persists. Also called synchronously by the
// on-demand sync endpoint.
func (m *Manager) MonitorRepository(ctx context.Context, owner, repo, participantID string) (*models.SourceAnalysis, error) {
	sa, err := m.store.GetOrCreateSourceAnalysis(ctx, participantID, owner, repo)
	if err != nil {
		return nil, err
	}

	newCommits, err := m.fetchNewCommits(ctx, sa)
	if err != nil {
		return nil, err
	}

	if len(newCommits) > 0 {
		analysis := analyzeCommits(newCommits)

		// Aggregate stats and timing are replaced wholesale; the
		// bounded lists accumulate and truncate.
		sa.Stats = analysis.Stats
		sa.Timing = analysis.Timing
		sa.SuspiciousCommits = append(sa.SuspiciousCommits, analysis.Suspicious...)
		sa.BurstCommits = append(sa.BurstCommits, analysis.Bursts...)
		sa.IdleBursts = append(sa.IdleBursts, analysis.IdleBursts...)
		sa.AvgCommitSuspicionScore = analysis.AvgCommitScore
		sa.LastProcessedCommitID = newCommits[len(newCommits)-1].ID
	}

	sa.LastSyncAt = m.now()
	recomputeSourceScore(sa)

	if err := m.store.PersistSourceAnalysis(ctx, sa); err != nil {
		return nil, err
	}

	if m.broadcaster != nil {
		m.broadcaster.BroadcastSourceAnalysisUpdated(sa.Summary())
	}

	logging.Debug().
		Str("repo", owner+"/"+repo).
		Int("new_commits", len(newCommits)).
		Float64("source_score", sa.SourceSuspicionScore).
		Msg("repository monitored")

	return sa, nil
}

// fetchNewCommits lists commits since the previous cycle's wall clock and
// walks newest-to-oldest until the last processed commit id, bounding the
// incremental window. Returns the new commits oldest first, stats fetched.
func (m *Manager) fetchNewCommits(ctx context.Context, sa *models.SourceAnalysis) ([]models.Commit, error) {
	refs, err := m.client.ListCommits(ctx, sa.Owner, sa.Repo, sa.LastSyncAt)
	if err != nil {
		return nil, err
	}

	var window []CommitRef
	for _, ref := range refs {
		if ref.ID == sa.LastProcessedCommitID {
			break
		}
		window = append(window, ref)
	}

	// Reverse to oldest-first before analysis.
	commits := make([]models.Commit, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		commit, err := m.client.GetCommit(ctx, sa.Owner, sa.Repo, window[i].ID)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *commit)
	}
	return commits, nil
}

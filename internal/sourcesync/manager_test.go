// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package sourcesync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/fingerprint"
	"github.com/invigil/invigil/internal/models"
	"github.com/invigil/invigil/internal/store"
)

// fakeClient serves canned repositories keyed by "owner/repo".
type fakeClient struct {
	mu      sync.Mutex
	commits map[string][]models.Commit // oldest first
	files   map[string][]fingerprint.File
	fail    map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		commits: make(map[string][]models.Commit),
		files:   make(map[string][]fingerprint.File),
		fail:    make(map[string]error),
	}
}

func repoKey(owner, repo string) string { return owner + "/" + repo }

func (f *fakeClient) GetRepository(_ context.Context, owner, repo string) (*RepoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[repoKey(owner, repo)]; err != nil {
		return nil, err
	}
	if _, ok := f.commits[repoKey(owner, repo)]; !ok {
		return nil, ErrRepoNotFound
	}
	return &RepoInfo{Owner: owner, Name: repo, DefaultBranch: "main"}, nil
}

func (f *fakeClient) ListCommits(_ context.Context, owner, repo string, _ time.Time) ([]CommitRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[repoKey(owner, repo)]; err != nil {
		return nil, err
	}

	seq := f.commits[repoKey(owner, repo)]
	refs := make([]CommitRef, 0, len(seq))
	// Newest first, mirroring the source host's listing order.
	for i := len(seq) - 1; i >= 0; i-- {
		refs = append(refs, CommitRef{ID: seq[i].ID, Message: seq[i].Message, Timestamp: seq[i].Timestamp})
	}
	return refs, nil
}

func (f *fakeClient) GetCommit(_ context.Context, owner, repo, id string) (*models.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commits[repoKey(owner, repo)] {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrRepoNotFound
}

func (f *fakeClient) ListCodeFiles(_ context.Context, owner, repo string) ([]fingerprint.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[repoKey(owner, repo)]; err != nil {
		return nil, err
	}
	return f.files[repoKey(owner, repo)], nil
}

// fakeSourceBroadcaster records analysis fan-out.
type fakeSourceBroadcaster struct {
	mu        sync.Mutex
	summaries []models.SourceAnalysisSummary
}

func (f *fakeSourceBroadcaster) BroadcastSourceAnalysisUpdated(s models.SourceAnalysisSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
}

func testSourceConfig() *config.SourceConfig {
	return &config.SourceConfig{
		Token:               "token",
		APIURL:              "https://example.invalid",
		SyncIntervalMin:     5,
		StartupDelay:        time.Millisecond,
		SimilarityThreshold: 0.8,
		RequestTimeout:      time.Second,
		RequestsPerSecond:   100,
	}
}

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func mkCommit(id string, at time.Time, add, del, files int, msg string) models.Commit {
	return models.Commit{ID: id, Message: msg, Timestamp: at, Additions: add, Deletions: del, FilesChanged: files}
}

func TestMonitorRepository_BurstCommits(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	b := &fakeSourceBroadcaster{}
	m := NewManager(st, client, testSourceConfig(), b, nil)
	ctx := context.Background()

	client.commits["alice/contest"] = []models.Commit{
		mkCommit("c1", base, 10, 0, 1, "init"),
		mkCommit("c2", base.Add(60*time.Second), 20, 0, 1, "x"),
		mkCommit("c3", base.Add(90*time.Second), 30, 0, 1, "y"),
	}

	sa, err := m.MonitorRepository(ctx, "alice", "contest", "p-1")
	require.NoError(t, err)

	assert.Len(t, sa.BurstCommits, 2)
	assert.Len(t, sa.SuspiciousCommits, 2)
	assert.Equal(t, 0.133, sa.AvgCommitSuspicionScore)
	assert.Equal(t, "c3", sa.LastProcessedCommitID)
	assert.False(t, sa.LastSyncAt.IsZero())
	assert.Equal(t, 3, sa.Stats.TotalCommits)

	require.NotEmpty(t, b.summaries)
	assert.Equal(t, "p-1", b.summaries[len(b.summaries)-1].ParticipantID)
}

func TestMonitorRepository_IncrementalShortCircuit(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	client.commits["alice/contest"] = []models.Commit{
		mkCommit("c1", base, 10, 0, 1, "first working version"),
		mkCommit("c2", base.Add(10*time.Minute), 20, 0, 1, "second working version"),
	}

	sa, err := m.MonitorRepository(ctx, "alice", "contest", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "c2", sa.LastProcessedCommitID)

	// A later commit arrives; only it is re-analysed even though the
	// listing re-serves already-processed commits.
	client.mu.Lock()
	client.commits["alice/contest"] = append(client.commits["alice/contest"],
		mkCommit("c3", base.Add(20*time.Minute), 5, 0, 1, "third working version"))
	client.mu.Unlock()

	sa, err = m.MonitorRepository(ctx, "alice", "contest", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "c3", sa.LastProcessedCommitID)
	// Stats replaced wholesale reflect the incremental window only.
	assert.Equal(t, 1, sa.Stats.TotalCommits)
}

func TestRunCycle_OneBadRepoDoesNotStopOthers(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	_, err := st.GetOrCreateSourceAnalysis(ctx, "p-bad", "bad", "repo")
	require.NoError(t, err)
	_, err = st.GetOrCreateSourceAnalysis(ctx, "p-good", "good", "repo")
	require.NoError(t, err)

	client.fail["bad/repo"] = ErrRemoteUnavailable
	client.commits["good/repo"] = []models.Commit{
		mkCommit("c1", base, 10, 0, 1, "only commit so far"),
	}

	m.runCycle(ctx)

	sa, err := st.GetSourceAnalysis(ctx, "p-good")
	require.NoError(t, err)
	assert.Equal(t, "c1", sa.LastProcessedCommitID)
}

func TestCrossComparison_PlagiarismCascade(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	content := "function solve(n){ let acc = 0; for (let i=0;i<n;i++){ acc += i*i; } return acc; }"
	client.commits["alice/contest"] = []models.Commit{mkCommit("a1", base, 10, 0, 1, "alice first commit")}
	client.commits["bob/contest"] = []models.Commit{mkCommit("b1", base, 10, 0, 1, "bob first commit")}
	client.files["alice/contest"] = []fingerprint.File{{Path: "index.js", Content: content}}
	client.files["bob/contest"] = []fingerprint.File{{Path: "index.js", Content: content}}

	_, err := st.GetOrCreateSourceAnalysis(ctx, "p-alice", "alice", "contest")
	require.NoError(t, err)
	_, err = st.GetOrCreateSourceAnalysis(ctx, "p-bob", "bob", "contest")
	require.NoError(t, err)

	m.runCycle(ctx)

	alice, err := st.GetSourceAnalysis(ctx, "p-alice")
	require.NoError(t, err)
	bob, err := st.GetSourceAnalysis(ctx, "p-bob")
	require.NoError(t, err)

	require.Len(t, alice.SimilarityMatches, 1)
	require.Len(t, bob.SimilarityMatches, 1)

	assert.Equal(t, 1.0, alice.HighestSimilarity)
	assert.Equal(t, 1.0, bob.HighestSimilarity)
	assert.True(t, alice.SimilarityMatches[0].IdenticalContent)

	// The file pair is swapped on the second side.
	assert.Equal(t, alice.SimilarityMatches[0].File1, bob.SimilarityMatches[0].File2)
	assert.Equal(t, "p-bob", alice.SimilarityMatches[0].OtherParticipantID)
	assert.Equal(t, "p-alice", bob.SimilarityMatches[0].OtherParticipantID)

	// Both sides gained the full plagiarism contribution.
	assert.GreaterOrEqual(t, alice.SourceSuspicionScore, 0.4)
	assert.GreaterOrEqual(t, bob.SourceSuspicionScore, 0.4)
}

func TestHighestSimilarity_Monotone(t *testing.T) {
	sa := &models.SourceAnalysis{ParticipantID: "p-1"}
	sa.RecordSimilarity(models.SimilarityMatch{Similarity: 0.9})
	sa.RecordSimilarity(models.SimilarityMatch{Similarity: 0.85})

	assert.Equal(t, 0.9, sa.HighestSimilarity)
}

func TestCompareParticipants_OnDemand(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	content := "function solve(n){ return n * (n + 1) / 2; } // closed form"
	client.commits["alice/contest"] = nil
	client.commits["bob/contest"] = nil
	client.files["alice/contest"] = []fingerprint.File{{Path: "main.js", Content: content}}
	client.files["bob/contest"] = []fingerprint.File{{Path: "main.js", Content: content}}

	_, err := st.GetOrCreateSourceAnalysis(ctx, "p-alice", "alice", "contest")
	require.NoError(t, err)
	_, err = st.GetOrCreateSourceAnalysis(ctx, "p-bob", "bob", "contest")
	require.NoError(t, err)

	matches, err := m.CompareParticipants(ctx, "p-alice", "p-bob", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].Similarity)

	alice, err := st.GetSourceAnalysis(ctx, "p-alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, alice.HighestSimilarity)
}

func TestTick_MutualExclusion(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)

	// Hold the guard as a running cycle would.
	require.True(t, m.isRunning.CompareAndSwap(false, true))

	done := make(chan struct{})
	go func() {
		m.tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick should return immediately when a cycle is running")
	}

	m.isRunning.Store(false)
}

func TestFetchNewCommits_EmptyRepo(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	client.commits["alice/empty"] = nil

	sa, err := m.MonitorRepository(ctx, "alice", "empty", "p-1")
	require.NoError(t, err)
	assert.Empty(t, sa.LastProcessedCommitID)
	assert.Equal(t, 0.0, sa.SourceSuspicionScore)
}

func TestMonitorRepository_TruncatesBoundedLists(t *testing.T) {
	st := store.NewMemoryStore()
	client := newFakeClient()
	m := NewManager(st, client, testSourceConfig(), nil, nil)
	ctx := context.Background()

	// 260 rapid tiny commits: every one after the first is a burst and
	// suspicious, overflowing both bounded lists.
	var seq []models.Commit
	for i := 0; i < 260; i++ {
		seq = append(seq, mkCommit(
			fmt.Sprintf("c%03d", i),
			base.Add(time.Duration(i)*time.Minute),
			1, 0, 1, "quick incremental step"))
	}
	client.commits["alice/contest"] = seq

	sa, err := m.MonitorRepository(ctx, "alice", "contest", "p-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sa.SuspiciousCommits), models.MaxSuspiciousCommits)
	assert.LessOrEqual(t, len(sa.BurstCommits), models.MaxBurstCommits)
}

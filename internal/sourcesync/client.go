// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package sourcesync is the periodic source-history analyser: a scheduler
// that walks each registered repository's new commits through the commit
// analyser and runs the winnowing cross-repository comparison.
package sourcesync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/fingerprint"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
)

// Client fetch errors.
var (
	// ErrRemoteUnavailable indicates the source host rejected or failed
	// the call; the scheduler skips the repo for this cycle.
	ErrRemoteUnavailable = errors.New("source host unavailable")

	// ErrRemoteTimeout indicates the call exceeded its deadline.
	ErrRemoteTimeout = errors.New("source host timeout")

	// ErrRepoNotFound indicates the repository does not exist or the
	// token cannot see it.
	ErrRepoNotFound = errors.New("repository not found")
)

// Client is the read surface of the source-host API the scheduler needs.
type Client interface {
	// GetRepository verifies accessibility and returns the default branch.
	GetRepository(ctx context.Context, owner, repo string) (*RepoInfo, error)

	// ListCommits returns commit references newest first, optionally
	// bounded by since.
	ListCommits(ctx context.Context, owner, repo string, since time.Time) ([]CommitRef, error)

	// GetCommit fetches one commit's stats.
	GetCommit(ctx context.Context, owner, repo, id string) (*models.Commit, error)

	// ListCodeFiles fetches the repository's eligible code files.
	ListCodeFiles(ctx context.Context, owner, repo string) ([]fingerprint.File, error)
}

// RepoInfo is the repository metadata used at registration.
type RepoInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
}

// CommitRef is one entry of a commit listing, before stats are fetched.
type CommitRef struct {
	ID        string
	Message   string
	Timestamp time.Time
}

// HTTPClient talks to a GitHub-style REST API. Calls are paced by a rate
// limiter and guarded by a circuit breaker so a degraded source host fails
// fast instead of stalling every cycle.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPClient builds the client from the source configuration.
func NewHTTPClient(cfg *config.SourceConfig) *HTTPClient {
	const breakerName = "source-host"

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: breaker,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// get performs one paced, breaker-guarded GET and returns the body.
func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrRepoNotFound
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
		}

		return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	})
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues("source-host", outcomeLabel(err)).Inc()
		return nil, classifyErr(err)
	}

	metrics.CircuitBreakerRequests.WithLabelValues("source-host", "success").Inc()
	return body, nil
}

func outcomeLabel(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "rejected"
	}
	return "failure"
}

// classifyErr folds transport errors into the package taxonomy.
func classifyErr(err error) error {
	switch {
	case errors.Is(err, ErrRepoNotFound), errors.Is(err, ErrRemoteUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
}

// GetRepository implements Client.
func (c *HTTPClient) GetRepository(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Name          string `json:"name"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed repository response: %v", ErrRemoteUnavailable, err)
	}

	return &RepoInfo{
		Owner:         payload.Owner.Login,
		Name:          payload.Name,
		DefaultBranch: payload.DefaultBranch,
	}, nil
}

// ListCommits implements Client. The listing arrives newest first.
func (c *HTTPClient) ListCommits(ctx context.Context, owner, repo string, since time.Time) ([]CommitRef, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits?per_page=100", owner, repo)
	if !since.IsZero() {
		path += "&since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed commit listing: %v", ErrRemoteUnavailable, err)
	}

	refs := make([]CommitRef, 0, len(payload))
	for _, entry := range payload {
		refs = append(refs, CommitRef{
			ID:        entry.SHA,
			Message:   entry.Commit.Message,
			Timestamp: entry.Commit.Author.Date,
		})
	}
	return refs, nil
}

// GetCommit implements Client.
func (c *HTTPClient) GetCommit(ctx context.Context, owner, repo, id string) (*models.Commit, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, id))
	if err != nil {
		return nil, err
	}

	var payload struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		Stats struct {
			Additions int `json:"additions"`
			Deletions int `json:"deletions"`
		} `json:"stats"`
		Files []struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed commit response: %v", ErrRemoteUnavailable, err)
	}

	return &models.Commit{
		ID:           payload.SHA,
		Message:      payload.Commit.Message,
		Timestamp:    payload.Commit.Author.Date,
		Additions:    payload.Stats.Additions,
		Deletions:    payload.Stats.Deletions,
		FilesChanged: len(payload.Files),
	}, nil
}

// ListCodeFiles implements Client: walks the default branch tree and
// fetches every eligible file's content.
func (c *HTTPClient) ListCodeFiles(ctx context.Context, owner, repo string) ([]fingerprint.File, error) {
	info, err := c.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	branch := info.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, url.PathEscape(branch)))
	if err != nil {
		return nil, err
	}

	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int    `json:"size"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("%w: malformed tree response: %v", ErrRemoteUnavailable, err)
	}

	var files []fingerprint.File
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !fingerprint.Eligible(entry.Path, entry.Size) {
			continue
		}
		content, err := c.fetchContent(ctx, owner, repo, entry.Path)
		if err != nil {
			logging.Warn().Err(err).
				Str("repo", owner+"/"+repo).
				Str("path", entry.Path).
				Msg("failed to fetch file, skipping")
			continue
		}
		files = append(files, fingerprint.File{Path: entry.Path, Content: content})
	}
	return files, nil
}

// fetchContent reads one file through the contents API (base64 payload).
func (c *HTTPClient) fetchContent(ctx context.Context, owner, repo, path string) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path)))
	if err != nil {
		return "", err
	}

	var payload struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed contents response: %v", ErrRemoteUnavailable, err)
	}
	if payload.Encoding != "base64" {
		return payload.Content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("%w: undecodable file content: %v", ErrRemoteUnavailable, err)
	}
	return string(decoded), nil
}

// escapePath escapes each path segment while keeping separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer drives the HTTPServer interface.
type mockServer struct {
	listenErr   error
	listenBlock chan struct{}
	shutdownErr error
	shutdowns   int
}

func (m *mockServer) ListenAndServe() error {
	if m.listenBlock != nil {
		<-m.listenBlock
		return http.ErrServerClosed
	}
	return m.listenErr
}

func (m *mockServer) Shutdown(context.Context) error {
	m.shutdowns++
	if m.listenBlock != nil {
		close(m.listenBlock)
	}
	return m.shutdownErr
}

func TestHTTPServerService_StartupFailure(t *testing.T) {
	svc := NewHTTPServerService(&mockServer{listenErr: errors.New("bind failed")}, time.Second)
	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := &mockServer{listenBlock: make(chan struct{})}
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 1, server.shutdowns)
}

func TestHTTPServerService_CleanClose(t *testing.T) {
	// ErrServerClosed without cancellation is a clean stop.
	svc := NewHTTPServerService(&mockServer{listenErr: http.ErrServerClosed}, time.Second)
	assert.NoError(t, svc.Serve(context.Background()))
}

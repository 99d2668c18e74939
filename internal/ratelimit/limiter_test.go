// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package ratelimit

import (
	"testing"
	"time"
)

func TestKeyedLimiter_BoundaryAtLimit(t *testing.T) {
	l := NewKeyedLimiter(100, time.Minute)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	// The 100th request passes, the 101st is rejected.
	for i := 1; i <= 100; i++ {
		if !l.Allow("m-1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("m-1") {
		t.Error("request 101 should be rejected")
	}
}

func TestKeyedLimiter_KeysAreIndependent(t *testing.T) {
	l := NewKeyedLimiter(2, time.Minute)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests for key a should pass")
	}
	if l.Allow("a") {
		t.Error("third request for key a should be rejected")
	}
	if !l.Allow("b") {
		t.Error("key b must not be affected by key a")
	}
}

func TestKeyedLimiter_WindowSlides(t *testing.T) {
	l := NewKeyedLimiter(2, time.Minute)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	l.Allow("m-1")
	l.Allow("m-1")
	if l.Allow("m-1") {
		t.Fatal("limit should be reached")
	}

	// After the full window passes, the key is fresh again.
	now = now.Add(61 * time.Second)
	if !l.Allow("m-1") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestKeyedLimiter_SweepDropsIdleKeys(t *testing.T) {
	l := NewKeyedLimiter(10, time.Minute)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	l.Allow("idle")
	now = now.Add(5 * time.Minute)
	l.Allow("fresh")

	l.mu.Lock()
	_, idlePresent := l.windows["idle"]
	l.mu.Unlock()
	if idlePresent {
		t.Error("idle key should have been swept")
	}
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package ratelimit implements the per-participant admission limit: a keyed
// sliding-window counter over a fixed 60 s window. The global cross-client
// limit is handled separately by chi's httprate middleware; this limiter
// exists because the per-participant key is the machineId inside the JSON
// body, which is only known after decoding.
package ratelimit

import (
	"sync"
	"time"
)

// slidingWindow is a memory-efficient sliding window counter. Time is
// divided into buckets whose sum approximates the count within the window.
//
// Complexity: Increment O(1), Count O(k) with k = bucket count.
type slidingWindow struct {
	buckets    []int64
	bucketSize time.Duration
	current    int
	lastUpdate time.Time
}

func newSlidingWindow(window time.Duration, numBuckets int, now time.Time) *slidingWindow {
	return &slidingWindow{
		buckets:    make([]int64, numBuckets),
		bucketSize: window / time.Duration(numBuckets),
		lastUpdate: now,
	}
}

// advance rotates the circular buffer forward, zeroing expired buckets.
func (sw *slidingWindow) advance(now time.Time) {
	elapsed := now.Sub(sw.lastUpdate)
	if elapsed < sw.bucketSize {
		return
	}

	steps := int(elapsed / sw.bucketSize)
	if steps >= len(sw.buckets) {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
	} else {
		for i := 0; i < steps; i++ {
			sw.current = (sw.current + 1) % len(sw.buckets)
			sw.buckets[sw.current] = 0
		}
	}
	sw.lastUpdate = sw.lastUpdate.Add(time.Duration(steps) * sw.bucketSize)
}

func (sw *slidingWindow) count(now time.Time) int64 {
	sw.advance(now)
	var total int64
	for _, c := range sw.buckets {
		total += c
	}
	return total
}

func (sw *slidingWindow) increment(now time.Time) {
	sw.advance(now)
	sw.buckets[sw.current]++
}

// KeyedLimiter enforces a per-key request cap within a sliding window.
type KeyedLimiter struct {
	mu         sync.Mutex
	windows    map[string]*slidingWindow
	limit      int64
	window     time.Duration
	numBuckets int
	now        func() time.Time

	lastSweep time.Time
}

// NewKeyedLimiter creates a limiter allowing limit requests per key within
// the given window.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		windows:    make(map[string]*slidingWindow),
		limit:      int64(limit),
		window:     window,
		numBuckets: 12,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (l *KeyedLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records one request for key and reports whether it is within the
// limit. The Nth request passes when fewer than limit requests were seen in
// the current window before it; the request itself is counted either way so
// sustained abuse keeps the key saturated.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	sw, ok := l.windows[key]
	if !ok {
		sw = newSlidingWindow(l.window, l.numBuckets, now)
		l.windows[key] = sw
	}

	allowed := sw.count(now) < l.limit
	sw.increment(now)
	return allowed
}

// sweep drops windows idle for longer than two full windows, bounding
// memory on churning key sets.
func (l *KeyedLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	idleCutoff := now.Add(-2 * l.window)
	for key, sw := range l.windows {
		if sw.lastUpdate.Before(idleCutoff) {
			delete(l.windows, key)
		}
	}
}

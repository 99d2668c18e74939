// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

import (
	"math"
	"time"
)

const (
	// MaxTypingIntervals caps the stored inter-keystroke sequence.
	MaxTypingIntervals = 10000

	// TypingTruncateTo is the length kept after an overflow: the oldest
	// 2000 samples are discarded, preserving the most recent 8000.
	TypingTruncateTo = 8000
)

// TypingPattern is the per-participant inter-keystroke interval sequence
// plus derived statistics.
//
// Invariant: len(Intervals) <= MaxTypingIntervals; after overflow,
// len(Intervals) == TypingTruncateTo.
type TypingPattern struct {
	ParticipantID string    `json:"participantId"`
	Intervals     []float64 `json:"intervals"` // milliseconds
	MeanInterval  float64   `json:"meanInterval"`
	Variance      float64   `json:"variance"`
	StdDev        float64   `json:"stdDev"`
	SampleCount   int       `json:"sampleCount"`
	WPM           float64   `json:"wpm"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Append adds intervals, applies the overflow truncation rule, and
// recomputes the derived statistics.
func (tp *TypingPattern) Append(intervals []float64) {
	tp.Intervals = append(tp.Intervals, intervals...)
	if len(tp.Intervals) > MaxTypingIntervals {
		keep := tp.Intervals[len(tp.Intervals)-TypingTruncateTo:]
		tp.Intervals = append([]float64(nil), keep...)
	}
	tp.recompute()
}

// recompute refreshes mean, population variance, standard deviation and the
// words-per-minute estimate (60000 / mean_interval / 5).
func (tp *TypingPattern) recompute() {
	n := len(tp.Intervals)
	tp.SampleCount = n
	if n == 0 {
		tp.MeanInterval, tp.Variance, tp.StdDev, tp.WPM = 0, 0, 0, 0
		return
	}

	var sum float64
	for _, v := range tp.Intervals {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range tp.Intervals {
		d := v - mean
		sq += d * d
	}
	variance := sq / float64(n)

	tp.MeanInterval = mean
	tp.Variance = variance
	tp.StdDev = math.Sqrt(variance)
	if mean > 0 {
		tp.WPM = 60000 / mean / 5
	} else {
		tp.WPM = 0
	}
}

// TypingStats are batch-local statistics over the intervals submitted with
// a single agent batch, fed to the event scorer.
type TypingStats struct {
	AvgInterval float64 `json:"avgInterval"`
	Variance    float64 `json:"variance"`
}

// ComputeTypingStats returns the arithmetic mean and population variance of
// the given intervals. Empty input yields zeros.
func ComputeTypingStats(intervals []float64) TypingStats {
	n := len(intervals)
	if n == 0 {
		return TypingStats{}
	}

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range intervals {
		d := v - mean
		sq += d * d
	}

	return TypingStats{AvgInterval: mean, Variance: sq / float64(n)}
}

// RecentContext is the per-participant derived state the ingest pipeline
// hands to the scorer: clipboard activity in the last 60 s and whether any
// typing or file_change event has ever been recorded.
type RecentContext struct {
	ClipboardChanges60s int  `json:"clipboardChanges60s"`
	HadTypingBefore     bool `json:"hadTypingBefore"`
}

// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// EventKind identifies the type of a telemetry event.
type EventKind string

const (
	EventKindPaste         EventKind = "paste"
	EventKindTyping        EventKind = "typing"
	EventKindFileChange    EventKind = "file_change"
	EventKindFileOperation EventKind = "file_operation"
	EventKindWindowBlur    EventKind = "window_blur"
	EventKindClipboard     EventKind = "clipboard"
)

// ValidEventKind reports whether k is one of the known event kinds.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventKindPaste, EventKindTyping, EventKindFileChange,
		EventKindFileOperation, EventKindWindowBlur, EventKindClipboard:
		return true
	}
	return false
}

// FlagThreshold is the event score at or above which an event is flagged.
const FlagThreshold = 0.5

// Event is an immutable scored telemetry record belonging to one
// participant. Created by the ingest pipeline, never modified after.
type Event struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participantId"`
	Kind          EventKind       `json:"kind"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	Workspace     string          `json:"workspace,omitempty"`

	SuspicionScore float64  `json:"suspicionScore"`
	Flagged        bool     `json:"flagged"`
	Reasons        []string `json:"reasons,omitempty"`
}

// The per-kind payload shapes the scorer destructures out of Event.Data.
// Data stays opaque for storage; only the fields a rule reads are decoded,
// unknown fields are ignored.

// PasteData is the payload of a paste event.
type PasteData struct {
	// Length is the inserted character count.
	Length int `json:"length"`

	// Elapsed is milliseconds since the previous edit. Telemetry only;
	// it does not participate in scoring.
	Elapsed int64 `json:"elapsed"`
}

// TypingData is the payload of a typing event.
type TypingData struct {
	Anomaly  string  `json:"anomaly,omitempty"`
	Interval float64 `json:"interval,omitempty"`
}

// WindowBlurData is the payload of a window_blur event.
type WindowBlurData struct {
	Focused             bool  `json:"focused"`
	UnfocusedDurationMs int64 `json:"unfocusedDurationMs"`
}

// FileOperationData is the payload of a file_operation event.
type FileOperationData struct {
	Operation string `json:"operation"` // create, delete
	Path      string `json:"path,omitempty"`
}

// DecodePasteData decodes a paste payload, tolerating a missing body.
func DecodePasteData(raw json.RawMessage) PasteData {
	var d PasteData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

// DecodeTypingData decodes a typing payload, tolerating a missing body.
func DecodeTypingData(raw json.RawMessage) TypingData {
	var d TypingData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

// DecodeWindowBlurData decodes a window_blur payload.
func DecodeWindowBlurData(raw json.RawMessage) WindowBlurData {
	var d WindowBlurData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

// DecodeFileOperationData decodes a file_operation payload.
func DecodeFileOperationData(raw json.RawMessage) FileOperationData {
	var d FileOperationData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

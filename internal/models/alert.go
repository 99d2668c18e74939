// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package models

import (
	"time"
)

// AlertLevel indicates the severity of an evaluated alert.
type AlertLevel string

const (
	AlertLevelNone     AlertLevel = "none"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert is an evaluated alarm condition for one participant, broadcast to
// dashboard observers and optionally delivered to outbound channels.
type Alert struct {
	ID                  string     `json:"id"`
	MachineID           string     `json:"machineId"`
	ExternalAccountName string     `json:"externalAccountName,omitempty"`
	Level               AlertLevel `json:"level"`
	Reasons             []string   `json:"reasons"`
	Score               float64    `json:"score"`
	Timestamp           time.Time  `json:"timestamp"`
}

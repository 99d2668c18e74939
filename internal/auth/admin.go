// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/invigil/invigil/internal/config"
)

// AdminCredential validates the dashboard admin login. The configuration
// supplies either a plaintext password (hashed here at startup) or a
// precomputed bcrypt hash; the hash wins when both are set.
type AdminCredential struct {
	username     string
	passwordHash []byte
}

// NewAdminCredential builds the credential from the security config.
func NewAdminCredential(cfg *config.SecurityConfig) (*AdminCredential, error) {
	if cfg.AdminUsername == "" {
		return nil, fmt.Errorf("admin username is required")
	}

	if cfg.AdminPasswordHash != "" {
		// Reject malformed hashes at startup rather than at login time.
		if _, err := bcrypt.Cost([]byte(cfg.AdminPasswordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash is not a valid bcrypt hash: %w", err)
		}
		return &AdminCredential{
			username:     cfg.AdminUsername,
			passwordHash: []byte(cfg.AdminPasswordHash),
		}, nil
	}

	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("admin password or password hash is required")
	}
	if len(cfg.AdminPassword) < 8 {
		return nil, fmt.Errorf("admin password must be at least 8 characters")
	}

	// Cost 12 balances login latency against brute-force resistance.
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &AdminCredential{
		username:     cfg.AdminUsername,
		passwordHash: hash,
	}, nil
}

// Validate checks a username/password pair. Both comparisons always run so
// response timing does not reveal which part failed.
func (c *AdminCredential) Validate(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// Username returns the configured admin username.
func (c *AdminCredential) Username() string {
	return c.username
}

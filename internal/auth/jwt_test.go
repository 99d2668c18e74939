// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigil/invigil/internal/config"
)

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		JWTSecret:     "0123456789abcdef0123456789abcdef",
		TokenLifetime: 12 * time.Hour,
		AdminUsername: "admin",
		AdminPassword: "correct-horse-battery",
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m, err := NewJWTManager(testSecurityConfig())
	require.NoError(t, err)

	token, err := m.GenerateToken("u-1", "admin", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.ID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	assert.Equal(t, 12*time.Hour, lifetime)
}

func TestJWTManager_RejectsShortSecret(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.JWTSecret = "too-short"
	_, err := NewJWTManager(cfg)
	assert.Error(t, err)
}

func TestJWTManager_RejectsTamperedToken(t *testing.T) {
	m, err := NewJWTManager(testSecurityConfig())
	require.NoError(t, err)

	token, err := m.GenerateToken("u-1", "admin", "admin")
	require.NoError(t, err)

	_, err = m.ValidateToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	m1, err := NewJWTManager(testSecurityConfig())
	require.NoError(t, err)

	other := testSecurityConfig()
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	m2, err := NewJWTManager(other)
	require.NoError(t, err)

	token, err := m1.GenerateToken("u-1", "admin", "admin")
	require.NoError(t, err)

	_, err = m2.ValidateToken(token)
	assert.Error(t, err)
}

func TestAdminCredential_PlaintextPassword(t *testing.T) {
	cred, err := NewAdminCredential(testSecurityConfig())
	require.NoError(t, err)

	assert.True(t, cred.Validate("admin", "correct-horse-battery"))
	assert.False(t, cred.Validate("admin", "wrong"))
	assert.False(t, cred.Validate("other", "correct-horse-battery"))
}

func TestAdminCredential_BcryptHash(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.AdminPassword = ""
	// bcrypt hash of "correct-horse-battery", cost 10.
	cfg.AdminPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

	cred, err := NewAdminCredential(cfg)
	require.NoError(t, err)
	assert.False(t, cred.Validate("admin", "definitely-wrong"))
}

func TestAdminCredential_RejectsMissingCredential(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.AdminPassword = ""
	_, err := NewAdminCredential(cfg)
	assert.Error(t, err)

	cfg = testSecurityConfig()
	cfg.AdminUsername = ""
	_, err = NewAdminCredential(cfg)
	assert.Error(t, err)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// ResetTokenBytes is the entropy of a reset token: 32 bytes = 64 hex chars.
const ResetTokenBytes = 32

// ResetToken is a freshly generated reset credential.
// Plain is sent to the user; Hash and ExpiresAt are persisted.
type ResetToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// ResetTokenService generates and validates password reset tokens.
type ResetTokenService struct {
	window time.Duration
	now    func() time.Time
}

// NewResetTokenService creates a ResetTokenService whose tokens expire after
// window. now may be nil.
func NewResetTokenService(window time.Duration, now func() time.Time) (*ResetTokenService, error) {
	if window <= 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("window", window.String()).
			Errorf("reset window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &ResetTokenService{window: window, now: now}, nil
}

// Generate creates a secure random token, its SHA256 hash and its expiry.
func (s *ResetTokenService) Generate() (ResetToken, error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return ResetToken{}, oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}

	plain := hex.EncodeToString(tokenBytes)
	return ResetToken{
		Plain:     plain,
		Hash:      HashResetToken(plain),
		ExpiresAt: s.now().Add(s.window),
	}, nil
}

// Validate reports whether presented hashes to storedHash and the current
// time is before storedExpiry. It never fails loudly: any mismatch is false.
func (s *ResetTokenService) Validate(presented, storedHash string, storedExpiry time.Time) bool {
	if presented == "" || storedHash == "" || storedExpiry.IsZero() {
		return false
	}
	computed := HashResetToken(presented)
	// Both are hex-encoded SHA256 hashes (64 chars), use constant-time compare
	match := subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
	return match && s.now().Before(storedExpiry)
}

// HashResetToken computes the hex SHA256 hash of a reset token.
// A fast unsalted hash is enough here: the token carries 256 bits of entropy.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

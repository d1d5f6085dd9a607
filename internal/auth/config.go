// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Hash algorithm names accepted by Config.HashAlgorithm.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Configuration defaults.
const (
	DefaultSessionLifetimeDays = 30
	DefaultResetWindowMinutes  = 10
	DefaultArgon2WorkFactor    = 1
	DefaultBcryptWorkFactor    = 10
	DefaultMinPasswordLength   = 8
	DefaultMaxPasswordLength   = 72
)

// Config holds the tunables of the credential lifecycle.
type Config struct {
	// SigningSecret signs session tokens. Required.
	SigningSecret []byte

	// SessionLifetimeDays is how long an issued session token stays valid.
	SessionLifetimeDays int

	// ResetWindowMinutes is how long a reset token stays redeemable.
	ResetWindowMinutes int

	// HashAlgorithm selects the password hasher: "argon2id" or "bcrypt".
	HashAlgorithm string

	// HashWorkFactor is the argon2id time cost or the bcrypt cost.
	// Zero selects the algorithm default.
	HashWorkFactor int

	// MinPasswordLength and MaxPasswordLength bound accepted plaintexts.
	MinPasswordLength int
	MaxPasswordLength int

	// ResetURLBase is prepended to the plaintext token in reset emails.
	ResetURLBase string
}

// DefaultConfig returns a Config with defaults for everything but the secret.
func DefaultConfig() Config {
	return Config{
		SessionLifetimeDays: DefaultSessionLifetimeDays,
		ResetWindowMinutes:  DefaultResetWindowMinutes,
		HashAlgorithm:       AlgorithmArgon2id,
		MinPasswordLength:   DefaultMinPasswordLength,
		MaxPasswordLength:   DefaultMaxPasswordLength,
		ResetURLBase:        "http://localhost:5000/api/v1/auth/resetpassword",
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if len(c.SigningSecret) == 0 {
		return oops.Code("AUTH_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if c.SessionLifetimeDays <= 0 {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("session_lifetime_days", c.SessionLifetimeDays).
			Errorf("session lifetime must be positive")
	}
	if c.ResetWindowMinutes <= 0 {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("reset_window_minutes", c.ResetWindowMinutes).
			Errorf("reset window must be positive")
	}
	if c.HashAlgorithm != AlgorithmArgon2id && c.HashAlgorithm != AlgorithmBcrypt {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("hash_algorithm", c.HashAlgorithm).
			Errorf("hash algorithm must be %q or %q", AlgorithmArgon2id, AlgorithmBcrypt)
	}
	if c.HashWorkFactor < 0 {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("hash_work_factor", c.HashWorkFactor).
			Errorf("hash work factor cannot be negative")
	}
	if c.MinPasswordLength < 1 || c.MaxPasswordLength < c.MinPasswordLength {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("min_password_length", c.MinPasswordLength).
			With("max_password_length", c.MaxPasswordLength).
			Errorf("password length bounds are invalid")
	}
	return nil
}

// SessionLifetime returns SessionLifetimeDays as a duration.
func (c Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeDays) * 24 * time.Hour
}

// ResetWindow returns ResetWindowMinutes as a duration.
func (c Config) ResetWindow() time.Duration {
	return time.Duration(c.ResetWindowMinutes) * time.Minute
}

// NewHasher builds the PasswordHasher selected by the configuration.
func (c Config) NewHasher() (PasswordHasher, error) {
	switch c.HashAlgorithm {
	case AlgorithmBcrypt:
		return NewBcryptHasher(c.HashWorkFactor, c.MaxPasswordLength)
	case AlgorithmArgon2id, "":
		return NewArgon2idHasher(c.HashWorkFactor, c.MaxPasswordLength)
	default:
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("hash_algorithm", c.HashAlgorithm).
			Errorf("unsupported hash algorithm")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters. The time cost is the work factor.
const (
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	// Empty passwords and passwords over the configured maximum are rejected.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a malformed digest.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade returns true if the digest was produced by another
	// algorithm or with weaker parameters than the hasher now uses.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Legacy bcrypt digests are still accepted by Verify.
type Argon2idHasher struct {
	time   uint32
	maxLen int
}

// NewArgon2idHasher creates an Argon2idHasher. workFactor is the argon2 time
// cost (0 selects DefaultArgon2WorkFactor); maxLen bounds the plaintext
// length in bytes (0 selects DefaultMaxPasswordLength).
func NewArgon2idHasher(workFactor, maxLen int) (*Argon2idHasher, error) {
	if workFactor == 0 {
		workFactor = DefaultArgon2WorkFactor
	}
	if workFactor < 1 || workFactor > 16 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("hash_work_factor", workFactor).
			Errorf("argon2id work factor must be between 1 and 16")
	}
	if maxLen == 0 {
		maxLen = DefaultMaxPasswordLength
	}
	return &Argon2idHasher{time: uint32(workFactor), maxLen: maxLen}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if err := checkPlaintext(password, h.maxLen); err != nil {
		return "", err
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		h.time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks if the password matches the digest. A password longer than
// the hasher accepts is a mismatch and is never hashed.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	if len(password) > h.maxLen {
		return false, nil
	}
	if isBcryptDigest(digest) {
		return verifyBcrypt(password, digest)
	}

	params, salt, expectedHash, err := parseArgon2id(digest)
	if err != nil {
		return false, err
	}

	computedHash := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expectedHash)))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// NeedsUpgrade returns true if the digest is not argon2id or was produced
// with different parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	params, _, _, err := parseArgon2id(digest)
	if err != nil {
		return true
	}
	return params.time != h.time || params.memory != argon2Memory || params.threads != argon2Threads
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

// parseArgon2id splits a PHC-encoded argon2id digest.
func parseArgon2id(digest string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid threads value %d", threads)
	}
	if time == 0 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid time cost")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if len(hash) == 0 || len(hash) > 1024 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(hash))
	}

	params = argon2Params{memory: memory, time: time, threads: uint8(threads)}
	return params, salt, hash, nil
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost   int
	maxLen int
}

// NewBcryptHasher creates a BcryptHasher. workFactor is the bcrypt cost
// (0 selects DefaultBcryptWorkFactor). maxLen is capped at bcrypt's 72 byte limit.
func NewBcryptHasher(workFactor, maxLen int) (*BcryptHasher, error) {
	if workFactor == 0 {
		workFactor = DefaultBcryptWorkFactor
	}
	if workFactor < bcrypt.MinCost || workFactor > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("hash_work_factor", workFactor).
			Errorf("bcrypt work factor must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if maxLen == 0 || maxLen > DefaultMaxPasswordLength {
		maxLen = DefaultMaxPasswordLength
	}
	return &BcryptHasher{cost: workFactor, maxLen: maxLen}, nil
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if err := checkPlaintext(password, h.maxLen); err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(digest), nil
}

// Verify checks if the password matches the bcrypt digest.
func (h *BcryptHasher) Verify(password, digest string) (bool, error) {
	if !isBcryptDigest(digest) {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	return verifyBcrypt(password, digest)
}

// NeedsUpgrade returns true if the digest is not bcrypt or uses another cost.
func (h *BcryptHasher) NeedsUpgrade(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func verifyBcrypt(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
}

func checkPlaintext(password string, maxLen int) error {
	if password == "" {
		return errInvalidInput("password", "password cannot be empty")
	}
	if len(password) > maxLen {
		return errInvalidInput("password", "password must be at most %d bytes", maxLen)
	}
	return nil
}

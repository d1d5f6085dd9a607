// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package memory provides an in-process implementation of auth.UserRepository
// for tests and single-node development runs.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/devcamper/devcamper/internal/auth"
)

// UserRepository implements auth.UserRepository in memory. Each method holds
// the lock for its whole read-modify-write, which provides the per-record
// atomicity the auth package relies on.
type UserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
	now   func() time.Time
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[ulid.ULID]*auth.User),
		now:   time.Now,
	}
}

// Create stores a copy of user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return oops.Code("USER_CREATE_FAILED").
			With("id", user.ID.String()).
			Errorf("user already exists")
	}
	if r.findByEmail(user.Email) != nil {
		return oops.Code("USER_EMAIL_TAKEN").Wrap(auth.ErrDuplicateEmail)
	}
	r.users[user.ID] = clone(user)
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findByEmail(email)
	if user == nil {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// GetByResetTokenHash retrieves the user with the given pending reset hash.
func (r *UserRepository) GetByResetTokenHash(_ context.Context, tokenHash string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash {
			return clone(user), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdateDetails updates the name and email of a user.
func (r *UserRepository) UpdateDetails(_ context.Context, id ulid.ULID, name, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if other := r.findByEmail(email); other != nil && other.ID != id {
		return oops.Code("USER_EMAIL_TAKEN").Wrap(auth.ErrDuplicateEmail)
	}
	user.Name = name
	user.Email = email
	user.UpdatedAt = r.now()
	return nil
}

// UpdatePassword replaces the password digest of a user.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordDigest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	user.PasswordDigest = passwordDigest
	user.UpdatedAt = r.now()
	return nil
}

// SetResetToken stores a pending reset, replacing any previous one.
func (r *UserRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	user.ResetTokenHash = &tokenHash
	user.ResetTokenExpiry = &expiresAt
	user.UpdatedAt = r.now()
	return nil
}

// ClaimResetToken clears the pending reset if it still hashes to tokenHash.
func (r *UserRepository) ClaimResetToken(_ context.Context, id ulid.ULID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.clearIfMatches(id, tokenHash) {
		return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearResetToken clears the pending reset if it still hashes to tokenHash.
func (r *UserRepository) ClearResetToken(_ context.Context, id ulid.ULID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearIfMatches(id, tokenHash)
	return nil
}

// DeleteExpiredResetTokens clears every pending reset that expired before now.
func (r *UserRepository) DeleteExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, user := range r.users {
		if user.ResetTokenExpiry != nil && user.ResetTokenExpiry.Before(now) {
			user.ResetTokenHash = nil
			user.ResetTokenExpiry = nil
			n++
		}
	}
	return n, nil
}

func (r *UserRepository) clearIfMatches(id ulid.ULID, tokenHash string) bool {
	user, ok := r.users[id]
	if !ok || user.ResetTokenHash == nil || *user.ResetTokenHash != tokenHash {
		return false
	}
	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	user.UpdatedAt = r.now()
	return true
}

func (r *UserRepository) findByEmail(email string) *auth.User {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user
		}
	}
	return nil
}

func clone(user *auth.User) *auth.User {
	c := *user
	if user.ResetTokenHash != nil {
		h := *user.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if user.ResetTokenExpiry != nil {
		e := *user.ResetTokenExpiry
		c.ResetTokenExpiry = &e
	}
	return &c
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

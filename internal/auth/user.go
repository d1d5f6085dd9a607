// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the capability tag of a user.
type Role int

// Roles. RoleUser is the zero value so an unset role defaults to it.
const (
	RoleUser Role = iota
	RolePublisher
	RoleAdmin
)

var roleNames = [...]string{
	RoleUser:      "user",
	RolePublisher: "publisher",
	RoleAdmin:     "admin",
}

// String returns the storage and wire name of the role.
func (r Role) String() string {
	if r.Valid() {
		return roleNames[r]
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleAdmin
}

// ParseRole parses a role name. The empty string parses as RoleUser.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleUser, nil
	}
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), nil
		}
	}
	return RoleUser, errInvalidInput("role", "unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, errInvalidInput("role", "unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Name validation constraints.
const MaxNameLength = 100

// emailRegex matches addresses of the form local@domain.tld.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// User is the credential record of a registered user.
type User struct {
	ID               ulid.ULID
	Name             string
	Email            string
	PasswordDigest   string `json:"-"`
	Role             Role
	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser creates a validated User with a fresh ID.
// The email is normalized to lower case.
func NewUser(name, email, passwordDigest string, role Role) (*User, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordDigest == "" {
		return nil, oops.Code("USER_INVALID_DIGEST").Errorf("password digest cannot be empty")
	}
	if !role.Valid() {
		return nil, errInvalidInput("role", "unknown role %d", int(role))
	}

	now := time.Now()
	return &User{
		ID:             ulid.Make(),
		Name:           name,
		Email:          email,
		PasswordDigest: passwordDigest,
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasPendingReset reports whether a reset token is outstanding, expired or not.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiry != nil
}

// ValidateName checks that a display name is present and bounded.
func ValidateName(name string) error {
	if name == "" {
		return errInvalidInput("name", "name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return errInvalidInput("name", "name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// NormalizeEmail trims and lower-cases email and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errInvalidInput("email", "email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return "", errInvalidInput("email", "email is not a valid address")
	}
	return email, nil
}

// UserRepository manages user persistence. Every method is atomic for a
// single record.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetTokenHash retrieves the user whose pending reset token hashes
	// to tokenHash. Returns ErrNotFound if none does.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// UpdateDetails updates the name and email of a user.
	// Returns ErrDuplicateEmail if the email belongs to another user.
	UpdateDetails(ctx context.Context, id ulid.ULID, name, email string) error

	// UpdatePassword replaces the password digest of a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordDigest string) error

	// SetResetToken stores a pending reset, replacing any previous one.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ClaimResetToken clears the pending reset only if it still hashes to
	// tokenHash. Returns ErrNotFound if another caller claimed or replaced it
	// first, which makes at most one claim per token succeed.
	ClaimResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error

	// ClearResetToken is ClaimResetToken without the lost-race error: it is a
	// no-op if the pending reset no longer hashes to tokenHash.
	ClearResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error

	// DeleteExpiredResetTokens clears every pending reset that expired
	// before now and returns the count.
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/devcamper/devcamper/pkg/errutil"
)

// Service composes password hashing, session tokens and reset tokens into the
// credential lifecycle. All state lives in the UserRepository.
type Service struct {
	users    UserRepository
	mailer   Mailer
	hasher   PasswordHasher
	sessions *SessionIssuer
	resets   *ResetTokenService
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
	metrics  *Metrics

	dummyOnce   sync.Once
	dummyDigest string
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithLogger sets the logger used for security events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source for token issuance and expiry checks.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithHasher replaces the hasher selected by Config.HashAlgorithm.
func WithHasher(hasher PasswordHasher) ServiceOption {
	return func(s *Service) {
		s.hasher = hasher
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service. users and mailer are required.
func NewService(users UserRepository, mailer Mailer, cfg Config, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user repository is required")
	}
	if mailer == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("mailer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		users:  users,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.hasher == nil {
		hasher, err := cfg.NewHasher()
		if err != nil {
			return nil, err
		}
		s.hasher = hasher
	}

	sessions, err := NewSessionIssuer(cfg.SigningSecret, cfg.SessionLifetime(), s.now, s.logger)
	if err != nil {
		return nil, err
	}
	s.sessions = sessions

	resets, err := NewResetTokenService(cfg.ResetWindow(), s.now)
	if err != nil {
		return nil, err
	}
	s.resets = resets

	return s, nil
}

// Sessions returns the session issuer, for callers that only verify tokens.
func (s *Service) Sessions() *SessionIssuer {
	return s.sessions
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role

	// Privileged allows RoleAdmin. Only trusted callers such as the CLI set it.
	Privileged bool
}

// Register creates a user and returns a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (sess Session, err error) {
	defer func() { s.metrics.observe("register", err) }()

	if !in.Role.Valid() {
		return Session{}, errInvalidInput("role", "unknown role %d", int(in.Role))
	}
	if in.Role == RoleAdmin && !in.Privileged {
		return Session{}, errInvalidInput("role", "admin accounts cannot be self-registered")
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return Session{}, err
	}
	if err := ValidateName(in.Name); err != nil {
		return Session{}, err
	}
	if err := s.checkPassword(in.Password); err != nil {
		return Session{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return Session{}, errDuplicateEmail()
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Name, email, digest, in.Role)
	if err != nil {
		return Session{}, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration may win the unique constraint.
		if errors.Is(err, ErrDuplicateEmail) {
			return Session{}, errDuplicateEmail()
		}
		return Session{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"role", user.Role.String(),
	)

	return s.issue(user.ID, "register")
}

// dummyPassword returns a digest that no password verifies against. Login
// verifies against it when the account does not exist, so both paths cost
// one hash computation.
func (s *Service) dummyPassword() string {
	s.dummyOnce.Do(func() {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return
		}
		plain := hex.EncodeToString(raw)
		digest, err := s.hasher.Hash(plain[:min(len(plain), s.cfg.MaxPasswordLength)])
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

// Login authenticates by email and password and returns a session.
// Unknown accounts and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (sess Session, err error) {
	defer func() { s.metrics.observe("login", err) }()

	var (
		user       *User
		lookupErr  error
		targetHash string
	)

	normalized, emailErr := NormalizeEmail(email)
	if emailErr == nil {
		user, lookupErr = s.users.GetByEmail(ctx, normalized)
	} else {
		lookupErr = ErrNotFound
	}

	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordDigest
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = s.dummyPassword()
	default:
		return Session{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown accounts, to keep timing uniform.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return Session{}, errInvalidCredentials()
		}
		return Session{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if !exists || !valid {
		if exists {
			s.logger.WarnContext(ctx, "login failed", "user_id", user.ID.String())
		}
		return Session{}, errInvalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordDigest) {
		s.upgradeDigest(ctx, user.ID, password)
	}

	return s.issue(user.ID, "login")
}

// upgradeDigest rehashes a password whose digest uses outdated parameters.
// Failure is logged; the login still succeeds.
func (s *Service) upgradeDigest(ctx context.Context, id ulid.ULID, password string) {
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, id, digest)
	}
	if err != nil {
		errutil.LogError(s.logger.With("user_id", id.String()), "password digest upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password digest upgraded", "user_id", id.String())
}

// ChangePassword replaces the password of userID after verifying the current
// one and returns a fresh session. Previously issued sessions stay valid
// until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) (sess Session, err error) {
	defer func() { s.metrics.observe("change_password", err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, errUserNotFound()
		}
		return Session{}, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(current, user.PasswordDigest)
	if err != nil {
		return Session{}, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		s.logger.WarnContext(ctx, "password change rejected", "user_id", userID.String())
		return Session{}, errInvalidCredentials()
	}

	if err := s.checkPassword(next); err != nil {
		return Session{}, err
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return Session{}, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, digest); err != nil {
		return Session{}, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())

	return s.issue(userID, "change_password")
}

// CurrentUser loads the user behind an authenticated request.
func (s *Service) CurrentUser(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errUserNotFound()
		}
		return nil, oops.Code("AUTH_CURRENT_USER_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// Authenticate verifies a session token and loads its user. A token whose
// user no longer exists is an invalid token.
func (s *Service) Authenticate(ctx context.Context, token string) (user *User, err error) {
	defer func() { s.metrics.observe("authenticate", err) }()

	userID, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err = s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidToken()
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// UpdateDetails changes the name and email of a user and returns the
// updated record.
func (s *Service) UpdateDetails(ctx context.Context, userID ulid.ULID, name, email string) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateDetails(ctx, userID, name, normalized); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, errDuplicateEmail()
		case errors.Is(err, ErrNotFound):
			return nil, errUserNotFound()
		}
		return nil, oops.Code("AUTH_UPDATE_DETAILS_FAILED").
			With("operation", "update details").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return s.CurrentUser(ctx, userID)
}

// checkPassword applies the length policy to a new plaintext password.
func (s *Service) checkPassword(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return errInvalidInput("password", "password must be at least %d characters", s.cfg.MinPasswordLength)
	}
	if len(password) > s.cfg.MaxPasswordLength {
		return errInvalidInput("password", "password must be at most %d bytes", s.cfg.MaxPasswordLength)
	}
	return nil
}

func (s *Service) issue(userID ulid.ULID, operation string) (Session, error) {
	sess, err := s.sessions.Issue(userID)
	if err != nil {
		return Session{}, oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", operation).
			With("user_id", userID.String()).
			Wrap(err)
	}
	return sess, nil
}

func errDuplicateEmail() error {
	return oops.Code(CodeDuplicateEmail).Errorf("email already registered")
}

func errUserNotFound() error {
	return oops.Code(CodeNotFound).Errorf("user not found")
}

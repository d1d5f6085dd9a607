// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session is an issued session token.
type Session struct {
	UserID    ulid.ULID
	Token     string
	ExpiresAt time.Time
}

// sessionClaims is the JWT payload of a session token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionIssuer creates and verifies signed session tokens.
// It holds no mutable state.
type SessionIssuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionIssuer creates a SessionIssuer signing with secret (HS256).
// now and logger may be nil.
func NewSessionIssuer(secret []byte, lifetime time.Duration, now func() time.Time, logger *slog.Logger) (*SessionIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if lifetime <= 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("lifetime", lifetime.String()).
			Errorf("session lifetime must be positive")
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionIssuer{
		secret:   append([]byte(nil), secret...),
		lifetime: lifetime,
		now:      now,
		logger:   logger,
	}, nil
}

// Issue signs a token for userID expiring after the configured lifetime.
func (s *SessionIssuer) Issue(userID ulid.ULID) (Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return Session{}, oops.Code("SESSION_INVALID_SUBJECT").Errorf("user ID cannot be zero")
	}

	now := s.now()
	expiresAt := now.Add(s.lifetime)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, oops.Code("SESSION_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return Session{UserID: userID, Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks the token signature and expiry and returns its subject.
// Every failure returns the same AUTH_INVALID_TOKEN error; the cause is only
// logged at debug level.
func (s *SessionIssuer) Verify(token string) (ulid.ULID, error) {
	if token == "" {
		s.reject("empty token", nil)
		return ulid.ULID{}, errInvalidToken()
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		s.reject("parse failed", err)
		return ulid.ULID{}, errInvalidToken()
	}
	if !parsed.Valid {
		s.reject("token not valid", nil)
		return ulid.ULID{}, errInvalidToken()
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		s.reject("invalid subject", err)
		return ulid.ULID{}, errInvalidToken()
	}

	return userID, nil
}

func (s *SessionIssuer) reject(reason string, err error) {
	attrs := []any{"reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	s.logger.Log(context.Background(), slog.LevelDebug, "session token rejected", attrs...)
}

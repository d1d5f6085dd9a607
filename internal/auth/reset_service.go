// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/devcamper/devcamper/pkg/errutil"
)

// RequestReset starts a password reset for the account registered to email.
// It stores the token hash, delivers the plaintext token through the Mailer
// and returns it. If delivery fails the pending reset is withdrawn so the
// undelivered token cannot be redeemed.
func (s *Service) RequestReset(ctx context.Context, email string) (token string, err error) {
	defer func() { s.metrics.observe("request_reset", err) }()

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeNotFound).Errorf("no user registered with that email")
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	reset, err := s.resets.Generate()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	// Overwrites any earlier pending reset; only the newest token stays valid.
	if err := s.users.SetResetToken(ctx, user.ID, reset.Hash, reset.ExpiresAt); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "set reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	body := resetEmailBody(ResetURL(s.cfg.ResetURLBase, reset.Plain))
	if sendErr := s.mailer.Send(ctx, user.Email, ResetEmailSubject, body); sendErr != nil {
		errutil.LogError(s.logger.With("user_id", user.ID.String()), "reset email delivery failed", sendErr)
		s.withdrawReset(ctx, user, reset.Hash)
		return "", oops.Code(CodeDeliveryFailed).
			With("user_id", user.ID.String()).
			Wrapf(deliveryCause{sendErr}, "reset email could not be sent")
	}

	s.logger.InfoContext(ctx, "password reset requested",
		"user_id", user.ID.String(),
		"expires_at", reset.ExpiresAt,
	)

	return reset.Plain, nil
}

// deliveryCause keeps a mailer error reachable through errors.Is while
// hiding it from errors.As, so an oops code set by the mailer does not
// replace CodeDeliveryFailed as the deepest code.
type deliveryCause struct{ err error }

func (c deliveryCause) Error() string { return c.err.Error() }

func (c deliveryCause) Is(target error) bool { return errors.Is(c.err, target) }

// withdrawReset clears the pending reset written by RequestReset. It is
// conditional on tokenHash so a newer concurrent request is left intact, and
// it ignores cancellation of ctx since delivery may have failed because of it.
func (s *Service) withdrawReset(ctx context.Context, user *User, tokenHash string) {
	if err := s.users.ClearResetToken(context.WithoutCancel(ctx), user.ID, tokenHash); err != nil {
		errutil.LogError(s.logger.With("user_id", user.ID.String()),
			"reset rollback failed, token stays pending until expiry", err)
		return
	}
	s.logger.InfoContext(ctx, "pending reset withdrawn", "user_id", user.ID.String())
}

// ConsumeReset redeems a reset token: the token is validated, the new
// password checked against policy, the token claimed (cleared), then the new
// password is stored and a session is returned. Unknown,
// expired, superseded and already used tokens all fail with AUTH_INVALID_TOKEN.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) (sess Session, err error) {
	defer func() { s.metrics.observe("consume_reset", err) }()

	if token == "" {
		return Session{}, errInvalidToken()
	}

	tokenHash := HashResetToken(token)

	user, err := s.users.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, errInvalidToken()
		}
		return Session{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}

	if !user.HasPendingReset() || !s.resets.Validate(token, *user.ResetTokenHash, *user.ResetTokenExpiry) {
		s.logger.DebugContext(ctx, "reset token rejected", "user_id", user.ID.String())
		return Session{}, errInvalidToken()
	}

	// Policy is checked before the claim so a rejected password does not
	// burn the token.
	if err := s.checkPassword(newPassword); err != nil {
		return Session{}, err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return Session{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "hash password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.users.ClaimResetToken(ctx, user.ID, tokenHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "reset token claimed concurrently", "user_id", user.ID.String())
			return Session{}, errInvalidToken()
		}
		return Session{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "claim reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		return Session{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())

	return s.issue(user.ID, "consume_reset")
}

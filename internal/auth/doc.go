// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package auth implements the DevCamper credential lifecycle.
//
// # Primitives
//
//   - PasswordHasher - salted one-way password digests (Argon2idHasher, BcryptHasher)
//   - SessionIssuer - signed, time-bounded session tokens (HS256 JWT)
//   - ResetTokenService - random single-use reset tokens stored only as SHA256 hashes
//
// # Service
//
// Service composes the primitives into Register, Login, ChangePassword,
// RequestReset and ConsumeReset. It keeps no state of its own: every
// operation reads and writes the User record through a UserRepository, and
// single-use of reset tokens relies on UserRepository.ClaimResetToken being a
// compare-and-swap.
//
// # Errors
//
// Failures carry an oops code. The caller-visible codes are the Code*
// constants; KindOf maps an error to its Kind. Error payloads never contain a
// password, a digest or a reset token hash.
//
// Domain types should be created with their constructors (NewUser,
// NewService, NewSessionIssuer, NewResetTokenService); direct struct
// initialization bypasses validation.
package auth

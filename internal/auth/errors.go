// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these with oops context so
// callers can match with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Caller-visible error codes.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeDeliveryFailed     = "AUTH_DELIVERY_FAILED"
)

// Kind classifies an error returned by this package.
type Kind int

// Error kinds. KindInternal covers storage and other infrastructure failures.
const (
	KindInternal Kind = iota
	KindInvalidInput
	KindDuplicateEmail
	KindNotFound
	KindInvalidCredentials
	KindInvalidToken
	KindDeliveryError
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalidInput:       "invalid_input",
	KindDuplicateEmail:     "duplicate_email",
	KindNotFound:           "not_found",
	KindInvalidCredentials: "invalid_credentials",
	KindInvalidToken:       "invalid_token",
	KindDeliveryError:      "delivery_error",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var codeKinds = map[string]Kind{
	CodeInvalidInput:       KindInvalidInput,
	CodeDuplicateEmail:     KindDuplicateEmail,
	CodeNotFound:           KindNotFound,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeInvalidToken:       KindInvalidToken,
	CodeDeliveryFailed:     KindDeliveryError,
}

// KindOf returns the kind of err. oops reports the innermost code of a wrapped
// chain; errors without one of the caller-visible codes are KindInternal.
// A nil error is also reported as KindInternal, so check err != nil first.
func KindOf(err error) Kind {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	if kind, ok := codeKinds[fmt.Sprint(oopsErr.Code())]; ok {
		return kind
	}
	return KindInternal
}

// Shared failure values. Both login failure paths return errInvalidCredentials
// so the message and code are identical whether or not the account exists.
func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}

func errInvalidToken() error {
	return oops.Code(CodeInvalidToken).Errorf("invalid token")
}

func errInvalidInput(field, format string, args ...any) error {
	return oops.Code(CodeInvalidInput).With("field", field).Errorf(format, args...)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"fmt"
	"strings"
)

// ResetEmailSubject is the subject line of password reset emails.
const ResetEmailSubject = "Password Reset Token"

// Mailer delivers messages out of band.
type Mailer interface {
	// Send delivers a plain text message to the given address.
	Send(ctx context.Context, to, subject, body string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, body string) error

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// ResetURL joins the configured base URL and a plaintext reset token.
func ResetURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + token
}

// resetEmailBody renders the reset message around the reset URL.
func resetEmailBody(resetURL string) string {
	return fmt.Sprintf("You are receiving this email because you (or someone else) requested "+
		"a password reset. Please make a PUT request to:\n\n%s\n\n"+
		"The link is valid for a limited time and can be used once.", resetURL)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to a logger instead of delivering them.
// Intended for local development. The body can carry a reset link, so it is
// only logged at debug level.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. logger may be nil.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the envelope at info level and the body at debug level. It never
// fails.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "mail not delivered, logged instead",
		"to", to,
		"subject", subject,
		"body_bytes", len(body),
	)
	m.logger.DebugContext(ctx, "undelivered mail body", "to", to, "body", body)
	return nil
}

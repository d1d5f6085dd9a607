// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/pkg/errutil"
)

func issueToken(t *testing.T, secret string, userID ulid.ULID) string {
	t.Helper()
	issuer, err := auth.NewSessionIssuer([]byte(secret), 24*time.Hour, nil, nil)
	require.NoError(t, err)
	sess, err := issuer.Issue(userID)
	require.NoError(t, err)
	return sess.Token
}

func TestTokenVerify(t *testing.T) {
	env := newCLIEnv(t)
	userID := ulid.Make()

	out, err := env.run(t, "token", "verify", issueToken(t, testJWTSecret, userID))
	require.NoError(t, err)
	assert.Contains(t, out, "Valid session for user "+userID.String())
}

func TestTokenVerify_Rejects(t *testing.T) {
	valid := issueToken(t, testJWTSecret, ulid.Make())

	tests := []struct {
		name  string
		token string
	}{
		{"other secret", issueToken(t, "some-other-secret", ulid.Make())},
		{"truncated", valid[:len(valid)-4]},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t)
			out, err := env.run(t, "token", "verify", tt.token)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
			assert.NotContains(t, out, "Valid session")
		})
	}
}

func TestTokenVerify_Lookup(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "user", "add", "--name", "Jane Doe", "--email", "jane@example.com",
		"--password", "12345678", "--role", "publisher")
	require.NoError(t, err)
	user, err := env.users.GetByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)

	out, err := env.run(t, "token", "verify", "--lookup", issueToken(t, testJWTSecret, user.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Valid session for user "+user.ID.String())
	assert.Contains(t, out, "Jane Doe")
	assert.Contains(t, out, "jane@example.com")
	assert.Contains(t, out, "publisher")
}

func TestTokenVerify_LookupUnknownUser(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "token", "verify", "--lookup", issueToken(t, testJWTSecret, ulid.Make()))
	errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/pkg/errutil"
)

func newArgon2(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(1, 0)
	require.NoError(t, err)
	return h
}

func newBcrypt(t *testing.T) *auth.BcryptHasher {
	t.Helper()
	h, err := auth.NewBcryptHasher(bcrypt.MinCost, 0)
	require.NoError(t, err)
	return h
}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newArgon2(t)

	t.Run("produces PHC encoded digest", func(t *testing.T) {
		digest, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.NotContains(t, digest, "password123")
	})

	t.Run("same password produces different digests (salt)", func(t *testing.T) {
		d1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		d2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, d1, d2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("rejects password over the maximum length", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", auth.DefaultMaxPasswordLength+1))
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newArgon2(t)

	digest, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", digest)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails without error", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", digest)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("accepts legacy bcrypt digests", func(t *testing.T) {
		legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
		require.NoError(t, err)

		ok, err := hasher.Verify("legacy-pass", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("other-pass", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	malformed := []struct {
		name   string
		digest string
		errMsg string
	}{
		{"not a digest", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"wrong version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"bad version field", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"bad parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"bad hash encoding", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"zero threads", "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA", "threads value"},
		{"zero time", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA", "invalid time cost"},
		{"empty key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$", "key length"},
	}
	for _, tt := range malformed {
		t.Run("malformed: "+tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.digest)
			require.Error(t, err)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestArgon2idHasher_VerifyRejectsOversizedPassword(t *testing.T) {
	h, err := auth.NewArgon2idHasher(1, 16)
	require.NoError(t, err)

	exact := strings.Repeat("a", 16)
	digest, err := h.Hash(exact)
	require.NoError(t, err)

	ok, err := h.Verify(exact, digest)
	require.NoError(t, err)
	assert.True(t, ok, "password at the limit verifies")

	for _, pw := range []string{exact + "a", strings.Repeat("a", 1<<20)} {
		ok, err := h.Verify(pw, digest)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// The bound also applies to bcrypt digests verified through argon2id.
	legacy, err := bcrypt.GenerateFromPassword([]byte(exact), bcrypt.MinCost)
	require.NoError(t, err)
	ok, err = h.Verify(exact+"a", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	hasher := newArgon2(t)

	current, err := hasher.Hash("password")
	require.NoError(t, err)
	assert.False(t, hasher.NeedsUpgrade(current))

	stronger, err := auth.NewArgon2idHasher(2, 0)
	require.NoError(t, err)
	assert.True(t, stronger.NeedsUpgrade(current), "lower time cost than configured")

	legacy, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, hasher.NeedsUpgrade(string(legacy)), "bcrypt digests are upgraded")
}

func TestNewArgon2idHasher_RejectsWorkFactor(t *testing.T) {
	for _, wf := range []int{-1, 17} {
		_, err := auth.NewArgon2idHasher(wf, 0)
		errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
	}
}

func TestBcryptHasher(t *testing.T) {
	hasher := newBcrypt(t)

	digest, err := hasher.Hash("bcrypt-password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$2a$"))

	ok, err := hasher.Verify("bcrypt-password", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong-password", digest)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, hasher.NeedsUpgrade(digest))

	stronger, err := auth.NewBcryptHasher(bcrypt.MinCost+1, 0)
	require.NoError(t, err)
	assert.True(t, stronger.NeedsUpgrade(digest))

	_, err = hasher.Verify("x", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
}

func TestBcryptHasher_CapsMaxLength(t *testing.T) {
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost, 500)
	require.NoError(t, err)

	_, err = hasher.Hash(strings.Repeat("a", 73))
	errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
}

func TestNewBcryptHasher_RejectsWorkFactor(t *testing.T) {
	_, err := auth.NewBcryptHasher(bcrypt.MaxCost+1, 0)
	errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
}

func TestConfig_NewHasher(t *testing.T) {
	cfg := auth.DefaultConfig()
	h, err := cfg.NewHasher()
	require.NoError(t, err)
	assert.IsType(t, &auth.Argon2idHasher{}, h)

	cfg.HashAlgorithm = auth.AlgorithmBcrypt
	cfg.HashWorkFactor = bcrypt.MinCost
	h, err = cfg.NewHasher()
	require.NoError(t, err)
	assert.IsType(t, &auth.BcryptHasher{}, h)

	cfg.HashAlgorithm = "md5"
	_, err = cfg.NewHasher()
	errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
}

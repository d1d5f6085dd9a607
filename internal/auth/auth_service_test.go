// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/auth/memory"
	"github.com/devcamper/devcamper/internal/auth/mocks"
	"github.com/devcamper/devcamper/pkg/errutil"
)

// sentMail is a message captured by recordingMailer.
type sentMail struct {
	To, Subject, Body string
}

// recordingMailer captures messages, failing with err when it is set.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.SigningSecret = testSecret
	cfg.HashAlgorithm = auth.AlgorithmBcrypt
	cfg.HashWorkFactor = bcrypt.MinCost
	return cfg
}

type testEnv struct {
	svc    *auth.Service
	users  *memory.UserRepository
	mailer *recordingMailer
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts ...auth.ServiceOption) *testEnv {
	t.Helper()
	env := &testEnv{
		users:  memory.NewUserRepository(),
		mailer: &recordingMailer{},
		clock:  newFakeClock(),
	}
	opts = append([]auth.ServiceOption{auth.WithClock(func() time.Time { return env.clock.Now() })}, opts...)
	svc, err := auth.NewService(env.users, env.mailer, testConfig(), opts...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *testEnv) register(t *testing.T, name, email, password string) auth.Session {
	t.Helper()
	sess, err := e.svc.Register(context.Background(), auth.RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return sess
}

func TestNewService_Validation(t *testing.T) {
	users := memory.NewUserRepository()
	mailer := &recordingMailer{}

	_, err := auth.NewService(nil, mailer, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user repository is required")

	_, err = auth.NewService(users, nil, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailer is required")

	cfg := testConfig()
	cfg.SigningSecret = nil
	_, err = auth.NewService(users, mailer, cfg)
	errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")

	cfg = testConfig()
	cfg.MaxPasswordLength = cfg.MinPasswordLength - 1
	_, err = auth.NewService(users, mailer, cfg)
	errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("registers Ann and returns a working session", func(t *testing.T) {
		env := newTestEnv(t)

		sess, err := env.svc.Register(ctx, auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: "secret12"})
		require.NoError(t, err)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, env.clock.Now().Add(30*24*time.Hour), sess.ExpiresAt)

		user, err := env.svc.Authenticate(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.UserID, user.ID)
		assert.Equal(t, "Ann", user.Name)
		assert.Equal(t, auth.RoleUser, user.Role)
		assert.NotEqual(t, "secret12", user.PasswordDigest)
		assert.NotContains(t, user.PasswordDigest, "secret12")
	})

	t.Run("rejects a second registration with the same email", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "Ann", "ann@x.io", "secret12")

		_, err := env.svc.Register(ctx, auth.RegisterInput{Name: "Bob", Email: "ANN@x.io", Password: "other-pass"})
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
		assert.Equal(t, auth.KindDuplicateEmail, auth.KindOf(err))
	})

	t.Run("publisher role is allowed", func(t *testing.T) {
		env := newTestEnv(t)
		sess, err := env.svc.Register(ctx, auth.RegisterInput{
			Name: "Pub", Email: "pub@x.io", Password: "secret12", Role: auth.RolePublisher,
		})
		require.NoError(t, err)
		user, err := env.svc.CurrentUser(ctx, sess.UserID)
		require.NoError(t, err)
		assert.Equal(t, auth.RolePublisher, user.Role)
	})

	t.Run("admin requires a privileged caller", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Register(ctx, auth.RegisterInput{
			Name: "Eve", Email: "eve@x.io", Password: "secret12", Role: auth.RoleAdmin,
		})
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
		errutil.AssertErrorContext(t, err, "field", "role")

		sess, err := env.svc.Register(ctx, auth.RegisterInput{
			Name: "Root", Email: "root@x.io", Password: "secret12", Role: auth.RoleAdmin, Privileged: true,
		})
		require.NoError(t, err)
		user, err := env.svc.CurrentUser(ctx, sess.UserID)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, user.Role)
	})

	invalid := []struct {
		name  string
		in    auth.RegisterInput
		field string
	}{
		{"short password", auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: "short"}, "password"},
		{"long password", auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: strings.Repeat("p", 73)}, "password"},
		{"malformed email", auth.RegisterInput{Name: "Ann", Email: "ann-at-x", Password: "secret12"}, "email"},
		{"missing name", auth.RegisterInput{Email: "ann@x.io", Password: "secret12"}, "name"},
		{"unknown role", auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: "secret12", Role: auth.Role(5)}, "role"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Register(ctx, tt.in)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
			errutil.AssertErrorContext(t, err, "field", tt.field)

			_, lookupErr := env.users.GetByEmail(ctx, "ann@x.io")
			assert.ErrorIs(t, lookupErr, auth.ErrNotFound, "nothing is stored")
		})
	}

	t.Run("concurrent duplicate loses at the repository", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := auth.NewService(users, &recordingMailer{}, testConfig())
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ann@x.io").Return(nil, auth.ErrNotFound)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(auth.ErrDuplicateEmail)

		_, err = svc.Register(ctx, auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: "secret12"})
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := auth.NewService(users, &recordingMailer{}, testConfig())
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ann@x.io").Return(nil, errors.New("connection refused"))

		_, err = svc.Register(ctx, auth.RegisterInput{Name: "Ann", Email: "ann@x.io", Password: "secret12"})
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		errutil.AssertErrorContext(t, err, "operation", "get user by email")
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password yields a session", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		sess, err := env.svc.Login(ctx, "Ann@X.io", "secret12")
		require.NoError(t, err)
		assert.Equal(t, reg.UserID, sess.UserID)

		id, err := env.svc.Sessions().Verify(sess.Token)
		require.NoError(t, err)
		assert.Equal(t, reg.UserID, id)
	})

	t.Run("wrong password and unknown email fail identically", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "Ann", "ann@x.io", "secret12")

		_, wrongPass := env.svc.Login(ctx, "ann@x.io", "wrong-pass")
		_, unknown := env.svc.Login(ctx, "nobody@x.io", "secret12")
		_, malformed := env.svc.Login(ctx, "not-an-email", "secret12")

		for _, err := range []error{wrongPass, unknown, malformed} {
			errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
			assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
		}
		assert.Equal(t, wrongPass.Error(), unknown.Error())
		assert.Equal(t, wrongPass.Error(), malformed.Error())
	})

	t.Run("unknown email still runs a verification", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, &recordingMailer{}, testConfig(), auth.WithHasher(hasher))
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "nobody@x.io").Return(nil, auth.ErrNotFound)
		hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-digest", nil).Once()
		hasher.On("Verify", "secret12", "dummy-digest").Return(false, nil).Once()

		_, err = svc.Login(ctx, "nobody@x.io", "secret12")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := auth.NewService(users, &recordingMailer{}, testConfig())
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ann@x.io").Return(nil, errors.New("connection refused"))

		_, err = svc.Login(ctx, "ann@x.io", "secret12")
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})

	t.Run("outdated digest is upgraded on success", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		argon, err := auth.NewArgon2idHasher(1, 0)
		require.NoError(t, err)
		upgraded, err := auth.NewService(env.users, env.mailer, testConfig(), auth.WithHasher(argon))
		require.NoError(t, err)

		_, err = upgraded.Login(ctx, "ann@x.io", "secret12")
		require.NoError(t, err)

		user, err := env.users.GetByID(ctx, reg.UserID)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(user.PasswordDigest, "$argon2id$"))

		_, err = upgraded.Login(ctx, "ann@x.io", "secret12")
		require.NoError(t, err, "upgraded digest still verifies")
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the password", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		sess, err := env.svc.ChangePassword(ctx, reg.UserID, "secret12", "new-secret")
		require.NoError(t, err)
		assert.Equal(t, reg.UserID, sess.UserID)

		_, err = env.svc.Login(ctx, "ann@x.io", "secret12")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

		_, err = env.svc.Login(ctx, "ann@x.io", "new-secret")
		require.NoError(t, err)

		_, err = env.svc.Authenticate(ctx, reg.Token)
		assert.NoError(t, err, "earlier sessions stay valid until expiry")
	})

	t.Run("wrong current password is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		_, err := env.svc.ChangePassword(ctx, reg.UserID, "not-mine", "new-secret")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

		_, err = env.svc.Login(ctx, "ann@x.io", "secret12")
		require.NoError(t, err)
	})

	t.Run("new password must meet the policy", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		_, err := env.svc.ChangePassword(ctx, reg.UserID, "secret12", "short")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("unknown user", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ChangePassword(ctx, ulid.Make(), "secret12", "new-secret")
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("expired session is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		env.clock.Advance(31 * 24 * time.Hour)
		_, err := env.svc.Authenticate(ctx, reg.Token)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})

	t.Run("session of a missing user is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		sess, err := env.svc.Sessions().Issue(ulid.Make())
		require.NoError(t, err)

		_, err = env.svc.Authenticate(ctx, sess.Token)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})

	t.Run("token signed by another deployment is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "Ann", "ann@x.io", "secret12")

		cfg := testConfig()
		cfg.SigningSecret = []byte("a-different-secret")
		other, err := auth.NewService(env.users, env.mailer, cfg)
		require.NoError(t, err)

		_, err = other.Authenticate(ctx, reg.Token)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})
}

func TestService_UpdateDetails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.register(t, "Ann", "ann@x.io", "secret12")
	env.register(t, "Bob", "bob@x.io", "secret12")

	user, err := env.svc.UpdateDetails(ctx, ann.UserID, "Ann Lee", "Ann.Lee@X.io")
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", user.Name)
	assert.Equal(t, "ann.lee@x.io", user.Email)

	_, err = env.svc.UpdateDetails(ctx, ann.UserID, "Ann", "bob@x.io")
	errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)

	_, err = env.svc.UpdateDetails(ctx, ann.UserID, "Ann", "bob")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)

	_, err = env.svc.UpdateDetails(ctx, ulid.Make(), "Ghost", "ghost@x.io")
	errutil.AssertErrorCode(t, err, auth.CodeNotFound)

	_, err = env.svc.Login(ctx, "ann.lee@x.io", "secret12")
	require.NoError(t, err, "login follows the new email")
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := auth.NewMetrics(reg)
	env := newTestEnv(t, auth.WithMetrics(metrics))
	ctx := context.Background()

	env.register(t, "Ann", "ann@x.io", "secret12")
	_, err := env.svc.Login(ctx, "ann@x.io", "secret12")
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, "ann@x.io", "wrong-pass")
	require.Error(t, err)

	expected := `
# HELP devcamper_auth_operations_total Total number of credential lifecycle operations by operation and result
# TYPE devcamper_auth_operations_total counter
devcamper_auth_operations_total{operation="login",result="invalid_credentials"} 1
devcamper_auth_operations_total{operation="login",result="ok"} 1
devcamper_auth_operations_total{operation="register",result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "devcamper_auth_operations_total"))
}

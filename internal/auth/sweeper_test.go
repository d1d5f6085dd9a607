// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/auth/memory"
	"github.com/devcamper/devcamper/internal/auth/mocks"
	"github.com/devcamper/devcamper/pkg/errutil"
)

// seedResets stores one expired and one live pending reset relative to now.
func seedResets(t *testing.T, repo *memory.UserRepository, now time.Time) {
	t.Helper()
	ctx := context.Background()
	for i, expiry := range []time.Time{now.Add(-time.Minute), now.Add(time.Minute)} {
		user, err := auth.NewUser("Ann", []string{"a@x.io", "b@x.io"}[i], "digest", auth.RoleUser)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, user))
		require.NoError(t, repo.SetResetToken(ctx, user.ID, []string{"h1", "h2"}[i], expiry))
	}
}

func TestNewSweeper_RequiresRepository(t *testing.T) {
	_, err := auth.NewSweeper(nil, auth.SweeperConfig{})
	errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := memory.NewUserRepository()
	seedResets(t, repo, clock.Now())

	reg := prometheus.NewRegistry()
	sweeper, err := auth.NewSweeper(repo, auth.SweeperConfig{
		Now:     clock.Now,
		Metrics: auth.NewMetrics(reg),
	})
	require.NoError(t, err)

	n, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to clear")

	clock.Advance(2 * time.Minute)
	n, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	lastRun, total := sweeper.Stats()
	assert.Equal(t, clock.Now(), lastRun)
	assert.Equal(t, int64(2), total)

	expected := `
# HELP devcamper_reset_tokens_swept_total Total number of expired reset tokens cleared by the sweeper
# TYPE devcamper_reset_tokens_swept_total counter
devcamper_reset_tokens_swept_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "devcamper_reset_tokens_swept_total"))
}

func TestSweeper_RunOnceFailure(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	users.On("DeleteExpiredResetTokens", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(int64(0), errors.New("connection refused"))

	sweeper, err := auth.NewSweeper(users, auth.SweeperConfig{})
	require.NoError(t, err)

	_, err = sweeper.RunOnce(context.Background())
	errutil.AssertErrorCode(t, err, "RESET_SWEEP_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "delete expired reset tokens")

	lastRun, total := sweeper.Stats()
	assert.True(t, lastRun.IsZero())
	assert.Zero(t, total)
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	repo := memory.NewUserRepository()
	seedResets(t, repo, clock.Now())

	sweeper, err := auth.NewSweeper(repo, auth.SweeperConfig{
		Interval: 10 * time.Millisecond,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	sweeper.Start(context.Background())
	sweeper.Start(context.Background()) // no-op while running

	require.Eventually(t, func() bool {
		_, total := sweeper.Stats()
		return total == 1
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeper_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	sweeper, err := auth.NewSweeper(memory.NewUserRepository(), auth.SweeperConfig{Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	require.Eventually(t, func() bool {
		lastRun, _ := sweeper.Stats()
		return !lastRun.IsZero()
	}, time.Second, 5*time.Millisecond, "first sweep runs on start")

	cancel()
	sweeper.Stop()

	// A stopped sweeper can be started again.
	sweeper.Start(context.Background())
	sweeper.Stop()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/devcamper/devcamper/pkg/errutil"
)

// DefaultSweepInterval is how often the Sweeper clears expired reset tokens.
const DefaultSweepInterval = time.Hour

// Sweeper periodically clears expired reset tokens. Expired tokens are never
// accepted anyway; the sweep only keeps stale hashes out of storage.
type Sweeper struct {
	users    UserRepository
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
	total   int64
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Interval time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *Metrics
}

// NewSweeper creates a Sweeper over users.
func NewSweeper(users UserRepository, cfg SweeperConfig) (*Sweeper, error) {
	if users == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user repository is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		users:    users,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// RunOnce clears expired reset tokens and returns how many were cleared.
func (w *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.users.DeleteExpiredResetTokens(ctx, w.now())
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}

	w.mu.Lock()
	w.lastRun = w.now()
	w.total += n
	w.mu.Unlock()

	w.metrics.addSwept(n)
	if n > 0 {
		w.logger.InfoContext(ctx, "expired reset tokens cleared", "count", n)
	}
	return n, nil
}

// Start runs the sweep every interval until Stop is called or ctx ends.
// Calling Start on a running Sweeper is a no-op.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)
}

// Stop halts the sweep loop and waits for it to exit.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Stats returns the time of the last successful sweep and the total number
// of tokens cleared.
func (w *Sweeper) Stats() (lastRun time.Time, total int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun, w.total
}

func (w *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		errutil.LogError(w.logger, "reset token sweep failed", err)
	}
}

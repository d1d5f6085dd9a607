// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package store owns the PostgreSQL connection pool and the schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures Open.
type PoolConfig struct {
	URL          string
	MaxConns     int32
	ConnectTries uint64
	ConnectDelay time.Duration
	Logger       *slog.Logger
}

// Defaults for PoolConfig fields left zero.
const (
	DefaultConnectTries = 5
	DefaultConnectDelay = 500 * time.Millisecond
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Open creates a pool and waits for the database to answer a ping, retrying
// with exponential backoff while it starts up.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForPing(ctx context.Context, db pinger, cfg PoolConfig) error {
	tries := cfg.ConnectTries
	if tries == 0 {
		tries = DefaultConnectTries
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = DefaultConnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	backoff := retry.WithMaxRetries(tries-1, retry.NewExponential(delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// ReadinessCheck returns a check that reports whether db answers a ping.
func ReadinessCheck(db pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			return oops.Code("DB_NOT_READY").Wrap(err)
		}
		return nil
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/auth/memory"
	"github.com/devcamper/devcamper/internal/auth/postgres"
	"github.com/devcamper/devcamper/internal/config"
	"github.com/devcamper/devcamper/internal/mail"
	"github.com/devcamper/devcamper/internal/observability"
	"github.com/devcamper/devcamper/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreOpener opens the user store described by the database config.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*UserStore, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// MailerFactory creates the mailer selected by the mail config.
	// Default: newMailer
	MailerFactory func(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessCheck) ObservabilityServer

	// Getenv looks up secret environment variables.
	// Default: os.Getenv
	Getenv func(string) string

	// LogWriter receives structured logs.
	// Default: os.Stderr
	LogWriter io.Writer
}

// UserStore is an opened user repository and its lifecycle hooks.
type UserStore struct {
	Users auth.UserRepository
	// Ready reports database health; nil for stores that are always ready.
	Ready observability.ReadinessCheck
	Close func()
}

// Migrator interface wraps the methods used by migrate from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
	RegisterBuildInfo(version, commit string)
}

// withDefaults returns a copy of d with every nil field set to its default.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessCheck) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.LogWriter == nil {
		out.LogWriter = os.Stderr
	}
	return out
}

// openStore opens PostgreSQL when a URL is configured and falls back to the
// in-memory repository otherwise.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*UserStore, error) {
	if cfg.URL == "" {
		logger.Warn("no database configured, using in-memory user store")
		return &UserStore{Users: memory.NewUserRepository(), Close: func() {}}, nil
	}

	pool, err := store.Open(ctx, store.PoolConfig{
		URL:          cfg.URL,
		MaxConns:     cfg.MaxConns,
		ConnectTries: cfg.ConnectTries,
		ConnectDelay: cfg.ConnectDelay,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	return &UserStore{
		Users: postgres.NewUserRepository(pool),
		Ready: store.ReadinessCheck(pool),
		Close: pool.Close,
	}, nil
}

// newMailer selects the mailer named by cfg.Driver.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Driver != config.MailDriverSMTP {
		logger.Warn("mail driver is log, messages are not delivered",
			"driver", cfg.Driver,
			"hint", "set mail.driver: smtp for production",
		)
		return mail.NewLogMailer(logger), nil
	}
	m, err := mail.NewSMTPMailer(cfg.SMTP(), logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/config"
)

// Default values for serve command flags. They only show in help output;
// the configuration defaults apply when a flag is not given.
const (
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"
	shutdownTimeout    = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the credential service processes",
		Long: `Run the long-lived credential service processes: the expired reset token
sweeper and the metrics and health endpoints. The process connects to the
database, optionally applies pending migrations, and runs until it receives
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, deps)
		},
	}

	flags := cmd.Flags()
	flags.String("log-format", defaultLogFormat, "log format (json or text)")
	flags.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("mail-driver", config.MailDriverLog, "mail driver (smtp or log)")
	flags.Bool("sweeper", true, "periodically clear expired reset tokens")
	flags.Duration("sweep-interval", auth.DefaultSweepInterval, "interval between reset token sweeps")
	flags.Bool("auto-migrate", false, "apply pending database migrations at startup")
	flags.String("reset-url-base", auth.DefaultConfig().ResetURLBase, "base URL of password reset links")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	cfg, err := loadValidConfig(cmd, deps)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, deps)
	slog.SetDefault(logger)

	logger.Info("starting devcamper",
		"version", version,
		"log_format", cfg.Log.Format,
		"mail_driver", cfg.Mail.Driver,
		"sweeper", cfg.Sweeper.Enabled,
	)

	if cfg.Database.AutoMigrate && cfg.Database.URL != "" {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	st, err := deps.StoreOpener(ctx, cfg.Database, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer st.Close()

	// The mailer is not used by serve itself, but a broken SMTP setup should
	// fail the deployment rather than the first reset request.
	if _, err := deps.MailerFactory(cfg.Mail, logger); err != nil {
		return oops.With("operation", "create mailer").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *auth.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ready)
		obsServer.RegisterBuildInfo(version, commit)
		metrics = auth.NewMetrics(obsServer.Registry())
	}

	if cfg.Sweeper.Enabled {
		sweeper, err := auth.NewSweeper(st.Users, auth.SweeperConfig{
			Interval: cfg.Sweeper.Interval,
			Logger:   logger,
			Metrics:  metrics,
		})
		if err != nil {
			return err
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
		logger.Info("reset token sweeper started", "interval", cfg.Sweeper.Interval.String())
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("DevCamper service started")
	logger.Info("devcamper ready")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	return nil
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(deps *Deps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	version, _, err := m.Version()
	if err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

// closeMigrator closes m, logging rather than returning the error so the
// command's own result is kept.
func closeMigrator(m Migrator, logger *slog.Logger) {
	if err := m.Close(); err != nil {
		logger.Warn("error closing migrator", "error", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

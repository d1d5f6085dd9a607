// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/config"
	"github.com/devcamper/devcamper/internal/logging"
	"github.com/devcamper/devcamper/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

const serviceName = "devcamper"

// NewRootCmd creates the root command for the DevCamper CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "devcamper",
		Short: "DevCamper - bootcamp directory backend",
		Long: `DevCamper is the backend of a bootcamp directory. This binary runs the
credential service processes and the administration commands for accounts,
session tokens and the database schema.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/devcamper/config.yaml)")

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewTokenCmd(deps))

	return cmd
}

// loadConfig reads the configuration for cmd. Without --config the file in
// the XDG config directory is used when present. Only flags named in the
// config package's flag table take part.
func loadConfig(cmd *cobra.Command, deps *Deps) (*config.Config, error) {
	path := configFile
	if path == "" {
		if p, exists, err := xdg.ConfigFile(deps.Getenv); err == nil && exists {
			path = p
		}
	}
	return config.Load(path, cmd.Flags(), deps.Getenv)
}

// loadValidConfig is loadConfig followed by Config.Validate.
func loadValidConfig(cmd *cobra.Command, deps *Deps) (*config.Config, error) {
	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from a validated configuration.
func newLogger(cfg *config.Config, deps *Deps) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  deps.LogWriter,
	})
}

// newService wires an auth.Service over users with the configured mailer.
func newService(cfg *config.Config, users auth.UserRepository, deps *Deps, logger *slog.Logger) (*auth.Service, error) {
	mailer, err := deps.MailerFactory(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	return auth.NewService(users, mailer, cfg.Auth.ToAuth(), auth.WithLogger(logger))
}

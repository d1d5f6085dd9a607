// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package config loads the devcamper configuration from defaults, an
// optional YAML file, command-line flags and secret environment variables.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/internal/logging"
	"github.com/devcamper/devcamper/internal/mail"
)

// Environment variables that supply secrets when the file leaves them empty.
const (
	EnvJWTSecret    = "DEVCAMPER_JWT_SECRET"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvSMTPPassword = "DEVCAMPER_SMTP_PASSWORD"
)

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config is the complete service configuration.
type Config struct {
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// AuthConfig mirrors auth.Config with a string secret.
type AuthConfig struct {
	JWTSecret           string `koanf:"jwt_secret"`
	SessionLifetimeDays int    `koanf:"session_lifetime_days"`
	ResetWindowMinutes  int    `koanf:"reset_window_minutes"`
	HashAlgorithm       string `koanf:"hash_algorithm"`
	HashWorkFactor      int    `koanf:"hash_work_factor"`
	MinPasswordLength   int    `koanf:"min_password_length"`
	MaxPasswordLength   int    `koanf:"max_password_length"`
	ResetURLBase        string `koanf:"reset_url_base"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects the
// in-memory user store.
type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	MaxConns     int32         `koanf:"max_conns"`
	ConnectTries uint64        `koanf:"connect_tries"`
	ConnectDelay time.Duration `koanf:"connect_delay"`
	AutoMigrate  bool          `koanf:"auto_migrate"`
}

// MailConfig selects and configures the Mailer.
type MailConfig struct {
	Driver      string        `koanf:"driver"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	FromAddress string        `koanf:"from_address"`
	FromName    string        `koanf:"from_name"`
	Timeout     time.Duration `koanf:"timeout"`
	RequireTLS  bool          `koanf:"require_tls"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// SweeperConfig configures the expired reset token sweeper.
type SweeperConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are ignored by Load.
var flagKeys = map[string]string{
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "metrics.addr",
	"mail-driver":    "mail.driver",
	"sweep-interval": "sweeper.interval",
	"sweeper":        "sweeper.enabled",
	"auto-migrate":   "database.auto_migrate",
	"reset-url-base": "auth.reset_url_base",
}

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"auth": map[string]any{
			"session_lifetime_days": auth.DefaultSessionLifetimeDays,
			"reset_window_minutes":  auth.DefaultResetWindowMinutes,
			"hash_algorithm":        auth.AlgorithmArgon2id,
			"hash_work_factor":      0,
			"min_password_length":   auth.DefaultMinPasswordLength,
			"max_password_length":   auth.DefaultMaxPasswordLength,
			"reset_url_base":        auth.DefaultConfig().ResetURLBase,
		},
		"database": map[string]any{
			"max_conns":     int32(10),
			"connect_tries": uint64(5),
			"connect_delay": "500ms",
			"auto_migrate":  false,
		},
		"mail": map[string]any{
			"driver":       MailDriverLog,
			"port":         587,
			"from_address": "noreply@devcamper.io",
			"from_name":    "DevCamper",
			"timeout":      mail.DefaultTimeout.String(),
			"require_tls":  true,
		},
		"log": map[string]any{
			"format": "json",
			"level":  "info",
		},
		"sweeper": map[string]any{
			"enabled":  true,
			"interval": auth.DefaultSweepInterval.String(),
		},
		"metrics": map[string]any{
			"addr": "127.0.0.1:9100",
		},
	}
}

// mapProvider feeds a nested map into koanf.
type mapProvider map[string]any

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("mapProvider does not support ReadBytes")
}

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

// Load builds the configuration. path may be empty; flags may be nil;
// getenv defaults to os.Getenv.
func Load(path string, flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Unchanged flags are skipped because every mapped key already has
		// a default, so only explicit flags override the file.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = getenv(EnvJWTSecret)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = getenv(EnvDatabaseURL)
	}
	if cfg.Mail.Password == "" {
		cfg.Mail.Password = getenv(EnvSMTPPassword)
	}

	return &cfg, nil
}

// Validate checks the parts of the configuration every command needs.
// Checks that depend on the command, such as a required database, are made
// by the caller.
func (c *Config) Validate() error {
	if !logging.ValidFormat(c.Log.Format) {
		return oops.Code("CONFIG_INVALID").
			With("log.format", c.Log.Format).
			Errorf("log format must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("log.level", c.Log.Level).Wrapf(err, "invalid log level")
	}

	if err := c.Auth.ToAuth().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "auth").Wrap(err)
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if err := c.Mail.SMTP().Validate(); err != nil {
			return oops.Code("CONFIG_INVALID").With("section", "mail").Wrap(err)
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("mail.driver", c.Mail.Driver).
			Errorf("mail driver must be %q or %q", MailDriverSMTP, MailDriverLog)
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("sweeper.interval", c.Sweeper.Interval.String()).
			Errorf("sweeper interval must be positive")
	}
	if c.Database.MaxConns < 0 {
		return oops.Code("CONFIG_INVALID").
			With("database.max_conns", c.Database.MaxConns).
			Errorf("max conns cannot be negative")
	}
	return nil
}

// ToAuth converts the section into an auth.Config.
func (c AuthConfig) ToAuth() auth.Config {
	return auth.Config{
		SigningSecret:       []byte(c.JWTSecret),
		SessionLifetimeDays: c.SessionLifetimeDays,
		ResetWindowMinutes:  c.ResetWindowMinutes,
		HashAlgorithm:       c.HashAlgorithm,
		HashWorkFactor:      c.HashWorkFactor,
		MinPasswordLength:   c.MinPasswordLength,
		MaxPasswordLength:   c.MaxPasswordLength,
		ResetURLBase:        c.ResetURLBase,
	}
}

// SMTP converts the section into a mail.SMTPConfig.
func (c MailConfig) SMTP() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		FromAddress: c.FromAddress,
		FromName:    c.FromName,
		Timeout:     c.Timeout,
		RequireTLS:  c.RequireTLS,
	}
}

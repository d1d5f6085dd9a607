// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package xdg resolves DevCamper's per-user directories following the XDG
// Base Directory Specification.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "devcamper"
	configFileName = "config.yaml"
)

// ConfigDir returns $XDG_CONFIG_HOME/devcamper, falling back to
// $HOME/.config/devcamper. getenv defaults to os.Getenv.
func ConfigDir(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if base := getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigFile returns the default config file path and whether it exists.
// Unreadable paths are reported as existing so the load fails loudly instead
// of silently falling back to defaults.
func ConfigFile(getenv func(string) string) (path string, exists bool, err error) {
	dir, err := ConfigDir(getenv)
	if err != nil {
		return "", false, err
	}
	path = filepath.Join(dir, configFileName)
	if _, err := os.Stat(path); err != nil {
		return path, !errors.Is(err, fs.ErrNotExist), nil
	}
	return path, true, nil
}

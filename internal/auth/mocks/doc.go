// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package mocks provides testify mocks of the auth package interfaces.
// Constructors register AssertExpectations as a test cleanup.
package mocks

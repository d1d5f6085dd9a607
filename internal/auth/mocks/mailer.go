// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/devcamper/devcamper/internal/auth"
)

// MockMailer is a testify mock of auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// NewMockMailer creates a MockMailer whose expectations are asserted when t
// finishes.
func NewMockMailer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockMailer {
	m := &MockMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

var _ auth.Mailer = (*MockMailer)(nil)

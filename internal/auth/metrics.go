// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts credential lifecycle outcomes. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	swept      prometheus.Counter
}

// NewMetrics creates and registers the auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcamper_auth_operations_total",
				Help: "Total number of credential lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devcamper_reset_tokens_swept_total",
			Help: "Total number of expired reset tokens cleared by the sweeper",
		}),
	}

	reg.MustRegister(m.operations)
	reg.MustRegister(m.swept)

	return m
}

// observe records the outcome of operation. The result label is "ok" or the
// error kind.
func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) addSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

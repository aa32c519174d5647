// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the auth core.
var (
	// flowsTotal counts orchestrator flows by action and result code.
	flowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snake_auth_flows_total",
		Help: "Total number of auth flows by action and outcome code",
	}, []string{"action", "code"})

	// lockoutsTotal counts accounts transitioned into lockout.
	lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snake_auth_lockouts_total",
		Help: "Total number of account lockouts",
	})

	// revocationsTotal counts revoked tokens by reason.
	revocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snake_auth_revocations_total",
		Help: "Total number of revoked tokens by reason",
	}, []string{"reason"})

	// auditFailuresTotal counts audit events that could not be recorded.
	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snake_auth_audit_failures_total",
		Help: "Total number of audit events that failed to persist",
	})

	// sweptTotal counts rows removed by the sweeper.
	sweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snake_auth_swept_rows_total",
		Help: "Total number of expired rows removed by the sweeper",
	}, []string{"table"})
)

func recordFlow(action, code string) {
	if code == "" {
		code = "ok"
	}
	flowsTotal.WithLabelValues(action, code).Inc()
}

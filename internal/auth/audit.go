// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit actions.
const (
	ActionRegister       = "register"
	ActionLogin          = "login"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionPasswordChange = "password_change"
	ActionRevokeAll      = "revoke_all"
	ActionStatusChange   = "status_change"

	// ActionWhoAmI is counted in metrics but not audited.
	ActionWhoAmI = "whoami"
)

// AuditEvent is an immutable record of a security-relevant action.
// AccountID is nil when the attempt could not be tied to an account.
type AuditEvent struct {
	ID        ulid.ULID
	AccountID *ulid.ULID
	Action    string
	Success   bool
	IPAddress string
	UserAgent string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditSink receives audit events. Implementations append only.
type AuditSink interface {
	Record(ctx context.Context, event *AuditEvent) error
}

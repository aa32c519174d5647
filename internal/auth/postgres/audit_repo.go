// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package postgres

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

// AuditRepository implements auth.AuditSink by appending to audit_events.
type AuditRepository struct {
	pool store.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool store.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record appends an audit event.
func (r *AuditRepository) Record(ctx context.Context, event *auth.AuditEvent) error {
	detail := event.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return oops.Code("AUDIT_ENCODE_FAILED").
			With("action", event.Action).
			Wrap(err)
	}

	var accountID *string
	if event.AccountID != nil {
		id := event.AccountID.String()
		accountID = &id
	}

	_, err = store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_events (id, account_id, action, success, ip_address, user_agent, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID.String(),
		accountID,
		event.Action,
		event.Success,
		event.IPAddress,
		event.UserAgent,
		payload,
		event.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert audit event").
			With("action", event.Action).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.AuditSink = (*AuditRepository)(nil)

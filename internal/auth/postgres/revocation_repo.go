// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

// RevocationRepository implements auth.RevocationRepository using
// PostgreSQL.
type RevocationRepository struct {
	pool store.Pool
}

// NewRevocationRepository creates a new RevocationRepository.
func NewRevocationRepository(pool store.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// IsRevoked reports whether tokenID has a revocation entry.
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)
	`, tokenID).Scan(&revoked)
	if err != nil {
		return false, oops.Code("REVOCATION_CHECK_FAILED").
			With("operation", "check revoked token").
			With("token_id", tokenID).
			Wrap(err)
	}
	return revoked, nil
}

// Revoke records a revocation. Revoking an already revoked token keeps
// the first entry.
func (r *RevocationRepository) Revoke(ctx context.Context, token *auth.RevokedToken) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO revoked_tokens (token_id, kind, account_id, expires_at, reason, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO NOTHING
	`,
		token.TokenID,
		string(token.Kind),
		token.AccountID.String(),
		token.ExpiresAt,
		token.Reason,
		token.RevokedAt,
	)
	if err != nil {
		return oops.Code("REVOCATION_INSERT_FAILED").
			With("operation", "insert revoked token").
			With("token_id", token.TokenID).
			With("reason", token.Reason).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes entries whose token would have expired anyway.
func (r *RevocationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at <= $1
	`, before)
	if err != nil {
		return 0, oops.Code("REVOCATION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired revocations").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.RevocationRepository = (*RevocationRepository)(nil)

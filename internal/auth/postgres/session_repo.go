// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

const sessionColumns = `id, account_id, refresh_token_hash, expires_at, created_at, last_activity_at,
	ip_address, user_agent, active, device`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool store.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool store.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.RefreshTokenHash,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastActivityAt,
		session.IPAddress,
		session.UserAgent,
		session.Active,
		session.Device,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetActiveByRefreshHash returns the live session holding refreshHash.
// Inactive or expired sessions are reported as not found.
func (r *SessionRepository) GetActiveByRefreshHash(ctx context.Context, refreshHash string, now time.Time) (*auth.Session, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE refresh_token_hash = $1 AND active AND expires_at > $2
	`, refreshHash, now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_REFRESH_FAILED").
			With("operation", "get session by refresh hash").
			Wrap(err)
	}
	return session, nil
}

// LatestActive returns the most recently created live session of an
// account.
func (r *SessionRepository) LatestActive(ctx context.Context, accountID ulid.ULID, now time.Time) (*auth.Session, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE account_id = $1 AND active AND expires_at > $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, accountID.String(), now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_LATEST_FAILED").
			With("operation", "get latest active session").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return session, nil
}

// Rotate swaps the refresh hash only if the session still holds oldHash and
// is live. Of two concurrent rotations with the same token exactly one
// succeeds; the other gets auth.ErrNotFound.
func (r *SessionRepository) Rotate(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions SET refresh_token_hash = $3, last_activity_at = $4
		WHERE id = $1 AND refresh_token_hash = $2 AND active AND expires_at > $4
	`, id.String(), oldHash, newHash, now)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "rotate refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Deactivate marks one session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions SET active = FALSE WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeactivateAll marks every active session of an account inactive and
// returns how many changed. Zero is not an error.
func (r *SessionRepository) DeactivateAll(ctx context.Context, accountID ulid.ULID) (int64, error) {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions SET active = FALSE WHERE account_id = $1 AND active
	`, accountID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_ALL_FAILED").
			With("operation", "deactivate account sessions").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions that expired before the given time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM sessions WHERE expires_at <= $1
	`, before)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row. pgx.ErrNoRows is returned unwrapped for
// callers to handle.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr, accountIDStr string
		session             auth.Session
	)
	err := row.Scan(
		&idStr,
		&accountIDStr,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.IPAddress,
		&session.UserAgent,
		&session.Active,
		&session.Device,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	if session.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if session.AccountID, err = ulid.Parse(accountIDStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT_ID").With("account_id", accountIDStr).Wrap(err)
	}
	return &session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)

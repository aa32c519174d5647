// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package postgres implements the auth repositories on PostgreSQL. Every
// repository resolves its connection through store.Conn and therefore joins
// a transaction opened by store.Transactor.
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

const accountColumns = `id, handle, email, password_hash, status, failed_attempts, locked_until,
	last_login_at, games_played, best_score, best_length, total_score, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool store.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool store.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account. A duplicate handle or email yields
// auth.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO accounts (id, handle, email, password_hash, status, failed_attempts, locked_until,
			last_login_at, games_played, best_score, best_length, total_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		account.ID.String(),
		account.Handle,
		account.Email,
		account.PasswordHash,
		string(account.Status),
		account.FailedAttempts,
		account.LockedUntil,
		account.LastLoginAt,
		account.Stats.GamesPlayed,
		account.Stats.BestScore,
		account.Stats.BestLength,
		account.Stats.TotalScore,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if store.IsUniqueViolation(err) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("handle", account.Handle).
			With("constraint", store.ConstraintName(err)).
			Wrap(auth.ErrConflict)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("handle", account.Handle).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	return r.scanOne(row, "id", id.String())
}

// GetByHandle retrieves an account by its exact handle.
func (r *AccountRepository) GetByHandle(ctx context.Context, handle string) (*auth.Account, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle)
	return r.scanOne(row, "handle", handle)
}

// GetByEmail retrieves an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return r.scanOne(row, "email", email)
}

// ExistsByHandleOrEmail reports whether any account uses the handle or email.
func (r *AccountRepository) ExistsByHandleOrEmail(ctx context.Context, handle, email string) (bool, error) {
	var exists bool
	err := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE handle = $1 OR email = $2)
	`, handle, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "check handle or email").
			With("handle", handle).
			Wrap(err)
	}
	return exists, nil
}

// ClaimAttempt counts one login attempt in a single statement that also
// refuses locked accounts, so concurrent attempts never lose an update or
// slip past a lock taken by a sibling. A lock that has already expired
// restarts the count at one. Reaching threshold sets locked_until.
func (r *AccountRepository) ClaimAttempt(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (auth.AttemptClaim, error) {
	conn := store.Conn(ctx, r.pool)
	claim := auth.AttemptClaim{Claimed: true}
	err := conn.QueryRow(ctx, `
		UPDATE accounts SET
			failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN (CASE
					WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
					ELSE failed_attempts + 1
				END) >= $3 THEN $4
				ELSE NULL
			END,
			updated_at = $2
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING failed_attempts, locked_until
	`, id.String(), now, threshold, lockUntil).Scan(&claim.Count, &claim.LockedUntil)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return auth.AttemptClaim{}, oops.Code("ACCOUNT_CLAIM_ATTEMPT_FAILED").
			With("operation", "claim login attempt").
			With("id", id.String()).
			Wrap(err)
	}

	// No row matched: the account is locked or missing.
	claim = auth.AttemptClaim{}
	err = conn.QueryRow(ctx, `
		SELECT failed_attempts, locked_until FROM accounts WHERE id = $1
	`, id.String()).Scan(&claim.Count, &claim.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.AttemptClaim{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.AttemptClaim{}, oops.Code("ACCOUNT_CLAIM_ATTEMPT_FAILED").
			With("operation", "read lockout").
			With("id", id.String()).
			Wrap(err)
	}
	return claim, nil
}

// RecordLogin clears the failure counter and lock and sets last_login_at.
func (r *AccountRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.update(ctx, "ACCOUNT_RECORD_LOGIN_FAILED", "record login", id, `
		UPDATE accounts SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), at)
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(ctx, "ACCOUNT_UPDATE_PASSWORD_FAILED", "update password", id, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id.String(), passwordHash)
}

// UpdateStatus changes the account status.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id ulid.ULID, status auth.Status) error {
	return r.update(ctx, "ACCOUNT_UPDATE_STATUS_FAILED", "update status", id, `
		UPDATE accounts SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id.String(), string(status))
}

func (r *AccountRepository) update(ctx context.Context, code, operation string, id ulid.ULID, sql string, args ...any) error {
	result, err := store.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code(code).
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanOne scans a single account row. key and value describe the lookup
// for error context.
func (r *AccountRepository) scanOne(row pgx.Row, key, value string) (*auth.Account, error) {
	var (
		idStr   string
		status  string
		account auth.Account
	)
	err := row.Scan(
		&idStr,
		&account.Handle,
		&account.Email,
		&account.PasswordHash,
		&status,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.LastLoginAt,
		&account.Stats.GamesPlayed,
		&account.Stats.BestScore,
		&account.Stats.BestLength,
		&account.Stats.TotalScore,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	account.Status = auth.Status(status)
	return &account, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

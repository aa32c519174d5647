// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package postgres implements the leaderboard repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/leaderboard"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

// EntryRepository implements leaderboard.Repository using PostgreSQL.
type EntryRepository struct {
	pool store.Pool
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool store.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Insert stores a new entry.
func (r *EntryRepository) Insert(ctx context.Context, entry *leaderboard.Entry) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO leaderboard_entries (id, account_id, score, length, difficulty, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		entry.AccountID.String(),
		entry.Score,
		entry.Length,
		string(entry.Difficulty),
		string(entry.Mode),
		entry.CreatedAt,
	)
	if err != nil {
		return oops.Code("LEADERBOARD_INSERT_FAILED").
			With("operation", "insert leaderboard entry").
			With("account_id", entry.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// ApplyToStats folds one game into the account aggregates in a single
// statement.
func (r *EntryRepository) ApplyToStats(ctx context.Context, accountID ulid.ULID, score, length int, at time.Time) (auth.Stats, error) {
	var stats auth.Stats
	err := store.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE accounts SET
			games_played = games_played + 1,
			best_score   = GREATEST(best_score, $2),
			best_length  = GREATEST(best_length, $3),
			total_score  = total_score + $2,
			updated_at   = $4
		WHERE id = $1
		RETURNING games_played, best_score, best_length, total_score
	`, accountID.String(), score, length, at).Scan(
		&stats.GamesPlayed, &stats.BestScore, &stats.BestLength, &stats.TotalScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Stats{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.Stats{}, oops.Code("LEADERBOARD_STATS_FAILED").
			With("operation", "update account stats").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return stats, nil
}

// Compile-time interface check.
var _ leaderboard.Repository = (*EntryRepository)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package leaderboard records finished games for authenticated accounts.
package leaderboard

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
)

// Score and length bounds of a submission.
const (
	MaxScore  = 100000
	MinLength = 1
	MaxLength = 50
)

// Difficulty is the game difficulty an entry was played at.
type Difficulty string

// Difficulties.
const (
	DifficultyEasy       Difficulty = "easy"
	DifficultyMedium     Difficulty = "medium"
	DifficultyHard       Difficulty = "hard"
	DifficultyImpossible Difficulty = "impossible"
	DifficultyHacker     Difficulty = "hacker"
)

// Mode is the game mode.
type Mode string

// Modes.
const (
	ModeNormal Mode = "normal"
	ModeGhost  Mode = "ghost"
)

// Submission is a finished game as reported by the client.
type Submission struct {
	Score      int        `json:"score"`
	Length     int        `json:"length"`
	Difficulty Difficulty `json:"difficulty"`
	Mode       Mode       `json:"mode"`
}

// Normalize fills in the default difficulty and mode.
func (s *Submission) Normalize() {
	if s.Difficulty == "" {
		s.Difficulty = DifficultyEasy
	}
	if s.Mode == "" {
		s.Mode = ModeNormal
	}
}

// Validate checks the submission bounds.
func (s Submission) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Score,
			validation.Min(0).Error("invalid score"),
			validation.Max(MaxScore).Error("invalid score")),
		validation.Field(&s.Length,
			validation.Required.Error("invalid length"),
			validation.Min(MinLength).Error("invalid length"),
			validation.Max(MaxLength).Error("invalid length")),
		validation.Field(&s.Difficulty,
			validation.Required.Error("invalid difficulty"),
			validation.In(DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyImpossible, DifficultyHacker).
				Error("invalid difficulty")),
		validation.Field(&s.Mode,
			validation.Required.Error("invalid mode"),
			validation.In(ModeGhost, ModeNormal).Error("invalid mode")),
	)
	if err != nil {
		return oops.Code(auth.CodeValidation).Errorf("%s", err.Error())
	}
	return nil
}

// Entry is a recorded game.
type Entry struct {
	ID         ulid.ULID  `json:"id"`
	AccountID  ulid.ULID  `json:"account_id"`
	Score      int        `json:"score"`
	Length     int        `json:"length"`
	Difficulty Difficulty `json:"difficulty"`
	Mode       Mode       `json:"mode"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Repository persists entries and the per-account aggregates they feed.
type Repository interface {
	// Insert stores a new entry.
	Insert(ctx context.Context, entry *Entry) error

	// ApplyToStats folds one game into the account's aggregate stats and
	// returns the updated values. Returns auth.ErrNotFound for an unknown
	// account.
	ApplyToStats(ctx context.Context, accountID ulid.ULID, score, length int, at time.Time) (auth.Stats, error)
}

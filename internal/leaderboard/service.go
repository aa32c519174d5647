// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package leaderboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
)

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "snake_leaderboard_submissions_total",
	Help: "Total number of accepted leaderboard submissions by difficulty and mode",
}, []string{"difficulty", "mode"})

// Result is the outcome of a successful submission.
type Result struct {
	Entry Entry      `json:"entry"`
	Stats auth.Stats `json:"stats"`
}

// Service records submissions.
type Service struct {
	repo   Repository
	tx     auth.Transactor
	logger *slog.Logger
	clock  func() time.Time
}

// NewService creates a Service. A nil logger selects slog.Default.
func NewService(repo Repository, tx auth.Transactor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, logger: logger, clock: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Submit validates sub and, in one transaction, inserts the entry and
// updates the account's stats. Either both writes happen or neither does.
func (s *Service) Submit(ctx context.Context, accountID ulid.ULID, sub Submission) (*Result, error) {
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:         ulid.Make(),
		AccountID:  accountID,
		Score:      sub.Score,
		Length:     sub.Length,
		Difficulty: sub.Difficulty,
		Mode:       sub.Mode,
		CreatedAt:  s.clock(),
	}

	var stats auth.Stats
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, entry); err != nil {
			return err
		}
		var err error
		stats, err = s.repo.ApplyToStats(ctx, accountID, entry.Score, entry.Length, entry.CreatedAt)
		return err
	})
	if err != nil {
		return nil, oops.Code("LEADERBOARD_SUBMIT_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	submissionsTotal.WithLabelValues(string(entry.Difficulty), string(entry.Mode)).Inc()
	s.logger.Debug("leaderboard entry recorded",
		"account_id", accountID.String(),
		"entry_id", entry.ID.String(),
		"score", entry.Score)
	return &Result{Entry: *entry, Stats: stats}, nil
}

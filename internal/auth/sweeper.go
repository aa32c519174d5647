// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

// DefaultSweepInterval is how often the Sweeper runs by default.
const DefaultSweepInterval = time.Hour

// Sweeper periodically deletes revocation entries and sessions past their
// expiry. Lookups already ignore expired rows, so sweeping only bounds
// storage.
type Sweeper struct {
	interval    time.Duration
	sessions    SessionRepository
	revocations RevocationRepository
	logger      *slog.Logger
	clock       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(interval time.Duration, sessions SessionRepository, revocations RevocationRepository, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		interval:    interval,
		sessions:    sessions,
		revocations: revocations,
		logger:      logger,
		clock:       time.Now,
	}
}

// RunOnce executes a single sweep. Both tables are attempted even if the
// first fails. Each failure is logged here and the errors are combined.
func (w *Sweeper) RunOnce(ctx context.Context) error {
	now := w.clock()
	var errs []error

	revoked, err := w.revocations.DeleteExpired(ctx, now)
	if err != nil {
		errutil.LogError(w.logger, "sweep revoked tokens failed", err)
		errs = append(errs, err)
	} else if revoked > 0 {
		sweptTotal.WithLabelValues("revoked_tokens").Add(float64(revoked))
		w.logger.Info("swept expired revocations", "count", revoked)
	}

	sessions, err := w.sessions.DeleteExpired(ctx, now)
	if err != nil {
		errutil.LogError(w.logger, "sweep sessions failed", err)
		errs = append(errs, err)
	} else if sessions > 0 {
		sweptTotal.WithLabelValues("sessions").Add(float64(sessions))
		w.logger.Info("swept expired sessions", "count", sessions)
	}

	return errors.Join(errs...)
}

// Start begins periodic sweeping.
func (w *Sweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the sweeper and waits for the current cycle to finish.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// RunOnce has already logged each failure.
	_ = w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	authpg "github.com/snakesurvival/snakesurvival/internal/auth/postgres"
	"github.com/snakesurvival/snakesurvival/internal/config"
	"github.com/snakesurvival/snakesurvival/internal/leaderboard"
	boardpg "github.com/snakesurvival/snakesurvival/internal/leaderboard/postgres"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

// services holds everything built on top of the database pool.
type services struct {
	auth        *auth.Service
	leaderboard *leaderboard.Service
	sweeper     *auth.Sweeper
}

func buildServices(cfg config.Config, db Database, logger *slog.Logger) (*services, error) {
	sessions := authpg.NewSessionRepository(db)
	revocations := authpg.NewRevocationRepository(db)
	tx := store.NewTransactor(db)

	authSvc, err := auth.NewService(cfg.AuthCore(), auth.Deps{
		Accounts:    authpg.NewAccountRepository(db),
		Sessions:    sessions,
		Revocations: revocations,
		Audit:       authpg.NewAuditRepository(db),
		Transactor:  tx,
		Hasher:      auth.NewArgon2idHasher(),
		Logger:      logger.With("component", "auth"),
	})
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "auth").Wrap(err)
	}

	return &services{
		auth:        authSvc,
		leaderboard: leaderboard.NewService(boardpg.NewEntryRepository(db), tx, logger.With("component", "leaderboard")),
		sweeper:     auth.NewSweeper(cfg.Sweep.Interval, sessions, revocations, logger.With("component", "sweeper")),
	}, nil
}

// newSweeper builds a standalone sweeper; it needs no token secret.
func newSweeper(cfg config.Config, db Database, logger *slog.Logger) *auth.Sweeper {
	return auth.NewSweeper(cfg.Sweep.Interval,
		authpg.NewSessionRepository(db),
		authpg.NewRevocationRepository(db),
		logger.With("component", "sweeper"))
}

// connectDatabase opens the pool described by cfg.
func connectDatabase(ctx context.Context, cfg config.Config, deps *CommonDeps, logger *slog.Logger) (Database, error) {
	opts := store.DefaultConnectOptions()
	opts.MaxConns = cfg.Database.MaxConns
	if cfg.Database.ConnectAttempts > 0 {
		opts.Attempts = cfg.Database.ConnectAttempts
	}
	if cfg.Database.ConnectBackoff > 0 {
		opts.Backoff = cfg.Database.ConnectBackoff
	}
	opts.Logger = logger

	db, err := deps.DatabaseConnector(ctx, cfg.Database.URL, opts)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return db, nil
}

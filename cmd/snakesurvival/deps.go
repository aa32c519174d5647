// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/snakesurvival/snakesurvival/internal/observability"
	"github.com/snakesurvival/snakesurvival/internal/store"
	"github.com/snakesurvival/snakesurvival/internal/web"
)

// Database is the pool used by the commands. *pgxpool.Pool and
// pgxmock.PgxPoolIface satisfy it.
type Database interface {
	store.Pool
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the migration operations used by the CLI.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// AutoMigrator is the subset of Migrator used on server startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// HTTPServer is the request dispatcher.
type HTTPServer interface {
	Listen(addr string) error
	Shutdown(ctx context.Context) error
}

// ObservabilityServer serves metrics and health probes.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// CommonDeps are injectable dependencies shared by commands that talk to
// the database. Nil fields use their default implementations.
type CommonDeps struct {
	// DatabaseConnector opens the pool.
	// Default: store.Connect
	DatabaseConnector func(ctx context.Context, url string, opts store.ConnectOptions) (Database, error)
}

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	CommonDeps

	// MigratorFactory creates the migrator used when auto-migrate is on.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// HTTPServerFactory creates the request dispatcher.
	// Default: web.New
	HTTPServerFactory func(authSvc web.AuthService, board web.LeaderboardService, opts web.Options) HTTPServer

	// ObservabilityServerFactory creates the observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, isReady observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

func (d *CommonDeps) applyDefaults() {
	if d.DatabaseConnector == nil {
		d.DatabaseConnector = func(ctx context.Context, url string, opts store.ConnectOptions) (Database, error) {
			return store.Connect(ctx, url, opts)
		}
	}
}

func (d *ServeDeps) applyDefaults() {
	d.CommonDeps.applyDefaults()
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(authSvc web.AuthService, board web.LeaderboardService, opts web.Options) HTTPServer {
			return web.New(authSvc, board, opts)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, isReady observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, isReady, logger)
		}
	}
}

func (d *MigrateDeps) applyDefaults() {
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
}

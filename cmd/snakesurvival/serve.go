// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/snakesurvival/snakesurvival/internal/config"
	"github.com/snakesurvival/snakesurvival/internal/web"
	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server for the auth and leaderboard API together with
the metrics/health server and the expiry sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, &ServeDeps{})
		},
	}
}

func runServeWithDeps(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	deps.applyDefaults()

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	db, err := connectDatabase(ctx, cfg, &deps.CommonDeps, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var observer web.RequestObserver
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, db.Ping, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		if m := obsServer.Metrics(); m != nil {
			observer = m
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := deps.HTTPServerFactory(svc.auth, svc.leaderboard, web.Options{
		BodyLimit:    cfg.HTTP.BodyLimit,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		TrustProxy:   cfg.HTTP.TrustProxy,
		Observer:     observer,
		Logger:       logger.With("component", "web"),
	})
	httpErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.Listen(cfg.HTTP.Addr); err != nil {
			httpErrCh <- err
		}
		close(httpErrCh)
	}()
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")

	svc.sweeper.Start(ctx)

	logger.Info("server ready", "http_addr", cfg.HTTP.Addr, "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "error stopping http server", err)
	}
	svc.sweeper.Stop()
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(logger, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return serverFailure(ctx)
}

// serverFailure returns the error of the server that triggered shutdown, or
// nil when shutdown was requested by the parent context.
func serverFailure(ctx context.Context) error {
	var failure *serverError
	if errors.As(context.Cause(ctx), &failure) {
		return oops.Code("SERVER_FAILED").With("server", failure.server).Wrap(failure.err)
	}
	return nil
}

// serverError is the cancellation cause recorded by monitorServerErrors.
type serverError struct {
	server string
	err    error
}

func (e *serverError) Error() string { return e.server + " server: " + e.err.Error() }

func (e *serverError) Unwrap() error { return e.err }

// runAutoMigration applies pending migrations. A close failure is logged
// but does not fail startup.
func runAutoMigration(url string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	slog.Info("applying pending migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

// monitorServerErrors cancels ctx with the server's error as the cause when
// the server reports one. Only the first cause is kept. It exits when the
// channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel(&serverError{server: serverName, err: err})
		}
	case <-ctx.Done():
	}
}

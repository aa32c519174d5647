// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package web is the JSON dispatcher in front of the auth and leaderboard
// services. It parses requests, extracts the bearer token and client
// metadata, and maps outcomes to HTTP status codes. It holds no auth logic
// of its own.
package web

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/leaderboard"
	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

// AuthService is the part of auth.Service the dispatcher calls.
type AuthService interface {
	Register(ctx context.Context, in auth.Inbound, req auth.RegisterRequest) auth.Outcome[auth.PublicAccount]
	Login(ctx context.Context, in auth.Inbound, req auth.LoginRequest) auth.Outcome[auth.LoginResult]
	Refresh(ctx context.Context, in auth.Inbound, req auth.RefreshRequest) auth.Outcome[auth.TokenPair]
	Logout(ctx context.Context, in auth.Inbound, accessToken string) auth.Outcome[auth.Empty]
	WhoAmI(ctx context.Context, in auth.Inbound, accessToken string) auth.Outcome[auth.PublicAccount]
	ChangePassword(ctx context.Context, in auth.Inbound, req auth.ChangePasswordRequest) auth.Outcome[auth.Empty]
	RevokeAll(ctx context.Context, in auth.Inbound, accessToken string) auth.Outcome[auth.Empty]
	Authenticate(ctx context.Context, accessToken string) (*auth.Account, error)
}

// LeaderboardService records finished games.
type LeaderboardService interface {
	Submit(ctx context.Context, accountID ulid.ULID, sub leaderboard.Submission) (*leaderboard.Result, error)
}

// RequestObserver receives one call per finished request.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Options configures the dispatcher.
type Options struct {
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TrustProxy   bool
	Observer     RequestObserver
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Server is the HTTP dispatcher.
type Server struct {
	app    *fiber.App
	auth   AuthService
	board  LeaderboardService
	obs    RequestObserver
	logger *slog.Logger
	clock  func() time.Time
}

// New creates the dispatcher and registers its routes.
func New(authSvc AuthService, board LeaderboardService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		auth:   authSvc,
		board:  board,
		obs:    opts.Observer,
		logger: opts.Logger,
		clock:  opts.Clock,
	}

	cfg := fiber.Config{
		AppName:               "snakesurvival",
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	}
	if opts.TrustProxy {
		cfg.ProxyHeader = fiber.HeaderXForwardedFor
	}
	s.app = fiber.New(cfg)

	s.app.Use(recover.New())
	s.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	s.app.Use(s.observe)

	s.app.Get("/health", s.health)

	api := s.app.Group("/api")
	authGroup := api.Group("/auth")
	authGroup.Post("/register", s.register)
	authGroup.Post("/login", s.login)
	authGroup.Post("/refresh", s.refresh)
	authGroup.Post("/logout", s.logout)
	authGroup.Get("/me", s.whoAmI)
	authGroup.Post("/password", s.changePassword)
	authGroup.Post("/revoke-all", s.revokeAll)

	api.Post("/leaderboard/submit", s.submitScore)

	return s
}

// App exposes the fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http dispatcher listening", "addr", addr)
	if err := s.app.Listen(addr); err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// observe records status and latency of every request.
func (s *Server) observe(c *fiber.Ctx) error {
	start := s.clock()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	elapsed := s.clock().Sub(start)
	if s.obs != nil {
		s.obs.ObserveRequest(c.Route().Path, c.Method(), status, elapsed)
	}
	s.logger.Debug("request handled",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration_ms", elapsed.Milliseconds())
	return err
}

// handleError renders errors that escape handlers, such as unknown routes
// or oversized bodies, in the outcome shape.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	out := auth.Outcome[auth.Empty]{Code: auth.CodeInternal, Message: auth.MsgGenericFailure}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		out.Code = "HTTP_" + strconv.Itoa(status)
		out.Message = fe.Message
	} else {
		errutil.LogError(s.logger.With("path", c.Path()), "unhandled dispatcher error", err)
	}
	return c.Status(status).JSON(out)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": s.clock().UTC().Format(time.RFC3339),
	})
}

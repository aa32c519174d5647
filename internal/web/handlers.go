// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/leaderboard"
	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

// CodeBadRequest is returned when the request body cannot be parsed.
const CodeBadRequest = "REQUEST_INVALID"

func (s *Server) register(c *fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	out := s.auth.Register(c.UserContext(), inbound(c), req)
	if out.OK {
		return c.Status(fiber.StatusCreated).JSON(out)
	}
	return respond(c, out)
}

func (s *Server) login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	return respond(c, s.auth.Login(c.UserContext(), inbound(c), req))
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req auth.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	return respond(c, s.auth.Refresh(c.UserContext(), inbound(c), req))
}

func (s *Server) logout(c *fiber.Ctx) error {
	return respond(c, s.auth.Logout(c.UserContext(), inbound(c), bearerToken(c)))
}

func (s *Server) whoAmI(c *fiber.Ctx) error {
	return respond(c, s.auth.WhoAmI(c.UserContext(), inbound(c), bearerToken(c)))
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	var req auth.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	req.AccessToken = bearerToken(c)
	return respond(c, s.auth.ChangePassword(c.UserContext(), inbound(c), req))
}

func (s *Server) revokeAll(c *fiber.Ctx) error {
	return respond(c, s.auth.RevokeAll(c.UserContext(), inbound(c), bearerToken(c)))
}

func (s *Server) submitScore(c *fiber.Ctx) error {
	ctx := c.UserContext()

	account, err := s.auth.Authenticate(ctx, bearerToken(c))
	if err != nil {
		if auth.KindOf(err) == auth.KindAuthentication {
			return respond(c, auth.Outcome[auth.Empty]{Code: auth.CodeUnauthorized, Message: auth.MsgUnauthorized})
		}
		errutil.LogError(s.logger, "authenticate for leaderboard submit failed", err)
		return respond(c, auth.Outcome[auth.Empty]{Code: auth.CodeInternal, Message: auth.MsgGenericFailure})
	}

	var sub leaderboard.Submission
	if err := c.BodyParser(&sub); err != nil {
		return badRequest(c)
	}

	result, err := s.board.Submit(ctx, account.ID, sub)
	switch {
	case err == nil:
		return respond(c, auth.Outcome[leaderboard.Result]{OK: true, Data: result})
	case auth.KindOf(err) == auth.KindValidation:
		return respond(c, auth.Outcome[leaderboard.Result]{Code: auth.CodeValidation, Message: err.Error()})
	case errors.Is(err, auth.ErrNotFound):
		return respond(c, auth.Outcome[leaderboard.Result]{Code: auth.CodeUnauthorized, Message: auth.MsgUnauthorized})
	default:
		errutil.LogError(s.logger.With("account_id", account.ID.String()), "leaderboard submit failed", err)
		return respond(c, auth.Outcome[leaderboard.Result]{Code: auth.CodeInternal, Message: "Failed to submit score"})
	}
}

// respond writes an outcome with the status its code maps to.
func respond[T any](c *fiber.Ctx, out auth.Outcome[T]) error {
	return c.Status(statusFor(out.Code)).JSON(out)
}

func badRequest(c *fiber.Ctx) error {
	return respond(c, auth.Outcome[auth.Empty]{Code: CodeBadRequest, Message: "Invalid request body"})
}

func statusFor(code string) int {
	switch code {
	case "":
		return fiber.StatusOK
	case auth.CodeValidation, CodeBadRequest:
		return fiber.StatusBadRequest
	case auth.CodeConflict:
		return fiber.StatusConflict
	case auth.CodeInvalidCredentials, auth.CodeInvalidToken, auth.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case auth.CodeAccountLocked:
		return fiber.StatusLocked
	default:
		return fiber.StatusInternalServerError
	}
}

// inbound collects the client metadata passed to every flow.
func inbound(c *fiber.Ctx) auth.Inbound {
	return auth.Inbound{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>". A
// missing or malformed header yields "", which every flow rejects.
func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"fmt"
	"time"
)

// Outcome messages. Authentication failures use deliberately uniform text.
const (
	MsgGenericFailure     = "Something went wrong, please try again"
	MsgInvalidCredentials = "Invalid credentials"
	MsgInvalidToken       = "Invalid or expired token"
	MsgUnauthorized       = "Unauthorized"
	MsgConflict           = "Handle or email already in use"
)

// Inbound is the request metadata supplied by the dispatcher.
type Inbound struct {
	IPAddress string
	UserAgent string
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the input to Login. Identifier is a handle or an email.
type LoginRequest struct {
	Identifier string      `json:"identifier"`
	Password   string      `json:"password"`
	RememberMe bool        `json:"remember_me"`
	Device     *DeviceInfo `json:"device,omitempty"`
}

// RefreshRequest is the input to Refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the input to ChangePassword.
type ChangePasswordRequest struct {
	AccessToken     string `json:"-"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is the data of a successful Login.
type LoginResult struct {
	Tokens  TokenPair     `json:"tokens"`
	Account PublicAccount `json:"account"`
}

// Empty is the data of flows that return nothing on success.
type Empty struct{}

// Outcome is the tagged result of every flow: OK with Data, or not OK with
// a Code and a Message safe to show to the caller.
type Outcome[T any] struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data,omitempty"`
}

func succeed[T any](data T) Outcome[T] {
	return Outcome[T]{OK: true, Data: &data}
}

func fail[T any](code, message string) Outcome[T] {
	return Outcome[T]{Code: code, Message: message}
}

func lockedOutcome[T any](state LockState) Outcome[T] {
	minutes := state.RemainingMinutes()
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fail[T](CodeAccountLocked,
		fmt.Sprintf("Account is temporarily locked. Try again in %d %s.", minutes, unit))
}

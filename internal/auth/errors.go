// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// Error codes surfaced in outcomes.
const (
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeInternal           = "AUTH_INTERNAL"
)

// ErrInvalidToken is the uniform error for any access token that fails
// verification, whatever the underlying reason.
var ErrInvalidToken = oops.Code(CodeInvalidToken).Errorf("invalid or expired token")

// Kind classifies errors for response purposes.
type Kind int

// Error kinds.
const (
	KindPersistence Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	default:
		return "persistence"
	}
}

// KindOf classifies err by its oops code. Anything unrecognized is treated
// as a persistence failure so that its details are never reported.
func KindOf(err error) Kind {
	if errors.Is(err, ErrConflict) {
		return KindConflict
	}
	switch errutil.Code(err) {
	case CodeValidation:
		return KindValidation
	case CodeConflict:
		return KindConflict
	case CodeInvalidCredentials, CodeAccountLocked, CodeInvalidToken, CodeUnauthorized:
		return KindAuthentication
	default:
		return KindPersistence
	}
}

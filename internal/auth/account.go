// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Handle validation constraints.
const (
	MinHandleLength = 3
	MaxHandleLength = 20
)

// Password validation constraints. MaxPasswordBytes bounds hashing work.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 1024
)

// MaxEmailLength follows the RFC 5321 path limit.
const MaxEmailLength = 254

// handleRegex matches handles that start with a letter and contain only
// letters, numbers, and underscores.
var handleRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Status is the lifecycle state of an account.
type Status string

// Account statuses.
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Stats holds aggregate game statistics for an account.
type Stats struct {
	GamesPlayed int   `json:"games_played"`
	BestScore   int   `json:"best_score"`
	BestLength  int   `json:"best_length"`
	TotalScore  int64 `json:"total_score"`
}

// Account is a player identity record.
type Account struct {
	ID             ulid.ULID
	Handle         string
	Email          string
	PasswordHash   string
	Status         Status
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	Stats          Stats
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount creates a validated, active Account. The email is normalized.
func NewAccount(handle, email, passwordHash string, now time.Time) (*Account, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	normalized := NormalizeEmail(email)
	if err := ValidateEmail(normalized); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		ID:           ulid.Make(),
		Handle:       handle,
		Email:        normalized,
		PasswordHash: passwordHash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// PublicAccount is the externally visible projection of an Account.
// It never carries the password hash or internal counters.
type PublicAccount struct {
	ID          string     `json:"id"`
	Handle      string     `json:"handle"`
	Email       string     `json:"email"`
	Status      Status     `json:"status"`
	Stats       Stats      `json:"stats"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Public returns the public projection of the account.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID.String(),
		Handle:      a.Handle,
		Email:       a.Email,
		Status:      a.Status,
		Stats:       a.Stats,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateHandle validates a handle against the naming rules.
func ValidateHandle(handle string) error {
	err := validation.Validate(handle,
		validation.Required.Error("handle cannot be empty"),
		validation.RuneLength(MinHandleLength, MaxHandleLength).
			Error("handle must be between 3 and 20 characters"),
		validation.Match(handleRegex).
			Error("handle must start with a letter and contain only letters, numbers, and underscores"),
	)
	if err != nil {
		return oops.Code(CodeValidation).With("field", "handle").Errorf("%s", err.Error())
	}
	return nil
}

// ValidateEmail validates an already-normalized email address.
func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required.Error("email cannot be empty"),
		validation.Length(0, MaxEmailLength).Error("email is too long"),
		is.Email.Error("email must be a valid address"),
	)
	if err != nil {
		return oops.Code(CodeValidation).With("field", "email").Errorf("%s", err.Error())
	}
	return nil
}

// ValidatePassword checks password length and rejects control characters.
func ValidatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required.Error("password cannot be empty"),
		validation.RuneLength(MinPasswordLength, 0).
			Error("password must be at least 8 characters"),
		validation.By(func(any) error {
			if len(password) > MaxPasswordBytes {
				return errors.New("password is too long")
			}
			if strings.ContainsFunc(password, isControl) {
				return errors.New("password contains disallowed characters")
			}
			return nil
		}),
	)
	if err != nil {
		return oops.Code(CodeValidation).With("field", "password").Errorf("%s", err.Error())
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// AttemptClaim is the result of AccountRepository.ClaimAttempt.
type AttemptClaim struct {
	// Claimed is false when the account was locked and nothing was counted.
	Claimed bool
	// Count is the failure counter including the claimed attempt.
	Count int
	// LockedUntil is the lockout in force after the statement ran.
	LockedUntil *time.Time
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns an error wrapping ErrConflict
	// if the handle or email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByHandle retrieves an account by handle (case-sensitive).
	GetByHandle(ctx context.Context, handle string) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// ExistsByHandleOrEmail reports whether either identifier is taken.
	ExistsByHandleOrEmail(ctx context.Context, handle, email string) (bool, error)

	// ClaimAttempt atomically counts one login attempt against the account
	// unless it is locked at now, in which case nothing is written. A
	// lockout that already elapsed at now restarts the count at 1. When the
	// new count reaches threshold, locked_until is set to lockUntil.
	ClaimAttempt(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (AttemptClaim, error)

	// RecordLogin resets the failed-login counter and lockout and stamps
	// the last-login time.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateStatus changes the account status. Accounts are never deleted.
	UpdateStatus(ctx context.Context, id ulid.ULID, status Status) error
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenBytes is the refresh token entropy; 32 bytes = 64 hex chars.
const RefreshTokenBytes = 32

// DeviceInfo is optional client metadata attached to a session.
type DeviceInfo struct {
	Platform string `json:"platform,omitempty"`
	Model    string `json:"model,omitempty"`
	AppBuild string `json:"app_build,omitempty"`
}

// Session is a persistent login. Only the SHA-256 hash of the refresh token
// is stored; the plaintext is returned to the client once.
type Session struct {
	ID               ulid.ULID
	AccountID        ulid.ULID
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastActivityAt   time.Time
	IPAddress        string
	UserAgent        string
	Active           bool
	Device           *DeviceInfo
}

// NewSession creates a validated, active Session.
// IPAddress, UserAgent and device are optional.
func NewSession(accountID ulid.ULID, refreshHash string, ttl time.Duration, ip, userAgent string, device *DeviceInfo, now time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if refreshHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("refresh token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("session TTL must be positive")
	}

	return &Session{
		ID:               ulid.Make(),
		AccountID:        accountID,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        now.Add(ttl),
		CreatedAt:        now,
		LastActivityAt:   now,
		IPAddress:        ip,
		UserAgent:        userAgent,
		Active:           true,
		Device:           device,
	}, nil
}

// IsExpiredAt returns true if the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsLiveAt reports whether lookups should treat the session as present at t.
func (s *Session) IsLiveAt(t time.Time) bool {
	return s.Active && !s.IsExpiredAt(t)
}

// GenerateRefreshToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateRefreshToken() (token, hash string, err error) {
	tokenBytes := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA256 hash of a refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyRefreshToken checks if the plaintext token matches the stored hash
// in constant time.
func VerifyRefreshToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashRefreshToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SessionRepository manages session persistence. Lookups never return
// inactive or expired sessions.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetActiveByRefreshHash retrieves the live session holding the hash.
	// Returns ErrNotFound if none is live at now.
	GetActiveByRefreshHash(ctx context.Context, refreshHash string, now time.Time) (*Session, error)

	// LatestActive retrieves the most recently created live session for an
	// account. Returns ErrNotFound if none is live at now.
	LatestActive(ctx context.Context, accountID ulid.ULID, now time.Time) (*Session, error)

	// Rotate replaces oldHash with newHash if and only if the session is
	// still live and still holds oldHash. Returns ErrNotFound otherwise.
	Rotate(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error

	// Deactivate marks one session inactive.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// DeactivateAll marks every session of an account inactive and returns
	// the number affected.
	DeactivateAll(ctx context.Context, accountID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions that expired before the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

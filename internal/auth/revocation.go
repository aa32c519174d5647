// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenKind identifies the kind of a revoked token.
type TokenKind string

// Token kinds.
const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Revocation reasons.
const (
	ReasonLogout         = "logout"
	ReasonPasswordChange = "password_change"
	ReasonSecurity       = "security"
)

// RevokedToken is a denylist entry. ExpiresAt is copied from the token so
// the row can be swept once the token would have expired anyway.
type RevokedToken struct {
	TokenID   string
	Kind      TokenKind
	AccountID ulid.ULID
	ExpiresAt time.Time
	Reason    string
	RevokedAt time.Time
}

// NewRevokedToken creates a validated RevokedToken.
func NewRevokedToken(tokenID string, kind TokenKind, accountID ulid.ULID, expiresAt time.Time, reason string, now time.Time) (*RevokedToken, error) {
	if tokenID == "" {
		return nil, oops.Code("REVOCATION_INVALID_TOKEN_ID").Errorf("token ID cannot be empty")
	}
	if kind != TokenKindAccess && kind != TokenKindRefresh {
		return nil, oops.Code("REVOCATION_INVALID_KIND").With("kind", kind).Errorf("unknown token kind")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REVOCATION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	if reason == "" {
		reason = ReasonSecurity
	}
	return &RevokedToken{
		TokenID:   tokenID,
		Kind:      kind,
		AccountID: accountID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		RevokedAt: now,
	}, nil
}

// RevocationRepository manages the token denylist.
type RevocationRepository interface {
	RevocationChecker

	// Revoke records the token. Revoking an already revoked identifier is
	// not an error; the earliest entry is kept.
	Revoke(ctx context.Context, token *RevokedToken) error

	// DeleteExpired removes entries whose copied expiry is before the given
	// time and returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

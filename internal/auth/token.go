// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Claims are the access token claims. The registered ID claim (jti) is the
// unique token identifier used for revocation.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Handle    string `json:"handle"`
}

// AccountULID parses the account id claim.
func (c *Claims) AccountULID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.AccountID)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).With("reason", "malformed account id").Wrap(err)
	}
	return id, nil
}

// ExpiresAtTime returns the expiry claim, or the zero time if absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// RevocationChecker reports whether a token identifier has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenCodec signs and verifies access tokens and issues refresh tokens.
// Access tokens are stateless apart from the revocation check.
type TokenCodec struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	revocations RevocationChecker
	clock       func() time.Time
}

// NewTokenCodec creates a TokenCodec from the auth configuration.
func NewTokenCodec(cfg Config, revocations RevocationChecker) *TokenCodec {
	return &TokenCodec{
		secret:      cfg.Secret,
		issuer:      cfg.Issuer,
		ttl:         cfg.AccessTokenTTL,
		revocations: revocations,
		clock:       time.Now,
	}
}

// WithClock returns a copy of the codec that reads time from clock.
func (c *TokenCodec) WithClock(clock func() time.Time) *TokenCodec {
	cp := *c
	cp.clock = clock
	return &cp
}

// IssueAccess signs a new access token for the account.
func (c *TokenCodec) IssueAccess(accountID ulid.ULID, handle string) (string, *Claims, error) {
	now := c.clock()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    c.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		AccountID: accountID.String(),
		Handle:    handle,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return signed, claims, nil
}

// IssueRefresh creates an opaque refresh token and the hash to store.
func (c *TokenCodec) IssueRefresh() (token, hash string, err error) {
	return GenerateRefreshToken()
}

// VerifyAccess checks signature, issuer, expiry, and revocation. Every
// verification failure yields an error carrying CodeInvalidToken; the
// reason is only attached as context. Revocation store failures are
// returned as-is so callers can report them as retryable.
func (c *TokenCodec) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	claims, err := c.parse(token, true)
	if err != nil {
		return nil, err
	}

	revoked, err := c.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, oops.Code("TOKEN_REVOCATION_CHECK_FAILED").
			With("jti", claims.ID).
			Wrap(err)
	}
	if revoked {
		return nil, oops.With("reason", "revoked").With("jti", claims.ID).Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// DecodeUnverified verifies the signature but tolerates an expired token.
// Logout uses it so that expired tokens can still be revoked.
func (c *TokenCodec) DecodeUnverified(token string) (*Claims, error) {
	return c.parse(token, false)
}

func (c *TokenCodec) parse(token string, validateClaims bool) (*Claims, error) {
	if token == "" {
		return nil, oops.With("reason", "empty").Wrap(ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock),
	}
	if validateClaims {
		opts = append(opts, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.With("reason", tokenFailureReason(err)).Wrap(ErrInvalidToken)
	}
	if !parsed.Valid || claims.ID == "" || claims.AccountID == "" {
		return nil, oops.With("reason", "malformed").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/snakesurvival/snakesurvival/pkg/errutil"
)

// Transactor runs fn inside a single database transaction. The transaction
// is committed when fn returns nil and rolled back otherwise. Repository
// calls made with the context passed to fn join the transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps are the collaborators of the Service. Logger and Clock are optional.
type Deps struct {
	Accounts    AccountRepository
	Sessions    SessionRepository
	Revocations RevocationRepository
	Audit       AuditSink
	Transactor  Transactor
	Hasher      PasswordHasher
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service orchestrates the register, login, refresh, logout and who-am-i
// flows. Every flow returns an Outcome; internal errors are logged and never
// surfaced to the caller.
type Service struct {
	accounts    AccountRepository
	sessions    SessionRepository
	revocations RevocationRepository
	audit       AuditSink
	tx          Transactor
	hasher      PasswordHasher
	tokens      *TokenCodec
	guard       *Guard
	cfg         Config
	logger      *slog.Logger
	clock       func() time.Time
}

// dummyPasswordHash is verified against when no account matches so that
// unknown identifiers cost the same as wrong passwords.
//
//nolint:gosec // G101: not a credential, it never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// NewService creates a Service. Returns an error if cfg is invalid or a
// required dependency is nil.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session repository is required")
	case deps.Revocations == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("revocation repository is required")
	case deps.Audit == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("audit sink is required")
	case deps.Transactor == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		accounts:    deps.Accounts,
		sessions:    deps.Sessions,
		revocations: deps.Revocations,
		audit:       deps.Audit,
		tx:          deps.Transactor,
		hasher:      deps.Hasher,
		tokens:      NewTokenCodec(cfg, deps.Revocations).WithClock(clock),
		guard:       NewGuard(deps.Accounts, cfg.Lockout),
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
	}, nil
}

// Register creates a new active account.
func (s *Service) Register(ctx context.Context, in Inbound, req RegisterRequest) (out Outcome[PublicAccount]) {
	defer func() { recordFlow(ActionRegister, out.Code) }()
	now := s.clock()

	email := NormalizeEmail(req.Email)
	for _, err := range []error{
		ValidateHandle(req.Handle),
		ValidateEmail(email),
		ValidatePassword(req.Password),
	} {
		if err != nil {
			s.record(ctx, in, ActionRegister, nil, false, map[string]any{"reason": "validation"})
			return fail[PublicAccount](CodeValidation, err.Error())
		}
	}

	exists, err := s.accounts.ExistsByHandleOrEmail(ctx, req.Handle, email)
	if err != nil {
		return internalFailure[PublicAccount](s, ActionRegister, err)
	}
	if exists {
		s.record(ctx, in, ActionRegister, nil, false, map[string]any{"reason": "conflict"})
		return fail[PublicAccount](CodeConflict, MsgConflict)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return internalFailure[PublicAccount](s, ActionRegister, err)
	}

	account, err := NewAccount(req.Handle, email, hash, now)
	if err != nil {
		return internalFailure[PublicAccount](s, ActionRegister, err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			s.record(ctx, in, ActionRegister, nil, false, map[string]any{"reason": "conflict"})
			return fail[PublicAccount](CodeConflict, MsgConflict)
		}
		return internalFailure[PublicAccount](s, ActionRegister, err)
	}

	s.record(ctx, in, ActionRegister, &account.ID, true, nil)
	return succeed(account.Public())
}

// Login authenticates by handle or email and opens a session.
func (s *Service) Login(ctx context.Context, in Inbound, req LoginRequest) (out Outcome[LoginResult]) {
	defer func() { recordFlow(ActionLogin, out.Code) }()
	now := s.clock()

	if req.Identifier == "" || req.Password == "" {
		return fail[LoginResult](CodeValidation, "identifier and password are required")
	}
	if len(req.Password) > MaxPasswordBytes {
		return fail[LoginResult](CodeValidation, "password is too long")
	}

	account, err := s.resolve(ctx, req.Identifier)
	if err != nil {
		return internalFailure[LoginResult](s, ActionLogin, err)
	}

	var attempt Attempt
	if account != nil {
		if state := s.guard.Check(account, now); state.Locked {
			s.record(ctx, in, ActionLogin, &account.ID, false, map[string]any{"reason": "locked"})
			return lockedOutcome[LoginResult](state)
		}
		attempt, err = s.guard.Claim(ctx, account.ID, now)
		if err != nil {
			return internalFailure[LoginResult](s, ActionLogin, err)
		}
		if !attempt.Admitted {
			s.record(ctx, in, ActionLogin, &account.ID, false, map[string]any{"reason": "locked"})
			return lockedOutcome[LoginResult](attempt.Lock)
		}
	}

	// Verification always runs so that unknown identifiers take as long as
	// known ones.
	targetHash := dummyPasswordHash
	if account != nil {
		targetHash = account.PasswordHash
	}
	valid, verifyErr := s.hasher.Verify(req.Password, targetHash)
	if verifyErr != nil && account != nil {
		s.logger.Warn("stored password hash is unreadable",
			"account_id", account.ID.String(),
			"error", verifyErr)
	}

	if account == nil {
		s.record(ctx, in, ActionLogin, nil, false, map[string]any{"reason": "unknown_account"})
		return fail[LoginResult](CodeInvalidCredentials, MsgInvalidCredentials)
	}

	if !valid {
		if state := s.guard.RecordFailure(attempt); state.Locked {
			s.record(ctx, in, ActionLogin, &account.ID, false, map[string]any{"reason": "bad_password", "locked": true})
			return lockedOutcome[LoginResult](state)
		}
		s.record(ctx, in, ActionLogin, &account.ID, false, map[string]any{"reason": "bad_password"})
		return fail[LoginResult](CodeInvalidCredentials, MsgInvalidCredentials)
	}

	if !account.IsActive() {
		s.record(ctx, in, ActionLogin, &account.ID, false, map[string]any{"reason": "status", "status": string(account.Status)})
		return fail[LoginResult](CodeInvalidCredentials, MsgInvalidCredentials)
	}

	ttl := s.cfg.SessionTTL
	if req.RememberMe {
		ttl = s.cfg.PersistentSessionTTL
	}

	// Tokens are produced before anything is written so that a signing
	// failure cannot leave a session without its token pair.
	access, claims, err := s.tokens.IssueAccess(account.ID, account.Handle)
	if err != nil {
		return internalFailure[LoginResult](s, ActionLogin, err)
	}
	refresh, refreshHash, err := s.tokens.IssueRefresh()
	if err != nil {
		return internalFailure[LoginResult](s, ActionLogin, err)
	}
	session, err := NewSession(account.ID, refreshHash, ttl, in.IPAddress, in.UserAgent, req.Device, now)
	if err != nil {
		return internalFailure[LoginResult](s, ActionLogin, err)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.guard.RecordSuccess(ctx, account.ID, now); err != nil {
			return err
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return oops.Code("AUTH_SESSION_CREATE_FAILED").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return internalFailure[LoginResult](s, ActionLogin, err)
	}

	s.upgradeHash(ctx, account, req.Password)

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	s.record(ctx, in, ActionLogin, &account.ID, true, map[string]any{
		"session_id":  session.ID.String(),
		"remember_me": req.RememberMe,
	})
	return succeed(LoginResult{
		Tokens: TokenPair{
			TokenType:        "Bearer",
			AccessToken:      access,
			AccessExpiresAt:  claims.ExpiresAtTime(),
			RefreshToken:     refresh,
			RefreshExpiresAt: session.ExpiresAt,
		},
		Account: account.Public(),
	})
}

// Refresh exchanges a refresh token for a new access token and rotates the
// refresh token in place.
func (s *Service) Refresh(ctx context.Context, in Inbound, req RefreshRequest) (out Outcome[TokenPair]) {
	defer func() { recordFlow(ActionRefresh, out.Code) }()
	now := s.clock()

	if req.RefreshToken == "" {
		return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
	}
	oldHash := HashRefreshToken(req.RefreshToken)

	session, err := s.sessions.GetActiveByRefreshHash(ctx, oldHash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(ctx, in, ActionRefresh, nil, false, map[string]any{"reason": "unknown_token"})
			return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
		}
		return internalFailure[TokenPair](s, ActionRefresh, err)
	}
	if !session.IsLiveAt(now) || !VerifyRefreshToken(req.RefreshToken, session.RefreshTokenHash) {
		s.record(ctx, in, ActionRefresh, &session.AccountID, false, map[string]any{"reason": "stale_session"})
		return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(ctx, in, ActionRefresh, &session.AccountID, false, map[string]any{"reason": "missing_account"})
			return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
		}
		return internalFailure[TokenPair](s, ActionRefresh, err)
	}
	if !account.IsActive() {
		s.record(ctx, in, ActionRefresh, &account.ID, false, map[string]any{"reason": "status", "status": string(account.Status)})
		return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
	}

	access, claims, err := s.tokens.IssueAccess(account.ID, account.Handle)
	if err != nil {
		return internalFailure[TokenPair](s, ActionRefresh, err)
	}
	refresh, newHash, err := s.tokens.IssueRefresh()
	if err != nil {
		return internalFailure[TokenPair](s, ActionRefresh, err)
	}

	if err := s.sessions.Rotate(ctx, session.ID, oldHash, newHash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Another request rotated or deactivated the session first.
			s.record(ctx, in, ActionRefresh, &account.ID, false, map[string]any{"reason": "rotated"})
			return fail[TokenPair](CodeInvalidToken, MsgInvalidToken)
		}
		return internalFailure[TokenPair](s, ActionRefresh, err)
	}

	s.record(ctx, in, ActionRefresh, &account.ID, true, map[string]any{"session_id": session.ID.String()})
	return succeed(TokenPair{
		TokenType:        "Bearer",
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAtTime(),
		RefreshToken:     refresh,
		RefreshExpiresAt: session.ExpiresAt,
	})
}

// Logout revokes the presented access token and deactivates the account's
// most recent live session. Expired tokens are accepted. Logging out with a
// token that is already revoked succeeds without further changes.
func (s *Service) Logout(ctx context.Context, in Inbound, accessToken string) (out Outcome[Empty]) {
	defer func() { recordFlow(ActionLogout, out.Code) }()
	now := s.clock()

	claims, err := s.tokens.DecodeUnverified(accessToken)
	if err != nil {
		s.record(ctx, in, ActionLogout, nil, false, map[string]any{"reason": tokenReason(err)})
		return fail[Empty](CodeUnauthorized, MsgUnauthorized)
	}
	accountID, err := claims.AccountULID()
	if err != nil {
		s.record(ctx, in, ActionLogout, nil, false, map[string]any{"reason": "malformed"})
		return fail[Empty](CodeUnauthorized, MsgUnauthorized)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return internalFailure[Empty](s, ActionLogout, err)
	}
	if revoked {
		return succeed(Empty{})
	}

	entry, err := NewRevokedToken(claims.ID, TokenKindAccess, accountID, claims.ExpiresAtTime(), ReasonLogout, now)
	if err != nil {
		return internalFailure[Empty](s, ActionLogout, err)
	}

	var sessionID string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.revocations.Revoke(ctx, entry); err != nil {
			return oops.Code("AUTH_REVOKE_FAILED").With("jti", claims.ID).Wrap(err)
		}
		session, err := s.sessions.LatestActive(ctx, accountID, now)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sessionID = session.ID.String()
		return s.sessions.Deactivate(ctx, session.ID)
	})
	if err != nil {
		return internalFailure[Empty](s, ActionLogout, err)
	}

	revocationsTotal.WithLabelValues(ReasonLogout).Inc()
	s.record(ctx, in, ActionLogout, &accountID, true, map[string]any{"session_id": sessionID})
	return succeed(Empty{})
}

// WhoAmI returns the public profile of the account owning the access token.
func (s *Service) WhoAmI(ctx context.Context, _ Inbound, accessToken string) (out Outcome[PublicAccount]) {
	defer func() { recordFlow(ActionWhoAmI, out.Code) }()

	account, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		if KindOf(err) == KindAuthentication {
			return fail[PublicAccount](CodeUnauthorized, MsgUnauthorized)
		}
		return internalFailure[PublicAccount](s, ActionWhoAmI, err)
	}
	return succeed(account.Public())
}

// ChangePassword replaces the password of the token's account, ends every
// session of the account and revokes the presented access token.
func (s *Service) ChangePassword(ctx context.Context, in Inbound, req ChangePasswordRequest) (out Outcome[Empty]) {
	defer func() { recordFlow(ActionPasswordChange, out.Code) }()
	now := s.clock()

	claims, account, err := s.authenticateClaims(ctx, req.AccessToken)
	if err != nil {
		if KindOf(err) == KindAuthentication {
			return fail[Empty](CodeUnauthorized, MsgUnauthorized)
		}
		return internalFailure[Empty](s, ActionPasswordChange, err)
	}

	if err := ValidatePassword(req.NewPassword); err != nil {
		return fail[Empty](CodeValidation, err.Error())
	}

	valid, verifyErr := s.hasher.Verify(req.CurrentPassword, account.PasswordHash)
	if verifyErr != nil || !valid {
		s.record(ctx, in, ActionPasswordChange, &account.ID, false, map[string]any{"reason": "bad_password"})
		return fail[Empty](CodeInvalidCredentials, MsgInvalidCredentials)
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return internalFailure[Empty](s, ActionPasswordChange, err)
	}
	entry, err := NewRevokedToken(claims.ID, TokenKindAccess, account.ID, claims.ExpiresAtTime(), ReasonPasswordChange, now)
	if err != nil {
		return internalFailure[Empty](s, ActionPasswordChange, err)
	}

	var ended int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
			return err
		}
		n, err := s.sessions.DeactivateAll(ctx, account.ID)
		if err != nil {
			return err
		}
		ended = n
		return s.revocations.Revoke(ctx, entry)
	})
	if err != nil {
		return internalFailure[Empty](s, ActionPasswordChange, err)
	}

	revocationsTotal.WithLabelValues(ReasonPasswordChange).Inc()
	s.record(ctx, in, ActionPasswordChange, &account.ID, true, map[string]any{"sessions_ended": ended})
	return succeed(Empty{})
}

// RevokeAll ends every session of the token's account and revokes the
// presented access token.
func (s *Service) RevokeAll(ctx context.Context, in Inbound, accessToken string) (out Outcome[Empty]) {
	defer func() { recordFlow(ActionRevokeAll, out.Code) }()
	now := s.clock()

	claims, account, err := s.authenticateClaims(ctx, accessToken)
	if err != nil {
		if KindOf(err) == KindAuthentication {
			return fail[Empty](CodeUnauthorized, MsgUnauthorized)
		}
		return internalFailure[Empty](s, ActionRevokeAll, err)
	}

	entry, err := NewRevokedToken(claims.ID, TokenKindAccess, account.ID, claims.ExpiresAtTime(), ReasonSecurity, now)
	if err != nil {
		return internalFailure[Empty](s, ActionRevokeAll, err)
	}

	var ended int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		n, err := s.sessions.DeactivateAll(ctx, account.ID)
		if err != nil {
			return err
		}
		ended = n
		return s.revocations.Revoke(ctx, entry)
	})
	if err != nil {
		return internalFailure[Empty](s, ActionRevokeAll, err)
	}

	revocationsTotal.WithLabelValues(ReasonSecurity).Inc()
	s.record(ctx, in, ActionRevokeAll, &account.ID, true, map[string]any{"sessions_ended": ended})
	return succeed(Empty{})
}

// SetStatus changes an account's status. Leaving the active status ends
// every session of the account in the same transaction.
func (s *Service) SetStatus(ctx context.Context, handle string, status Status) error {
	switch status {
	case StatusActive, StatusSuspended, StatusDeleted:
	default:
		return oops.Code(CodeValidation).With("status", status).Errorf("unknown account status")
	}

	account, err := s.accounts.GetByHandle(ctx, handle)
	if err != nil {
		return oops.Code("AUTH_SET_STATUS_FAILED").With("handle", handle).Wrap(err)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.accounts.UpdateStatus(ctx, account.ID, status); err != nil {
			return err
		}
		if status == StatusActive {
			return nil
		}
		_, err := s.sessions.DeactivateAll(ctx, account.ID)
		return err
	})
	if err != nil {
		return oops.Code("AUTH_SET_STATUS_FAILED").
			With("account_id", account.ID.String()).
			With("status", status).
			Wrap(err)
	}

	s.record(ctx, Inbound{}, ActionStatusChange, &account.ID, true, map[string]any{
		"from": string(account.Status),
		"to":   string(status),
	})
	return nil
}

// resolve finds an account by handle, then by email. Returns nil without
// error when neither matches.
func (s *Service) resolve(ctx context.Context, identifier string) (*Account, error) {
	account, err := s.accounts.GetByHandle(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account by handle").Wrap(err)
	}

	account, err = s.accounts.GetByEmail(ctx, NormalizeEmail(identifier))
	if err == nil {
		return account, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account by email").Wrap(err)
}

// Authenticate verifies an access token and returns its active account.
// Token failures, and missing or inactive accounts, yield errors of
// KindAuthentication.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Account, error) {
	_, account, err := s.authenticateClaims(ctx, accessToken)
	return account, err
}

// authenticateClaims verifies the token and loads its active account.
// Missing or inactive accounts yield CodeUnauthorized.
func (s *Service) authenticateClaims(ctx context.Context, accessToken string) (*Claims, *Account, error) {
	claims, err := s.tokens.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	accountID, err := claims.AccountULID()
	if err != nil {
		return nil, nil, err
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code(CodeUnauthorized).
				With("account_id", accountID.String()).
				Errorf("account not found")
		}
		return nil, nil, err
	}
	if !account.IsActive() {
		return nil, nil, oops.Code(CodeUnauthorized).
			With("account_id", accountID.String()).
			With("status", account.Status).
			Errorf("account is not active")
	}
	return claims, account, nil
}

// upgradeHash re-hashes the password with current parameters when needed.
// Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	if !s.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		errutil.LogWarn(s.logger.With("account_id", account.ID.String()),
			"failed to upgrade password hash", err)
		return
	}
	account.PasswordHash = hash
}

// record appends an audit event. Audit failures are logged and counted but
// never fail the flow.
func (s *Service) record(ctx context.Context, in Inbound, action string, accountID *ulid.ULID, success bool, detail map[string]any) {
	event := &AuditEvent{
		ID:        ulid.Make(),
		AccountID: accountID,
		Action:    action,
		Success:   success,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Detail:    detail,
		CreatedAt: s.clock(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		auditFailuresTotal.Inc()
		errutil.LogWarn(s.logger.With("action", action, "success", success),
			"failed to record audit event", err)
	}
}

func internalFailure[T any](s *Service, action string, err error) Outcome[T] {
	errutil.LogError(s.logger.With("action", action), "auth flow failed", err)
	return fail[T](CodeInternal, MsgGenericFailure)
}

func tokenReason(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if reason, ok := oopsErr.Context()["reason"].(string); ok {
			return reason
		}
	}
	return "invalid"
}

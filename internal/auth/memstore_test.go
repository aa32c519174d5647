// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/snakesurvival/snakesurvival/internal/auth"
)

// memStore is an in-memory persistence layer shared by the fake
// repositories below. InTransaction snapshots all tables and restores them
// if fn fails, so rollback behavior can be asserted.
type memStore struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
	sessions map[ulid.ULID]*auth.Session
	revoked  map[string]*auth.RevokedToken
	events   []*auth.AuditEvent
	failOn   map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[ulid.ULID]*auth.Account),
		sessions: make(map[ulid.ULID]*auth.Session),
		revoked:  make(map[string]*auth.RevokedToken),
		failOn:   make(map[string]error),
	}
}

// fail makes the named operation return err until cleared.
func (m *memStore) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *memStore) injected(op string) error {
	return m.failOn[op]
}

func (m *memStore) account(t *testing.T, id ulid.ULID) auth.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	require.True(t, ok, "account %s not found", id)
	return *a
}

func (m *memStore) accountByHandle(t *testing.T, handle string) auth.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Handle == handle {
			return *a
		}
	}
	t.Fatalf("account %q not found", handle)
	return auth.Account{}
}

func (m *memStore) activeSessions(accountID ulid.ULID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.Active {
			n++
		}
	}
	return n
}

func (m *memStore) auditEvents(action string) []*auth.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.AuditEvent
	for _, e := range m.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type memSnapshot struct {
	accounts map[ulid.ULID]auth.Account
	sessions map[ulid.ULID]auth.Session
	revoked  map[string]auth.RevokedToken
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		accounts: make(map[ulid.ULID]auth.Account, len(m.accounts)),
		sessions: make(map[ulid.ULID]auth.Session, len(m.sessions)),
		revoked:  make(map[string]auth.RevokedToken, len(m.revoked)),
	}
	for k, v := range m.accounts {
		snap.accounts[k] = *v
	}
	for k, v := range m.sessions {
		snap.sessions[k] = *v
	}
	for k, v := range m.revoked {
		snap.revoked[k] = *v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[ulid.ULID]*auth.Account, len(snap.accounts))
	for k, v := range snap.accounts {
		m.accounts[k] = &v
	}
	m.sessions = make(map[ulid.ULID]*auth.Session, len(snap.sessions))
	for k, v := range snap.sessions {
		m.sessions[k] = &v
	}
	m.revoked = make(map[string]*auth.RevokedToken, len(snap.revoked))
	for k, v := range snap.revoked {
		m.revoked[k] = &v
	}
}

// memTx implements auth.Transactor.
type memTx struct {
	store     *memStore
	rollbacks int
}

func (t *memTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		t.rollbacks++
		return err
	}
	return nil
}

// memAccounts implements auth.AccountRepository.
type memAccounts struct{ store *memStore }

func (r memAccounts) Create(_ context.Context, a *auth.Account) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.Create"); err != nil {
		return err
	}
	for _, existing := range m.accounts {
		if existing.Handle == a.Handle || existing.Email == a.Email {
			return auth.ErrConflict
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (r memAccounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.GetByID"); err != nil {
		return nil, err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) GetByHandle(_ context.Context, handle string) (*auth.Account, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.GetByHandle"); err != nil {
		return nil, err
	}
	for _, a := range m.accounts {
		if a.Handle == handle {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memAccounts) ExistsByHandleOrEmail(_ context.Context, handle, email string) (bool, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.ExistsByHandleOrEmail"); err != nil {
		return false, err
	}
	for _, a := range m.accounts {
		if a.Handle == handle || strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r memAccounts) ClaimAttempt(_ context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (auth.AttemptClaim, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.ClaimAttempt"); err != nil {
		return auth.AttemptClaim{}, err
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.AttemptClaim{}, auth.ErrNotFound
	}
	if auth.IsLockedOut(a.LockedUntil, now) {
		return auth.AttemptClaim{Count: a.FailedAttempts, LockedUntil: copyTime(a.LockedUntil)}, nil
	}
	if a.LockedUntil != nil {
		a.FailedAttempts = 1
		a.LockedUntil = nil
	} else {
		a.FailedAttempts++
	}
	if a.FailedAttempts >= threshold {
		until := lockUntil
		a.LockedUntil = &until
	}
	a.UpdatedAt = now
	return auth.AttemptClaim{Claimed: true, Count: a.FailedAttempts, LockedUntil: copyTime(a.LockedUntil)}, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func (r memAccounts) RecordLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.RecordLogin"); err != nil {
		return err
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = &at
	return nil
}

func (r memAccounts) UpdatePassword(_ context.Context, id ulid.ULID, hash string) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Accounts.UpdatePassword"); err != nil {
		return err
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (r memAccounts) UpdateStatus(_ context.Context, id ulid.ULID, status auth.Status) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Status = status
	return nil
}

// memSessions implements auth.SessionRepository.
type memSessions struct{ store *memStore }

func (r memSessions) Create(_ context.Context, s *auth.Session) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Sessions.Create"); err != nil {
		return err
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (r memSessions) GetActiveByRefreshHash(_ context.Context, hash string, now time.Time) (*auth.Session, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshTokenHash == hash && s.IsLiveAt(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memSessions) LatestActive(_ context.Context, accountID ulid.ULID, now time.Time) (*auth.Session, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *auth.Session
	for _, s := range m.sessions {
		if s.AccountID != accountID || !s.IsLiveAt(now) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) ||
			(s.CreatedAt.Equal(latest.CreatedAt) && s.ID.Compare(latest.ID) > 0) {
			latest = s
		}
	}
	if latest == nil {
		return nil, auth.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r memSessions) Rotate(_ context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Sessions.Rotate"); err != nil {
		return err
	}
	s, ok := m.sessions[id]
	if !ok || s.RefreshTokenHash != oldHash || !s.IsLiveAt(now) {
		return auth.ErrNotFound
	}
	s.RefreshTokenHash = newHash
	s.LastActivityAt = now
	return nil
}

func (r memSessions) Deactivate(_ context.Context, id ulid.ULID) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Sessions.Deactivate"); err != nil {
		return err
	}
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.Active = false
	return nil
}

func (r memSessions) DeactivateAll(_ context.Context, accountID ulid.ULID) (int64, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Sessions.DeactivateAll"); err != nil {
		return 0, err
	}
	var n int64
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.Active {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (r memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// memRevocations implements auth.RevocationRepository.
type memRevocations struct{ store *memStore }

func (r memRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Revocations.IsRevoked"); err != nil {
		return false, err
	}
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func (r memRevocations) Revoke(_ context.Context, token *auth.RevokedToken) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Revocations.Revoke"); err != nil {
		return err
	}
	if _, ok := m.revoked[token.TokenID]; ok {
		return nil
	}
	cp := *token
	m.revoked[token.TokenID] = &cp
	return nil
}

func (r memRevocations) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, tok := range m.revoked {
		if tok.ExpiresAt.Before(before) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

// memAudit implements auth.AuditSink.
type memAudit struct{ store *memStore }

func (r memAudit) Record(_ context.Context, e *auth.AuditEvent) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Audit.Record"); err != nil {
		return err
	}
	m.events = append(m.events, e)
	return nil
}

// plainHasher is a fast PasswordHasher for flow tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	stored, ok := strings.CutPrefix(hash, "plain$")
	if !ok {
		return false, errors.New("unreadable hash")
	}
	return stored == password, nil
}

func (plainHasher) NeedsRehash(string) bool { return false }

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	svc   *auth.Service
	store *memStore
	tx    *memTx
	clock *fakeClock
}

func newTestEnv(t *testing.T, opts ...func(*auth.Deps)) *testEnv {
	t.Helper()
	store := newMemStore()
	tx := &memTx{store: store}
	clock := newFakeClock()

	deps := auth.Deps{
		Accounts:    memAccounts{store},
		Sessions:    memSessions{store},
		Revocations: memRevocations{store},
		Audit:       memAudit{store},
		Transactor:  tx,
		Hasher:      plainHasher{},
		Clock:       clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := auth.NewService(auth.DefaultConfig(testSecret), deps)
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, tx: tx, clock: clock}
}

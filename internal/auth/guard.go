// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// LockState is the lockout state of an account at a point in time.
type LockState struct {
	// Locked is true while the lockout window is open.
	Locked bool
	// Until is the end of the lockout window, zero when unlocked.
	Until time.Time
	// Remaining is the time left in the lockout window.
	Remaining time.Duration
}

// RemainingMinutes rounds the remaining lockout time up to whole minutes.
func (s LockState) RemainingMinutes() int {
	return int(math.Ceil(s.Remaining.Minutes()))
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// Guard tracks failed logins and decides whether attempts are permitted.
// Lockout expiry is never stored; it is evaluated against the clock on
// each check.
type Guard struct {
	accounts AccountRepository
	policy   LockoutPolicy
	jitter   func(n int64) int64
}

// NewGuard creates a Guard for the given policy.
func NewGuard(accounts AccountRepository, policy LockoutPolicy) *Guard {
	return &Guard{
		accounts: accounts,
		policy:   policy,
		jitter:   rand.Int64N,
	}
}

// Check evaluates the lockout state of the account at now.
func (g *Guard) Check(account *Account, now time.Time) LockState {
	return lockStateAt(account.LockedUntil, now)
}

func lockStateAt(lockedUntil *time.Time, now time.Time) LockState {
	if !IsLockedOut(lockedUntil, now) {
		return LockState{}
	}
	return LockState{
		Locked:    true,
		Until:     *lockedUntil,
		Remaining: lockedUntil.Sub(now),
	}
}

// LockoutDuration returns a random duration within the policy bounds.
func (g *Guard) LockoutDuration() time.Duration {
	span := int64(g.policy.MaxDuration - g.policy.MinDuration)
	if span <= 0 {
		return g.policy.MinDuration
	}
	return g.policy.MinDuration + time.Duration(g.jitter(span+1))
}

// Attempt is a login attempt counted against an account before its
// password is verified.
type Attempt struct {
	// Admitted is false when the account was locked and nothing was counted.
	Admitted bool
	// Lock is the lockout in force. For an admitted attempt it is the
	// lockout left behind if the attempt fails.
	Lock LockState
}

// Claim counts an attempt against the account's failure budget before the
// password is checked. The increment and the lock test are one atomic
// update, so concurrent attempts never verify more than Threshold passwords
// per lockout window.
func (g *Guard) Claim(ctx context.Context, accountID ulid.ULID, now time.Time) (Attempt, error) {
	lockUntil := now.Add(g.LockoutDuration())

	claim, err := g.accounts.ClaimAttempt(ctx, accountID, now, g.policy.Threshold, lockUntil)
	if err != nil {
		return Attempt{}, oops.Code("GUARD_CLAIM_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	lock := lockStateAt(claim.LockedUntil, now)
	if !claim.Claimed {
		// The lock can lapse between the rejected update and the read of
		// locked_until; the attempt is still refused.
		lock.Locked = true
		return Attempt{Lock: lock}, nil
	}
	if claim.Count < g.policy.Threshold {
		lock = LockState{}
	}
	return Attempt{Admitted: true, Lock: lock}, nil
}

// RecordFailure reports the lockout state left by a failed admitted
// attempt. The failure itself was counted by Claim.
func (g *Guard) RecordFailure(attempt Attempt) LockState {
	if !attempt.Lock.Locked {
		return LockState{}
	}
	lockoutsTotal.Inc()
	return attempt.Lock
}

// RecordSuccess resets the failure counter and stamps the last login.
func (g *Guard) RecordSuccess(ctx context.Context, accountID ulid.ULID, now time.Time) error {
	if err := g.accounts.RecordLogin(ctx, accountID, now); err != nil {
		return oops.Code("GUARD_RECORD_SUCCESS_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

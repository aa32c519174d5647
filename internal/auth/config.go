// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Defaults for Config.
const (
	DefaultIssuer               = "snakesurvival"
	DefaultAccessTokenTTL       = 15 * time.Minute
	DefaultSessionTTL           = 7 * 24 * time.Hour
	DefaultPersistentSessionTTL = 30 * 24 * time.Hour
	DefaultLockoutThreshold     = 5
	DefaultLockoutMin           = 15 * time.Minute
	DefaultLockoutMax           = 20 * time.Minute

	// MinSecretLength is the minimum signing secret size in bytes.
	MinSecretLength = 32
)

// LockoutPolicy controls when and for how long an account is locked.
type LockoutPolicy struct {
	// Threshold is the failed-attempt count that triggers a lockout.
	Threshold int
	// MinDuration and MaxDuration bound the randomized lockout window.
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Config is the immutable configuration of the auth core. It is built once
// at startup and passed by value into constructors.
type Config struct {
	Secret               []byte
	Issuer               string
	AccessTokenTTL       time.Duration
	SessionTTL           time.Duration
	PersistentSessionTTL time.Duration
	Lockout              LockoutPolicy
}

// DefaultConfig returns a Config with default durations and the given secret.
func DefaultConfig(secret []byte) Config {
	return Config{
		Secret:               secret,
		Issuer:               DefaultIssuer,
		AccessTokenTTL:       DefaultAccessTokenTTL,
		SessionTTL:           DefaultSessionTTL,
		PersistentSessionTTL: DefaultPersistentSessionTTL,
		Lockout: LockoutPolicy{
			Threshold:   DefaultLockoutThreshold,
			MinDuration: DefaultLockoutMin,
			MaxDuration: DefaultLockoutMax,
		},
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if len(c.Secret) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if c.AccessTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("access token TTL must be positive")
	}
	if c.SessionTTL <= 0 || c.PersistentSessionTTL < c.SessionTTL {
		return oops.Code("CONFIG_INVALID").
			With("session_ttl", c.SessionTTL).
			With("persistent_session_ttl", c.PersistentSessionTTL).
			Errorf("session TTLs must be positive and persistent TTL must not be shorter")
	}
	if c.Lockout.Threshold < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.MinDuration <= 0 || c.Lockout.MaxDuration < c.Lockout.MinDuration {
		return oops.Code("CONFIG_INVALID").
			With("min", c.Lockout.MinDuration).
			With("max", c.Lockout.MaxDuration).
			Errorf("lockout duration range is invalid")
	}
	return nil
}

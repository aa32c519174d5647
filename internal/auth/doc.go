// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package auth implements the account and session lifecycle for Snake
// Survival.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - creates an active Account with a validated handle and email
//   - NewSession - creates an active Session holding a refresh token hash
//   - NewRevokedToken - creates a denylist entry for a token identifier
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types.
//
// # Components
//
//   - Argon2idHasher - password hashing (the credential codec)
//   - TokenCodec - signed access tokens and opaque refresh tokens
//   - Guard - failed-login counting and lazy lockout
//   - Service - register, login, refresh, logout and who-am-i flows
//   - Sweeper - periodic removal of expired sessions and revocations
//
// Every Service flow returns an Outcome. Errors from collaborators are
// logged and reported with a generic message; writes that span more than
// one row run through a Transactor and are rolled back together.
package auth

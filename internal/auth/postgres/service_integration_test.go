// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/snakesurvival/snakesurvival/internal/auth"
	"github.com/snakesurvival/snakesurvival/internal/auth/postgres"
	"github.com/snakesurvival/snakesurvival/internal/store"
)

const password = "correct-horse-battery"

var _ = Describe("Service on PostgreSQL", func() {
	var (
		ctx      context.Context
		svc      *auth.Service
		accounts *postgres.AccountRepository
		sessions *postgres.SessionRepository
		in       = auth.Inbound{IPAddress: "203.0.113.7", UserAgent: "integration"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncate(ctx)

		accounts = postgres.NewAccountRepository(testPool)
		sessions = postgres.NewSessionRepository(testPool)
		var err error
		svc, err = auth.NewService(auth.DefaultConfig([]byte("integration-secret-0123456789abcdef")), auth.Deps{
			Accounts:    accounts,
			Sessions:    sessions,
			Revocations: postgres.NewRevocationRepository(testPool),
			Audit:       postgres.NewAuditRepository(testPool),
			Transactor:  store.NewTransactor(testPool),
			Hasher:      auth.NewArgon2idHasher(),
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		Expect(err).NotTo(HaveOccurred())

		out := svc.Register(ctx, in, auth.RegisterRequest{Handle: "viper", Email: "Viper@Example.com", Password: password})
		Expect(out.OK).To(BeTrue(), out.Message)
	})

	login := func(identifier, pw string) auth.Outcome[auth.LoginResult] {
		return svc.Login(ctx, in, auth.LoginRequest{Identifier: identifier, Password: pw})
	}

	It("stores the email normalized and rejects duplicates", func() {
		account, err := accounts.GetByEmail(ctx, "viper@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(account.Handle).To(Equal("viper"))

		out := svc.Register(ctx, in, auth.RegisterRequest{Handle: "other", Email: "VIPER@example.com", Password: password})
		Expect(out.OK).To(BeFalse())
		Expect(out.Code).To(Equal(auth.CodeConflict))

		out = svc.Register(ctx, in, auth.RegisterRequest{Handle: "viper", Email: "fresh@example.com", Password: password})
		Expect(out.OK).To(BeFalse())
		Expect(out.Code).To(Equal(auth.CodeConflict))

		Expect(accountCount(ctx)).To(Equal(1))
	})

	It("logs in by handle or email and serves whoami", func() {
		out := login("viper@example.com", password)
		Expect(out.OK).To(BeTrue(), out.Message)

		who := svc.WhoAmI(ctx, in, out.Data.Tokens.AccessToken)
		Expect(who.OK).To(BeTrue())
		Expect(who.Data.Handle).To(Equal("viper"))
	})

	It("counts concurrent failures without losing updates and locks the account", func() {
		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				out := login("viper", "wrong-password")
				Expect(out.OK).To(BeFalse())
			}()
		}
		wg.Wait()

		account, err := accounts.GetByHandle(ctx, "viper")
		Expect(err).NotTo(HaveOccurred())
		Expect(account.FailedAttempts).To(Equal(5))
		Expect(account.LockedUntil).NotTo(BeNil())
		Expect(time.Until(*account.LockedUntil)).To(BeNumerically(">", 14*time.Minute))

		out := login("viper", password)
		Expect(out.Code).To(Equal(auth.CodeAccountLocked))
	})

	It("verifies at most threshold passwords for a concurrent burst of guesses", func() {
		counting := &countingHasher{PasswordHasher: auth.NewArgon2idHasher()}
		burst, err := auth.NewService(auth.DefaultConfig([]byte("integration-secret-0123456789abcdef")), auth.Deps{
			Accounts:    accounts,
			Sessions:    sessions,
			Revocations: postgres.NewRevocationRepository(testPool),
			Audit:       postgres.NewAuditRepository(testPool),
			Transactor:  store.NewTransactor(testPool),
			Hasher:      counting,
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for range 30 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				out := burst.Login(ctx, in, auth.LoginRequest{Identifier: "viper", Password: "wrong-password"})
				Expect(out.OK).To(BeFalse())
			}()
		}
		wg.Wait()

		Expect(counting.verified.Load()).To(BeEquivalentTo(auth.DefaultLockoutThreshold))
		account, err := accounts.GetByHandle(ctx, "viper")
		Expect(err).NotTo(HaveOccurred())
		Expect(account.FailedAttempts).To(Equal(auth.DefaultLockoutThreshold))
		Expect(auth.IsLockedOut(account.LockedUntil, time.Now())).To(BeTrue())

		Expect(burst.Login(ctx, in, auth.LoginRequest{Identifier: "viper", Password: password}).Code).
			To(Equal(auth.CodeAccountLocked))
		Expect(counting.verified.Load()).To(BeEquivalentTo(auth.DefaultLockoutThreshold))
	})

	It("admits exactly threshold concurrent attempt claims", func() {
		account, err := accounts.GetByHandle(ctx, "viper")
		Expect(err).NotTo(HaveOccurred())

		now := time.Now()
		var (
			wg       sync.WaitGroup
			admitted atomic.Int32
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				claim, err := accounts.ClaimAttempt(ctx, account.ID, now, 5, now.Add(15*time.Minute))
				Expect(err).NotTo(HaveOccurred())
				if claim.Claimed {
					admitted.Add(1)
				} else {
					Expect(auth.IsLockedOut(claim.LockedUntil, now)).To(BeTrue())
				}
			}()
		}
		wg.Wait()
		Expect(admitted.Load()).To(BeEquivalentTo(5))
	})

	It("lets exactly one of two concurrent refreshes win", func() {
		out := login("viper", password)
		Expect(out.OK).To(BeTrue())
		refresh := out.Data.Tokens.RefreshToken

		results := make([]auth.Outcome[auth.TokenPair], 2)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = svc.Refresh(ctx, in, auth.RefreshRequest{RefreshToken: refresh})
			}()
		}
		wg.Wait()

		wins := 0
		for _, r := range results {
			if r.OK {
				wins++
			} else {
				Expect(r.Code).To(Equal(auth.CodeInvalidToken))
			}
		}
		Expect(wins).To(Equal(1))
	})

	It("revokes the access token and ends the session on logout", func() {
		out := login("viper", password)
		Expect(out.OK).To(BeTrue())
		tokens := out.Data.Tokens

		Expect(svc.Logout(ctx, in, tokens.AccessToken).OK).To(BeTrue())
		Expect(svc.WhoAmI(ctx, in, tokens.AccessToken).Code).To(Equal(auth.CodeUnauthorized))
		Expect(svc.Refresh(ctx, in, auth.RefreshRequest{RefreshToken: tokens.RefreshToken}).Code).
			To(Equal(auth.CodeInvalidToken))

		var audited int
		Expect(testPool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events WHERE action = 'logout' AND success`).
			Scan(&audited)).To(Succeed())
		Expect(audited).To(Equal(1))
	})

	It("rolls back the session when the login transaction fails", func() {
		account, err := accounts.GetByHandle(ctx, "viper")
		Expect(err).NotTo(HaveOccurred())

		tx := store.NewTransactor(testPool)
		err = tx.InTransaction(ctx, func(ctx context.Context) error {
			Expect(accounts.RecordLogin(ctx, account.ID, time.Now())).To(Succeed())
			s, err := auth.NewSession(account.ID, "dup-hash", time.Hour, "", "", nil, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Create(ctx, s)).To(Succeed())
			s2, _ := auth.NewSession(account.ID, "dup-hash", time.Hour, "", "", nil, time.Now())
			return sessions.Create(ctx, s2)
		})
		Expect(err).To(HaveOccurred())

		_, err = sessions.LatestActive(ctx, account.ID, time.Now())
		Expect(err).To(MatchError(auth.ErrNotFound))
		reloaded, err := accounts.GetByHandle(ctx, "viper")
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.LastLoginAt).To(BeNil())
	})

	It("sweeps expired revocations and sessions", func() {
		out := login("viper", password)
		Expect(out.OK).To(BeTrue())
		Expect(svc.Logout(ctx, in, out.Data.Tokens.AccessToken).OK).To(BeTrue())

		later := time.Now().Add(31 * 24 * time.Hour)
		n, err := postgres.NewRevocationRepository(testPool).DeleteExpired(ctx, later)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
		n, err = sessions.DeleteExpired(ctx, later)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})
})

// countingHasher counts password verifications.
type countingHasher struct {
	auth.PasswordHasher
	verified atomic.Int32
}

func (h *countingHasher) Verify(password, hash string) (bool, error) {
	h.verified.Add(1)
	return h.PasswordHasher.Verify(password, hash)
}

func accountCount(ctx context.Context) int {
	var n int
	Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n)).To(Succeed())
	return n
}

package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/identity"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type fakeCredentialStore struct {
	accounts    map[string]*identity.Account
	hashes      map[string]string
	hashQueried bool
}

func (f *fakeCredentialStore) GetByEmail(_ context.Context, email string) (*identity.Account, error) {
	account, ok := f.accounts[email]
	if !ok {
		return nil, errors.New("no such account")
	}
	return account, nil
}

func (f *fakeCredentialStore) PasswordHash(_ context.Context, userID string) (string, error) {
	f.hashQueried = true
	h, ok := f.hashes[userID]
	if !ok {
		return "", errors.New("no credentials")
	}
	return h, nil
}

type fakeLockout struct {
	locked   map[string]bool
	attempts []bool
	reasons  []string
}

func (f *fakeLockout) IsAccountLocked(_ context.Context, email string) (bool, error) {
	return f.locked[email], nil
}

func (f *fakeLockout) RecordLoginAttempt(_ context.Context, _ string, success bool, failureReason, _, _ string) error {
	f.attempts = append(f.attempts, success)
	f.reasons = append(f.reasons, failureReason)
	return nil
}

type fakeProfileLoader struct {
	profiles map[string]*rbac.Profile
}

func (f *fakeProfileLoader) Profile(_ context.Context, userID string) (*rbac.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p, nil
}

var _ = Describe("Auth service", func() {
	var (
		creds    *fakeCredentialStore
		lockout  *fakeLockout
		profiles *fakeProfileLoader
		tokens   *auth.JWTTokenGenerator
		service  *auth.Service
		ctx      context.Context
	)

	login := auth.LoginDTO{Email: "maria@example.com", Password: "Str0ng!Pass"}

	BeforeEach(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(login.Password), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		creds = &fakeCredentialStore{
			accounts: map[string]*identity.Account{
				login.Email: {ID: "user-1", Email: login.Email},
			},
			hashes: map[string]string{"user-1": string(hash)},
		}
		lockout = &fakeLockout{locked: map[string]bool{}}
		profiles = &fakeProfileLoader{profiles: map[string]*rbac.Profile{
			"user-1": {ID: "user-1", Email: login.Email, Status: rbac.StatusActive},
		}}
		tokens = auth.NewJWTTokenGenerator("access-secret", "refresh-secret", time.Minute, time.Hour)
		service = auth.NewService(creds, lockout, profiles, tokens, slog.Default())
		ctx = context.Background()
	})

	Describe("Authenticate", func() {
		It("returns a working token pair for valid credentials", func() {
			pair, err := service.Authenticate(ctx, login, "10.0.0.1", "test")
			Expect(err).NotTo(HaveOccurred())
			Expect(pair.AccessToken).NotTo(BeEmpty())
			Expect(pair.RefreshToken).NotTo(BeEmpty())

			claims, err := service.ValidateAccessToken(pair.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("user-1"))
			Expect(claims.Email).To(Equal(login.Email))

			Expect(lockout.attempts).To(Equal([]bool{true}))
			Expect(lockout.reasons).To(Equal([]string{""}))
		})

		It("checks the lock before touching credentials", func() {
			lockout.locked[login.Email] = true

			_, err := service.Authenticate(ctx, login, "10.0.0.1", "test")
			Expect(err).To(Equal(internal.ErrAccountLocked))
			Expect(creds.hashQueried).To(BeFalse())
		})

		It("records a failure for a wrong password", func() {
			wrong := login
			wrong.Password = "not-it"

			_, err := service.Authenticate(ctx, wrong, "10.0.0.1", "test")
			Expect(err).To(Equal(internal.ErrInvalidCredentials))
			Expect(lockout.attempts).To(Equal([]bool{false}))
			Expect(lockout.reasons).To(Equal([]string{"wrong password"}))
		})

		It("records a failure for an unknown email", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "ghost@example.com", Password: "x"}, "10.0.0.1", "test")
			Expect(err).To(Equal(internal.ErrInvalidCredentials))
			Expect(lockout.attempts).To(Equal([]bool{false}))
			Expect(lockout.reasons).To(Equal([]string{"unknown email"}))
		})

		It("rejects suspended profiles even with the right password", func() {
			profiles.profiles["user-1"].Status = rbac.StatusSuspended

			_, err := service.Authenticate(ctx, login, "10.0.0.1", "test")
			Expect(err).To(Equal(internal.ErrUserInactive))
			Expect(lockout.attempts).To(Equal([]bool{false}))
			Expect(lockout.reasons).To(Equal([]string{"account inactive"}))
		})

		It("requires both email and password", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: login.Email}, "10.0.0.1", "test")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("RefreshTokens", func() {
		var pair auth.AuthTokens

		BeforeEach(func() {
			var err error
			pair, err = service.Authenticate(ctx, login, "10.0.0.1", "test")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rotates the pair", func() {
			rotated, err := service.RefreshTokens(ctx, pair.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(rotated.AccessToken).NotTo(BeEmpty())
			Expect(rotated.RefreshToken).NotTo(BeEmpty())

			claims, err := service.ValidateAccessToken(rotated.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("user-1"))
		})

		It("rejects an access token presented as a refresh token", func() {
			_, err := service.RefreshTokens(ctx, pair.AccessToken)
			Expect(err).To(Equal(internal.ErrInvalidToken))
		})

		It("re-checks the profile at refresh time", func() {
			profiles.profiles["user-1"].Status = rbac.StatusInactive

			_, err := service.RefreshTokens(ctx, pair.RefreshToken)
			Expect(err).To(Equal(internal.ErrUserInactive))
		})

		It("rejects garbage", func() {
			_, err := service.RefreshTokens(ctx, "not-a-token")
			Expect(err).To(Equal(internal.ErrInvalidToken))
		})
	})

	Describe("JWTTokenGenerator", func() {
		It("rejects expired tokens distinctly", func() {
			shortLived := auth.NewJWTTokenGenerator("access-secret", "refresh-secret", -time.Minute, time.Hour)
			token, err := shortLived.GenerateAccessToken("user-1", login.Email)
			Expect(err).NotTo(HaveOccurred())

			_, err = tokens.ValidateToken(token)
			Expect(err).To(Equal(internal.ErrTokenExpired))
		})

		It("rejects tokens signed with another secret", func() {
			other := auth.NewJWTTokenGenerator("other-secret", "refresh-secret", time.Minute, time.Hour)
			token, err := other.GenerateAccessToken("user-1", login.Email)
			Expect(err).NotTo(HaveOccurred())

			_, err = tokens.ValidateToken(token)
			Expect(err).To(Equal(internal.ErrInvalidToken))
		})
	})
})

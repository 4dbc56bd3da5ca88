package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/identity"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore reads the stored password hash for verification.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*identity.Account, error)
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// LockoutTracker accounts for login failures. The lock is evaluated
// before credentials are checked so a locked account rejects even the
// correct password.
type LockoutTracker interface {
	IsAccountLocked(ctx context.Context, email string) (bool, error)
	RecordLoginAttempt(ctx context.Context, email string, success bool, failureReason, ipAddress, userAgent string) error
}

// ProfileLoader resolves the caller's RBAC projection.
type ProfileLoader interface {
	Profile(ctx context.Context, userID string) (*rbac.Profile, error)
}

// Service performs authentication and session token management.
type Service struct {
	credentials CredentialStore
	lockout     LockoutTracker
	profiles    ProfileLoader
	tokens      TokenGenerator
	logger      *slog.Logger
}

func NewService(credentials CredentialStore, lockout LockoutTracker, profiles ProfileLoader, tokens TokenGenerator, logger *slog.Logger) *Service {
	return &Service{
		credentials: credentials,
		lockout:     lockout,
		profiles:    profiles,
		tokens:      tokens,
		logger:      logger,
	}
}

func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * 7 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

// Authenticate validates credentials and returns a token pair. Every
// attempt is recorded; failures against unknown emails are recorded too
// so lockout cannot be probed around.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO, ipAddress, userAgent string) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	locked, err := s.lockout.IsAccountLocked(ctx, dto.Email)
	if err != nil {
		s.logger.Error("lockout check failed", "email", dto.Email, "error", err)
		return AuthTokens{}, internal.NewInternalError("failed to verify account status", err)
	}
	if locked {
		s.logger.Warn("login rejected: account locked", "email", dto.Email)
		return AuthTokens{}, internal.ErrAccountLocked
	}

	account, err := s.credentials.GetByEmail(ctx, dto.Email)
	if err != nil {
		s.recordAttempt(ctx, dto.Email, false, "unknown email", ipAddress, userAgent)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	storedHash, err := s.credentials.PasswordHash(ctx, account.ID)
	if err != nil {
		s.recordAttempt(ctx, dto.Email, false, "credentials unavailable", ipAddress, userAgent)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(dto.Password)); err != nil {
		s.recordAttempt(ctx, dto.Email, false, "wrong password", ipAddress, userAgent)
		s.logger.Warn("login failed: wrong password", "email", dto.Email)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	profile, err := s.profiles.Profile(ctx, account.ID)
	if err != nil {
		s.recordAttempt(ctx, dto.Email, false, "profile unavailable", ipAddress, userAgent)
		s.logger.Error("profile lookup failed during login", "user_id", account.ID, "error", err)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if profile.Status != rbac.StatusActive {
		s.recordAttempt(ctx, dto.Email, false, "account inactive", ipAddress, userAgent)
		s.logger.Warn("login rejected: inactive profile", "user_id", account.ID, "status", profile.Status)
		return AuthTokens{}, internal.ErrUserInactive
	}

	s.recordAttempt(ctx, dto.Email, true, "", ipAddress, userAgent)

	accessToken, err := s.tokens.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate access token", err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(account.ID, account.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate refresh token", err)
	}

	s.logger.Info("login successful", "user_id", account.ID)

	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RefreshTokens validates a refresh token and rotates the pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	profile, err := s.profiles.Profile(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}
	if profile.Status != rbac.StatusActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	accessToken, err := s.tokens.GenerateAccessToken(claims.UserID, claims.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate access token", err)
	}
	newRefreshToken, err := s.tokens.GenerateRefreshToken(claims.UserID, claims.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate refresh token", err)
	}

	return AuthTokens{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateToken(tokenString)
}

func (s *Service) recordAttempt(ctx context.Context, email string, success bool, failureReason, ipAddress, userAgent string) {
	if err := s.lockout.RecordLoginAttempt(ctx, email, success, failureReason, ipAddress, userAgent); err != nil {
		s.logger.Error("failed to record login attempt", "email", email, "error", err)
	}
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID, email string) (string, error) {
	return j.signToken(userID, email, j.AccessTokenTTL, j.AccessTokenSecret)
}

// GenerateRefreshToken creates a new refresh token
func (j *JWTTokenGenerator) GenerateRefreshToken(userID, email string) (string, error) {
	return j.signToken(userID, email, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) signToken(userID, email string, ttl time.Duration, secret []byte) (string, error) {
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates an access token and returns its claims.
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	return j.parseWithSecret(tokenString, j.AccessTokenSecret)
}

// ValidateRefreshToken validates a refresh token and returns its claims.
func (j *JWTTokenGenerator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return j.parseWithSecret(tokenString, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) parseWithSecret(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, internal.ErrInvalidToken
}

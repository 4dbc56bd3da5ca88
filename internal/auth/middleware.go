package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"github.com/ipeimoveis/crm-backend/pkg/logger"
)

// TokenValidator is the slice of the auth service the middleware needs.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// ProfileResolver loads the RBAC projection for the token subject.
type ProfileResolver interface {
	Profile(ctx context.Context, userID string) (*rbac.Profile, error)
}

// Middleware authenticates the bearer token, resolves the caller's
// profile, and places the User in the request context. Requests with a
// missing or invalid token get 401; a valid token for an inactive
// profile gets 403.
func Middleware(validator TokenValidator, resolver ProfileResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			profile, err := resolver.Profile(r.Context(), claims.UserID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			if profile.Status != rbac.StatusActive {
				writeAuthError(w, http.StatusForbidden, "account is not active")
				return
			}

			perms := profile.FlatPermissions()
			flat := make([]string, 0, len(perms))
			for _, p := range perms {
				flat = append(flat, p.Resource+":"+p.Action)
			}

			user := &User{
				ID:          profile.ID,
				Email:       profile.Email,
				RoleID:      profile.RoleID,
				Permissions: flat,
			}

			ctx := ContextWithUser(r.Context(), user)
			ctx = logger.With(ctx, "user_id", user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    status,
		"message": message,
	})
}

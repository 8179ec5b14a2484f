package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/domain"
)

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a bearer token to the user it belongs to
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// AuthMiddleware requires a valid bearer token and stores the current user
// in the request context.
func AuthMiddleware(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				logger.Debug("Rejected request without token", zap.String("path", r.URL.Path))
				RespondWithError(w, r, err)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				RespondWithError(w, r, err)
				return
			}

			logger.Debug("User authenticated", zap.String("user_id", user.ID.String()))
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperror.Unauthenticated("You are not logged in! Please log in to get access.")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperror.Unauthenticated("Invalid authorization header format")
	}
	return parts[1], nil
}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok && user != nil
}

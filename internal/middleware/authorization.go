package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"storefront/internal/apperror"
)

// RequireAdmin middleware ensures the authenticated user is an administrator.
// It must run after AuthMiddleware.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				logger.Warn("User not found in context")
				RespondWithError(w, r, apperror.Unauthenticated("You are not logged in! Please log in to get access."))
				return
			}

			if !user.IsAdmin {
				logger.Warn("Non-admin user attempted to access admin endpoint",
					zap.String("user_id", user.ID.String()),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, r, apperror.Unauthorized("You do not have permission to perform this action"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

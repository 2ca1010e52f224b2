package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/smalcash/backend/src/security"
	"github.com/smalcash/backend/src/utils"
)

type contextKey string

const adminContextKey = contextKey("isAdmin")

// AdminMiddleware guards the statistics/fee endpoints. The admin session is
// a JWT obtained by entering the shared register PIN.
func AdminMiddleware(auth *security.AuthService) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !tokenValid(auth, r) {
				utils.SendJSONError(w, "admin authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminContextKey, true)
			next(w, r.WithContext(ctx))
		}
	}
}

// WithOptionalAdmin marks the request context as admin when a valid token is
// present, without rejecting anonymous requests. Used where a response
// carries extra fields (the fee) for admins only.
func WithOptionalAdmin(auth *security.AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenValid(auth, r) {
			r = r.WithContext(context.WithValue(r.Context(), adminContextKey, true))
		}
		next(w, r)
	}
}

// IsAdminRequest reports whether the request carried a valid admin session.
func IsAdminRequest(r *http.Request) bool {
	isAdmin, ok := r.Context().Value(adminContextKey).(bool)
	return ok && isAdmin
}

func tokenValid(auth *security.AuthService, r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	sub, err := auth.ValidateToken(token)
	return err == nil && sub == "admin"
}

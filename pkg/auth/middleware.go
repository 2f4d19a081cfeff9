package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware guards dashboard routes. It is a thin layer over AuthService,
// which does the actual token work.
type Middleware struct {
	auth   AuthService
	logger *zap.Logger
}

// NewMiddleware wires an AuthService into a route-level guard.
func NewMiddleware(auth AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{auth: auth, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token. On success the
// claims and raw token are stashed in the request context for handlers that
// need the caller's identity.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.auth.ValidateRequest(r)
		if err != nil {
			m.logger.Debug("Rejected unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "Authentication required",
	})
}

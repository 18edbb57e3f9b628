package api

import (
	"context"
	"net/http"
	"strings"

	"warptrace/util"
)

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

// ContextKeyUsername stores the authenticated username (string)
const ContextKeyUsername contextKey = "username"

// WithUsername returns a context carrying the authenticated username.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ContextKeyUsername, username)
}

// GetUsername extracts the username from the context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(ContextKeyUsername).(string)
	return username, ok
}

// jwtAuthMiddleware provides JWT authentication. The token comes from the
// Authorization header, or from a `token` query parameter for clients that
// cannot set headers (the websocket status stream).
func (a *API) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.config.Auth.Enabled {
			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), "anonymous")))
			return
		}

		var tokenString string
		authHeader := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		case r.URL.Query().Get("token") != "":
			tokenString = r.URL.Query().Get("token")
		default:
			writeError(w, http.StatusUnauthorized, "missing token", nil, a.logger)
			return
		}

		claims, err := validateJWT(tokenString, a.config)
		if err != nil {
			a.logger.Warnw("Rejected token", "error", util.SanitizeError(err), "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid token", nil, a.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), claims.Username)))
	})
}

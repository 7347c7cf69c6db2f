package http

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// callerHeader carries the verified user identity. The upstream API gateway
// authenticates the session and injects this header; the service trusts it.
const callerHeader = "X-User-ID"

const contextKeyCallerID contextKey = "caller_id"

// requireCaller rejects requests without a caller identity and stores it in
// the request context.
func (s *Server) requireCaller(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := strings.TrimSpace(r.Header.Get(callerHeader))
		if callerID == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Missing caller identity")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCallerID, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerID returns the authenticated caller from the request context.
func callerID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyCallerID).(string); ok {
		return id
	}
	return ""
}

// requireAdmin checks the bearer token against the configured bcrypt hash.
// Admin endpoints are disabled entirely when no hash is configured.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminTokenHash == "" {
			writeJSONError(w, http.StatusNotFound, "not_found", "Not found")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Missing bearer token")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(s.config.AdminTokenHash), []byte(token)) != nil {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

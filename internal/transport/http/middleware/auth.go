package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/rail-account-api/internal/infrastructure/jwt"
	"github.com/rail-account-api/internal/domain"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// SessionGetter loads a session by id, reporting expired ids as not found.
type SessionGetter interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Auth returns middleware that validates the Bearer JWT AND re-validates the
// companion session. The token is signed and self-expiring, but it never
// authorizes a request on its own: the session must still exist, be a
// verified login session, and be inside its TTL.
func Auth(provider *jwtinfra.Provider, sessions SessionGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			sess, err := sessions.Get(r.Context(), claims.SessionID)
			if err != nil || sess.Purpose != domain.PurposeLogin || sess.Step != domain.StepVerified {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kimlik-auth/kimlik"
	"github.com/kimlik-auth/kimlik/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated access-token claims injected by
// [RequireAuth].
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// RequireAuth rejects requests without a live access token. Validation goes
// through Engine.ValidateAccess, so blacklisted tokens fail even before
// their expiry.
func RequireAuth(engine *kimlik.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or revoked token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}

	return raw, true
}

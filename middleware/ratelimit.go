package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kimlik-auth/kimlik"
)

// RateLimit enforces the engine's budget for one action, keyed by client IP.
// Admitted and rejected responses both carry X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejections add Retry-After
// and a RATE_LIMIT_EXCEEDED body. A Redis outage fails closed with 503
// rather than waving traffic through.
func RateLimit(engine *kimlik.Engine, action kimlik.RateAction) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := kimlik.WithClientIP(r.Context(), ClientIP(r))
			ctx = kimlik.WithUserAgent(ctx, r.UserAgent())
			r = r.WithContext(ctx)

			res, err := engine.CheckRate(ctx, action)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "rate limiter unavailable")
				return
			}

			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":        "RATE_LIMIT_EXCEEDED",
						"retry_after": retryAfter,
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middleware left to right: the first element sees the
// request first.
func Chain(handler http.Handler, wares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wares) - 1; i >= 0; i-- {
		handler = wares[i](handler)
	}
	return handler
}

// ClientIP extracts the peer address, preferring X-Forwarded-For when a
// reverse proxy set it.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`+"\n", code, message)
}

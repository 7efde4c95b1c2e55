package middleware

import (
	"net"
	"net/http"
	"strconv"

	dreamerauth "github.com/cuzo151/dreamer-auth"
)

// RateLimit charges every request against the named resource policy.
// Authenticated requests are keyed by principal id; anonymous ones by
// client address. Denials carry X-RateLimit-* and Retry-After headers
// alongside the problem body.
func RateLimit(engine *dreamerauth.Engine, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, r, dreamerauth.ErrEngineNotReady)
				return
			}

			subject, tier := subjectOf(r)
			decision, err := engine.CheckRateLimit(r.Context(), resource, subject, tier)
			if err != nil {
				writeError(w, r, err)
				return
			}

			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			}
			if !decision.Allowed {
				retryAfter := int64(decision.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeError(w, r, dreamerauth.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// subjectOf picks the rate limiting key: the authenticated principal when
// Guard already ran, the remote address otherwise.
func subjectOf(r *http.Request) (subject, tier string) {
	if principal, ok := dreamerauth.PrincipalFromContext(r.Context()); ok {
		return principal.ID, ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host, "anonymous"
}

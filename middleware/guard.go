package middleware

import (
	"net/http"
	"strings"

	dreamerauth "github.com/cuzo151/dreamer-auth"
)

// Guard authenticates the bearer token on every request and attaches the
// principal to the request context. Failures render RFC 7807 problems
// with statuses derived from the engine error.
func Guard(engine *dreamerauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, r, dreamerauth.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, dreamerauth.ErrTokenInvalid)
				return
			}

			principal, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := dreamerauth.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission layers a role check on top of Guard. It must run
// after Guard in the chain.
func RequirePermission(engine *dreamerauth.Engine, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := dreamerauth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, dreamerauth.ErrTokenInvalid)
				return
			}
			if err := engine.RequirePermission(principal.Role, perm); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

package middleware

import (
	"net/http"
	"time"

	"github.com/faultline-hq/faultline/internal/api/problem"
	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/metrics"
)

// RequireSudo gates an operation behind an elevated session. Requests
// authenticated through an API key or token pass unconditionally, as do
// passwordless accounts; everyone else needs a live sudo flag.
func RequireSudo(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity(r)
			if !identity.IsAuthenticated() {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", problem.ErrUnauthorized, env)
				return
			}
			if !auth.IsConsideredSudo(identity, time.Now()) {
				metrics.SudoChecksDenied.Inc()
				problem.SudoRequired(w, r, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerifiedEmail gates an operation behind a verified email
// address on the account.
func RequireVerifiedEmail(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity(r)
			if identity == nil || identity.Actor == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", problem.ErrUnauthorized, env)
				return
			}
			if !identity.Actor.HasVerifiedEmail {
				problem.EmailVerificationRequired(w, r, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackguard/authgate/pkg/httpx"
	"github.com/stackguard/authgate/pkg/slogx"
)

// RequireCredentials rejects requests that carry no access token before any
// provider round trip. It only checks presence; the provider remains the
// authority on validity, which the session manager enforces downstream.
//
// When the token looks like a JWT its subject is attached to the request
// logger. The claims are parsed without verification and are never used for
// authorization.
func RequireCredentials(redirectTo string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pair := credentialsFromRequest(r)
			if !pair.HasAccess() {
				if redirectTo != "" {
					http.Redirect(w, r, redirectTo, http.StatusSeeOther)
					return
				}
				httpx.WriteError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			if sub := unverifiedSubject(pair.AccessToken); sub != "" {
				ctx := r.Context()
				log := slogx.FromContext(ctx).With(slog.String("sub", sub))
				r = r.WithContext(slogx.WithContext(ctx, log))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unverifiedSubject(token string) string {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

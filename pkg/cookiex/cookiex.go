// Package cookiex encodes the gateway's credential pair to and from browser
// cookies. The access and renewal tokens ride in HttpOnly SameSite=Strict
// cookies; the user email rides in a readable cookie for client display only
// and is never used for authorization decisions.
package cookiex

import "net/http"

// Cookie names.
const (
	AccessCookie  = "auth_token"
	RefreshCookie = "refresh_token"
	EmailCookie   = "user_email"
)

// SessionMaxAge is the cookie lifetime: 7 days, in seconds.
const SessionMaxAge = 7 * 24 * 60 * 60

// SetSession writes the credential cookies for a signed-in session. The
// refresh cookie is only written when a renewal token exists, so a provider
// that issued no renewal token does not leave an empty cookie behind.
func SetSession(w http.ResponseWriter, accessToken, refreshToken, email string) {
	http.SetCookie(w, hardened(AccessCookie, accessToken, SessionMaxAge))
	if refreshToken != "" {
		http.SetCookie(w, hardened(RefreshCookie, refreshToken, SessionMaxAge))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     EmailCookie,
		Value:    email,
		MaxAge:   SessionMaxAge,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
}

// UpdateTokens rewrites just the token cookies after a renewal, leaving the
// email cookie untouched. Empty tokens are skipped rather than cleared.
func UpdateTokens(w http.ResponseWriter, accessToken, refreshToken string) {
	if accessToken != "" {
		http.SetCookie(w, hardened(AccessCookie, accessToken, SessionMaxAge))
	}
	if refreshToken != "" {
		http.SetCookie(w, hardened(RefreshCookie, refreshToken, SessionMaxAge))
	}
}

// ClearSession expires the credential cookies. The email cookie is left
// alone so a login form can still prefill the address.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, hardened(AccessCookie, "", -1))
	http.SetCookie(w, hardened(RefreshCookie, "", -1))
}

// Read returns the named cookie's value, or "" when absent.
func Read(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func hardened(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

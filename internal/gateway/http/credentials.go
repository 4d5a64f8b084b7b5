package http

import (
	"net/http"
	"strings"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/pkg/cookiex"
)

// credentialsFromRequest resolves the caller's credential pair. An explicit
// Authorization bearer token wins over the cookie jar; the renewal token only
// ever comes from its cookie.
func credentialsFromRequest(r *http.Request) domain.CredentialPair {
	pair := domain.CredentialPair{
		AccessToken:  cookiex.Read(r, cookiex.AccessCookie),
		RefreshToken: cookiex.Read(r, cookiex.RefreshCookie),
	}

	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			pair.AccessToken = strings.TrimSpace(token)
		}
	}

	return pair
}

// applyCredentials writes the (possibly renewed) pair back to the response
// cookies when it changed. Handlers call this before writing the body.
func applyCredentials(w http.ResponseWriter, before, after domain.CredentialPair) {
	if after == before || !after.HasAccess() {
		return
	}
	cookiex.UpdateTokens(w, after.AccessToken, after.RefreshToken)
}

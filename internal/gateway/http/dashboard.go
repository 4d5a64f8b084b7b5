package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/pkg/cookiex"
	"github.com/stackguard/authgate/pkg/httpx"
)

// DashboardHandler handles GET /dashboard. It validates the session against
// the provider (renewing once when expired) and returns the account view.
// A dead session clears the cookies and bounces the browser to sign-in.
type DashboardHandler struct {
	Provider provider.API
	Sessions *session.Manager
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pair := credentialsFromRequest(r)

	user, updated, err := session.Perform(r.Context(), h.Sessions, pair,
		func(ctx context.Context, token string) (*domain.User, error) {
			return h.Provider.GetUser(ctx, token)
		})
	applyCredentials(w, pair, updated)
	if err != nil {
		if errors.Is(err, session.ErrExpired) || errors.Is(err, session.ErrNoCredentials) {
			cookiex.ClearSession(w)
			http.Redirect(w, r, "/signin", http.StatusSeeOther)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/pkg/cookiex"
	"github.com/stackguard/authgate/pkg/httpx"
	"github.com/stackguard/authgate/pkg/slogx"
)

// writeServiceError maps service and lifecycle errors onto HTTP responses.
// A terminated session clears the credential cookies so the browser stops
// replaying dead tokens.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, session.ErrNoCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "Not authenticated")

	case errors.Is(err, session.ErrExpired):
		cookiex.ClearSession(w)
		httpx.WriteError(w, http.StatusUnauthorized, "Session expired")

	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid credentials")

	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, "Verification code must be 6 digits")

	case errors.Is(err, service.ErrAlreadyEnrolled):
		httpx.WriteError(w, http.StatusBadRequest, "An MFA factor is already verified")

	case errors.Is(err, service.ErrNoFactor):
		httpx.WriteError(w, http.StatusBadRequest, "No MFA factor enrolled")

	default:
		var perr *provider.Error
		if errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500 {
			httpx.WriteError(w, perr.Status, perr.Message)
			return
		}
		log.Error("request failed", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/pkg/cookiex"
	"github.com/stackguard/authgate/pkg/httpx"
	"github.com/stackguard/authgate/pkg/slogx"
)

const minPasswordLength = 8

// SignUpHandler handles POST /api/auth/signup.
type SignUpHandler struct {
	Auth *service.AuthService
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpResponse struct {
	User                 domain.User `json:"user"`
	ConfirmationRequired bool        `json:"confirmation_required"`
	Next                 string      `json:"next,omitempty"`
}

func (h *SignUpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httpx.WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		httpx.WriteError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	res, err := h.Auth.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("sign-up accepted",
		slog.String("user_id", res.User.ID),
		slog.Bool("confirmation_required", res.ConfirmationRequired))

	if res.ConfirmationRequired {
		// No session was issued; stale tokens from an earlier account must
		// not linger next to the new registration.
		cookiex.ClearSession(w)
		httpx.WriteJSON(w, http.StatusCreated, signUpResponse{
			User:                 res.User,
			ConfirmationRequired: true,
		})
		return
	}

	cookiex.SetSession(w, res.Pair.AccessToken, res.Pair.RefreshToken, res.User.Email)
	httpx.WriteJSON(w, http.StatusCreated, signUpResponse{
		User: res.User,
		Next: "/mfa/enroll",
	})
}

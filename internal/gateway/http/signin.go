package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/pkg/cookiex"
	"github.com/stackguard/authgate/pkg/httpx"
	"github.com/stackguard/authgate/pkg/slogx"
)

// SignInHandler handles POST /api/auth/signin.
type SignInHandler struct {
	Auth *service.AuthService
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	User   domain.User `json:"user"`
	HasMFA bool        `json:"hasMFA"`
	Next   string      `json:"next"`
}

func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	res, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	next := "/mfa/enroll"
	if res.MFARequired {
		next = "/mfa/verify"
	}
	log.Info("sign-in accepted",
		slog.String("user_id", res.User.ID),
		slog.Bool("mfa_required", res.MFARequired))

	cookiex.SetSession(w, res.Pair.AccessToken, res.Pair.RefreshToken, res.User.Email)
	httpx.WriteJSON(w, http.StatusOK, signInResponse{
		User:   res.User,
		HasMFA: res.MFARequired,
		Next:   next,
	})
}

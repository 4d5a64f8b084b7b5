package http

import (
	"encoding/json"
	"net/http"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/pkg/httpx"
)

// MFAHandler handles the /api/mfa/* endpoints. Every handler resolves the
// caller's credential pair, runs the operation under the session manager, and
// writes any renewed tokens back to the cookies before the body.
type MFAHandler struct {
	MFA *service.MFAService
}

type enrollRequest struct {
	FactorType string `json:"factorType"`
	Friendly   string `json:"friendly_name"`
}

// HandleEnroll handles POST /api/mfa/enroll. Only TOTP factors exist today.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	pair := credentialsFromRequest(r)

	var req enrollRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body optional
	if req.FactorType != "" && req.FactorType != "totp" {
		httpx.WriteError(w, http.StatusBadRequest, "Only totp factors are supported")
		return
	}

	res, updated, err := h.MFA.Enroll(r.Context(), pair, req.Friendly)
	applyCredentials(w, pair, updated)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

type challengeRequest struct {
	FactorID string `json:"factorId"`
}

// HandleChallenge handles POST /api/mfa/challenge.
func (h *MFAHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	pair := credentialsFromRequest(r)

	var req challengeRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body optional

	res, updated, err := h.MFA.Challenge(r.Context(), pair, req.FactorID)
	applyCredentials(w, pair, updated)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

type verifyRequest struct {
	FactorID    string `json:"factorId"`
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	User    domain.User `json:"user"`
	Message string      `json:"message"`
	Next    string      `json:"next"`
}

// HandleVerify handles POST /api/mfa/verify.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	pair := credentialsFromRequest(r)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, updated, err := h.MFA.Verify(r.Context(), pair, req.FactorID, req.ChallengeID, req.Code)
	applyCredentials(w, pair, updated)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{
		User:    res.User,
		Message: "MFA verification successful",
		Next:    "/dashboard",
	})
}

// HandleCheck handles POST /api/mfa/check.
func (h *MFAHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	pair := credentialsFromRequest(r)

	res, updated, err := h.MFA.Check(r.Context(), pair)
	applyCredentials(w, pair, updated)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

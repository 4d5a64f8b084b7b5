// Package providertest runs an in-process identity provider with real TOTP
// verification for tests. It implements the same REST surface the production
// client speaks, including expiry signaling and renewal-token rotation, so
// the renew-and-retry path can be exercised without a live provider.
package providertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/pquerna/otp/totp"

	"github.com/stackguard/authgate/pkg/cryptox"
	"github.com/stackguard/authgate/pkg/idx"
)

type user struct {
	id       string
	email    string
	password string
}

type factor struct {
	id       string
	userID   string
	kind     string
	friendly string
	secret   string
	verified bool
}

type challenge struct {
	id       string
	factorID string
	userID   string
	used     bool
}

type session struct {
	userID  string
	expired bool
}

// Server is a fake identity provider backed by httptest.
type Server struct {
	srv *httptest.Server

	mu         sync.Mutex
	users      map[string]*user    // keyed by email
	sessions   map[string]*session // keyed by access token
	refreshTok map[string]string   // refresh token -> user id
	factors    map[string]*factor
	challenges map[string]*challenge
	calls      map[string]int

	// RequireConfirmation makes sign-up withhold the session, mimicking a
	// provider waiting on email confirmation.
	RequireConfirmation bool

	// RotateRefresh controls whether the renewal exchange issues a new
	// renewal token. The production contract is "may or may not rotate".
	RotateRefresh bool
}

// New starts the fake provider. Callers own Close.
func New() *Server {
	s := &Server{
		users:         make(map[string]*user),
		sessions:      make(map[string]*session),
		refreshTok:    make(map[string]string),
		factors:       make(map[string]*factor),
		challenges:    make(map[string]*challenge),
		calls:         make(map[string]int),
		RotateRefresh: true,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.route))
	return s
}

func (s *Server) URL() string { return s.srv.URL }
func (s *Server) Close()      { s.srv.Close() }

// Calls returns how many times the named operation was hit. Names: signin,
// signup, refresh, user, list_factors, enroll, challenge, verify.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// AddUser seeds an account and returns its id.
func (s *Server) AddUser(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &user{id: idx.New().String(), email: email, password: password}
	s.users[email] = u
	return u.id
}

// IssueSession mints a live access/refresh pair for the user.
func (s *Server) IssueSession(userID string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID)
}

func (s *Server) issueLocked(userID string) (string, string) {
	access := cryptox.MustGenerateToken(cryptox.TokenSize256)
	refresh := cryptox.MustGenerateToken(cryptox.TokenSize128)
	s.sessions[access] = &session{userID: userID}
	s.refreshTok[refresh] = userID
	return access, refresh
}

// ExpireAccessToken marks a token so its next use fails with the provider's
// expiry message.
func (s *Server) ExpireAccessToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[accessToken]; ok {
		sess.expired = true
	}
}

// RevokeRefreshToken invalidates a renewal token so renewal fails.
func (s *Server) RevokeRefreshToken(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTok, refreshToken)
}

// EnrollVerifiedFactor seeds a verified TOTP factor and returns its id and
// shared secret, letting tests compute valid codes with totp.GenerateCode.
func (s *Server) EnrollVerifiedFactor(userID string) (factorID, secret string) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "providertest", AccountName: userID})
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := &factor{
		id:       idx.New().String(),
		userID:   userID,
		kind:     "totp",
		secret:   key.Secret(),
		verified: true,
	}
	s.factors[f.id] = f
	return f.id, f.secret
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/auth/v1")

	switch {
	case r.Method == http.MethodPost && path == "/token":
		s.handleToken(w, r)
	case r.Method == http.MethodPost && path == "/signup":
		s.handleSignUp(w, r)
	case r.Method == http.MethodGet && path == "/user":
		s.handleGetUser(w, r)
	case r.Method == http.MethodGet && path == "/factors":
		s.handleListFactors(w, r)
	case r.Method == http.MethodPost && path == "/factors":
		s.handleEnroll(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/challenge"):
		s.handleChallenge(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/factors/"), "/challenge"))
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/verify"):
		s.handleVerify(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/factors/"), "/verify"))
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.mu.Lock()
		s.calls["signin"]++
		u, ok := s.users[body.Email]
		if !ok || u.password != body.Password {
			s.mu.Unlock()
			writeErr(w, http.StatusBadRequest, "Invalid login credentials")
			return
		}
		access, refresh := s.issueLocked(u.id)
		resp := s.sessionPayloadLocked(access, refresh, u)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)

	case "refresh_token":
		s.mu.Lock()
		s.calls["refresh"]++
		userID, ok := s.refreshTok[body.RefreshToken]
		if !ok {
			s.mu.Unlock()
			writeErr(w, http.StatusBadRequest, "Invalid Refresh Token")
			return
		}
		u := s.userByIDLocked(userID)
		access, refresh := s.issueLocked(userID)
		if !s.RotateRefresh {
			// Keep the caller's token valid and omit a replacement.
			delete(s.refreshTok, refresh)
			refresh = ""
		} else {
			delete(s.refreshTok, body.RefreshToken)
		}
		resp := s.sessionPayloadLocked(access, refresh, u)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)

	default:
		writeErr(w, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["signup"]++

	if _, exists := s.users[body.Email]; exists {
		writeErr(w, http.StatusUnprocessableEntity, "User already registered")
		return
	}

	u := &user{id: idx.New().String(), email: body.Email, password: body.Password}
	s.users[body.Email] = u

	if s.RequireConfirmation {
		writeJSON(w, http.StatusOK, map[string]string{"id": u.id, "email": u.email})
		return
	}

	access, refresh := s.issueLocked(u.id)
	writeJSON(w, http.StatusOK, s.sessionPayloadLocked(access, refresh, u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["user"]++

	u, ok := s.authedLocked(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": u.id, "email": u.email})
}

func (s *Server) handleListFactors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["list_factors"]++

	u, ok := s.authedLocked(w, r)
	if !ok {
		return
	}

	type factorJSON struct {
		ID       string `json:"id"`
		Type     string `json:"factor_type"`
		Status   string `json:"status"`
		Friendly string `json:"friendly_name,omitempty"`
	}
	out := []factorJSON{}
	for _, f := range s.factors {
		if f.userID != u.id {
			continue
		}
		status := "unverified"
		if f.verified {
			status = "verified"
		}
		out = append(out, factorJSON{ID: f.id, Type: f.kind, Status: status, Friendly: f.friendly})
	}
	writeJSON(w, http.StatusOK, map[string]any{"factors": out})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["enroll"]++

	u, ok := s.authedLocked(w, r)
	if !ok {
		return
	}

	var body struct {
		FactorType string `json:"factor_type"`
		Friendly   string `json:"friendly_name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.FactorType != "totp" {
		writeErr(w, http.StatusBadRequest, "factor_type must be totp")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "providertest", AccountName: u.email})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "totp generation failed")
		return
	}

	f := &factor{
		id:       idx.New().String(),
		userID:   u.id,
		kind:     "totp",
		friendly: body.Friendly,
		secret:   key.Secret(),
	}
	s.factors[f.id] = f

	writeJSON(w, http.StatusOK, map[string]any{
		"id":   f.id,
		"type": "totp",
		"totp": map[string]string{
			"qr_code": key.URL(),
			"secret":  key.Secret(),
			"uri":     key.URL(),
		},
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, factorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["challenge"]++

	u, ok := s.authedLocked(w, r)
	if !ok {
		return
	}

	f, ok := s.factors[factorID]
	if !ok || f.userID != u.id {
		writeErr(w, http.StatusNotFound, "factor not found")
		return
	}

	ch := &challenge{id: idx.New().String(), factorID: f.id, userID: u.id}
	s.challenges[ch.id] = ch
	writeJSON(w, http.StatusOK, map[string]string{"id": ch.id, "factor_id": f.id})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, factorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["verify"]++

	u, ok := s.authedLocked(w, r)
	if !ok {
		return
	}

	var body struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f, ok := s.factors[factorID]
	if !ok || f.userID != u.id {
		writeErr(w, http.StatusNotFound, "factor not found")
		return
	}

	ch, ok := s.challenges[body.ChallengeID]
	if !ok || ch.used || ch.factorID != f.id {
		writeErr(w, http.StatusNotFound, "challenge not found or already consumed")
		return
	}
	ch.used = true // single use, success or not

	if !totp.Validate(body.Code, f.secret) {
		writeErr(w, http.StatusUnprocessableEntity, "Invalid TOTP code entered")
		return
	}
	f.verified = true

	access, refresh := s.issueLocked(u.id)
	writeJSON(w, http.StatusOK, s.sessionPayloadLocked(access, refresh, u))
}

// authedLocked resolves the bearer token to a live session. Expired tokens
// produce the same message shape the real provider uses.
func (s *Server) authedLocked(w http.ResponseWriter, r *http.Request) (*user, bool) {
	authz := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	sess, ok := s.sessions[token]
	if !ok {
		writeErr(w, http.StatusUnauthorized, "invalid JWT")
		return nil, false
	}
	if sess.expired {
		writeErr(w, http.StatusUnauthorized, "JWT token is expired")
		return nil, false
	}
	return s.userByIDLocked(sess.userID), true
}

func (s *Server) userByIDLocked(id string) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func (s *Server) sessionPayloadLocked(access, refresh string, u *user) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]string{"id": u.id, "email": u.email},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"code": code, "msg": msg})
}

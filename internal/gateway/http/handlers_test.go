package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	gatewayhttp "github.com/stackguard/authgate/internal/gateway/http"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/provider/providertest"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/internal/gateway/store/drivers/sqlite"
	"github.com/stackguard/authgate/pkg/cookiex"
	"github.com/stackguard/authgate/pkg/ratex"
)

type fixture struct {
	fake   *providertest.Server
	store  *sqlite.Store
	router *gatewayhttp.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := providertest.New()
	t.Cleanup(fake.Close)

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "authgate_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	client := provider.NewClient(fake.URL(), "anon-key")
	mgr := session.NewManager(client)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := gatewayhttp.NewRouter("test", st, ratex.NewGovernor(ratex.NewMemoryStore()), logger)
	router.AuthService = &service.AuthService{Provider: client, Sessions: mgr, Store: st}
	router.MFAService = &service.MFAService{Provider: client, Sessions: mgr, Store: st}
	router.ApplyRoutes()

	return &fixture{fake: fake, store: st, router: router}
}

func (fx *fixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignIn(t *testing.T) {
	t.Run("success sets hardened cookies", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("alice@example.com", "hunter22")

		rec := fx.do(t, http.MethodPost, "/api/auth/signin", map[string]string{
			"email": "alice@example.com", "password": "hunter22",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, false, body["hasMFA"])
		require.Equal(t, "/mfa/enroll", body["next"])

		access := cookieByName(rec, cookiex.AccessCookie)
		require.NotNil(t, access)
		require.True(t, access.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, access.SameSite)
		require.Equal(t, cookiex.SessionMaxAge, access.MaxAge)

		refresh := cookieByName(rec, cookiex.RefreshCookie)
		require.NotNil(t, refresh)
		require.True(t, refresh.HttpOnly)

		email := cookieByName(rec, cookiex.EmailCookie)
		require.NotNil(t, email)
		require.False(t, email.HttpOnly, "email cookie stays readable for the client")
		require.Equal(t, "alice@example.com", email.Value)
	})

	t.Run("enrolled user is told to verify", func(t *testing.T) {
		fx := newFixture(t)
		userID := fx.fake.AddUser("bob@example.com", "hunter22")
		fx.fake.EnrollVerifiedFactor(userID)

		rec := fx.do(t, http.MethodPost, "/api/auth/signin", map[string]string{
			"email": "bob@example.com", "password": "hunter22",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "/mfa/verify", decodeBody(t, rec)["next"])
	})

	t.Run("bad credentials are uniform", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("carol@example.com", "hunter22")

		for _, creds := range []map[string]string{
			{"email": "carol@example.com", "password": "wrong"},
			{"email": "ghost@example.com", "password": "hunter22"},
		} {
			rec := fx.do(t, http.MethodPost, "/api/auth/signin", creds)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])
		}
	})

	t.Run("missing fields rejected before provider", func(t *testing.T) {
		fx := newFixture(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/signin", map[string]string{"email": "x@y.z"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Zero(t, fx.fake.Calls("signin"))
	})

	t.Run("rate limited after five attempts", func(t *testing.T) {
		fx := newFixture(t)

		for i := 0; i < 5; i++ {
			rec := fx.do(t, http.MethodPost, "/api/auth/signin", map[string]string{
				"email": "ghost@example.com", "password": "wrong",
			})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
		}

		rec := fx.do(t, http.MethodPost, "/api/auth/signin", map[string]string{
			"email": "ghost@example.com", "password": "wrong",
		})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	})
}

func TestSignUp(t *testing.T) {
	t.Run("immediate session", func(t *testing.T) {
		fx := newFixture(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"email": "dave@example.com", "password": "hunter2222",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, "/mfa/enroll", decodeBody(t, rec)["next"])
		access := cookieByName(rec, cookiex.AccessCookie)
		require.NotNil(t, access)
		require.NotEmpty(t, access.Value)
	})

	t.Run("confirmation pending clears stale cookies", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.RequireConfirmation = true

		rec := fx.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"email": "erin@example.com", "password": "hunter2222",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, true, decodeBody(t, rec)["confirmation_required"])

		access := cookieByName(rec, cookiex.AccessCookie)
		require.NotNil(t, access)
		require.Equal(t, -1, access.MaxAge, "old session tokens must not dangle")
	})

	t.Run("weak password rejected locally", func(t *testing.T) {
		fx := newFixture(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"email": "frank@example.com", "password": "short",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Zero(t, fx.fake.Calls("signup"))
	})

	t.Run("duplicate email surfaces provider message", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("gail@example.com", "hunter22")

		rec := fx.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"email": "gail@example.com", "password": "hunter2222",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func sessionCookies(t *testing.T, fx *fixture, email string) ([]*http.Cookie, string) {
	t.Helper()
	userID := fx.fake.AddUser(email, "hunter22")
	access, refresh := fx.fake.IssueSession(userID)
	return []*http.Cookie{
		{Name: cookiex.AccessCookie, Value: access},
		{Name: cookiex.RefreshCookie, Value: refresh},
	}, userID
}

func TestMFAEndpoints(t *testing.T) {
	t.Run("unauthenticated is rejected before the provider", func(t *testing.T) {
		fx := newFixture(t)

		for _, path := range []string{"/api/mfa/enroll", "/api/mfa/challenge", "/api/mfa/verify", "/api/mfa/check"} {
			rec := fx.do(t, http.MethodPost, path, map[string]string{})
			require.Equal(t, http.StatusUnauthorized, rec.Code, path)
			require.Equal(t, "Not authenticated", decodeBody(t, rec)["error"], path)
		}
		require.Zero(t, fx.fake.Calls("list_factors"))
	})

	t.Run("enroll then verify end to end", func(t *testing.T) {
		fx := newFixture(t)
		cookies, userID := sessionCookies(t, fx, "henry@example.com")

		rec := fx.do(t, http.MethodPost, "/api/mfa/enroll", nil, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)
		enroll := decodeBody(t, rec)
		require.NotEmpty(t, enroll["id"])
		require.Equal(t, "totp", enroll["type"])
		provisioning, ok := enroll["totp"].(map[string]any)
		require.True(t, ok, "provisioning material nests under totp")
		secret, _ := provisioning["secret"].(string)
		require.NotEmpty(t, secret)
		require.NotEmpty(t, provisioning["qr_code"])

		rec = fx.do(t, http.MethodPost, "/api/mfa/challenge", nil, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)
		ch := decodeBody(t, rec)
		require.NotEmpty(t, ch["id"])
		require.Equal(t, enroll["id"], ch["factorId"])

		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		rec = fx.do(t, http.MethodPost, "/api/mfa/verify", map[string]string{
			"factorId":    ch["factorId"].(string),
			"challengeId": ch["id"].(string),
			"code":        code,
		}, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)
		verify := decodeBody(t, rec)
		require.Equal(t, "/dashboard", verify["next"])
		require.Equal(t, userID, verify["user"].(map[string]any)["id"])

		// Verification upgraded the session; the new tokens must land in
		// the cookies.
		require.NotNil(t, cookieByName(rec, cookiex.AccessCookie))

		st, err := fx.store.Enrollments().GetByUserID(context.Background(), userID)
		require.NoError(t, err)
		require.True(t, st.Enrolled)
	})

	t.Run("malformed code is a local 400", func(t *testing.T) {
		fx := newFixture(t)
		cookies, _ := sessionCookies(t, fx, "iris@example.com")

		rec := fx.do(t, http.MethodPost, "/api/mfa/verify", map[string]string{"code": "12ab"}, cookies...)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Zero(t, fx.fake.Calls("verify"))
	})

	t.Run("verify is rate limited", func(t *testing.T) {
		fx := newFixture(t)
		cookies, userID := sessionCookies(t, fx, "judy@example.com")
		fx.fake.EnrollVerifiedFactor(userID)

		var last *httptest.ResponseRecorder
		for i := 0; i < 11; i++ {
			last = fx.do(t, http.MethodPost, "/api/mfa/verify", map[string]string{"code": "000000"}, cookies...)
		}
		require.Equal(t, http.StatusTooManyRequests, last.Code)
	})

	t.Run("check reports enrollment and opens a challenge", func(t *testing.T) {
		fx := newFixture(t)
		cookies, userID := sessionCookies(t, fx, "kate@example.com")
		fx.fake.EnrollVerifiedFactor(userID)

		rec := fx.do(t, http.MethodPost, "/api/mfa/check", nil, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["hasMFA"])
		require.NotEmpty(t, body["factorId"])
		require.NotEmpty(t, body["challengeId"])
	})

	t.Run("expired access token renews transparently", func(t *testing.T) {
		fx := newFixture(t)
		cookies, userID := sessionCookies(t, fx, "liam@example.com")
		fx.fake.EnrollVerifiedFactor(userID)
		fx.fake.ExpireAccessToken(cookies[0].Value)

		rec := fx.do(t, http.MethodPost, "/api/mfa/check", nil, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, fx.fake.Calls("refresh"))

		renewed := cookieByName(rec, cookiex.AccessCookie)
		require.NotNil(t, renewed)
		require.NotEqual(t, cookies[0].Value, renewed.Value)
		require.True(t, renewed.HttpOnly)
	})

	t.Run("dead session clears cookies", func(t *testing.T) {
		fx := newFixture(t)
		cookies, _ := sessionCookies(t, fx, "mona@example.com")
		fx.fake.ExpireAccessToken(cookies[0].Value)
		fx.fake.RevokeRefreshToken(cookies[1].Value)

		rec := fx.do(t, http.MethodPost, "/api/mfa/check", nil, cookies...)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		cleared := cookieByName(rec, cookiex.AccessCookie)
		require.NotNil(t, cleared)
		require.Equal(t, -1, cleared.MaxAge)
	})
}

func TestDashboard(t *testing.T) {
	t.Run("no credentials redirects to sign-in", func(t *testing.T) {
		fx := newFixture(t)

		rec := fx.do(t, http.MethodGet, "/dashboard", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/signin", rec.Header().Get("Location"))
	})

	t.Run("valid session returns the account", func(t *testing.T) {
		fx := newFixture(t)
		cookies, userID := sessionCookies(t, fx, "nina@example.com")

		rec := fx.do(t, http.MethodGet, "/dashboard", nil, cookies...)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		user := body["user"].(map[string]any)
		require.Equal(t, userID, user["id"])
	})

	t.Run("dead session redirects and clears cookies", func(t *testing.T) {
		fx := newFixture(t)
		cookies, _ := sessionCookies(t, fx, "ola@example.com")
		fx.fake.ExpireAccessToken(cookies[0].Value)
		fx.fake.RevokeRefreshToken(cookies[1].Value)

		rec := fx.do(t, http.MethodGet, "/dashboard", nil, cookies...)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/signin", rec.Header().Get("Location"))
	})
}

func TestBearerHeaderWinsOverCookie(t *testing.T) {
	fx := newFixture(t)
	cookies, userID := sessionCookies(t, fx, "pam@example.com")
	access, _ := fx.fake.IssueSession(userID)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.AddCookie(&http.Cookie{Name: cookiex.AccessCookie, Value: "stale-cookie-token"})
	req.AddCookie(cookies[1])

	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = fx.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, fx.store.Close())
	rec = fx.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// Package provider is the typed remote-call surface for the external
// identity provider. The provider owns credential validation, TOTP secrets,
// and factor bookkeeping; the gateway only ever sees opaque tokens and typed
// results.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"golang.org/x/time/rate"
)

// API is the provider surface the gateway consumes. Operations that act on
// behalf of a user take the access token explicitly; the caller decides which
// token a call uses, which is what lets the lifecycle manager retry a call
// with a renewed token.
type API interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)

	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
	ListFactors(ctx context.Context, accessToken string) ([]domain.Factor, error)
	EnrollFactor(ctx context.Context, accessToken, factorType, friendlyName string) (*EnrollResult, error)
	CreateChallenge(ctx context.Context, accessToken, factorID string) (*domain.Challenge, error)
	VerifyChallenge(ctx context.Context, accessToken string, params VerifyParams) (*Session, error)
}

// Client talks to a GoTrue-style identity provider over REST.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	// Limiter throttles outbound provider calls when set, so a burst of
	// inbound traffic cannot hammer the upstream.
	Limiter *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a provider client with a 10 second request timeout and a
// modest outbound throttle.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(50), 100),
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var sess Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	body := map[string]string{"email": email, "password": password}

	// The signup response is a session when the provider issued one
	// immediately, or a bare user object while email confirmation is
	// pending. Decode once and tell the shapes apart by access_token.
	var payload struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &payload); err != nil {
		return nil, err
	}

	if payload.AccessToken != "" {
		sess := payload.Session
		return &SignUpResult{User: sess.User, Session: &sess}, nil
	}
	return &SignUpResult{User: domain.User{ID: payload.ID, Email: payload.Email}}, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var sess Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListFactors(ctx context.Context, accessToken string) ([]domain.Factor, error) {
	var payload struct {
		Factors []domain.Factor `json:"factors"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/factors", accessToken, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Factors, nil
}

func (c *Client) EnrollFactor(ctx context.Context, accessToken, factorType, friendlyName string) (*EnrollResult, error) {
	body := map[string]string{
		"factor_type":   factorType,
		"friendly_name": friendlyName,
	}

	var enrolled EnrollResult
	if err := c.do(ctx, http.MethodPost, "/auth/v1/factors", accessToken, body, &enrolled); err != nil {
		return nil, err
	}
	return &enrolled, nil
}

func (c *Client) CreateChallenge(ctx context.Context, accessToken, factorID string) (*domain.Challenge, error) {
	path := "/auth/v1/factors/" + url.PathEscape(factorID) + "/challenge"

	var ch domain.Challenge
	if err := c.do(ctx, http.MethodPost, path, accessToken, nil, &ch); err != nil {
		return nil, err
	}
	if ch.FactorID == "" {
		ch.FactorID = factorID
	}
	return &ch, nil
}

func (c *Client) VerifyChallenge(ctx context.Context, accessToken string, params VerifyParams) (*Session, error) {
	path := "/auth/v1/factors/" + url.PathEscape(params.FactorID) + "/verify"
	body := map[string]string{
		"challenge_id": params.ChallengeID,
		"code":         params.Code,
	}

	var sess Session
	if err := c.do(ctx, http.MethodPost, path, accessToken, body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// do performs one provider request and decodes the response into target.
// Non-2xx responses come back as *Error.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body, target any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("provider throttle: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

package provider

import "github.com/stackguard/authgate/internal/gateway/domain"

// Session is the credential material the provider issues on successful
// sign-in, sign-up, renewal, or challenge verification.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         domain.User `json:"user"`
}

// SignUpResult carries the created user and, when the provider issued one
// immediately, a session. Session is nil when the provider is holding the
// account for email confirmation.
type SignUpResult struct {
	User    domain.User
	Session *Session
}

// TOTPProvisioning is the enrollment payload handed verbatim to the client.
// The gateway never persists or logs it.
type TOTPProvisioning struct {
	QRCode string `json:"qr_code"`
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// EnrollResult describes a newly created (unverified) factor.
type EnrollResult struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	TOTP TOTPProvisioning `json:"totp"`
}

// VerifyParams identifies the single-use challenge being answered.
type VerifyParams struct {
	FactorID    string `json:"factor_id"`
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

package domain

// CredentialPair is the access token plus its optional renewal token as seen
// by one inbound request. The latest pair observed while handling a request
// supersedes every earlier pair for that request's response cookies.
type CredentialPair struct {
	AccessToken  string
	RefreshToken string
}

// HasAccess reports whether an access token is present.
func (p CredentialPair) HasAccess() bool { return p.AccessToken != "" }

// HasRefresh reports whether a renewal token is present.
func (p CredentialPair) HasRefresh() bool { return p.RefreshToken != "" }

// Merge returns the pair updated with tokens from next, keeping the current
// refresh token when the provider did not rotate it.
func (p CredentialPair) Merge(next CredentialPair) CredentialPair {
	out := p
	if next.AccessToken != "" {
		out.AccessToken = next.AccessToken
	}
	if next.RefreshToken != "" {
		out.RefreshToken = next.RefreshToken
	}
	return out
}

// User is the provider's view of an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

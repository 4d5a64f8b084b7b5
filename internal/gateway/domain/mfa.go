package domain

// Factor is an enrolled second-authentication method.
type Factor struct {
	ID       string `json:"id"`
	Type     string `json:"factor_type"`
	Status   string `json:"status"`
	Friendly string `json:"friendly_name,omitempty"`
}

// Challenge is a single-use server-issued prompt tied to a factor. A
// challenge is never reused for a second verification attempt.
type Challenge struct {
	ID       string `json:"id"`
	FactorID string `json:"factor_id"`
}

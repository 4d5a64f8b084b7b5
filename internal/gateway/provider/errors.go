package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a typed failure from the identity provider.
type Error struct {
	// Status is the provider's HTTP status code.
	Status int

	// Code is the provider's machine-readable error code, when present.
	Code string

	// Message is the provider's human-readable description.
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider: %s", e.Message)
}

// IsExpired reports whether this failure means the access token has expired
// and should be renewed. The provider signals this in the message text.
func (e *Error) IsExpired() bool {
	return strings.Contains(strings.ToLower(e.Message), "token is expired")
}

// IsExpired reports whether err (anywhere in its chain) is a provider error
// for an expired access token.
func IsExpired(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.IsExpired()
}

// parseError decodes a non-2xx provider response body into an *Error. The
// provider uses a few body shapes across endpoints; take whichever message
// field is populated.
func parseError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Code             string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}

	e := &Error{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Code = payload.Code
		switch {
		case payload.Msg != "":
			e.Message = payload.Msg
		case payload.Message != "":
			e.Message = payload.Message
		case payload.ErrorDescription != "":
			e.Code = payload.Error
			e.Message = payload.ErrorDescription
		case payload.Error != "":
			e.Message = payload.Error
		}
	}

	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}

	return e
}

package service

import "errors"

var (
	// ErrInvalidCredentials is the uniform sign-in failure. Every provider
	// rejection of a password grant collapses into it so responses never
	// reveal whether the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidCode rejects verification codes that are not six digits
	// before any provider call is made.
	ErrInvalidCode = errors.New("invalid verification code")

	ErrAlreadyEnrolled = errors.New("an MFA factor is already verified for this user")
	ErrNoFactor        = errors.New("no MFA factor enrolled for this user")
)

package domain

import "time"

// EnrollmentStatus records whether a user has completed TOTP enrollment.
// It is read once during sign-in to decide routing and written once after a
// successful verification; the gateway never caches it across requests.
type EnrollmentStatus struct {
	UserID     string
	Enrolled   bool
	EnrolledAt time.Time
}

package store

import (
	"context"
	"errors"

	"github.com/stackguard/authgate/internal/gateway/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. Sub-repositories are exposed as methods to keep concerns
// tidy and testable.
type Store interface {
	Enrollments() Enrollments

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Enrollments is the gateway's local record of which users completed MFA
// enrollment. The identity provider stays authoritative; this cache only
// feeds the post-sign-in routing decision.
type Enrollments interface {
	// GetByUserID returns the enrollment record, or ErrNotFound.
	GetByUserID(ctx context.Context, userID string) (domain.EnrollmentStatus, error)

	// Upsert inserts or replaces the record for st.UserID.
	Upsert(ctx context.Context, st domain.EnrollmentStatus) error

	// Delete removes the record. Missing rows are not an error.
	Delete(ctx context.Context, userID string) error
}

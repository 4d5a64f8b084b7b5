// Package ratex implements a fixed-window attempt governor for sign-in,
// sign-up, and verification endpoints. Unlike a token bucket, a fixed window
// counts attempts in a bucket that fully resets at a known instant, which
// lets responses carry exact remaining/reset values.
package ratex

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Result is the outcome of one governed attempt.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// CounterStore records attempts against keys under fixed windows. The
// increment must be atomic with respect to concurrent callers sharing a key;
// a plain read-then-write is not acceptable.
type CounterStore interface {
	// Incr records one attempt against key and returns the attempt count
	// within the current window. A key that is new, or whose window has
	// elapsed, restarts at attempts=1 with resetAt = now + window.
	Incr(ctx context.Context, key string, window time.Duration) (attempts int, resetAt time.Time, err error)
}

// Budget bounds attempts for one action over one window.
type Budget struct {
	MaxAttempts int
	Window      time.Duration
}

// Per-action budgets. Overridable via environment variables in the pattern
// RATELIMIT_{ACTION}_ATTEMPTS and RATELIMIT_{ACTION}_WINDOW_SEC, mainly so
// end-to-end tests can raise them.
var (
	SignInBudget = Budget{MaxAttempts: 5, Window: time.Minute}
	SignUpBudget = Budget{MaxAttempts: 3, Window: time.Hour}
	VerifyBudget = Budget{MaxAttempts: 10, Window: time.Minute}
)

func init() {
	SignInBudget = ParseBudgetFromEnv("SIGNIN", SignInBudget)
	SignUpBudget = ParseBudgetFromEnv("SIGNUP", SignUpBudget)
	VerifyBudget = ParseBudgetFromEnv("VERIFY", VerifyBudget)
}

// ParseBudgetFromEnv reads a budget override from RATELIMIT_{prefix}_ATTEMPTS
// and RATELIMIT_{prefix}_WINDOW_SEC, falling back to def for missing or
// malformed values.
func ParseBudgetFromEnv(prefix string, def Budget) Budget {
	b := def

	if val := os.Getenv("RATELIMIT_" + prefix + "_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			b.MaxAttempts = n
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
			b.Window = time.Duration(sec) * time.Second
		}
	}

	return b
}

// Governor applies fixed-window budgets against an injected counter store.
// The store is the only cross-request mutable state; swapping it for a shared
// backend (see RedisStore) requires no change at call sites.
type Governor struct {
	store CounterStore
}

func NewGovernor(store CounterStore) *Governor {
	return &Governor{store: store}
}

// Check records one attempt for key and reports whether it is allowed.
// The Nth attempt within a window (N <= max) is allowed with
// remaining = max - N; attempts past the budget are rejected with
// remaining = 0 until the window resets.
func (g *Governor) Check(ctx context.Context, key string, b Budget) (Result, error) {
	attempts, resetAt, err := g.store.Incr(ctx, key, b.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := b.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   attempts <= b.MaxAttempts,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

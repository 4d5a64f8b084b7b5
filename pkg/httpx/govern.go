package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/stackguard/authgate/pkg/ratex"
	"github.com/stackguard/authgate/pkg/slogx"
)

// Govern applies a fixed-window budget keyed by action plus client identity.
// Every governed response carries the X-RateLimit headers; rejected attempts
// get a 429 with remaining 0 until the window resets.
func Govern(g *ratex.Governor, action string, budget ratex.Budget) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := action + ":" + ClientIdentity(r)
			res, err := g.Check(ctx, key, budget)
			if err != nil {
				// fail open on a store error
				log.Error("rate governor unavailable, allowing request", "action", action, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			setRateHeaders(w, budget, res)

			if !res.Allowed {
				log.Warn("rate limit exceeded", "action", action, "key", key, "reset_at", res.ResetAt)
				WriteError(w, http.StatusTooManyRequests, "Too many attempts. Try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateHeaders(w http.ResponseWriter, budget ratex.Budget, res ratex.Result) {
	resetSec := int(time.Until(res.ResetAt).Round(time.Second).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget.MaxAttempts))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

package httpx

import (
	"net/http"
	"strings"
)

// ClientIdentity derives a best-effort network identity for rate governance
// from proxy headers. Clients that present neither header all collapse onto
// the single "unknown" bucket; that shared bucket is a documented limitation
// of header-derived identity, not something to paper over with RemoteAddr,
// which behind the expected proxy deployment would be the proxy itself.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return "unknown"
}

package slogx_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackguard/authgate/pkg/idx"
	"github.com/stackguard/authgate/pkg/slogx"
)

func loggedRequestID(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	reqID, _ := entry["req_id"].(string)
	require.NotEmpty(t, reqID)
	return reqID
}

func TestHTTPMiddleware_RequestID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("mints an id when the client sends none", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		rec := httptest.NewRecorder()
		slogx.HTTPMiddleware(logger)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

		reqID := loggedRequestID(t, &buf)
		_, err := idx.Parse(reqID)
		require.NoError(t, err)
	})

	t.Run("honours a well-formed client id", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		supplied := idx.New().String()
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.Header.Set("X-Request-ID", supplied)

		slogx.HTTPMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, supplied, loggedRequestID(t, &buf))
	})

	t.Run("replaces a malformed client id", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.Header.Set("X-Request-ID", "../../etc/passwd\n")

		slogx.HTTPMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

		reqID := loggedRequestID(t, &buf)
		require.NotEqual(t, "../../etc/passwd\n", reqID)
		_, err := idx.Parse(reqID)
		require.NoError(t, err)
	})
}

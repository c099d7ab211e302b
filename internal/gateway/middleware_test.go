// ABOUTME: Tests for panic recovery and request logging middleware
// ABOUTME: Asserts log fields and that panics become 503 responses

package gateway

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggingServer(buf *bytes.Buffer) *Server {
	return &Server{logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	s := loggingServer(&buf)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rr := httptest.NewRecorder()
	s.logRequests(inner).ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, http.MethodGet, entry["method"])
	assert.Equal(t, "/missing", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Contains(t, entry, "duration_ms")
}

func TestLogRequests_DefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	s := loggingServer(&buf)

	// A handler that never calls WriteHeader still logs 200.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hi"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	s.logRequests(inner).ServeHTTP(rr, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
}

func TestRecoverPanics(t *testing.T) {
	var buf bytes.Buffer
	s := loggingServer(&buf)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rr := httptest.NewRecorder()
	s.recoverPanics(inner).ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Type)
	assert.Equal(t, "service unavailable", resp.Message)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic in handler", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "stack")
}

func TestRecoverPanics_PassThrough(t *testing.T) {
	var buf bytes.Buffer
	s := loggingServer(&buf)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	s.recoverPanics(inner).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Zero(t, buf.Len(), "no log output expected for clean requests")
}

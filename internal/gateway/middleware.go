// ABOUTME: HTTP middleware for the gateway: panic recovery and request logging
// ABOUTME: Applied outermost-in around the routed handlers

package gateway

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/CohesiumAI/openclaw-sub000/internal/webauth"
)

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests emits one line per request with method, path, status, and
// latency. 4xx responses log at warn, 5xx at error.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoverPanics converts handler panics into a 503 and keeps the
// server alive.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				stack := make([]byte, 4096)
				n := runtime.Stack(stack, false)
				s.logger.Error("panic in handler",
					"error", v,
					"path", r.URL.Path,
					"stack", string(stack[:n]),
				)
				webauth.WriteError(w, http.StatusServiceUnavailable, webauth.ErrTypeUnavailable, "service unavailable")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ABOUTME: CSRF guard middleware comparing the request header to the session token
// ABOUTME: Safe methods, the /auth namespace, and sessionless requests pass through

package webauth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/CohesiumAI/openclaw-sub000/internal/session"
)

// CSRFProtect guards state-changing requests with the session-bound
// CSRF token. The rules, in order:
//
//   - GET/HEAD/OPTIONS always pass (safe methods).
//   - Anything under /auth/ passes: login is pre-session, logout is
//     idempotent, and the credential endpoints check the token
//     themselves.
//   - Requests without a live session pass; the handler behind the
//     guard rejects them for lack of authentication anyway.
//   - Otherwise the X-CSRF-Token header must exactly match the
//     session's token, or the guard responds 403 without invoking the
//     handler.
//
// The 403 body never says whether the header was missing, malformed,
// or merely wrong.
func (h *Handler) CSRFProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/auth/") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := h.sessions.Get(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if !csrfMatches(sess, r) {
			h.logger.Warn("csrf check failed", "path", r.URL.Path, "username", sess.Username)
			WriteError(w, http.StatusForbidden, ErrTypeCSRF, "invalid request")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfMatches compares the header token against the session's token in
// constant time. Case-sensitive exact match.
func csrfMatches(sess *session.Session, r *http.Request) bool {
	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(sess.CSRFToken)) == 1
}

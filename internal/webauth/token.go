// ABOUTME: Handoff token endpoint exchanging a cookie session for a bearer token
// ABOUTME: Lets the browser open WS/agent connections without cookie plumbing

package webauth

import (
	"net/http"
	"time"

	"github.com/CohesiumAI/openclaw-sub000/internal/auth"
	"github.com/CohesiumAI/openclaw-sub000/internal/session"
)

type tokenResponse struct {
	OK        bool      `json:"ok"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleToken mints a short-lived signed token carrying the session's
// identity. Transports that can't read cookies verify the token
// instead of the session.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	token, expiresAt, err := h.tokens.Mint(&auth.AuthContext{
		Username: sess.Username,
		Role:     sess.Role,
		Scopes:   sess.Scopes,
	})
	if err != nil {
		h.logger.Error("failed to mint handoff token", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{OK: true, Token: token, ExpiresAt: expiresAt})
}

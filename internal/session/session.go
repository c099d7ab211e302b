// ABOUTME: AuthSession record bound to a browser session cookie
// ABOUTME: Session IDs and CSRF tokens are hex-encoded random bytes

package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session is the server-side record for one authenticated browser.
// The ID is the opaque bearer credential carried in the session cookie;
// CSRFToken is bound 1:1 to the session and must be echoed on mutating
// requests. ExpiresAt slides forward on refresh and only ever
// increases.
type Session struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Role           string    `json:"role"`
	Scopes         []string  `json:"scopes"`
	CSRFToken      string    `json:"csrfToken"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Expired reports whether the session is logically dead at now, even
// if still present in the map.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// clone returns a copy safe to hand outside the manager's lock.
func (s *Session) clone() *Session {
	cp := *s
	cp.Scopes = append([]string(nil), s.Scopes...)
	return &cp
}

// generateToken returns a hex-encoded string of n random bytes, used
// for session IDs and CSRF tokens.
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

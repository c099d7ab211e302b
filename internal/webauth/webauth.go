// ABOUTME: HTTP authentication surface: login, logout, session introspection, refresh
// ABOUTME: Owns the session cookie contract and the login rate-limit flow

package webauth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/CohesiumAI/openclaw-sub000/internal/auth"
	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/ratelimit"
	"github.com/CohesiumAI/openclaw-sub000/internal/session"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
)

// Username validation regex: alphanumeric + underscores, 3-32 characters
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "openclaw_session"

	// CSRFHeaderName carries the session-bound CSRF token on mutating requests
	CSRFHeaderName = "X-CSRF-Token"

	// backupCodeCount is how many backup codes a TOTP enrollment issues
	backupCodeCount = 10
)

// Config holds auth surface configuration
type Config struct {
	// TrustedProxies are peers whose forwarding headers are believed
	// for client IP extraction and the cookie Secure attribute.
	TrustedProxies []netip.Prefix

	// TotpIssuer names this gateway in authenticator apps.
	TotpIssuer string
}

// Handler serves the /auth routes and owns the CSRF guard.
type Handler struct {
	directory store.UserDirectory
	sessions  *session.Manager
	limiter   *ratelimit.Limiter
	tokens    *auth.TokenManager
	cfg       Config
	logger    *slog.Logger
}

// NewHandler creates the auth surface over the given collaborators.
func NewHandler(directory store.UserDirectory, sessions *session.Manager, limiter *ratelimit.Limiter, tokens *auth.TokenManager, cfg Config) *Handler {
	return &Handler{
		directory: directory,
		sessions:  sessions,
		limiter:   limiter,
		tokens:    tokens,
		cfg:       cfg,
		logger:    slog.Default().With("component", "webauth"),
	}
}

// RegisterRoutes registers all auth routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Core session lifecycle
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)

	// Credential management (session + CSRF; the blanket /auth/*
	// CSRF exemption covers pre-session endpoints, so these check
	// the token themselves)
	mux.HandleFunc("POST /auth/totp/setup", h.requireSessionCSRF(h.handleTotpSetup))
	mux.HandleFunc("POST /auth/totp/enable", h.requireSessionCSRF(h.handleTotpEnable))
	mux.HandleFunc("POST /auth/totp/disable", h.requireSessionCSRF(h.handleTotpDisable))
	mux.HandleFunc("POST /auth/recovery/reset", h.handleRecoveryReset)
	mux.HandleFunc("POST /auth/token", h.requireSessionCSRF(h.handleToken))

	h.logger.Info("auth routes registered")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Otp      string `json:"otp"`
}

type userPayload struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scopes"`
}

type sessionResponse struct {
	OK        bool        `json:"ok"`
	User      userPayload `json:"user"`
	CSRFToken string      `json:"csrfToken"`
}

// handleLogin authenticates a username/password (+ optional TOTP or
// backup code) and establishes a session.
//
// The rate limit check runs before any credential work, and the
// password is verified even for unknown usernames so response timing
// does not reveal which usernames exist.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "username and password are required")
		return
	}

	ip := clientIP(r, h.cfg.TrustedProxies)
	if h.limiter.IsLimited(ip) {
		h.writeRateLimited(w, ip)
		return
	}
	h.limiter.RecordAttempt(ip)

	user, err := h.directory.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Burn a real verification so unknown usernames cost the
			// same as wrong passwords.
			_ = credential.VerifyPassword(req.Password, credential.DummyPasswordHash)
			WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid username or password")
			return
		}
		h.logger.Error("user lookup failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	if !credential.VerifyPassword(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid username or password")
		return
	}

	if user.TotpEnabled {
		if !h.verifySecondFactor(w, r, user, strings.TrimSpace(req.Otp)) {
			return
		}
	}

	h.limiter.Reset(ip)

	sess, err := h.sessions.Create(user.Username, user.Role)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	h.logger.Info("login successful", "username", user.Username, "ip", ip)
	h.setSessionCookie(w, r, sess)
	writeJSON(w, http.StatusOK, sessionResponse{
		OK:        true,
		User:      userPayload{Username: sess.Username, Role: sess.Role, Scopes: sess.Scopes},
		CSRFToken: sess.CSRFToken,
	})
}

// verifySecondFactor checks the otp field as a TOTP code first, then as
// a backup code. Writes the failure response itself and reports whether
// login may proceed.
func (h *Handler) verifySecondFactor(w http.ResponseWriter, r *http.Request, user *store.GatewayUser, otp string) bool {
	if otp == "" {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "totp_required")
		return false
	}

	if matched := credential.VerifyTotp(user.TotpSecret, otp); matched != "" {
		// A code is single-use within its validity window.
		if matched == user.LastUsedTotpCode {
			h.logger.Warn("rejected replayed totp code", "username", user.Username)
			WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid totp code")
			return false
		}
		settings := store.TotpSettings{
			Secret:           user.TotpSecret,
			Enabled:          true,
			BackupCodeHashes: user.BackupCodeHashes,
			LastUsedCode:     matched,
		}
		if err := h.directory.UpdateUserTotp(r.Context(), user.Username, settings); err != nil {
			h.logger.Error("failed to record used totp code", "error", err)
			WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
			return false
		}
		return true
	}

	idx := credential.MatchBackupCode(user.BackupCodeHashes, otp)
	if idx < 0 {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid totp code")
		return false
	}

	remaining := make([]string, 0, len(user.BackupCodeHashes)-1)
	remaining = append(remaining, user.BackupCodeHashes[:idx]...)
	remaining = append(remaining, user.BackupCodeHashes[idx+1:]...)
	settings := store.TotpSettings{
		Secret:           user.TotpSecret,
		Enabled:          true,
		BackupCodeHashes: remaining,
		LastUsedCode:     user.LastUsedTotpCode,
	}
	if err := h.directory.UpdateUserTotp(r.Context(), user.Username, settings); err != nil {
		h.logger.Error("failed to consume backup code", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return false
	}
	h.logger.Info("backup code consumed", "username", user.Username, "remaining", len(remaining))
	return true
}

// handleLogout tears down the session named by the cookie. Succeeds no
// matter what state the session is in.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		h.sessions.Delete(cookie.Value)
	}
	h.clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleMe reports the identity bound to the session cookie.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		OK:        true,
		User:      userPayload{Username: sess.Username, Role: sess.Role, Scopes: sess.Scopes},
		CSRFToken: sess.CSRFToken,
	})
}

// handleRefresh rotates the session id and extends its expiry.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "authentication required")
		return
	}

	sess, err := h.sessions.Refresh(cookie.Value)
	if err != nil {
		h.clearSessionCookie(w, r)
		WriteError(w, http.StatusUnauthorized, ErrTypeSessionExpired, "session expired")
		return
	}

	h.setSessionCookie(w, r, sess)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// authenticate resolves the session cookie, writing the appropriate 401
// on failure. A cookie naming a dead or unknown session means the
// client's session lapsed, so that case reports session_expired and
// clears the cookie; a missing cookie is plain unauthorized.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "authentication required")
		return nil, false
	}

	sess, err := h.sessions.Get(cookie.Value)
	if err != nil {
		h.clearSessionCookie(w, r)
		WriteError(w, http.StatusUnauthorized, ErrTypeSessionExpired, "session expired")
		return nil, false
	}
	return sess, true
}

// requireSessionCSRF wraps credential-management handlers: they need a
// live session and, because they sit under the /auth/* CSRF exemption,
// their own token check.
func (h *Handler) requireSessionCSRF(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if !csrfMatches(sess, r) {
			WriteError(w, http.StatusForbidden, ErrTypeCSRF, "invalid request")
			return
		}
		next(w, r, sess)
	}
}

func (h *Handler) writeRateLimited(w http.ResponseWriter, ip string) {
	retryAfter := h.limiter.RetryAfter(ip)
	if secs := int(retryAfter.Seconds()); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	h.logger.Warn("login rate limited", "ip", ip)
	WriteError(w, http.StatusTooManyRequests, ErrTypeRateLimited, "too many login attempts, try again later")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   requestIsTLS(r, h.cfg.TrustedProxies),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   requestIsTLS(r, h.cfg.TrustedProxies),
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateUsername checks if a username meets account requirements.
// Returns an error message or empty string if valid.
func ValidateUsername(username string) string {
	if len(username) < 3 {
		return "username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}

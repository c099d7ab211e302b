// ABOUTME: TOTP enrollment endpoints: setup, enable, disable
// ABOUTME: Two-step enrollment proves the authenticator works before enforcement

package webauth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/session"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
)

type totpSetupResponse struct {
	OK          bool     `json:"ok"`
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backupCodes"`
}

// handleTotpSetup generates a pending TOTP secret, a provisioning URI
// for authenticator apps, and a fresh batch of backup codes. Nothing is
// enforced until the user proves a working code via /auth/totp/enable.
func (h *Handler) handleTotpSetup(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	user, ok := h.loadUser(w, r, sess.Username)
	if !ok {
		return
	}
	if user.TotpEnabled {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "totp is already enabled")
		return
	}

	secret, err := credential.GenerateTotpSecret()
	if err != nil {
		h.logger.Error("failed to generate totp secret", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	uri, err := credential.BuildTotpURI(secret, h.cfg.TotpIssuer, user.Username)
	if err != nil {
		h.logger.Error("failed to build totp uri", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	codes, err := credential.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		h.logger.Error("failed to generate backup codes", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	settings := store.TotpSettings{
		Secret:           secret,
		Enabled:          false,
		BackupCodeHashes: credential.HashBackupCodes(codes),
	}
	if err := h.directory.UpdateUserTotp(r.Context(), user.Username, settings); err != nil {
		h.logger.Error("failed to store pending totp settings", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	h.logger.Info("totp setup started", "username", user.Username)
	writeJSON(w, http.StatusOK, totpSetupResponse{
		OK:          true,
		Secret:      secret,
		URI:         uri,
		BackupCodes: codes,
	})
}

type totpEnableRequest struct {
	Code string `json:"code"`
}

// handleTotpEnable confirms a pending enrollment by verifying one code
// from the user's authenticator, then turns enforcement on.
func (h *Handler) handleTotpEnable(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req totpEnableRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "code is required")
		return
	}

	user, ok := h.loadUser(w, r, sess.Username)
	if !ok {
		return
	}
	if user.TotpEnabled {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "totp is already enabled")
		return
	}
	if user.TotpSecret == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "totp setup has not been started")
		return
	}

	matched := credential.VerifyTotp(user.TotpSecret, strings.TrimSpace(req.Code))
	if matched == "" {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid totp code")
		return
	}

	settings := store.TotpSettings{
		Secret:           user.TotpSecret,
		Enabled:          true,
		BackupCodeHashes: user.BackupCodeHashes,
		LastUsedCode:     matched,
	}
	if err := h.directory.UpdateUserTotp(r.Context(), user.Username, settings); err != nil {
		h.logger.Error("failed to enable totp", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	h.logger.Info("totp enabled", "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"backupCodesLeft": len(user.BackupCodeHashes),
	})
}

type totpDisableRequest struct {
	Password string `json:"password"`
}

// handleTotpDisable turns TOTP enforcement off after re-proving the
// password; a stolen session alone must not be able to weaken login.
func (h *Handler) handleTotpDisable(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req totpDisableRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "password is required")
		return
	}

	user, ok := h.loadUser(w, r, sess.Username)
	if !ok {
		return
	}

	if !credential.VerifyPassword(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid username or password")
		return
	}

	if err := h.directory.UpdateUserTotp(r.Context(), user.Username, store.TotpSettings{}); err != nil {
		h.logger.Error("failed to disable totp", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	h.logger.Info("totp disabled", "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// loadUser fetches the session's user record, writing the failure
// response itself. A session naming a vanished user reads as expired.
func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request, username string) (*store.GatewayUser, bool) {
	user, err := h.directory.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.clearSessionCookie(w, r)
			WriteError(w, http.StatusUnauthorized, ErrTypeSessionExpired, "session expired")
			return nil, false
		}
		h.logger.Error("failed to load user for session", "username", username, "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return nil, false
	}
	return user, true
}

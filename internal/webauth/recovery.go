// ABOUTME: Recovery code reset endpoint for locked-out users
// ABOUTME: Consumes the single-use recovery code to set a new password

package webauth

import (
	"errors"
	"net/http"

	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
)

const minPasswordLength = 8

type recoveryResetRequest struct {
	Username     string `json:"username"`
	RecoveryCode string `json:"recoveryCode"`
	NewPassword  string `json:"newPassword"`
}

type recoveryResetResponse struct {
	OK           bool   `json:"ok"`
	RecoveryCode string `json:"recoveryCode"`
}

// handleRecoveryReset lets a locked-out user set a new password by
// presenting their recovery code. The code is single-use: a successful
// reset burns it and issues a replacement, returned exactly once.
//
// This is a pre-session credential check, so it shares the login
// endpoint's rate limiting and generic failure message.
func (h *Handler) handleRecoveryReset(w http.ResponseWriter, r *http.Request) {
	var req recoveryResetRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.RecoveryCode == "" || req.NewPassword == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "username, recoveryCode, and newPassword are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "password must be at least 8 characters")
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
			WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid recovery code")
			return
		}
		h.logger.Error("user lookup failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	if !credential.VerifyRecoveryCode(user.RecoveryCodeHash, req.RecoveryCode) {
		h.logger.Warn("recovery reset rejected", "username", req.Username, "ip", ip)
		WriteError(w, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid recovery code")
		return
	}

	newHash, err := credential.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("failed to hash new password", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}
	if err := h.directory.UpdateUserPassword(r.Context(), user.Username, newHash); err != nil {
		h.logger.Error("failed to update password", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	// Burn the used code and issue a replacement.
	nextCode, err := credential.GenerateRecoveryCode()
	if err != nil {
		h.logger.Error("failed to generate recovery code", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}
	if err := h.directory.UpdateUserRecoveryCode(r.Context(), user.Username, credential.HashRecoveryCode(nextCode)); err != nil {
		h.logger.Error("failed to rotate recovery code", "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "service unavailable")
		return
	}

	h.limiter.Reset(ip)
	h.logger.Info("password reset via recovery code", "username", user.Username, "ip", ip)
	writeJSON(w, http.StatusOK, recoveryResetResponse{OK: true, RecoveryCode: nextCode})
}

// Package webauth serves the gateway's browser authentication surface.
//
// # Endpoints
//
// Session lifecycle:
//
//	POST /auth/login     username/password (+ otp) -> session cookie
//	POST /auth/logout    idempotent teardown
//	GET  /auth/me        identity + csrfToken for the current session
//	POST /auth/refresh   rotate session id, extend expiry
//
// Credential management (session + CSRF header required):
//
//	POST /auth/totp/setup      pending secret, provisioning URI, backup codes
//	POST /auth/totp/enable     confirm one code, turn enforcement on
//	POST /auth/totp/disable    re-verify password, clear TOTP
//	POST /auth/token           mint a short-lived bearer handoff token
//
// Account recovery (no session required):
//
//	POST /auth/recovery/reset  password reset via recovery code
//
// # Security posture
//
// Every failure is a {message, type} JSON body; the type field is the
// contract (invalid_request, unauthorized, session_expired,
// rate_limited, csrf_error, unavailable). Login failures use one
// generic message whether the username exists or not, and the password
// verifier runs either way so timing doesn't separate the two cases.
// Login attempts are rate limited per client IP before any credential
// work happens.
//
// The session cookie is HttpOnly and SameSite=Lax; Secure is set when
// the request arrived over TLS directly or via a trusted
// TLS-terminating proxy. Mutating requests outside /auth/* must echo
// the session's CSRF token in the X-CSRF-Token header, enforced by the
// CSRFProtect middleware.
package webauth

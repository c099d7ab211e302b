// Package auth defines the gateway's authenticated identity model.
//
// An AuthContext names who a request is acting as: username, the single
// role string from the user directory, and the capability scopes that
// role grants. The webauth package resolves cookies into AuthContexts;
// other handlers read them via FromContext instead of trusting any
// client-supplied identity.
//
// # Handoff Tokens
//
// Browser clients authenticate with a session cookie, but the WebSocket
// and agent transports do not speak cookies. TokenManager mints
// short-lived HS256 tokens from an authenticated session:
//
//	token, expiresAt, err := manager.Mint(authCtx)
//	authCtx, err := manager.Verify(token)
//
// Tokens carry sub, role, scopes, jti, iat, and exp claims.
package auth

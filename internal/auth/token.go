// ABOUTME: Short-lived HS256 handoff tokens for non-cookie transports
// ABOUTME: Minted from an authenticated session, verified by the WS/agent layer

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultHandoffTTL bounds how long a minted token can be redeemed.
// Handoff tokens exist to open one WebSocket, not to act as durable
// credentials.
const DefaultHandoffTTL = 5 * time.Minute

// TokenVerifier is the interface the transport layer consumes to turn
// a bearer token back into an identity.
type TokenVerifier interface {
	Verify(tokenString string) (*AuthContext, error)
}

// TokenManager mints and verifies HS256-signed handoff tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a manager signing with the given secret. A
// non-positive ttl falls back to DefaultHandoffTTL.
func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	return &TokenManager{secret: secret, ttl: ttl}
}

var _ TokenVerifier = (*TokenManager)(nil)

// Mint signs a token carrying the identity. Returns the token and its
// expiry so callers can report it to the client.
func (m *TokenManager) Mint(auth *AuthContext) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":    auth.Username,
		"role":   auth.Role,
		"scopes": auth.Scopes,
		"jti":    uuid.NewString(),
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates the token signature and expiry and reconstructs the
// identity from its claims.
func (m *TokenManager) Verify(tokenString string) (*AuthContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	scopes := scopesFromClaim(claims["scopes"])
	if scopes == nil {
		scopes = ScopesForRole(role)
	}

	return &AuthContext{Username: sub, Role: role, Scopes: scopes}, nil
}

// scopesFromClaim converts the decoded JSON scopes claim back to a
// string slice. jwt.MapClaims decodes arrays as []interface{}.
func scopesFromClaim(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	scopes := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

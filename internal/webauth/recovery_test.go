// ABOUTME: Tests for the recovery-code password reset endpoint
// ABOUTME: Covers code rotation, generic failures, and shared rate limiting

package webauth

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/ratelimit"
)

// issueRecoveryCode assigns a fresh recovery code to a user directly
// through the directory and returns the plaintext code.
func (env *testEnv) issueRecoveryCode(t *testing.T, username string) string {
	t.Helper()

	code, err := credential.GenerateRecoveryCode()
	require.NoError(t, err)
	hash := credential.HashRecoveryCode(code)
	require.NoError(t, env.directory.UpdateUserRecoveryCode(context.Background(), username, hash))
	return code
}

func resetRequest(username, code, newPassword string) map[string]string {
	return map[string]string{
		"username":     username,
		"recoveryCode": code,
		"newPassword":  newPassword,
	}
}

func TestRecoveryReset(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	code := env.issueRecoveryCode(t, "alice")

	rr := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", code, "brand-new-password"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp recoveryResetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.NotEmpty(t, resp.RecoveryCode)
	assert.NotEqual(t, code, resp.RecoveryCode)

	// Old password dead, new one live.
	old := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, old.Code)
	env.login(t, "alice", "brand-new-password")

	// The used code is burned; the replacement works.
	rr = env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", code, "another-password"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", resp.RecoveryCode, "another-password"))
	require.Equal(t, http.StatusOK, rr.Code)
	env.login(t, "alice", "another-password")
}

func TestRecoveryReset_GenericFailures(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	env.issueRecoveryCode(t, "alice")

	wrongCode := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", "0000-0000-0000", "fresh-password"))
	require.Equal(t, http.StatusUnauthorized, wrongCode.Code)
	wrongMsg, wrongType := errorBody(t, wrongCode)
	assert.Equal(t, ErrTypeUnauthorized, wrongType)

	unknownUser := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("ghost", "0000-0000-0000", "fresh-password"))
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	unknownMsg, _ := errorBody(t, unknownUser)

	// Wrong code and unknown user are indistinguishable.
	assert.Equal(t, wrongMsg, unknownMsg)

	// The old password still works after failed resets.
	env.login(t, "alice", testPassword)
}

func TestRecoveryReset_NoCodeIssued(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)

	rr := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", "0000-0000-0000", "fresh-password"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	msg, _ := errorBody(t, rr)
	assert.Equal(t, "invalid recovery code", msg)
}

func TestRecoveryReset_Validation(t *testing.T) {
	env := setupWebauth(t)

	cases := map[string]map[string]string{
		"missing username": resetRequest("", "0000-0000-0000", "fresh-password"),
		"missing code":     resetRequest("alice", "", "fresh-password"),
		"missing password": resetRequest("alice", "0000-0000-0000", ""),
	}
	for name, body := range cases {
		rr := env.do(t, http.MethodPost, "/auth/recovery/reset", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
		_, errType := errorBody(t, rr)
		assert.Equal(t, ErrTypeInvalidRequest, errType, name)
	}

	short := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", "0000-0000-0000", "short"))
	require.Equal(t, http.StatusBadRequest, short.Code)
	msg, _ := errorBody(t, short)
	assert.Equal(t, "password must be at least 8 characters", msg)
}

func TestRecoveryReset_RateLimited(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	code := env.issueRecoveryCode(t, "alice")

	for i := 0; i < ratelimit.LoginMaxAttempts; i++ {
		rr := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", "0000-0000-0000", "fresh-password"))
		require.Equal(t, http.StatusUnauthorized, rr.Code, "attempt %d", i+1)
	}

	// Even the correct code is refused once the limit trips.
	rr := env.do(t, http.MethodPost, "/auth/recovery/reset", resetRequest("alice", code, "fresh-password"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	_, errType := errorBody(t, rr)
	assert.Equal(t, ErrTypeRateLimited, errType)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

// ABOUTME: Tests for TOTP second-factor login and the enrollment endpoints
// ABOUTME: Covers code replay rejection, backup code consumption, and disable

package webauth

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
)

// enableTotpDirect enrolls TOTP for a user straight through the
// directory, returning the shared secret.
func (env *testEnv) enableTotpDirect(t *testing.T, username string, backupCodes []string) string {
	t.Helper()

	secret, err := credential.GenerateTotpSecret()
	require.NoError(t, err)

	settings := store.TotpSettings{
		Secret:           secret,
		Enabled:          true,
		BackupCodeHashes: credential.HashBackupCodes(backupCodes),
	}
	require.NoError(t, env.directory.UpdateUserTotp(context.Background(), username, settings))
	return secret
}

// differentCode returns a six-digit code guaranteed not to equal valid.
func differentCode(valid string) string {
	if valid == "123456" {
		return "654321"
	}
	return "123456"
}

func TestLogin_TotpRequired(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	env.enableTotpDirect(t, "alice", nil)

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	msg, errType := errorBody(t, rr)
	assert.Equal(t, ErrTypeUnauthorized, errType)
	assert.Equal(t, "totp_required", msg)
}

func TestLogin_TotpCode(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	secret := env.enableTotpDirect(t, "alice", nil)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      code,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// The accepted code is recorded so it cannot be replayed.
	user, err := env.directory.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, code, user.LastUsedTotpCode)

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      code,
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	msg, _ := errorBody(t, rr)
	assert.Equal(t, "invalid totp code", msg)
}

func TestLogin_TotpWrongCode(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	secret := env.enableTotpDirect(t, "alice", nil)

	valid, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      differentCode(valid),
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	msg, errType := errorBody(t, rr)
	assert.Equal(t, ErrTypeUnauthorized, errType)
	assert.Equal(t, "invalid totp code", msg)
	assert.Zero(t, env.sessions.Count())
}

func TestLogin_BackupCode(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)

	codes, err := credential.GenerateBackupCodes(3)
	require.NoError(t, err)
	env.enableTotpDirect(t, "alice", codes)

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      codes[1],
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// The code was consumed.
	user, err := env.directory.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, user.BackupCodeHashes, 2)

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      codes[1],
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// The remaining codes still work.
	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": testPassword,
		"otp":      codes[0],
	})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestTotpEndpoints_Lifecycle(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	cookie, csrfToken := env.login(t, "alice", testPassword)

	asAlice := func(r *http.Request) {
		r.AddCookie(cookie)
		r.Header.Set(CSRFHeaderName, csrfToken)
	}

	// The credential endpoints demand the CSRF header themselves.
	rr := env.do(t, http.MethodPost, "/auth/totp/setup", nil, withCookie(cookie))
	require.Equal(t, http.StatusForbidden, rr.Code)
	_, errType := errorBody(t, rr)
	assert.Equal(t, ErrTypeCSRF, errType)

	rr = env.do(t, http.MethodPost, "/auth/totp/setup", nil, asAlice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var setup totpSetupResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &setup))
	assert.True(t, setup.OK)
	require.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URI, "otpauth://totp/")
	require.Len(t, setup.BackupCodes, backupCodeCount)
	for _, code := range setup.BackupCodes {
		assert.Regexp(t, "^[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}$", code)
	}

	// Enrollment stays pending until a code proves the authenticator.
	user, err := env.directory.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, user.TotpEnabled)
	assert.Equal(t, setup.Secret, user.TotpSecret)

	valid, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	rr = env.do(t, http.MethodPost, "/auth/totp/enable", map[string]string{
		"code": differentCode(valid),
	}, asAlice)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/auth/totp/enable", map[string]string{
		"code": valid,
	}, asAlice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(backupCodeCount), body["backupCodesLeft"])

	user, err = env.directory.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, user.TotpEnabled)
	assert.Equal(t, valid, user.LastUsedTotpCode)

	// Re-running setup while enabled is rejected.
	rr = env.do(t, http.MethodPost, "/auth/totp/setup", nil, asAlice)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Disable needs the account password, not a code.
	rr = env.do(t, http.MethodPost, "/auth/totp/disable", map[string]string{
		"password": "wrong",
	}, asAlice)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/auth/totp/disable", map[string]string{
		"password": testPassword,
	}, asAlice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user, err = env.directory.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, user.TotpEnabled)
	assert.Empty(t, user.TotpSecret)
	assert.Empty(t, user.BackupCodeHashes)
	assert.Empty(t, user.LastUsedTotpCode)
}

func TestTotpEnable_WithoutSetup(t *testing.T) {
	env := setupWebauth(t)
	env.createUser(t, "alice", testPassword)
	cookie, csrfToken := env.login(t, "alice", testPassword)

	rr := env.do(t, http.MethodPost, "/auth/totp/enable", map[string]string{
		"code": "123456",
	}, withCookie(cookie), withHeader(CSRFHeaderName, csrfToken))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	msg, _ := errorBody(t, rr)
	assert.Equal(t, "totp setup has not been started", msg)
}

func TestTotpSetup_RequiresSession(t *testing.T) {
	env := setupWebauth(t)

	rr := env.do(t, http.MethodPost, "/auth/totp/setup", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	_, errType := errorBody(t, rr)
	assert.Equal(t, ErrTypeUnauthorized, errType)
}

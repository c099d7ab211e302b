// ABOUTME: Tests for backup and recovery code generation, hashing, and matching
// ABOUTME: Verifies single-format codes, forgiving normalization, and constant-time scans

package credential

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeFormat = regexp.MustCompile(`^[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}$`)

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, codeFormat, code)
		assert.False(t, seen[code], "duplicate code %q", code)
		seen[code] = true
	}
}

func TestHashBackupCodes_NoPlaintext(t *testing.T) {
	codes, err := GenerateBackupCodes(4)
	require.NoError(t, err)

	hashes := HashBackupCodes(codes)
	require.Len(t, hashes, 4)
	for i, h := range hashes {
		assert.Len(t, h, 64, "sha-256 hex")
		assert.NotContains(t, h, codes[i])
	}
}

func TestMatchBackupCode(t *testing.T) {
	codes, err := GenerateBackupCodes(5)
	require.NoError(t, err)
	hashes := HashBackupCodes(codes)

	for i, code := range codes {
		assert.Equal(t, i, MatchBackupCode(hashes, code))
	}

	assert.Equal(t, -1, MatchBackupCode(hashes, "0000-0000-0000"))
	assert.Equal(t, -1, MatchBackupCode(nil, codes[0]))
}

func TestMatchBackupCode_Normalization(t *testing.T) {
	codes, err := GenerateBackupCodes(1)
	require.NoError(t, err)
	hashes := HashBackupCodes(codes)

	// Users re-enter codes without dashes or in uppercase.
	bare := strings.ToUpper(strings.ReplaceAll(codes[0], "-", ""))
	assert.Equal(t, 0, MatchBackupCode(hashes, bare))
	assert.Equal(t, 0, MatchBackupCode(hashes, "  "+codes[0]+"  "))
}

func TestRecoveryCode_RoundTrip(t *testing.T) {
	code, err := GenerateRecoveryCode()
	require.NoError(t, err)
	assert.Regexp(t, codeFormat, code)

	hash := HashRecoveryCode(code)
	assert.True(t, VerifyRecoveryCode(hash, code))
	assert.True(t, VerifyRecoveryCode(hash, strings.ToUpper(code)))
	assert.False(t, VerifyRecoveryCode(hash, "1111-2222-3333"))
	assert.False(t, VerifyRecoveryCode("", code))
}

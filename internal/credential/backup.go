// ABOUTME: Backup and recovery code generation, hashing, and constant-time matching
// ABOUTME: Codes are stored as SHA-256 hashes only, never in plaintext

package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// backupCodeBytes is the entropy per code: 6 bytes = 12 hex chars,
// formatted as xxxx-xxxx-xxxx.
const backupCodeBytes = 6

// GenerateBackupCodes creates n single-use codes to display to the user
// exactly once. Persist only the hashes from HashBackupCodes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// HashBackupCodes returns the hex-encoded SHA-256 hash of each code.
// The codes are high-entropy random values, so a fast hash is
// sufficient; no key derivation is needed.
func HashBackupCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashCode(code)
	}
	return hashes
}

// MatchBackupCode scans the stored hashes for one matching the
// candidate code, comparing in constant time. It returns the index of
// the match, or -1. The caller removes the matched hash so each code
// is single-use.
func MatchBackupCode(hashes []string, code string) int {
	candidate := []byte(hashCode(code))
	match := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare(candidate, []byte(h)) == 1 && match == -1 {
			match = i
		}
	}
	return match
}

// GenerateRecoveryCode creates the single account-recovery code issued
// at bootstrap and after each recovery reset.
func GenerateRecoveryCode() (string, error) {
	return generateCode()
}

// HashRecoveryCode returns the hex-encoded SHA-256 hash of a recovery
// code, normalized the same way verification normalizes its input.
func HashRecoveryCode(code string) string {
	return hashCode(code)
}

// VerifyRecoveryCode reports whether code matches the stored hash,
// comparing in constant time.
func VerifyRecoveryCode(hash, code string) bool {
	if hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(hash)) == 1
}

func generateCode() (string, error) {
	buf := make([]byte, backupCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	h := hex.EncodeToString(buf)
	return h[:4] + "-" + h[4:8] + "-" + h[8:12], nil
}

// hashCode hashes a code after lowercasing and stripping dashes, so
// user re-entry is forgiving about formatting.
func hashCode(code string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

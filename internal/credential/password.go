// ABOUTME: Password hashing and verification using scrypt key derivation
// ABOUTME: Carries the precomputed dummy hash used to equalize login timing

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. Interactive-login strength, ~32MB of memory and
// tens of milliseconds per derivation.
const (
	scryptN       = 32768
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	scryptSaltLen = 16
)

// DummyPasswordHash is a valid-format hash that matches no password.
// Login handlers MUST verify against it when the username does not
// exist, so unknown and known usernames take the same wall-clock time.
const DummyPasswordHash = "$scrypt$N=32768,r=8,p=1$IdxNheLpyCK7aDDbtxWiGg$hpo/xGCvvKdY17GgyaNN8UWL3uUl7otM3MLmCLwaO8s"

var b64 = base64.RawStdEncoding

// HashPassword derives an scrypt hash of the password under a fresh
// random salt. The returned string encodes the parameters, salt, and
// derived key: $scrypt$N=..,r=..,p=..$<salt>$<key>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	return fmt.Sprintf("$scrypt$N=%d,r=%d,p=%d$%s$%s",
		scryptN, scryptR, scryptP, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the encoded hash.
// The derived key is compared in constant time. A malformed hash still
// burns a full derivation before returning false, so verification cost
// never depends on whether the stored hash was intact.
func VerifyPassword(password, encoded string) bool {
	salt, expected, n, r, p, err := parseHash(encoded)
	if err != nil {
		burnDerivation(password)
		return false
	}

	key, err := scrypt.Key([]byte(password), salt, n, r, p, len(expected))
	if err != nil {
		burnDerivation(password)
		return false
	}

	return subtle.ConstantTimeCompare(key, expected) == 1
}

// parseHash splits an encoded hash into its salt, derived key, and
// parameters.
func parseHash(encoded string) (salt, key []byte, n, r, p int, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed scrypt hash")
	}

	if _, err := fmt.Sscanf(parts[2], "N=%d,r=%d,p=%d", &n, &r, &p); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("parsing scrypt parameters: %w", err)
	}

	salt, err = b64.DecodeString(parts[3])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("decoding key: %w", err)
	}

	if len(key) == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("empty derived key")
	}

	return salt, key, n, r, p, nil
}

// burnDerivation runs a derivation with the default parameters so the
// failure path costs the same as a real verification.
func burnDerivation(password string) {
	var salt [scryptSaltLen]byte
	_, _ = scrypt.Key([]byte(password), salt[:], scryptN, scryptR, scryptP, scryptKeyLen)
}

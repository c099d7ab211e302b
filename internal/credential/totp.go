// ABOUTME: TOTP secret generation, otpauth provisioning URIs, and code verification
// ABOUTME: Verification returns the matched code so callers can reject same-window replays

package credential

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// totpSecretBytes is the raw secret length before base32 encoding.
	totpSecretBytes = 20
	// totpPeriod is the code validity window in seconds.
	totpPeriod = 30
	// totpSkew is how many adjacent periods are accepted, to absorb
	// client clock drift.
	totpSkew = 1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTotpSecret returns a new random base32-encoded TOTP secret.
func GenerateTotpSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	return b32.EncodeToString(buf), nil
}

// BuildTotpURI returns the otpauth:// provisioning URI for the secret,
// suitable for rendering as a QR code in an authenticator app.
func BuildTotpURI(secret, issuer, account string) (string, error) {
	raw, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decoding totp secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("building provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// VerifyTotp checks a code against the secret, accepting the current
// period plus/minus totpSkew. It returns the normalized code on match
// so the caller can record it and reject an identical replay within
// the same window, or "" if the code does not match.
func VerifyTotp(secret, code string) string {
	normalized := normalizeTotpCode(code)
	if len(normalized) != 6 {
		return ""
	}

	ok, err := totp.ValidateCustom(normalized, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ""
	}
	return normalized
}

// normalizeTotpCode strips whitespace users commonly paste along with
// authenticator codes.
func normalizeTotpCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}

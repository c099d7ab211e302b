// ABOUTME: Session encryption key management under {dataDir}/credentials
// ABOUTME: Malformed key files are silently replaced, orphaning old snapshots

package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	credentialsDirName = "credentials"
	keyFileName        = "session-encryption-key"
)

// keyPath returns {dataDir}/credentials/session-encryption-key.
func keyPath(dataDir string) string {
	return filepath.Join(dataDir, credentialsDirName, keyFileName)
}

// LoadOrCreateKey returns the snapshot encryption key for dataDir,
// reading the hex-encoded key file if intact and generating a fresh key
// otherwise. Repeated calls against an intact file return byte-identical
// keys. Replacing a malformed file makes previously written snapshots
// permanently unreadable; those sessions fall back to re-authentication.
func LoadOrCreateKey(dataDir string) ([]byte, error) {
	path := keyPath(dataDir)

	data, err := os.ReadFile(path)
	if err == nil {
		key, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr == nil && len(key) == KeySize {
			return key, nil
		}
		slog.Warn("session key file malformed, generating a new key", "path", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading session key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("writing session key file: %w", err)
	}

	slog.Info("generated session encryption key", "path", path)
	return key, nil
}

// ABOUTME: Encrypted session snapshot read/write under {dataDir}/sessions
// ABOUTME: AES-256-GCM with a fresh nonce per write; loads fail open to an empty map

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionsDirName  = "sessions"
	snapshotFileName = "auth-sessions.enc"
)

// snapshotPath returns {dataDir}/sessions/auth-sessions.enc.
func snapshotPath(dataDir string) string {
	return filepath.Join(dataDir, sessionsDirName, snapshotFileName)
}

// persistSnapshot writes the non-expired sessions to disk, encrypted
// under key. The write goes to a temp file in the same directory and is
// renamed into place, so a crash mid-write leaves the previous snapshot
// intact.
func persistSnapshot(dataDir string, key []byte, sessions map[string]*Session) error {
	now := time.Now()
	live := make(map[string]*Session, len(sessions))
	for id, s := range sessions {
		if s.Expired(now) {
			continue
		}
		live[id] = s
	}

	plaintext, err := json.Marshal(live)
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}

	ciphertext, err := encrypt(key, plaintext)
	if err != nil {
		return fmt.Errorf("encrypting sessions: %w", err)
	}

	path := snapshotPath(dataDir)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads and decrypts the persisted session map. The error
// branch is informational only: callers discard it with a log line and
// start from an empty map, forcing re-authentication rather than
// blocking startup. Entries already expired at load time are dropped.
func loadSnapshot(dataDir string, key []byte) (map[string]*Session, error) {
	empty := make(map[string]*Session)

	data, err := os.ReadFile(snapshotPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("reading snapshot: %w", err)
	}

	plaintext, err := decrypt(key, data)
	if err != nil {
		return empty, fmt.Errorf("decrypting snapshot: %w", err)
	}

	var sessions map[string]*Session
	if err := json.Unmarshal(plaintext, &sessions); err != nil {
		return empty, fmt.Errorf("decoding snapshot: %w", err)
	}

	now := time.Now()
	for id, s := range sessions {
		if s == nil || s.Expired(now) {
			delete(sessions, id)
		}
	}
	return sessions, nil
}

// encrypt seals plaintext with AES-256-GCM, prepending the nonce to the
// returned ciphertext.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a nonce-prefixed AES-256-GCM ciphertext. Tampering or a
// wrong key surfaces as an authentication error.
func decrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

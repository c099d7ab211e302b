// ABOUTME: In-memory session lifecycle with debounced encrypted persistence
// ABOUTME: Create/Get/Refresh/Delete plus lazy eviction and a janitor sweep

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CohesiumAI/openclaw-sub000/internal/auth"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

const (
	// DefaultTTL is the sliding session lifetime when the config does
	// not override it.
	DefaultTTL = 7 * 24 * time.Hour

	// defaultPersistDelay coalesces bursts of session mutations into
	// one snapshot write.
	defaultPersistDelay = 2 * time.Second

	sessionIDBytes = 32
	csrfTokenBytes = 32
)

// Config carries Manager construction parameters.
type Config struct {
	// DataDir roots the credentials/ and sessions/ directories.
	DataDir string
	// TTL is the sliding session lifetime; zero means DefaultTTL.
	TTL time.Duration
	// PersistDelay overrides the write debounce; zero means the default.
	PersistDelay time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the live session map. One instance is constructed at
// startup and shared by every handler; all map access goes through its
// lock. Mutations schedule a debounced snapshot write so bursts cost
// one disk write.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	dataDir string
	ttl     time.Duration
	key     []byte
	logger  *slog.Logger

	timerMu      sync.Mutex
	persistTimer *time.Timer
	persistDelay time.Duration
	closed       bool
}

// NewManager loads the encryption key and any persisted snapshot, then
// returns a ready manager. A snapshot that cannot be read (missing
// file, corrupt ciphertext, wrong key) is discarded with a warning and
// the manager starts empty.
func NewManager(cfg Config) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	persistDelay := cfg.PersistDelay
	if persistDelay <= 0 {
		persistDelay = defaultPersistDelay
	}

	key, err := LoadOrCreateKey(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading session encryption key: %w", err)
	}

	sessions, err := loadSnapshot(cfg.DataDir, key)
	if err != nil {
		logger.Warn("discarding persisted sessions", "error", err)
		sessions = make(map[string]*Session)
	}
	if len(sessions) > 0 {
		logger.Info("restored persisted sessions", "count", len(sessions))
	}

	return &Manager{
		sessions:     sessions,
		dataDir:      cfg.DataDir,
		ttl:          ttl,
		key:          key,
		logger:       logger,
		persistDelay: persistDelay,
	}, nil
}

// TTL returns the configured sliding session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create builds a session for the user: fresh random session ID and
// CSRF token, scopes derived from the role, expiry one TTL out.
func (m *Manager) Create(username, role string) (*Session, error) {
	id, err := generateToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	csrfToken, err := generateToken(csrfTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating csrf token: %w", err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		Username:       username,
		Role:           role,
		Scopes:         auth.ScopesForRole(role),
		CSRFToken:      csrfToken,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		LastActivityAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("created session", "username", username, "role", role)
	m.schedulePersist()
	return s.clone(), nil
}

// Get returns the session for id if it is present and alive. Expired
// entries are evicted on read.
func (m *Manager) Get(id string) (*Session, error) {
	now := time.Now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.Expired(now) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.schedulePersist()
		return nil, ErrSessionExpired
	}
	cp := s.clone()
	m.mu.Unlock()
	return cp, nil
}

// Refresh extends a live session by one TTL and rotates its ID, so a
// pre-login fixation of the cookie value dies on first refresh. The
// CSRF token and creation time carry over. Missing or expired sessions
// fail without side effects beyond eviction.
func (m *Manager) Refresh(id string) (*Session, error) {
	newID, err := generateToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := time.Now().UTC()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.Expired(now) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.schedulePersist()
		return nil, ErrSessionExpired
	}

	delete(m.sessions, id)
	s.ID = newID
	s.ExpiresAt = now.Add(m.ttl)
	s.LastActivityAt = now
	m.sessions[newID] = s
	cp := s.clone()
	m.mu.Unlock()

	m.logger.Debug("refreshed session", "username", cp.Username)
	m.schedulePersist()
	return cp, nil
}

// Delete removes the session. Idempotent: deleting an unknown id is a
// no-op that still schedules a persist so logout always lands on disk.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	_, existed := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if existed {
		m.logger.Debug("deleted session")
	}
	m.schedulePersist()
}

// Count returns the number of sessions currently in the map, live or
// not-yet-evicted.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepExpired evicts every expired session and reports how many were
// removed. The gateway runs this on a ticker so idle sessions do not
// linger until someone reads them.
func (m *Manager) SweepExpired() int {
	now := time.Now()

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept expired sessions", "count", removed)
		m.schedulePersist()
	}
	return removed
}

// schedulePersist arms (or re-arms) the debounce timer. After Close it
// does nothing, so shutdown never leaks a timer.
func (m *Manager) schedulePersist() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.closed {
		return
	}
	if m.persistTimer != nil {
		m.persistTimer.Reset(m.persistDelay)
		return
	}
	m.persistTimer = time.AfterFunc(m.persistDelay, m.persistNow)
}

// persistNow is the debounce timer callback.
func (m *Manager) persistNow() {
	m.timerMu.Lock()
	m.persistTimer = nil
	m.timerMu.Unlock()

	if err := m.writeSnapshot(); err != nil {
		m.logger.Warn("persisting sessions failed", "error", err)
	}
}

// Flush cancels any pending debounce and writes the current state
// immediately. Both paths snapshot the live map at write time, so a
// racing debounce can never overwrite a flush with staler data.
func (m *Manager) Flush() error {
	m.stopTimer()
	return m.writeSnapshot()
}

// Close cancels the debounce timer permanently and writes a final
// snapshot. Safe to call more than once.
func (m *Manager) Close() error {
	m.timerMu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	if m.persistTimer != nil {
		m.persistTimer.Stop()
		m.persistTimer = nil
	}
	m.timerMu.Unlock()

	if alreadyClosed {
		return nil
	}
	return m.writeSnapshot()
}

func (m *Manager) stopTimer() {
	m.timerMu.Lock()
	if m.persistTimer != nil {
		m.persistTimer.Stop()
		m.persistTimer = nil
	}
	m.timerMu.Unlock()
}

// writeSnapshot copies the map under the read lock, then encrypts and
// writes outside it.
func (m *Manager) writeSnapshot() error {
	m.mu.RLock()
	snapshot := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		snapshot[id] = s.clone()
	}
	m.mu.RUnlock()

	return persistSnapshot(m.dataDir, m.key, snapshot)
}

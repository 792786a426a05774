package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists the session map as a whole snapshot, so sessions
// survive a restart. Nil is valid: sessions then live only in memory.
type SessionStore interface {
	Load() (map[string]Session, error)
	Save(sessions map[string]Session) error
}

// SessionManager owns server-side session state keyed by opaque client
// tokens. It is an explicit, injected instance: construct one at startup,
// Load persisted state, and let it die with the process.
//
// Known limitation, carried over from the design this replaces: each session
// holds a snapshot of the user's public fields, refreshed only through
// Refresh. An account changed out of band leaves its sessions stale until
// the next refresh.
type SessionManager struct {
	log     *slog.Logger
	store   SessionStore
	nowFunc func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewSessionManager(log *slog.Logger, store SessionStore) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		log:      log,
		store:    store,
		nowFunc:  time.Now,
		sessions: make(map[string]Session),
	}
}

// Load replaces in-memory state with whatever the store persisted.
func (m *SessionManager) Load() error {
	if m.store == nil {
		return nil
	}
	state, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	if state == nil {
		state = make(map[string]Session)
	}
	m.mu.Lock()
	m.sessions = state
	m.mu.Unlock()
	return nil
}

// Create allocates a fresh token and stores a snapshot of the user's public
// fields under it.
func (m *SessionManager) Create(user User) (Session, error) {
	token, err := generateToken(32)
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}

	session := Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      SessionUser{ID: user.ID, Username: user.Username},
		CreatedAt: m.nowFunc(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = session
	if err := m.persistLocked(); err != nil {
		delete(m.sessions, token)
		return Session{}, err
	}
	return session, nil
}

func (m *SessionManager) Get(token string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Refresh overwrites the session's user snapshot with a fresh copy. A
// persistence failure is logged, not returned: the live snapshot is already
// updated and that is the caller-visible effect.
func (m *SessionManager) Refresh(token string, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	session.User = SessionUser{ID: user.ID, Username: user.Username}
	m.sessions[token] = session
	if err := m.persistLocked(); err != nil {
		m.log.Error("persist refreshed session", "error", err)
	}
	return nil
}

// Destroy removes the session. It is idempotent: unknown tokens are not an
// error, and persistence failures are logged, never surfaced — the caller
// always ends up without a session.
func (m *SessionManager) Destroy(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return
	}
	delete(m.sessions, token)
	if err := m.persistLocked(); err != nil {
		m.log.Error("persist session teardown", "error", err)
	}
}

// Clear drops all in-memory sessions without touching persisted state.
// Intended for shutdown.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]Session)
}

func (m *SessionManager) persistLocked() error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(m.sessions); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func generateToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token length too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// userRecord is the on-disk shape. It carries the hash explicitly because
// User deliberately excludes it from JSON.
type userRecord struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// FileUserStore keeps users in memory and mirrors every change to a JSON
// state file, so accounts survive a restart without a database.
type FileUserStore struct {
	path string

	mu         sync.RWMutex
	byID       map[string]User
	byUsername map[string]string
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	s := &FileUserStore{
		path:       path,
		byID:       make(map[string]User),
		byUsername: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) Create(username, passwordHash string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return User{}, fmt.Errorf("username and password hash are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return User{}, ErrUsernameTaken
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
	}
	s.byID[u.ID] = u
	s.byUsername[u.Username] = u.ID
	if err := s.persistLocked(); err != nil {
		delete(s.byID, u.ID)
		delete(s.byUsername, u.Username)
		return User{}, err
	}
	return u, nil
}

func (s *FileUserStore) GetByUsername(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *FileUserStore) GetByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) Update(id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	prev := u

	if newName := strings.TrimSpace(upd.Username); newName != "" && newName != u.Username {
		if takenBy, taken := s.byUsername[newName]; taken && takenBy != id {
			return User{}, ErrUsernameTaken
		}
		delete(s.byUsername, u.Username)
		u.Username = newName
		s.byUsername[newName] = id
	}
	if upd.PasswordHash != "" {
		u.PasswordHash = upd.PasswordHash
	}
	s.byID[id] = u

	if err := s.persistLocked(); err != nil {
		s.byID[id] = prev
		delete(s.byUsername, u.Username)
		s.byUsername[prev.Username] = id
		return User{}, err
	}
	return u, nil
}

func (s *FileUserStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byUsername, u.Username)
	delete(s.byID, id)

	if err := s.persistLocked(); err != nil {
		s.byID[id] = u
		s.byUsername[u.Username] = id
		return err
	}
	return nil
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var decoded []userRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode user store file: %w", err)
	}
	for _, rec := range decoded {
		if strings.TrimSpace(rec.Username) == "" || rec.ID == "" {
			continue
		}
		s.byID[rec.ID] = User{ID: rec.ID, Username: rec.Username, PasswordHash: rec.PasswordHash}
		s.byUsername[rec.Username] = rec.ID
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	out := make([]userRecord, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, userRecord{ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir user store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write user store file: %w", err)
	}
	return nil
}

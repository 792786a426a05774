package auth

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// UserUpdate is a partial update; empty fields are left unchanged. The
// password arrives here already hashed — the store never sees plaintext.
type UserUpdate struct {
	Username     string
	PasswordHash string
}

// UserStore owns user records. Username uniqueness is enforced atomically
// with the insert or update: concurrent writers racing on the same username
// see exactly one success and one ErrUsernameTaken.
type UserStore interface {
	Create(username, passwordHash string) (User, error)
	GetByUsername(username string) (User, error)
	GetByID(id string) (User, error)
	Update(id string, upd UserUpdate) (User, error)
	Delete(id string) error
}

type InMemoryUserStore struct {
	mu         sync.RWMutex
	byID       map[string]User
	byUsername map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:       make(map[string]User),
		byUsername: make(map[string]string),
	}
}

func (s *InMemoryUserStore) Create(username, passwordHash string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return User{}, errors.New("username and password hash are required")
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
	return u, nil
}

func (s *InMemoryUserStore) GetByUsername(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryUserStore) GetByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) Update(id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}

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
	return u, nil
}

func (s *InMemoryUserStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byUsername, u.Username)
	delete(s.byID, id)
	return nil
}

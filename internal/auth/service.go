package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password. Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidInput    = errors.New("invalid input")
)

// CredentialUpdate carries the fields a user may change. Both are optional,
// but at least one must be set.
type CredentialUpdate struct {
	Username string
	Password string
}

// Service orchestrates signup, login, logout, credential updates and
// account deletion across the user store, the password hasher and the
// session manager.
type Service struct {
	users    UserStore
	hasher   PasswordHasher
	sessions *SessionManager
	log      *slog.Logger
}

func NewService(users UserStore, hasher PasswordHasher, sessions *SessionManager, log *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		log:      log,
	}, nil
}

// SignUp registers a new account and logs it straight in. On any failure the
// caller stays anonymous: no user without a hash, no session without a user.
func (s *Service) SignUp(username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidInput
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(username, hash)
	if err != nil {
		return Session{}, err
	}

	session, err := s.sessions.Create(user)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// LogIn authenticates a username/password pair and opens a session. An
// unknown username and a bad password return the same error.
func (s *Service) LogIn(username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("look up user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	session, err := s.sessions.Create(user)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// LogOut destroys the session unconditionally. Unknown or already-destroyed
// tokens are fine; the caller always ends up anonymous.
func (s *Service) LogOut(token string) {
	s.sessions.Destroy(token)
}

// CurrentUser resolves the session snapshot for a token.
func (s *Service) CurrentUser(token string) (SessionUser, error) {
	session, err := s.sessions.Get(token)
	if err != nil {
		return SessionUser{}, ErrUnauthenticated
	}
	return session.User, nil
}

// UpdateCredentials changes the username and/or password of the account the
// session belongs to, then refreshes the session snapshot so reads through
// the token see the new values.
func (s *Service) UpdateCredentials(token string, upd CredentialUpdate) (User, error) {
	session, err := s.sessions.Get(token)
	if err != nil {
		return User{}, ErrUnauthenticated
	}

	upd.Username = strings.TrimSpace(upd.Username)
	if upd.Username == "" && upd.Password == "" {
		return User{}, ErrInvalidInput
	}

	change := UserUpdate{Username: upd.Username}
	if upd.Password != "" {
		hash, err := s.hasher.Hash(upd.Password)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		change.PasswordHash = hash
	}

	user, err := s.users.Update(session.User.ID, change)
	if err != nil {
		return User{}, err
	}

	if err := s.sessions.Refresh(token, user); err != nil {
		// Session vanished between Get and Refresh; the account update stood
		// on its own, there is just no snapshot left to go stale.
		s.log.Warn("session gone before refresh", "user_id", user.ID)
	}
	return user, nil
}

// DeleteAccount removes the user record, then the session. A failed delete
// leaves the session intact so the caller can retry.
func (s *Service) DeleteAccount(token string) error {
	session, err := s.sessions.Get(token)
	if err != nil {
		return ErrUnauthenticated
	}

	if err := s.users.Delete(session.User.ID); err != nil {
		return err
	}
	s.sessions.Destroy(token)
	return nil
}

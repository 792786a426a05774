package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sessionRecord is the on-disk shape of one session in the snapshot file.
type sessionRecord struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// FileSessionStore persists the session snapshot to a JSON file, so sessions
// survive a restart without a database.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) (*FileSessionStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session state file path is required")
	}
	return &FileSessionStore{path: path}, nil
}

func (s *FileSessionStore) Load() (map[string]Session, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Session), nil
		}
		return nil, fmt.Errorf("read session store file: %w", err)
	}
	if len(b) == 0 {
		return make(map[string]Session), nil
	}

	var decoded []sessionRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, fmt.Errorf("decode session store file: %w", err)
	}
	out := make(map[string]Session, len(decoded))
	for _, rec := range decoded {
		if rec.Token == "" {
			continue
		}
		out[rec.Token] = Session{
			ID:        rec.ID,
			Token:     rec.Token,
			User:      SessionUser{ID: rec.UserID, Username: rec.Username},
			CreatedAt: rec.CreatedAt,
		}
	}
	return out, nil
}

func (s *FileSessionStore) Save(sessions map[string]Session) error {
	out := make([]sessionRecord, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionRecord{
			ID:        sess.ID,
			Token:     sess.Token,
			UserID:    sess.User.ID,
			Username:  sess.User.Username,
			CreatedAt: sess.CreatedAt,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir session store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write session store file: %w", err)
	}
	return nil
}

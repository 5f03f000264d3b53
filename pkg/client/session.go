package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-blog-platform/internal/model"
)

// Session is the locally persisted login state. IsAuthenticated means a
// server-confirmed session: a stored token alone does not set it, only a
// successful login or hydration does.
type Session struct {
	User            *model.AuthUser   `json:"user,omitempty"`
	AccessToken     string            `json:"access_token,omitempty"`
	RefreshToken    string            `json:"refresh_token,omitempty"`
	IsAuthenticated bool              `json:"is_authenticated"`
	Permissions     []string          `json:"permissions,omitempty"`
	Menus           []*model.MenuNode `json:"menus,omitempty"`
}

// SessionStore persists the session as one JSON file.
type SessionStore struct {
	path string
	mu   sync.Mutex
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load returns the stored session, or an empty one when no file exists yet.
func (s *SessionStore) Load() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// A corrupt file is treated as logged out rather than an error loop.
		return Session{}, nil
	}
	return session, nil
}

func (s *SessionStore) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Clear resets the stored state to logged out.
func (s *SessionStore) Clear() error {
	return s.Save(Session{})
}

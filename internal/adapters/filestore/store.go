// Package filestore persists the client session token in a JSON file readable only by the
// current user.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

const fileMode = 0o600

var _ ports.TokenStore = (*Store)(nil)

type record struct {
	ID          string          `json:"id"`
	SubjectID   string          `json:"subject_id"`
	Role        domainauth.Role `json:"role"`
	Email       string          `json:"email,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	IssuedAt    time.Time       `json:"issued_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Raw         string          `json:"raw"`
}

// Store is a ports.TokenStore backed by a single file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store writing to path. The parent directory is created on first save.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: path is required")
	}
	return &Store{path: path}, nil
}

// DefaultPath returns the session file location under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "enquiry-gateway", "session.json"), nil
}

// Path returns the file the store writes to.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (domainauth.SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domainauth.SessionToken{}, domainauth.ErrNoSession
	}
	if err != nil {
		return domainauth.SessionToken{}, fmt.Errorf("read session file: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domainauth.SessionToken{}, domainauth.WrapError(err, domainauth.KindMalformedSession, "session file is corrupt")
	}
	return domainauth.SessionToken{
		ID:          rec.ID,
		SubjectID:   rec.SubjectID,
		Role:        rec.Role,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		IssuedAt:    rec.IssuedAt,
		ExpiresAt:   rec.ExpiresAt,
		Raw:         rec.Raw,
	}, nil
}

// Save writes tok atomically: a temp file in the same directory is renamed over the target.
func (s *Store) Save(_ context.Context, tok domainauth.SessionToken) error {
	if tok.Raw == "" {
		return errors.New("session token has no payload")
	}
	data, err := json.MarshalIndent(record{
		ID:          tok.ID,
		SubjectID:   tok.SubjectID,
		Role:        tok.Role,
		Email:       tok.Email,
		DisplayName: tok.DisplayName,
		IssuedAt:    tok.IssuedAt,
		ExpiresAt:   tok.ExpiresAt,
		Raw:         tok.Raw,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		_ = tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return errors.Join(cause, rmErr)
		}
		return cause
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return cleanup(fmt.Errorf("chmod session file: %w", err))
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write session file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close session file: %w", err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return cleanup(fmt.Errorf("replace session file: %w", err))
	}
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

var _ ports.TokenStore = (*MemoryStore)(nil)

// MemoryStore keeps the session token for a single browsing context in memory.
type MemoryStore struct {
	mu  sync.RWMutex
	tok *domainauth.SessionToken
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(_ context.Context) (domainauth.SessionToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil {
		return domainauth.SessionToken{}, domainauth.ErrNoSession
	}
	return *m.tok, nil
}

func (m *MemoryStore) Save(_ context.Context, tok domainauth.SessionToken) error {
	if tok.Raw == "" {
		return errors.New("session token has no payload")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = &tok
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = nil
	return nil
}

// LoadValid loads the stored token and checks it against now. It returns ErrNoSession when
// nothing is stored, the token with a SessionExpired error when it has elapsed, and a
// MalformedSession error when the stored value is unusable.
func LoadValid(ctx context.Context, store ports.TokenStore, now time.Time) (domainauth.SessionToken, error) {
	tok, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, domainauth.ErrNoSession) {
			return domainauth.SessionToken{}, err
		}
		return domainauth.SessionToken{}, fmt.Errorf("load session: %w", err)
	}
	if tok.SubjectID == "" || !tok.Role.Valid() || !tok.ExpiresAt.After(tok.IssuedAt) {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "stored session is malformed")
	}
	if tok.Expired(now) {
		return tok, domainauth.NewError(domainauth.KindSessionExpired, "stored session expired")
	}
	return tok, nil
}

package redis

// Package redis provides Redis-based adapters for the enquiry gateway.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// DefaultRevocationPrefix namespaces revocation keys.
const DefaultRevocationPrefix = "revoked:"

// RevocationStore records signed-out session tokens by jti.
// Keys expire together with the token, so the set never outgrows the live sessions.
type RevocationStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRevocationStore creates a Redis-backed revocation store.
func NewRevocationStore(client redis.UniversalClient) *RevocationStore {
	return NewRevocationStoreWithPrefix(client, DefaultRevocationPrefix)
}

// NewRevocationStoreWithPrefix creates a revocation store with a custom key prefix.
func NewRevocationStoreWithPrefix(client redis.UniversalClient, prefix string) *RevocationStore {
	return &RevocationStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Revoke marks tok as signed out until it would have expired. Expired tokens are a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, tok domainauth.SessionToken) error {
	if tok.ID == "" {
		return errors.New("token ID cannot be empty")
	}
	ttl := tok.Remaining(s.now())
	if ttl <= 0 {
		return nil
	}
	// Redis rejects sub-millisecond expirations.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.client.Set(ctx, s.prefix+tok.ID, tok.SubjectID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

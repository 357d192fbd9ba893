package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks live token ids in redis. A token is valid only while its
// jti key exists, so deleting the key revokes it.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "backoffice:token:"
	}
	return &SessionStore{client: client, prefix: prefix}
}

// Register stores jti for ttl.
func (s *SessionStore) Register(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+jti, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("auth: register session: %w", err)
	}
	return nil
}

// Active reports whether jti is still registered for userID.
func (s *SessionStore) Active(ctx context.Context, jti string, userID int64) (bool, error) {
	val, err := s.client.Get(ctx, s.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: load session: %w", err)
	}
	return val == strconv.FormatInt(userID, 10), nil
}

// Revoke deletes jti.
func (s *SessionStore) Revoke(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, s.prefix+jti).Err(); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	return nil
}

// Package redis provides a Redis-backed cart Storage.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agricoventas:user:"

// Storage implements store.Storage on Redis strings. A Storage returned by
// NewStorage is unscoped; use ForUser to get the per-user view the cart
// store writes through.
type Storage struct {
	client *redis.Client
	ttl    time.Duration
	scope  string
}

// NewStorage creates a Redis-backed storage. Every write refreshes the key
// TTL; a zero ttl keeps keys forever.
func NewStorage(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{
		client: client,
		ttl:    ttl,
	}
}

// ForUser returns a view of the storage whose keys live under the user's
// namespace.
func (s *Storage) ForUser(userID string) *Storage {
	return &Storage{
		client: s.client,
		ttl:    s.ttl,
		scope:  keyPrefix + userID + ":",
	}
}

func (s *Storage) key(k string) string {
	return s.scope + k
}

// Get retrieves the value for key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes value under key with the configured TTL.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mememarket/exchange/internal/domain"
)

var _ domain.CacheStore = (*KVStore)(nil)

// KVStore implements domain.CacheStore on raw Redis strings. Connection
// failures surface as domain.ErrUnavailable so callers can treat the cache
// as cold instead of failing the request.
type KVStore struct {
	rdb *redis.Client
}

// NewKVStore creates a KVStore backed by the given Client.
func NewKVStore(c *Client) *KVStore {
	return &KVStore{rdb: c.Underlying()}
}

// Get retrieves the value at key. Returns domain.ErrNotFound when the key
// does not exist and domain.ErrUnavailable when Redis is unreachable.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, domain.ErrUnavailable)
	}
	return data, nil
}

// Set stores value at key with the given TTL. A ttl of zero means no expiry.
func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, domain.ErrUnavailable)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, domain.ErrUnavailable)
	}
	return nil
}

// Available reports whether Redis currently answers pings.
func (s *KVStore) Available(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

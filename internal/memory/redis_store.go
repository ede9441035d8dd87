package memory

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKVStore implements KVStore over go-redis, backing both the actor's
// hot state and the warm metadata tier.
type RedisKVStore struct {
	rdb *redis.Client
}

// NewRedisKVStore wraps an existing Redis client.
func NewRedisKVStore(rdb *redis.Client) *RedisKVStore {
	return &RedisKVStore{rdb: rdb}
}

func (s *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFoundInStore
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

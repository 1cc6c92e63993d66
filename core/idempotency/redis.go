package idempotency

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a CacheStore backed by a shared redis instance, so the
// at-most-once window spans all service replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on top of an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key with the given time to live.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Reserve creates the key only if it is absent and reports whether this
// caller is the creator. It exists so the check-then-act sequence in the
// middleware can be hardened into an atomic reservation, see the package
// documentation.
func (r *RedisStore) Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

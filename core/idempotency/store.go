package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key has no record.
var ErrNotFound = errors.New("idempotency: record not found")

// CacheStore is the narrow key-value collaborator interface the middleware
// records responses in. Implementations must be safe for concurrent use.
type CacheStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key with the given time to live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "key", []byte("value"), time.Hour))

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	now = now.Add(2 * time.Hour)
	_, err = store.Get(ctx, "key")
	assert.Equal(t, ErrNotFound, err)

	_, err = store.Get(ctx, "never-set")
	assert.Equal(t, ErrNotFound, err)
}

func TestMemoryStoreExpiryKeepsFreshWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// readers observing an expired entry must never drop a record that
	// was rewritten in the meantime
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			store.Get(ctx, "key")
		}
		close(done)
	}()

	for i := 0; i < 1000; i++ {
		require.NoError(t, store.Set(ctx, "key", []byte("stale"), -time.Minute))
		require.NoError(t, store.Set(ctx, "key", []byte("fresh"), time.Hour))
		value, err := store.Get(ctx, "key")
		require.NoError(t, err)
		assert.Equal(t, []byte("fresh"), value)
	}
	<-done
}

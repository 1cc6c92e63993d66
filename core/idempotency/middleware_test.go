package idempotency_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/provisio/core/idempotency"
)

func newTestRouter(store idempotency.CacheStore, counter *int64) *mux.Router {
	router := mux.NewRouter()
	router.Use(idempotency.NewMiddleware(&idempotency.Builder{Store: store}))
	router.HandleFunc("/things", func(w http.ResponseWriter, r *http.Request) {
		serial := atomic.AddInt64(counter, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"serial":%d}`, serial)
	}).Methods(http.MethodPost, http.MethodGet)
	return router
}

func doPost(router *mux.Router, messageID string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(`{}`))
	if messageID != "" {
		r.Header.Set(idempotency.MessageIDHeader, messageID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestReplaySameMessageID(t *testing.T) {
	var counter int64
	router := newTestRouter(idempotency.NewMemoryStore(), &counter)

	first := doPost(router, "msg-1")
	second := doPost(router, "msg-1")

	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, first.Header().Get("Content-Type"), second.Header().Get("Content-Type"))
	assert.Equal(t, int64(1), counter, "handler must execute exactly once")
}

func TestDistinctMessageIDs(t *testing.T) {
	var counter int64
	router := newTestRouter(idempotency.NewMemoryStore(), &counter)

	first := doPost(router, "msg-1")
	second := doPost(router, "msg-2")

	assert.NotEqual(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(2), counter)
}

func TestMissingMessageIDSharesFallbackSlot(t *testing.T) {
	var counter int64
	router := newTestRouter(idempotency.NewMemoryStore(), &counter)

	first := doPost(router, "")
	second := doPost(router, "")

	// documented limitation: both requests collide on the fallback id
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), counter)
}

func TestReadsPassThrough(t *testing.T) {
	var counter int64
	router := newTestRouter(idempotency.NewMemoryStore(), &counter)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/things", nil)
		r.Header.Set(idempotency.MessageIDHeader, "msg-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
	}
	assert.Equal(t, int64(2), counter, "read requests are never deduplicated")
}

func TestIncompleteRecordYieldsConflict(t *testing.T) {
	store := idempotency.NewMemoryStore()
	var counter int64
	router := newTestRouter(store, &counter)

	// simulate a record that was created but never completed
	stamp := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	err := store.Set(context.Background(), "idempotency:msg-1",
		[]byte(fmt.Sprintf(`{"timestamp":%q,"completed":false}`, stamp.Format(time.RFC3339))),
		time.Hour)
	require.NoError(t, err)

	rec := doPost(router, "msg-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate request")
	assert.Contains(t, rec.Body.String(), "2026-05-04T12:00:00Z")
	assert.Equal(t, int64(0), counter)
}

func TestStoreFailureDoesNotBlockWrites(t *testing.T) {
	var counter int64
	router := newTestRouter(brokenStore{}, &counter)

	rec := doPost(router, "msg-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(1), counter)
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("cache down")
}

func (brokenStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return fmt.Errorf("cache down")
}

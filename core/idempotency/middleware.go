package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/provisio/core/logger"
)

// MessageIDHeader carries the caller-supplied idempotency key.
const MessageIDHeader = "X-Message-Id"

// DefaultMessageID is the single literal fallback used when the header is
// absent. Unrelated clients omitting the header share this one slot, see the
// package documentation.
const DefaultMessageID = "no-message-id"

const keyPrefix = "idempotency:"

// DefaultTTL is the window during which a message id stays deduplicated.
const DefaultTTL = 24 * time.Hour

// Record is the response snapshot persisted for one message id. It is written
// once and never mutated within its window.
type Record struct {
	Timestamp  time.Time           `json:"timestamp"`
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	StatusCode int                 `json:"statusCode"`
	Headers    map[string][]string `json:"headers"`
	Response   []byte              `json:"response"`
	Completed  bool                `json:"completed"`
}

// Builder is a builder helper for the middleware
type Builder struct {
	// Store is the cache collaborator holding the records. This is mandatory.
	Store CacheStore
	// TTL is the record lifetime. The default is 24 hours.
	TTL time.Duration
	// StoreTimeout bounds every single store access. The default is one second.
	StoreTimeout time.Duration
}

// responseRecorder buffers the handler's response so it can be persisted
// before it is delivered.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (rec *responseRecorder) Header() http.Header { return rec.header }

func (rec *responseRecorder) WriteHeader(status int) { rec.status = status }

func (rec *responseRecorder) Write(data []byte) (int, error) {
	return rec.body.Write(data)
}

func (rec *responseRecorder) flush(w http.ResponseWriter) {
	for key, values := range rec.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(rec.status)
	w.Write(rec.body.Bytes())
}

// NewMiddleware returns a middleware which deduplicates write requests by
// message id.
//
// A request whose message id has a completed record gets that exact response
// replayed, the handler does not run. A record without a completed response
// is answered with 409 and the original timestamp. Read requests pass through
// untouched.
func NewMiddleware(b *Builder) mux.MiddlewareFunc {

	if b.Store == nil {
		panic("Store is missing")
	}
	ttl := b.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	storeTimeout := b.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = time.Second
	}

	isWrite := func(method string) bool {
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			return true
		}
		return false
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWrite(r.Method) {
				h.ServeHTTP(w, r)
				return
			}

			rlog := logger.FromContext(r.Context())

			messageID := r.Header.Get(MessageIDHeader)
			if messageID == "" {
				messageID = DefaultMessageID
			}
			key := keyPrefix + messageID

			lookupCtx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			value, err := b.Store.Get(lookupCtx, key)
			cancel()

			if err == nil {
				record := Record{}
				if err := json.Unmarshal(value, &record); err != nil {
					rlog.WithError(err).Errorf("Error 4311: corrupt idempotency record %s", key)
				} else if record.Completed {
					rlog.Debugf("replay idempotent response for %s", messageID)
					for headerKey, values := range record.Headers {
						for _, headerValue := range values {
							w.Header().Add(headerKey, headerValue)
						}
					}
					w.WriteHeader(record.StatusCode)
					w.Write(record.Response)
					return
				} else {
					// defensive branch, a record exists but never completed
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusConflict)
					json.NewEncoder(w).Encode(struct {
						Code      int       `json:"code"`
						Message   string    `json:"message"`
						Timestamp time.Time `json:"timestamp"`
					}{
						Code:      http.StatusConflict,
						Message:   "duplicate request",
						Timestamp: record.Timestamp,
					})
					return
				}
			} else if err != ErrNotFound {
				// a broken cache must not take the write path down, the
				// request simply runs without the at-most-once guarantee
				rlog.WithError(err).Errorf("Error 4312: idempotency lookup failed for %s", key)
			}

			rec := newResponseRecorder()
			h.ServeHTTP(rec, r)

			record := Record{
				Timestamp:  time.Now().UTC(),
				Method:     r.Method,
				URL:        r.URL.String(),
				StatusCode: rec.status,
				Headers:    rec.header,
				Response:   rec.body.Bytes(),
				Completed:  true,
			}
			data, err := json.Marshal(record)
			if err == nil {
				writeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
				err = b.Store.Set(writeCtx, key, data, ttl)
				cancel()
			}
			if err != nil {
				rlog.WithError(err).Errorf("Error 4313: cannot persist idempotency record %s", key)
			}

			rec.flush(w)
		})
	}
}

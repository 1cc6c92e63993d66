package logger

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Type for the context keys
type contextKeyRequestLoggerType struct{}

var contextKeyRequestLogger = &contextKeyRequestLoggerType{}

const (
	requestIDLoggerKey string = "requestID"
	identityLoggerKey  string = "identity"
)

// InitLogger sets up the custom time formatter for all log statements.
func InitLogger(logLevel logrus.Level) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(logLevel)
}

// AddRequestID installs a middleware which adds a logger with a new request ID
// to every request context that does not carry a logger yet.
func AddRequestID(router *mux.Router) {
	router.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := ContextWithLogger(r.Context())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	})
}

// Default returns a logger without a request ID.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ContextWithLogger returns a new context with a logger if the given context has
// no logger yet. If the context already has a logger the given context is returned.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog := loggerFromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	id, _ := uuid.NewUUID()
	rlog := logrus.WithField(requestIDLoggerKey, id.String())
	return context.WithValue(ctx, contextKeyRequestLogger, rlog), rlog
}

// ContextWithLoggerIdentity returns a new context with a logger carrying the
// authenticated identity.
func ContextWithLoggerIdentity(ctx context.Context, identity string) (context.Context, *logrus.Entry) {
	ctx, rlog := ContextWithLogger(ctx)
	if rlog == nil {
		return ctx, rlog
	}
	rlog = rlog.WithField(identityLoggerKey, identity)
	return context.WithValue(ctx, contextKeyRequestLogger, rlog), rlog
}

// FromContext returns the logger from the context. If the context does not have
// a logger, or is nil, the default logger is returned.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Default()
	}
	if rlog := loggerFromContext(ctx); rlog != nil {
		return rlog
	}
	return Default()
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	rlog, ok := ctx.Value(contextKeyRequestLogger).(*logrus.Entry)
	if !ok {
		return nil
	}
	return rlog
}

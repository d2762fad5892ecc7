package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen caps client supplied ids before they reach the logs.
const maxRequestIDLen = 128

type ctxKeyRequestID struct{}

// RequestID injects a request ID into the context, reusing a sane
// client-supplied one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = newRequestID()
		}
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKeyRequestID{}).(string); ok {
		return id
	}
	return r.Header.Get(RequestIDHeader)
}

// Log returns base tagged with the request's id.
func Log(base *zap.Logger, r *http.Request) *zap.Logger {
	return base.With(zap.String("request_id", GetRequestID(r)))
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

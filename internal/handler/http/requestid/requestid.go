// Package requestid provides middleware and utilities for managing HTTP
// request IDs. It generates unique IDs for each request so admission
// decisions can be traced across logs.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing request IDs.
	RequestIDKey contextKey = "request_id"
	// DefaultHeader is the default HTTP header name for request IDs.
	DefaultHeader = "X-Request-ID"
	// maxInboundLength caps accepted client-supplied IDs; longer values
	// are replaced with a generated one to keep log fields bounded.
	maxInboundLength = 128
)

// FromContext retrieves the request ID from the context.
// Returns an empty string if no request ID is found.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// Middleware generates or propagates request IDs using the default header.
func Middleware(next http.Handler) http.Handler {
	return HeaderMiddleware(DefaultHeader)(next)
}

// HeaderMiddleware returns request ID middleware reading and writing the
// given header. If the inbound header carries a usable value it is
// propagated; otherwise a new UUID v4 is generated. The request ID is added
// to both the response header and the request context.
func HeaderMiddleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(header)
			if requestID == "" || len(requestID) > maxInboundLength {
				requestID = uuid.New().String()
			}

			w.Header().Set(header, requestID)

			ctx := WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

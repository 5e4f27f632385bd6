package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request ID between services.
	RequestIDHeader = "X-Request-ID"

	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey contextKey = "request_id"
)

// RequestID tags each request with a UUID. An inbound X-Request-ID from
// the load balancer is reused only when it parses as a UUID; anything
// else is replaced so log fields stay well-formed. The ID is echoed on
// the response and stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}

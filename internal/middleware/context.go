package middleware

import (
	"context"

	"github.com/devpulse/gateway/internal/auth"
)

type contextKey int

const (
	principalKey contextKey = iota
	requestIDKey
	rawBodyKey
)

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached by the authentication
// filter, or the anonymous principal when none is present.
func PrincipalFrom(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(principalKey).(*auth.Principal); ok && p != nil {
		return p
	}
	return auth.Anonymous()
}

// WithRequestID attaches a request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request id, or "".
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRawBody stores the body bytes exactly as received, before the
// sanitizer rewrites the request body. The integrity filter verifies
// signatures against these bytes.
func WithRawBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, rawBodyKey, body)
}

// RawBodyFrom returns the original body bytes, or nil when no upstream
// filter buffered them.
func RawBodyFrom(ctx context.Context) []byte {
	if b, ok := ctx.Value(rawBodyKey).([]byte); ok {
		return b
	}
	return nil
}

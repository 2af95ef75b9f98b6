// Package bodylimit rejects oversized request bodies before any later
// filter parses them.
package bodylimit

import (
	"net/http"
	"sync/atomic"

	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/middleware"
)

// CompiledBodyLimit enforces a maximum request body size.
type CompiledBodyLimit struct {
	maxBytes int64
	rejected atomic.Int64
	onReject func()
}

// New creates a CompiledBodyLimit.
func New(maxBytes int64) *CompiledBodyLimit {
	return &CompiledBodyLimit{maxBytes: maxBytes}
}

// OnReject installs a hook invoked on every rejection, used for metrics.
func (c *CompiledBodyLimit) OnReject(fn func()) {
	c.onReject = fn
}

// Rejected returns the number of requests rejected so far.
func (c *CompiledBodyLimit) Rejected() int64 {
	return c.rejected.Load()
}

// Middleware rejects declared oversize bodies with 413 and caps streamed
// bodies so a later read cannot exceed the limit.
func (c *CompiledBodyLimit) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > c.maxBytes {
				c.reject(w)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, c.maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c *CompiledBodyLimit) reject(w http.ResponseWriter) {
	c.rejected.Add(1)
	if c.onReject != nil {
		c.onReject()
	}
	errors.ErrPayloadTooLarge.WriteJSON(w)
}

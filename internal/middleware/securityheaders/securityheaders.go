// Package securityheaders applies the baseline security response headers
// and strips server-identifying ones.
package securityheaders

import (
	"bufio"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/middleware"
)

// headerPair is a pre-computed header name + value.
type headerPair struct {
	Name  string
	Value string
}

// identifyingHeaders are removed from every response.
var identifyingHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version"}

// CompiledSecurityHeaders holds pre-computed security headers.
type CompiledSecurityHeaders struct {
	headers       []headerPair
	totalRequests atomic.Int64
}

// Snapshot is a point-in-time copy of metrics.
type Snapshot struct {
	TotalRequests int64    `json:"total_requests"`
	HeaderCount   int      `json:"header_count"`
	Headers       []string `json:"headers"`
}

// New creates a CompiledSecurityHeaders from config. Defaults are applied
// for fields not explicitly set.
func New(cfg config.HeadersConfig) *CompiledSecurityHeaders {
	hsts := cfg.StrictTransportSecurity
	if hsts == "" {
		hsts = "max-age=31536000; includeSubDomains"
	}
	csp := cfg.ContentSecurityPolicy
	if csp == "" {
		csp = "default-src 'self'; frame-ancestors 'none'; object-src 'none'"
	}
	referrer := cfg.ReferrerPolicy
	if referrer == "" {
		referrer = "strict-origin-when-cross-origin"
	}
	frame := cfg.XFrameOptions
	if frame == "" {
		frame = "DENY"
	}

	return &CompiledSecurityHeaders{
		headers: []headerPair{
			{"Strict-Transport-Security", hsts},
			{"Content-Security-Policy", csp},
			{"X-Content-Type-Options", "nosniff"},
			{"X-Frame-Options", frame},
			{"Referrer-Policy", referrer},
		},
	}
}

// Apply sets all configured security headers on the response.
func (c *CompiledSecurityHeaders) Apply(h http.Header) {
	c.totalRequests.Add(1)
	for _, p := range c.headers {
		h.Set(p.Name, p.Value)
	}
	for _, name := range identifyingHeaders {
		h.Del(name)
	}
}

// Middleware applies headers before the handler runs and strips
// identifying headers at write time.
func (c *CompiledSecurityHeaders) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Apply(w.Header())
			next.ServeHTTP(&strippingWriter{ResponseWriter: w}, r)
		})
	}
}

// Snapshot returns a point-in-time copy of metrics.
func (c *CompiledSecurityHeaders) Snapshot() Snapshot {
	names := make([]string, len(c.headers))
	for i, p := range c.headers {
		names[i] = p.Name
	}
	return Snapshot{
		TotalRequests: c.totalRequests.Load(),
		HeaderCount:   len(c.headers),
		Headers:       names,
	}
}

// strippingWriter removes identifying headers a handler may have set
// before the status line goes out.
type strippingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *strippingWriter) WriteHeader(code int) {
	if !w.wrote {
		w.wrote = true
		for _, name := range identifyingHeaders {
			w.Header().Del(name)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *strippingWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets the WebSocket upgrade take over the underlying connection.
func (w *strippingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	w.wrote = true
	return h.Hijack()
}

func (w *strippingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

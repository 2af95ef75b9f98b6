package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/metrics"
)

// statusRecorder captures the response status for after-the-fact logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the WebSocket upgrade take over the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// securityStatuses are the response codes that produce a security record.
var securityStatuses = map[int]bool{
	http.StatusUnauthorized:    true,
	http.StatusForbidden:       true,
	http.StatusTooManyRequests: true,
}

// SecurityLog runs after the handler and emits a structured record for
// rejected requests. It also feeds the HTTP request metrics.
func SecurityLog(reg *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if reg != nil {
				reg.ObserveRequest(r.Method, routeLabel(r.URL.Path), status, time.Since(start))
			}

			if !securityStatuses[status] {
				return
			}

			fields := []zap.Field{
				zap.String("source", SourceAddr(r)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
			}
			if p := PrincipalFrom(r.Context()); !p.IsAnonymous() {
				fields = append(fields, zap.String("principal", p.ID))
			}
			if reqID := RequestIDFrom(r.Context()); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
			logging.Warn("request rejected", fields...)
		})
	}
}

// routeLabel collapses paths to a small label set so the metric cardinality
// stays bounded.
func routeLabel(path string) string {
	switch {
	case path == "/ws":
		return "/ws"
	case path == "/metrics":
		return "/metrics"
	case strings.HasPrefix(path, "/health"):
		return "/health"
	case strings.HasPrefix(path, "/auth"):
		return "/auth"
	case strings.HasPrefix(path, "/api"):
		return "/api"
	default:
		return "other"
	}
}

// SourceAddr returns the client source address used for rate limiting and
// security records. The first X-Forwarded-For hop wins when present.
func SourceAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

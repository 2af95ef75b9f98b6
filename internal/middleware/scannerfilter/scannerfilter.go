// Package scannerfilter rejects requests whose client identity matches
// known vulnerability-scanner signatures.
package scannerfilter

import (
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/middleware"
)

// CompiledScannerFilter holds the compiled deny patterns.
type CompiledScannerFilter struct {
	patterns []*regexp.Regexp
	blocked  atomic.Int64
	onReject func()
}

// New compiles the deny list. Patterns are matched against User-Agent.
func New(denyPatterns []string) (*CompiledScannerFilter, error) {
	patterns := make([]*regexp.Regexp, 0, len(denyPatterns))
	for _, p := range denyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("scannerfilter: invalid pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &CompiledScannerFilter{patterns: patterns}, nil
}

// OnReject installs a metric hook.
func (c *CompiledScannerFilter) OnReject(fn func()) {
	c.onReject = fn
}

// Blocked returns the number of requests blocked so far.
func (c *CompiledScannerFilter) Blocked() int64 {
	return c.blocked.Load()
}

// Match reports whether the user agent hits the deny list.
func (c *CompiledScannerFilter) Match(userAgent string) bool {
	for _, re := range c.patterns {
		if re.MatchString(userAgent) {
			return true
		}
	}
	return false
}

// Middleware answers 403 for denied client identities.
func (c *CompiledScannerFilter) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if c.Match(ua) {
				c.blocked.Add(1)
				if c.onReject != nil {
					c.onReject()
				}
				logging.Warn("scanner signature blocked",
					zap.String("user_agent", ua),
					zap.String("source", middleware.SourceAddr(r)),
				)
				errors.ErrForbidden.WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

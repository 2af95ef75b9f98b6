// Package ssrffilter rejects requests that carry URLs pointing at
// loopback, private, or otherwise reserved addresses.
package ssrffilter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/middleware"
)

// urlFields are the body fields inspected for outbound URLs.
var urlFields = map[string]bool{"url": true, "callback": true}

// DefaultBlockedRanges returns the private/reserved IP ranges to block.
func DefaultBlockedRanges() []string {
	return []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
}

// LookupFunc resolves a hostname to IPs. Injectable for tests.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// CompiledSSRFFilter validates URL-bearing request bodies.
type CompiledSSRFFilter struct {
	blockedNets []*net.IPNet
	allowedNets []*net.IPNet
	lookup      LookupFunc
	blocked     atomic.Int64
}

// New creates a CompiledSSRFFilter. AllowCIDRs exempt ranges from the
// default block list.
func New(allowCIDRs []string) (*CompiledSSRFFilter, error) {
	blocked, err := parseCIDRs(DefaultBlockedRanges())
	if err != nil {
		return nil, fmt.Errorf("ssrffilter: failed to parse default blocked ranges: %w", err)
	}

	var allowed []*net.IPNet
	if len(allowCIDRs) > 0 {
		allowed, err = parseCIDRs(allowCIDRs)
		if err != nil {
			return nil, fmt.Errorf("ssrffilter: invalid allow_cidrs: %w", err)
		}
	}

	return &CompiledSSRFFilter{
		blockedNets: blocked,
		allowedNets: allowed,
		lookup:      defaultLookup,
	}, nil
}

// SetLookup overrides hostname resolution. Test hook.
func (c *CompiledSSRFFilter) SetLookup(fn LookupFunc) {
	c.lookup = fn
}

// Blocked returns the number of rejected requests.
func (c *CompiledSSRFFilter) Blocked() int64 {
	return c.blocked.Load()
}

// Middleware walks JSON bodies for url/callback fields and rejects unsafe
// targets with 400. Requests without such fields pass untouched.
func (c *CompiledSSRFFilter) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				errors.ErrValidation.WriteJSON(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var decoded interface{}
			if err := json.Unmarshal(body, &decoded); err != nil {
				// Not JSON; nothing to inspect here.
				next.ServeHTTP(w, r)
				return
			}

			if unsafe := c.findUnsafeURL(r.Context(), decoded); unsafe != "" {
				c.blocked.Add(1)
				errors.ErrValidation.WithMessage("URL target not allowed").WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// findUnsafeURL walks the structure and returns the first unsafe URL, or "".
func (c *CompiledSSRFFilter) findUnsafeURL(ctx context.Context, v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			if urlFields[strings.ToLower(k)] {
				if s, ok := item.(string); ok && !c.Safe(ctx, s) {
					return s
				}
			}
			if unsafe := c.findUnsafeURL(ctx, item); unsafe != "" {
				return unsafe
			}
		}
	case []interface{}:
		for _, item := range val {
			if unsafe := c.findUnsafeURL(ctx, item); unsafe != "" {
				return unsafe
			}
		}
	}
	return ""
}

// Safe validates a single URL: scheme must be http or https, the host must
// not be localhost, and no resolved address may fall in a blocked range.
func (c *CompiledSSRFFilter) Safe(ctx context.Context, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") {
		return false
	}

	// IP literals are validated directly.
	if ip := net.ParseIP(host); ip != nil {
		return !c.isBlocked(ip)
	}

	// Validate ALL resolved IPs so a half-poisoned record cannot slip through.
	ips, err := c.lookup(ctx, host)
	if err != nil || len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if c.isBlocked(ip) {
			return false
		}
	}
	return true
}

// isBlocked returns true if the IP falls in a blocked range and is not in
// the allow list.
func (c *CompiledSSRFFilter) isBlocked(ip net.IP) bool {
	for _, n := range c.allowedNets {
		if n.Contains(ip) {
			return false
		}
	}
	if ip.IsLinkLocalUnicast() {
		return true
	}
	for _, n := range c.blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func defaultLookup(ctx context.Context, host string) ([]net.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// parseCIDRs parses a list of CIDR strings into net.IPNet pointers.
func parseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

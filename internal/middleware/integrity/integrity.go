// Package integrity verifies HMAC request signatures when a client sends
// them.
package integrity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/middleware"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
)

// CompiledIntegrity verifies HMAC-SHA256 over body||timestamp.
type CompiledIntegrity struct {
	secret  []byte
	maxSkew time.Duration

	verified atomic.Int64
	rejected atomic.Int64
	expired  atomic.Int64
}

// New creates a CompiledIntegrity. With an empty secret every signed
// request is rejected, since no signature can be valid.
func New(secret string, maxSkew time.Duration) *CompiledIntegrity {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &CompiledIntegrity{secret: []byte(secret), maxSkew: maxSkew}
}

// Stats returns verification counters: verified, rejected, expired.
func (c *CompiledIntegrity) Stats() (int64, int64, int64) {
	return c.verified.Load(), c.rejected.Load(), c.expired.Load()
}

// Middleware verifies the signature when the header is present. Unsigned
// requests pass through; the signature is optional but never ignored.
func (c *CompiledIntegrity) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(signatureHeader)
			if sig == "" {
				next.ServeHTTP(w, r)
				return
			}

			ts := r.Header.Get(timestampHeader)
			unix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				c.rejected.Add(1)
				errors.ErrIntegrityFailed.WriteJSON(w)
				return
			}

			skew := time.Since(time.Unix(unix, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > c.maxSkew {
				c.expired.Add(1)
				errors.ErrIntegrityFailed.WithMessage("Request timestamp too old").WriteJSON(w)
				return
			}

			// Verify against the bytes exactly as received. The sanitizer
			// buffered them earlier in the chain; fall back to reading the
			// body for requests it skipped.
			body := middleware.RawBodyFrom(r.Context())
			if body == nil && r.Body != nil {
				body, err = io.ReadAll(r.Body)
				r.Body.Close()
				if err != nil {
					c.rejected.Add(1)
					errors.ErrIntegrityFailed.WriteJSON(w)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			if !c.Verify(body, ts, sig) {
				c.rejected.Add(1)
				errors.ErrIntegrityFailed.WriteJSON(w)
				return
			}

			c.verified.Add(1)
			next.ServeHTTP(w, r)
		})
	}
}

// Verify checks a hex HMAC-SHA256 signature over body||timestamp.
func (c *CompiledIntegrity) Verify(body []byte, timestamp, signature string) bool {
	if len(c.secret) == 0 {
		return false
	}
	expected := c.Sign(body, timestamp)
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}

// Sign computes the HMAC-SHA256 over body||timestamp. Exposed for clients
// and tests.
func (c *CompiledIntegrity) Sign(body []byte, timestamp string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return mac.Sum(nil)
}

// Package session implements the server-side session store used for CSRF
// binding.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/logging"
)

var (
	ErrNotFound    = errors.New("session: not found")
	ErrInvalidated = errors.New("session: invalidated")
	ErrExpired     = errors.New("session: expired")
)

// invalidatedGrace keeps invalidated records visible to late requests
// before the sweeper removes them.
const invalidatedGrace = time.Minute

// Session is one server-side login handle.
type Session struct {
	ID            string
	UserID        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	LastTouched   time.Time
	Invalidated   bool
	invalidatedAt time.Time
}

type csrfToken struct {
	value    string
	issuedAt time.Time
}

// Store maps session ids to Sessions and their current CSRF tokens.
// All operations are safe for parallel readers and writers.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	csrf     map[string]*csrfToken

	idleTimeout  time.Duration
	csrfRotation time.Duration

	onCount func(n int) // gauge hook

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a Store and starts its background sweeper.
func NewStore(cfg config.SessionConfig) *Store {
	s := &Store{
		sessions:     make(map[string]*Session),
		csrf:         make(map[string]*csrfToken),
		idleTimeout:  cfg.IdleTimeout,
		csrfRotation: cfg.CSRFRotation,
		stop:         make(chan struct{}),
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go s.sweepLoop(interval)

	return s
}

// OnCount installs a hook invoked with the live session count after every
// mutation. Used to feed the sessions_active gauge.
func (s *Store) OnCount(fn func(n int)) {
	s.mu.Lock()
	s.onCount = fn
	s.mu.Unlock()
}

// Create mints a new session for the user.
func (s *Store) Create(userID string) (*Session, error) {
	id, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:          id,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.idleTimeout),
		LastTouched: now,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	count := len(s.sessions)
	hook := s.onCount
	s.mu.Unlock()

	if hook != nil {
		hook(count)
	}
	return sess, nil
}

// Get returns the session and slides its expiry. Expired or invalidated
// sessions return an error.
func (s *Store) Get(id string) (*Session, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Invalidated {
		return nil, ErrInvalidated
	}
	if now.After(sess.ExpiresAt) {
		return nil, ErrExpired
	}

	sess.LastTouched = now
	sess.ExpiresAt = now.Add(s.idleTimeout)
	snapshot := *sess
	return &snapshot, nil
}

// Invalidate marks the session unusable. The record lingers for a short
// grace so concurrent requests observe the invalidation rather than a miss.
func (s *Store) Invalidate(id string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.Invalidated = true
		sess.invalidatedAt = time.Now()
	}
	delete(s.csrf, id)
	s.mu.Unlock()
}

// IssueCSRF returns the current CSRF token for the session, minting a new
// one when none exists or the rotation window has passed.
func (s *Store) IssueCSRF(id string) (string, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return "", ErrNotFound
	}
	if sess.Invalidated {
		return "", ErrInvalidated
	}
	if now.After(sess.ExpiresAt) {
		return "", ErrExpired
	}

	if tok, ok := s.csrf[id]; ok {
		if s.csrfRotation <= 0 || now.Sub(tok.issuedAt) < s.csrfRotation {
			return tok.value, nil
		}
	}

	value, err := randomToken()
	if err != nil {
		return "", err
	}
	s.csrf[id] = &csrfToken{value: value, issuedAt: now}
	return value, nil
}

// ValidateCSRF checks the presented token against the session's current
// token in constant time. A token is never accepted for another session.
func (s *Store) ValidateCSRF(id, token string) bool {
	s.mu.RLock()
	sess, sessOK := s.sessions[id]
	tok, tokOK := s.csrf[id]
	s.mu.RUnlock()

	if !sessOK || !tokOK || sess.Invalidated || time.Now().After(sess.ExpiresAt) {
		return false
	}
	if len(token) != len(tok.value) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(tok.value)) == 1
}

// Len returns the number of tracked sessions, including invalidated ones
// awaiting sweep.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// Sweep removes expired sessions and invalidated sessions past the grace
// period. Exposed for tests; the sweeper goroutine calls it on a ticker.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()

	removed := 0
	for id, sess := range s.sessions {
		expired := now.After(sess.ExpiresAt)
		stale := sess.Invalidated && now.Sub(sess.invalidatedAt) > invalidatedGrace
		if expired || stale {
			delete(s.sessions, id)
			delete(s.csrf, id)
			removed++
		}
	}
	count := len(s.sessions)
	hook := s.onCount
	s.mu.Unlock()

	if removed > 0 {
		logging.Debug("session sweep", zap.Int("removed", removed), zap.Int("remaining", count))
	}
	if hook != nil {
		hook(count)
	}
	return removed
}

// randomToken returns a 256-bit hex-encoded random string.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

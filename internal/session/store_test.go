package session

import (
	"sync"
	"testing"
	"time"

	"github.com/devpulse/gateway/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(config.SessionConfig{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: time.Hour, // keep the background sweeper quiet
		CSRFRotation:  15 * time.Minute,
	})
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.ID) != 64 {
		t.Errorf("expected 256-bit hex id, got %d chars", len(sess.ID))
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" {
		t.Errorf("expected u1, got %s", got.UserID)
	}
}

func TestGetUnknownSession(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		sess, err := s.Create("u1")
		if err != nil {
			t.Fatal(err)
		}
		if seen[sess.ID] {
			t.Fatal("duplicate session id")
		}
		seen[sess.ID] = true
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.Create("u1")

	s.Invalidate(sess.ID)
	if _, err := s.Get(sess.ID); err != ErrInvalidated {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}
	// Idempotent on unknown ids.
	s.Invalidate("nope")
}

func TestCSRFRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.Create("u1")

	token, err := s.IssueCSRF(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !s.ValidateCSRF(sess.ID, token) {
		t.Error("issued token should validate")
	}
	if s.ValidateCSRF(sess.ID, "wrong") {
		t.Error("wrong token should not validate")
	}

	// Stable until rotation.
	again, _ := s.IssueCSRF(sess.ID)
	if again != token {
		t.Error("token should be stable within the rotation window")
	}
}

func TestCSRFNotAcceptedForOtherSession(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("u1")
	b, _ := s.Create("u2")

	tokenA, _ := s.IssueCSRF(a.ID)
	if s.ValidateCSRF(b.ID, tokenA) {
		t.Error("token bound to session a must not validate for session b")
	}
}

func TestCSRFInvalidatedSession(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.Create("u1")
	token, _ := s.IssueCSRF(sess.ID)

	s.Invalidate(sess.ID)
	if s.ValidateCSRF(sess.ID, token) {
		t.Error("invalidated session must not validate CSRF")
	}
	if _, err := s.IssueCSRF(sess.ID); err != ErrInvalidated {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}
}

func TestCSRFRotation(t *testing.T) {
	s := NewStore(config.SessionConfig{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: time.Hour,
		CSRFRotation:  time.Nanosecond,
	})
	defer s.Close()

	sess, _ := s.Create("u1")
	first, _ := s.IssueCSRF(sess.ID)
	time.Sleep(time.Millisecond)
	second, _ := s.IssueCSRF(sess.ID)

	if first == second {
		t.Error("token should rotate after the rotation window")
	}
	if s.ValidateCSRF(sess.ID, first) {
		t.Error("rotated-out token must not validate")
	}
	if !s.ValidateCSRF(sess.ID, second) {
		t.Error("current token should validate")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := NewStore(config.SessionConfig{
		IdleTimeout:   time.Millisecond,
		SweepInterval: time.Hour,
	})
	defer s.Close()

	sess, _ := s.Create("u1")
	time.Sleep(5 * time.Millisecond)

	if removed := s.Sweep(time.Now()); removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if _, err := s.Get(sess.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after sweep, got %v", err)
	}
}

func TestSweepKeepsInvalidatedWithinGrace(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.Create("u1")
	s.Invalidate(sess.ID)

	// Within the grace window the record survives so late requests see
	// ErrInvalidated rather than ErrNotFound.
	if removed := s.Sweep(time.Now()); removed != 0 {
		t.Errorf("expected 0 removals within grace, got %d", removed)
	}
	if _, err := s.Get(sess.ID); err != ErrInvalidated {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}

	// Past the grace window it is swept.
	if removed := s.Sweep(time.Now().Add(2 * time.Minute)); removed != 1 {
		t.Errorf("expected 1 removal past grace, got %d", removed)
	}
}

func TestGetSlidesExpiry(t *testing.T) {
	s := NewStore(config.SessionConfig{
		IdleTimeout:   50 * time.Millisecond,
		SweepInterval: time.Hour,
	})
	defer s.Close()

	sess, _ := s.Create("u1")
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		if _, err := s.Get(sess.ID); err != nil {
			t.Fatalf("touch %d failed: %v", i, err)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.Create("u1")
	token, _ := s.IssueCSRF(sess.ID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Get(sess.ID)
				s.ValidateCSRF(sess.ID, token)
				s.Create("other")
			}
		}()
	}
	wg.Wait()
}

package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	sw := NewSlidingWindowCounter(5, time.Minute)
	defer sw.Close()

	for i := 0; i < 5; i++ {
		allowed, _, _ := sw.Allow("1.2.3.4")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, remaining, _ := sw.Allow("1.2.3.4")
	if allowed {
		t.Error("6th request should be rejected")
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}
}

func TestKeysIndependent(t *testing.T) {
	sw := NewSlidingWindowCounter(1, time.Minute)
	defer sw.Close()

	if allowed, _, _ := sw.Allow("a"); !allowed {
		t.Fatal("first request for a should pass")
	}
	if allowed, _, _ := sw.Allow("a"); allowed {
		t.Fatal("second request for a should fail")
	}
	if allowed, _, _ := sw.Allow("b"); !allowed {
		t.Error("source b has its own budget")
	}
}

func TestWindowSlides(t *testing.T) {
	sw := NewSlidingWindowCounter(2, 50*time.Millisecond)
	defer sw.Close()

	sw.Allow("k")
	sw.Allow("k")
	if allowed, _, _ := sw.Allow("k"); allowed {
		t.Fatal("over budget should reject")
	}

	// After two full periods the previous window no longer contributes.
	time.Sleep(120 * time.Millisecond)
	if allowed, _, _ := sw.Allow("k"); !allowed {
		t.Error("budget should recover after the window passes")
	}
}

func TestRemainingDecreases(t *testing.T) {
	sw := NewSlidingWindowCounter(3, time.Minute)
	defer sw.Close()

	_, r1, _ := sw.Allow("k")
	_, r2, _ := sw.Allow("k")
	if r2 >= r1 {
		t.Errorf("remaining should decrease: %d then %d", r1, r2)
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	sw := NewSlidingWindowCounter(1, time.Minute)
	defer sw.Close()

	var rejects int
	handler := Middleware(sw, 1, func() { rejects++ })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest("GET", "/api", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Errorf("unexpected error kind: %v", body)
	}
	if rejects != 1 {
		t.Errorf("expected 1 reject hook call, got %d", rejects)
	}
}

func TestMiddlewareKeysBySource(t *testing.T) {
	sw := NewSlidingWindowCounter(1, time.Minute)
	defer sw.Close()

	handler := Middleware(sw, 1, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	a := httptest.NewRequest("GET", "/api", nil)
	a.RemoteAddr = "1.1.1.1:80"
	b := httptest.NewRequest("GET", "/api", nil)
	b.RemoteAddr = "2.2.2.2:80"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, a)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, b)
	if rec.Code != http.StatusOK {
		t.Error("different source should have its own budget")
	}
}

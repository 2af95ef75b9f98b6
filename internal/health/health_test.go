package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProbe struct {
	err error
}

func (f *fakeProbe) Ping(context.Context) error {
	return f.err
}

func TestPhaseTransitionsForwardOnly(t *testing.T) {
	l := NewLifecycle()
	if l.Phase() != PhaseStarting {
		t.Fatalf("new lifecycle should be STARTING, got %s", l.Phase())
	}

	l.Advance(PhaseStarted)
	l.Advance(PhaseReady)
	l.Advance(PhaseStarted) // ignored
	if l.Phase() != PhaseReady {
		t.Errorf("backward transition should be ignored, got %s", l.Phase())
	}

	l.Advance(PhaseShuttingDown)
	if l.Phase() != PhaseShuttingDown {
		t.Errorf("shutdown transition must always apply, got %s", l.Phase())
	}
}

func TestProbeAggregation(t *testing.T) {
	l := NewLifecycle()
	l.Register("redis", &fakeProbe{})
	l.Register("directory", &fakeProbe{err: errors.New("connection refused")})

	results, healthy := l.Probe(context.Background())
	if healthy {
		t.Error("one failing probe should mark the whole set unhealthy")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "redis" || !results[0].Healthy {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Name != "directory" || results[1].Healthy || results[1].Error == "" {
		t.Errorf("unexpected second result: %+v", results[1])
	}
}

func TestHealthEndpoint(t *testing.T) {
	l := NewLifecycle()
	l.Register("redis", &fakeProbe{})
	l.Advance(PhaseReady)
	h := NewHandler(l, "1.2.3")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["phase"] != "READY" || body["version"] != "1.2.3" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealthEndpointUnhealthyDependency(t *testing.T) {
	l := NewLifecycle()
	l.Register("redis", &fakeProbe{err: errors.New("down")})
	l.Advance(PhaseReady)
	h := NewHandler(l, "test")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestReadyEndpointFollowsPhase(t *testing.T) {
	l := NewLifecycle()
	h := NewHandler(l, "test")

	get := func() int {
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest("GET", "/health/ready", nil))
		return rec.Code
	}

	if got := get(); got != http.StatusServiceUnavailable {
		t.Errorf("STARTING should not be ready, got %d", got)
	}
	l.Advance(PhaseStarted)
	if got := get(); got != http.StatusServiceUnavailable {
		t.Errorf("STARTED should not be ready, got %d", got)
	}
	l.Advance(PhaseReady)
	if got := get(); got != http.StatusOK {
		t.Errorf("READY should be ready, got %d", got)
	}
	l.Advance(PhaseShuttingDown)
	if got := get(); got != http.StatusServiceUnavailable {
		t.Errorf("SHUTTING_DOWN must fail readiness, got %d", got)
	}
}

func TestStartupEndpoint(t *testing.T) {
	l := NewLifecycle()
	h := NewHandler(l, "test")

	rec := httptest.NewRecorder()
	h.Startup(rec, httptest.NewRequest("GET", "/health/startup", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("STARTING should fail startup probe, got %d", rec.Code)
	}

	l.Advance(PhaseStarted)
	rec = httptest.NewRecorder()
	h.Startup(rec, httptest.NewRequest("GET", "/health/startup", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("STARTED should pass startup probe, got %d", rec.Code)
	}
}

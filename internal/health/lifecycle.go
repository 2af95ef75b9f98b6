// Package health tracks the process lifecycle and serves the liveness,
// readiness, and startup endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// Phase is the process lifecycle state. Transitions only move forward:
// STARTING -> STARTED -> READY -> SHUTTING_DOWN.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseStarted
	PhaseReady
	PhaseShuttingDown
)

var phaseNames = map[Phase]string{
	PhaseStarting:     "STARTING",
	PhaseStarted:      "STARTED",
	PhaseReady:        "READY",
	PhaseShuttingDown: "SHUTTING_DOWN",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Prober reports whether one dependency is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProbeResult is one dependency's latest health sample.
type ProbeResult struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

// Lifecycle holds the phase and the named dependency probes.
type Lifecycle struct {
	mu        sync.RWMutex
	phase     Phase
	startedAt time.Time
	probes    map[string]Prober
	order     []string
	timeout   time.Duration
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		phase:     PhaseStarting,
		startedAt: time.Now(),
		probes:    make(map[string]Prober),
		timeout:   2 * time.Second,
	}
}

// Register adds a named dependency probe. Registration order is the
// reporting order.
func (l *Lifecycle) Register(name string, p Prober) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.probes[name]; !exists {
		l.order = append(l.order, name)
	}
	l.probes[name] = p
}

// Phase returns the current lifecycle phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Advance moves the lifecycle forward. Backward transitions are ignored
// except the jump to SHUTTING_DOWN, which is always allowed.
func (l *Lifecycle) Advance(to Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if to == PhaseShuttingDown || to > l.phase {
		l.phase = to
	}
}

// Uptime returns the time since process start.
func (l *Lifecycle) Uptime() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return time.Since(l.startedAt)
}

// Probe runs every registered dependency probe and reports whether all
// passed.
func (l *Lifecycle) Probe(ctx context.Context) ([]ProbeResult, bool) {
	l.mu.RLock()
	names := append([]string(nil), l.order...)
	probes := make(map[string]Prober, len(l.probes))
	for k, v := range l.probes {
		probes[k] = v
	}
	timeout := l.timeout
	l.mu.RUnlock()

	results := make([]ProbeResult, 0, len(names))
	allHealthy := true
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := probes[name].Ping(probeCtx)
		cancel()

		r := ProbeResult{
			Name:    name,
			Healthy: err == nil,
			Latency: time.Since(start) / time.Millisecond,
		}
		if err != nil {
			r.Error = err.Error()
			allHealthy = false
		}
		results = append(results, r)
	}
	return results, allHealthy
}

package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler serves the three lifecycle endpoints:
//
//	/health         full report with dependency probes
//	/health/ready   200 only in READY, 503 while starting or draining
//	/health/startup 200 once STARTED or later
type Handler struct {
	lifecycle *Lifecycle
	version   string
}

func NewHandler(l *Lifecycle, version string) *Handler {
	return &Handler{lifecycle: l, version: version}
}

// Mount attaches the endpoints to a mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/health/ready", h.Ready)
	mux.HandleFunc("/health/startup", h.Startup)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	probes, healthy := h.lifecycle.Probe(r.Context())
	phase := h.lifecycle.Phase()

	status := http.StatusOK
	overall := "healthy"
	if !healthy || phase == PhaseShuttingDown {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":         overall,
		"phase":          phase.String(),
		"version":        h.version,
		"uptime_seconds": int64(h.lifecycle.Uptime() / time.Second),
		"dependencies":   probes,
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	phase := h.lifecycle.Phase()
	if phase != PhaseReady {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"phase":  phase.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) Startup(w http.ResponseWriter, r *http.Request) {
	phase := h.lifecycle.Phase()
	if phase < PhaseStarted {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "starting",
			"phase":  phase.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

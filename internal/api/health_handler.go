package api

import (
	"net/http"
	"time"

	"github.com/nmslite/hwmon/internal/scheduler"
	"github.com/nmslite/hwmon/internal/version"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	scheduler *scheduler.Scheduler
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sched *scheduler.Scheduler) *HealthHandler {
	return &HealthHandler{scheduler: sched}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health (liveness probe)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   version.Version,
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready. The agent is ready once the scheduler runs.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{"scheduler": "ok"},
	}
	status := http.StatusOK
	if !h.scheduler.IsRunning() {
		resp.Status = "not_ready"
		resp.Checks["scheduler"] = "stopped"
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, status, resp)
}

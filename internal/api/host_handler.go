package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmslite/hwmon/internal/scheduler"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// HostHandler serves the state of the monitored hosts
type HostHandler struct {
	scheduler *scheduler.Scheduler
}

// NewHostHandler creates a new host handler
func NewHostHandler(sched *scheduler.Scheduler) *HostHandler {
	return &HostHandler{scheduler: sched}
}

// MonitorsResponse lists the monitors of a host
type MonitorsResponse struct {
	HostID   string               `json:"host_id"`
	Count    int                  `json:"count"`
	Monitors []*telemetry.Monitor `json:"monitors"`
}

// DetectionResponse is the last detection outcome of a host
type DetectionResponse struct {
	HostID     string                         `json:"host_id"`
	DetectedAt *time.Time                     `json:"detected_at,omitempty"`
	Detected   []string                       `json:"detected"`
	Connectors []telemetry.ConnectorDetection `json:"connectors"`
}

// List handles GET /api/v1/hosts
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	hosts := h.scheduler.Hosts()
	sendJSON(w, http.StatusOK, map[string]any{
		"count": len(hosts),
		"hosts": hosts,
	})
}

// Get handles GET /api/v1/hosts/{id}
func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, ok := h.scheduler.Status(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Host not found", nil)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

// Monitors handles GET /api/v1/hosts/{id}/monitors. The optional type query
// parameter filters by monitor type.
func (h *HostHandler) Monitors(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.host(w, r)
	if !ok {
		return
	}

	monitorType := r.URL.Query().Get("type")
	monitors := make([]*telemetry.Monitor, 0)
	for _, mon := range sh.Runner.Telemetry().Snapshot() {
		if monitorType == "" || mon.Type == monitorType {
			monitors = append(monitors, mon)
		}
	}

	sendJSON(w, http.StatusOK, MonitorsResponse{
		HostID:   sh.Host.ID,
		Count:    len(monitors),
		Monitors: monitors,
	})
}

// Detection handles GET /api/v1/hosts/{id}/detection
func (h *HostHandler) Detection(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.host(w, r)
	if !ok {
		return
	}

	tm := sh.Runner.Telemetry()
	results, detectedAt := tm.Detection()
	resp := DetectionResponse{
		HostID:     sh.Host.ID,
		Detected:   tm.DetectedConnectors(),
		Connectors: results,
	}
	if resp.Detected == nil {
		resp.Detected = []string{}
	}
	if !detectedAt.IsZero() {
		resp.DetectedAt = &detectedAt
	}
	sendJSON(w, http.StatusOK, resp)
}

// Trigger handles POST /api/v1/hosts/{id}/cycle. With discover=true the next
// cycle also runs discovery.
func (h *HostHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	discover := false
	if v := r.URL.Query().Get("discover"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, r, http.StatusBadRequest, "INVALID_PARAM", "discover must be a boolean", nil)
			return
		}
		discover = b
	}

	if !h.scheduler.Trigger(id, discover) {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Host not found", nil)
		return
	}
	sendJSON(w, http.StatusAccepted, map[string]any{
		"host_id":  id,
		"discover": discover,
	})
}

func (h *HostHandler) host(w http.ResponseWriter, r *http.Request) (*scheduler.ScheduledHost, bool) {
	sh, ok := h.scheduler.Host(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Host not found", nil)
		return nil, false
	}
	return sh, true
}

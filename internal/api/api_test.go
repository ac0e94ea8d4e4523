package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmslite/hwmon/internal/auth"
	"github.com/nmslite/hwmon/internal/channels"
	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/extension/exttest"
	"github.com/nmslite/hwmon/internal/scheduler"
	"github.com/nmslite/hwmon/internal/strategy"
	"github.com/nmslite/hwmon/internal/stream"
	"github.com/nmslite/hwmon/internal/telemetry"
)

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	sched   *scheduler.Scheduler
	events  *stream.Hub
	token   string
}

func setupTest(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 32-byte keys for testing
	authService, err := auth.NewService("12345678901234567890123456789012", "12345678901234567890123456789012", "admin", "secret", time.Hour)
	require.NoError(t, err)

	registry := extension.NewRegistry(logger, exttest.New())
	engine := strategy.NewEngine(connector.NewStoreFrom(logger), registry, strategy.EngineConfig{
		FetchTimeout:      time.Second,
		DetectionValidity: time.Hour,
		DetectionWorkers:  1,
	}, logger)
	events := channels.NewEventChannels(channels.EventChannelsConfig{CycleBufferSize: 10, HostStateBufferSize: 10, ConnectorBufferSize: 10})
	t.Cleanup(func() { _ = events.Close() })

	sched := scheduler.New(registry, events, config.SchedulerConfig{
		TickIntervalMS:      1000,
		Workers:             1,
		CollectIntervalMS:   60000,
		DiscoveryIntervalMS: 3600000,
		HealthTimeoutMS:     1000,
		DownThreshold:       3,
	}, logger)

	host := telemetry.NewHostConfiguration("server01", "server01.example.com", telemetry.HostTypeLinux)
	runner := engine.NewHostRunner(host)
	require.NoError(t, sched.AddHost(host, runner))

	runner.RunCycle(context.Background(), true)
	tm := runner.Telemetry()
	fan := tm.AddOrUpdateMonitor(telemetry.MonitorUpdate{
		ID:          "Ipmi_fan_1",
		Type:        "fan",
		ConnectorID: "Ipmi",
		Attributes:  map[string]string{"id": "1"},
	})
	tm.CollectMetric(fan, "hw.fan.speed", 4200, false)

	token, err := authService.IssueToken("admin")
	require.NoError(t, err)

	hub := stream.NewHub(logger)
	t.Cleanup(hub.Close)

	return &testServer{
		handler: NewRouter(authService, sched, hub, true, logger),
		auth:    authService,
		sched:   sched,
		events:  hub,
		token:   token.Token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Version)

	rec = s.do(t, http.MethodGet, "/ready", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "scheduler is not running")
}

func TestLogin(t *testing.T) {
	s := setupTest(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"username":"admin","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/login", []byte(tt.body), false)
			assert.Equal(t, tt.status, rec.Code)

			if tt.status == http.StatusOK {
				var resp auth.LoginResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				_, err := s.auth.ValidateToken(resp.Token)
				assert.NoError(t, err)
			}
		})
	}
}

func TestHosts_RequireToken(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/api/v1/hosts", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHosts_List(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/api/v1/hosts", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int                    `json:"count"`
		Hosts []scheduler.HostStatus `json:"hosts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "server01", resp.Hosts[0].ID)
	assert.True(t, resp.Hosts[0].Up)

	rec = s.do(t, http.MethodGet, "/api/v1/hosts/server01", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/hosts/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHosts_Monitors(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/api/v1/hosts/server01/monitors", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MonitorsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "server01", resp.HostID)
	assert.Equal(t, 2, resp.Count, "fan and host monitors")

	rec = s.do(t, http.MethodGet, "/api/v1/hosts/server01/monitors?type=fan", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Ipmi_fan_1", resp.Monitors[0].ID)
	assert.Equal(t, 4200.0, resp.Monitors[0].Metrics["hw.fan.speed"].Value)

	rec = s.do(t, http.MethodGet, "/api/v1/hosts/missing/monitors", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHosts_Detection(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/api/v1/hosts/server01/detection", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DetectionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "server01", resp.HostID)
	assert.NotNil(t, resp.DetectedAt)
	assert.Empty(t, resp.Detected)
}

func TestHosts_Trigger(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodPost, "/api/v1/hosts/server01/cycle?discover=true", nil, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	status, ok := s.sched.Status("server01")
	require.True(t, ok)
	assert.True(t, status.NextDiscovery.IsZero())

	rec = s.do(t, http.MethodPost, "/api/v1/hosts/server01/cycle?discover=maybe", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/hosts/missing/cycle", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "hw_fan_speed{")
	assert.Contains(t, body, `host_id="server01"`)
	assert.True(t, strings.Contains(body, "hw_status{"), "host availability is exported")
}

func TestEvents_Stream(t *testing.T) {
	s := setupTest(t)
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?access_token="+s.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.events.Count() == 1 }, time.Second, 5*time.Millisecond)

	channels.RelayCycles(s.events)(channels.CycleCompletedEvent{HostID: "server01", CycleID: "c1", Collected: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string                       `json:"type"`
		HostID  string                       `json:"host_id"`
		Payload channels.CycleCompletedEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, channels.EventCycleCompleted, msg.Type)
	assert.Equal(t, "server01", msg.HostID)
	assert.Equal(t, "c1", msg.Payload.CycleID)
	assert.Equal(t, 3, msg.Payload.Collected)
}

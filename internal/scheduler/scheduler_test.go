package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmslite/hwmon/internal/channels"
	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/extension/exttest"
	"github.com/nmslite/hwmon/internal/strategy"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// slowHealth counts concurrent health checks per host.
type slowHealth struct {
	*exttest.Fake
	delay       time.Duration
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (h *slowHealth) CheckHealth(ctx context.Context, _ *telemetry.HostConfiguration) (bool, error) {
	h.calls.Add(1)
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		old := h.maxInFlight.Load()
		if n <= old || h.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	select {
	case <-time.After(h.delay):
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type harness struct {
	scheduler *Scheduler
	events    *channels.EventChannels
	engine    *strategy.Engine
}

func newHarness(t *testing.T, ext extension.Extension, cfg config.SchedulerConfig) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := extension.NewRegistry(logger, ext)
	engine := strategy.NewEngine(connector.NewStoreFrom(logger), registry, strategy.EngineConfig{
		FetchTimeout:      time.Second,
		DetectionValidity: time.Hour,
		DetectionWorkers:  1,
	}, logger)

	events := channels.NewEventChannels(channels.EventChannelsConfig{
		CycleBufferSize:     100,
		HostStateBufferSize: 10,
		ConnectorBufferSize: 10,
	})
	t.Cleanup(func() { _ = events.Close() })

	return &harness{
		scheduler: New(registry, events, cfg, logger),
		events:    events,
		engine:    engine,
	}
}

func (h *harness) addHost(t *testing.T, id string) *ScheduledHost {
	t.Helper()
	host := telemetry.NewHostConfiguration(id, id+".example.com", telemetry.HostTypeLinux)
	require.NoError(t, h.scheduler.AddHost(host, h.engine.NewHostRunner(host)))
	sh, ok := h.scheduler.Host(id)
	require.True(t, ok)
	return sh
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TickIntervalMS:      10,
		Workers:             4,
		CollectIntervalMS:   10,
		DiscoveryIntervalMS: 3600000,
		HealthTimeoutMS:     1000,
		DownThreshold:       2,
	}
}

func TestScheduler_ConcurrentCyclePrevention(t *testing.T) {
	ext := &slowHealth{Fake: exttest.New(), delay: 50 * time.Millisecond}
	h := newHarness(t, ext, testConfig())
	h.addHost(t, "server01")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := h.scheduler.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, h.scheduler.IsRunning())

	assert.GreaterOrEqual(t, ext.calls.Load(), int32(2))
	assert.Equal(t, int32(1), ext.maxInFlight.Load(), "cycles of one host must not overlap")
	assert.NotEmpty(t, h.events.CycleCompleted)
}

func TestScheduler_RunTwice(t *testing.T) {
	h := newHarness(t, exttest.New(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.scheduler.Run(ctx) }()

	require.Eventually(t, h.scheduler.IsRunning, time.Second, 5*time.Millisecond)
	assert.Error(t, h.scheduler.Run(ctx))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_FirstCycleDiscovers(t *testing.T) {
	h := newHarness(t, exttest.New(), testConfig())
	sh := h.addHost(t, "server01")

	h.scheduler.processHost(context.Background(), sh)
	ev := <-h.events.CycleCompleted
	assert.Equal(t, "server01", ev.HostID)
	assert.True(t, ev.Discovery)
	assert.True(t, ev.Detection)

	h.scheduler.processHost(context.Background(), sh)
	ev = <-h.events.CycleCompleted
	assert.False(t, ev.Discovery, "discovery waits for its own interval")
	assert.False(t, ev.Detection)

	require.True(t, h.scheduler.Trigger("server01", true))
	h.scheduler.processHost(context.Background(), sh)
	ev = <-h.events.CycleCompleted
	assert.True(t, ev.Discovery)

	h.scheduler.RedetectAll()
	h.scheduler.processHost(context.Background(), sh)
	ev = <-h.events.CycleCompleted
	assert.True(t, ev.Detection)

	status, ok := h.scheduler.Status("server01")
	require.True(t, ok)
	assert.True(t, status.Up)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, ev.CycleID, status.LastCycle.ID)
}

func TestScheduler_HostDownAndRecovered(t *testing.T) {
	ext := exttest.New()
	ext.Healthy = false
	h := newHarness(t, ext, testConfig())
	sh := h.addHost(t, "server01")

	h.scheduler.processHost(context.Background(), sh)
	assert.Empty(t, h.events.HostDown, "one failure is below the threshold")

	h.scheduler.processHost(context.Background(), sh)
	require.Len(t, h.events.HostDown, 1)
	down := <-h.events.HostDown
	assert.Equal(t, "server01", down.HostID)
	assert.Equal(t, 2, down.Failures)

	h.scheduler.processHost(context.Background(), sh)
	assert.Empty(t, h.events.HostDown, "down is reported once")
	assert.Empty(t, h.events.CycleCompleted, "no cycle runs on a down host")

	status, _ := h.scheduler.Status("server01")
	assert.False(t, status.Up)
	assert.Equal(t, 3, status.ConsecutiveFailures)

	ext.Healthy = true
	h.scheduler.processHost(context.Background(), sh)
	require.Len(t, h.events.HostRecovered, 1)
	assert.Equal(t, "server01", (<-h.events.HostRecovered).HostID)
	assert.Len(t, h.events.CycleCompleted, 1)

	status, _ = h.scheduler.Status("server01")
	assert.True(t, status.Up)
	assert.Zero(t, status.ConsecutiveFailures)
}

func TestScheduler_Hosts(t *testing.T) {
	h := newHarness(t, exttest.New(), testConfig())
	h.addHost(t, "b")
	h.addHost(t, "a")

	host := telemetry.NewHostConfiguration("a", "dup", telemetry.HostTypeLinux)
	assert.Error(t, h.scheduler.AddHost(host, h.engine.NewHostRunner(host)))

	hosts := h.scheduler.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "a", hosts[0].ID)
	assert.Equal(t, "b", hosts[1].ID)
	assert.Equal(t, "a.example.com", hosts[0].Hostname)

	_, ok := h.scheduler.Status("missing")
	assert.False(t, ok)
	assert.False(t, h.scheduler.Trigger("missing", false))
}

func TestScheduler_Managers(t *testing.T) {
	h := newHarness(t, exttest.New(), testConfig())
	h.addHost(t, "b")
	h.addHost(t, "a")

	managers := h.scheduler.Managers()
	require.Len(t, managers, 2)
	assert.Equal(t, "a", managers[0].Host().ID)
	assert.Equal(t, "b", managers[1].Host().ID)
}

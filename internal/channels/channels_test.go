package channels

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishNeverBlocks(t *testing.T) {
	ec := NewEventChannels(EventChannelsConfig{HostStateBufferSize: 1})

	assert.True(t, ec.PublishHostDown(HostDownEvent{HostID: "a"}))
	assert.False(t, ec.PublishHostDown(HostDownEvent{HostID: "b"}), "buffer full")

	ev := <-ec.HostDown
	assert.Equal(t, "a", ev.HostID)

	require.NoError(t, ec.Close())
	require.NoError(t, ec.Close())
	assert.False(t, ec.PublishHostRecovered(HostRecoveredEvent{HostID: "a"}), "closed")
}

func TestCycleTracker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ec := NewEventChannels(EventChannelsConfig{CycleBufferSize: 4})
	tracker := StartCycleTracker(ctx, ec)

	require.True(t, ec.PublishCycleCompleted(CycleCompletedEvent{HostID: "h1", CycleID: "c1"}))
	require.True(t, ec.PublishCycleCompleted(CycleCompletedEvent{HostID: "h1", CycleID: "c2"}))

	assert.Eventually(t, func() bool {
		ev, ok := tracker.Last("h1")
		return ok && ev.CycleID == "c2"
	}, time.Second, 10*time.Millisecond)

	_, ok := tracker.Last("h2")
	assert.False(t, ok)
}

func TestCycleTracker_Hooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ec := NewEventChannels(EventChannelsConfig{CycleBufferSize: 4})
	seen := make(chan string, 4)
	StartCycleTracker(ctx, ec, func(ev CycleCompletedEvent) { seen <- ev.CycleID })

	require.True(t, ec.PublishCycleCompleted(CycleCompletedEvent{HostID: "h1", CycleID: "c1"}))

	select {
	case id := <-seen:
		assert.Equal(t, "c1", id)
	case <-time.After(time.Second):
		t.Fatal("hook not called")
	}
}

type recordingRelay struct {
	mu     sync.Mutex
	events []string
	hosts  []string
}

func (r *recordingRelay) Broadcast(eventType, hostID string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	r.hosts = append(r.hosts, hostID)
}

func (r *recordingRelay) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]string(nil), r.hosts...)
}

func TestEventLogger_Relays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ec := NewEventChannels(EventChannelsConfig{HostStateBufferSize: 4, ConnectorBufferSize: 4, CycleBufferSize: 4})
	relay := &recordingRelay{}
	StartEventLogger(ctx, ec, slog.New(slog.NewTextHandler(io.Discard, nil)), relay)
	StartCycleTracker(ctx, ec, RelayCycles(relay))

	require.True(t, ec.PublishHostDown(HostDownEvent{HostID: "h1", Failures: 3}))
	require.Eventually(t, func() bool { e, _ := relay.snapshot(); return len(e) == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, ec.PublishHostRecovered(HostRecoveredEvent{HostID: "h1"}))
	require.Eventually(t, func() bool { e, _ := relay.snapshot(); return len(e) == 2 }, time.Second, 5*time.Millisecond)
	require.True(t, ec.PublishConnectorsReloaded(ConnectorsReloadedEvent{Count: 2}))
	require.Eventually(t, func() bool { e, _ := relay.snapshot(); return len(e) == 3 }, time.Second, 5*time.Millisecond)
	require.True(t, ec.PublishCycleCompleted(CycleCompletedEvent{HostID: "h2"}))
	require.Eventually(t, func() bool { e, _ := relay.snapshot(); return len(e) == 4 }, time.Second, 5*time.Millisecond)

	events, hosts := relay.snapshot()
	assert.Equal(t, []string{EventHostDown, EventHostRecovered, EventConnectorsReloaded, EventCycleCompleted}, events)
	assert.Equal(t, []string{"h1", "h1", "", "h2"}, hosts)
}

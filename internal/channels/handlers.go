package channels

import (
	"context"
	"log/slog"
	"sync"
)

// Broadcaster relays events to listeners outside the process.
type Broadcaster interface {
	Broadcast(eventType, hostID string, payload any)
}

// RelayCycles returns a cycle tracker hook forwarding every completed cycle
// to b.
func RelayCycles(b Broadcaster) func(CycleCompletedEvent) {
	return func(event CycleCompletedEvent) {
		b.Broadcast(EventCycleCompleted, event.HostID, event)
	}
}

// StartEventLogger starts a goroutine that logs host state changes and
// connector reloads, then hands each event to the relays.
func StartEventLogger(ctx context.Context, events *EventChannels, logger *slog.Logger, relays ...Broadcaster) {
	logger = logger.With("component", "events")
	relay := func(eventType, hostID string, payload any) {
		for _, b := range relays {
			b.Broadcast(eventType, hostID, payload)
		}
	}
	go func() {
		for {
			select {
			case event := <-events.HostDown:
				logger.WarnContext(ctx, "Host is down",
					slog.String("host_id", event.HostID),
					slog.String("hostname", event.Hostname),
					slog.Int("failures", event.Failures),
				)
				relay(EventHostDown, event.HostID, event)
			case event := <-events.HostRecovered:
				logger.InfoContext(ctx, "Host recovered",
					slog.String("host_id", event.HostID),
					slog.String("hostname", event.Hostname),
				)
				relay(EventHostRecovered, event.HostID, event)
			case event := <-events.ConnectorsReloaded:
				logger.InfoContext(ctx, "Connectors reloaded",
					slog.Int("count", event.Count),
				)
				relay(EventConnectorsReloaded, "", event)
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}

// CycleTracker keeps the last completed cycle of every host.
type CycleTracker struct {
	mu   sync.RWMutex
	last map[string]CycleCompletedEvent
}

// StartCycleTracker starts a goroutine recording cycle completions. Each
// hook is called after the cycle was recorded.
func StartCycleTracker(ctx context.Context, events *EventChannels, hooks ...func(CycleCompletedEvent)) *CycleTracker {
	t := &CycleTracker{last: make(map[string]CycleCompletedEvent)}
	go func() {
		for {
			select {
			case event := <-events.CycleCompleted:
				t.mu.Lock()
				t.last[event.HostID] = event
				t.mu.Unlock()
				for _, hook := range hooks {
					hook(event)
				}
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
	return t
}

// Last returns the last completed cycle of a host.
func (t *CycleTracker) Last(hostID string) (CycleCompletedEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ev, ok := t.last[hostID]
	return ev, ok
}

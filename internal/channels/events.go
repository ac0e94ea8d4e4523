package channels

import (
	"sync"
	"time"
)

// CycleCompletedEvent is published after every pipeline cycle of a host
type CycleCompletedEvent struct {
	HostID     string        `json:"host_id"`
	CycleID    string        `json:"cycle_id"`
	Detection  bool          `json:"detection"`
	Discovery  bool          `json:"discovery"`
	Detected   []string      `json:"detected"`
	Discovered int           `json:"discovered"`
	Collected  int           `json:"collected"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// HostDownEvent is published when a host fails its health checks
// DownThreshold times in a row
type HostDownEvent struct {
	HostID    string    `json:"host_id"`
	Hostname  string    `json:"hostname"`
	Failures  int       `json:"failures"`
	Timestamp time.Time `json:"timestamp"`
}

// HostRecoveredEvent is published when a down host answers again
type HostRecoveredEvent struct {
	HostID    string    `json:"host_id"`
	Hostname  string    `json:"hostname"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectorsReloadedEvent is published after the connector directory was
// reloaded
type ConnectorsReloadedEvent struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Event type names used when events are relayed outside the process.
const (
	EventCycleCompleted     = "cycle_completed"
	EventHostDown           = "host_down"
	EventHostRecovered      = "host_recovered"
	EventConnectorsReloaded = "connectors_reloaded"
)

// EventChannels provides typed channels for all agent events
type EventChannels struct {
	CycleCompleted     chan CycleCompletedEvent
	HostDown           chan HostDownEvent
	HostRecovered      chan HostRecoveredEvent
	ConnectorsReloaded chan ConnectorsReloadedEvent

	// Graceful shutdown
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventChannels creates a new EventChannels hub with configured buffer sizes
func NewEventChannels(cfg EventChannelsConfig) *EventChannels {
	return &EventChannels{
		CycleCompleted:     make(chan CycleCompletedEvent, cfg.CycleBufferSize),
		HostDown:           make(chan HostDownEvent, cfg.HostStateBufferSize),
		HostRecovered:      make(chan HostRecoveredEvent, cfg.HostStateBufferSize),
		ConnectorsReloaded: make(chan ConnectorsReloadedEvent, cfg.ConnectorBufferSize),
		done:               make(chan struct{}),
	}
}

// Close signals consumers to exit. Event channels stay open so that late
// producers never panic; they stop publishing once Done is closed.
func (ec *EventChannels) Close() error {
	ec.closeOnce.Do(func() { close(ec.done) })
	return nil
}

// Done returns a channel that's closed when the EventChannels is shutting down
func (ec *EventChannels) Done() <-chan struct{} {
	return ec.done
}

// send publishes ev without blocking and reports whether it was queued.
func send[T any](ec *EventChannels, ch chan T, ev T) bool {
	select {
	case <-ec.done:
		return false
	default:
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// PublishCycleCompleted queues a cycle completion without blocking.
func (ec *EventChannels) PublishCycleCompleted(ev CycleCompletedEvent) bool {
	return send(ec, ec.CycleCompleted, ev)
}

// PublishHostDown queues a host down event without blocking.
func (ec *EventChannels) PublishHostDown(ev HostDownEvent) bool {
	return send(ec, ec.HostDown, ev)
}

// PublishHostRecovered queues a host recovery without blocking.
func (ec *EventChannels) PublishHostRecovered(ev HostRecoveredEvent) bool {
	return send(ec, ec.HostRecovered, ev)
}

// PublishConnectorsReloaded queues a connector reload without blocking.
func (ec *EventChannels) PublishConnectorsReloaded(ev ConnectorsReloadedEvent) bool {
	return send(ec, ec.ConnectorsReloaded, ev)
}
